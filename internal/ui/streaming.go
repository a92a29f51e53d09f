// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// STREAMING BUFFER
// =============================================================================

// StreamingBuffer batches stream fragments for rendering. Fragments are
// written from the runner goroutine and flushed from the Bubble Tea loop
// either when enough fragments are waiting or when a frame interval has
// passed, so a fast stream does not re-render once per fragment.
//
// Flushed text is always the exact concatenation of the writes since the
// previous flush.
type StreamingBuffer struct {
	mu         sync.Mutex
	buffer     strings.Builder
	fragments  int
	lastFlush  time.Time
	batchSize  int
	minFlushMs time.Duration
}

const (
	defaultBatchSize = 15
	defaultMaxFPS    = 30
)

// NewStreamingBuffer creates a buffer flushing at most maxFPS times a second.
func NewStreamingBuffer(maxFPS int) *StreamingBuffer {
	if maxFPS <= 0 || maxFPS > 120 {
		maxFPS = defaultMaxFPS
	}
	return &StreamingBuffer{
		batchSize:  defaultBatchSize,
		minFlushMs: time.Second / time.Duration(maxFPS),
		lastFlush:  time.Now(),
	}
}

// Write adds a fragment.
func (sb *StreamingBuffer) Write(fragment string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.buffer.WriteString(fragment)
	sb.fragments++
}

// Flush returns the buffered text if a flush is due.
func (sb *StreamingBuffer) Flush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.buffer.Len() == 0 {
		return "", false
	}
	if sb.fragments < sb.batchSize && time.Since(sb.lastFlush) < sb.minFlushMs {
		return "", false
	}
	return sb.takeLocked(), true
}

// ForceFlush returns all buffered text regardless of thresholds. Use it
// when the stream ends.
func (sb *StreamingBuffer) ForceFlush() (string, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.buffer.Len() == 0 {
		return "", false
	}
	return sb.takeLocked(), true
}

func (sb *StreamingBuffer) takeLocked() string {
	content := sb.buffer.String()
	sb.buffer.Reset()
	sb.fragments = 0
	sb.lastFlush = time.Now()
	return content
}

// Pending returns the number of fragments waiting to be flushed.
func (sb *StreamingBuffer) Pending() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.fragments
}

// Interval returns the minimum time between flushes.
func (sb *StreamingBuffer) Interval() time.Duration {
	return sb.minFlushMs
}

// =============================================================================
// STREAMING TICK COMMAND
// =============================================================================

// streamTickMsg asks the model to flush the active stream buffer.
type streamTickMsg struct {
	turn uint64
}

func streamTickCmd(interval time.Duration, turn uint64) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return streamTickMsg{turn: turn}
	})
}
