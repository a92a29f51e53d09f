// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pocketpaw/pawtui/internal/chat"
)

// programSink forwards runner events into the Bubble Tea loop. Fragments go
// through the turn's StreamingBuffer and are applied on stream ticks; the
// other events are sent as messages. The buffer is written before the final
// event is sent, so a forced flush on that event sees every fragment.
type programSink struct {
	send func(tea.Msg)
	buf  *StreamingBuffer
}

func (s *programSink) OnStart(t *chat.Turn) {
	s.send(turnStartMsg{turn: t})
}

func (s *programSink) OnFragment(t *chat.Turn, fragment string) {
	s.buf.Write(fragment)
}

func (s *programSink) OnDone(t *chat.Turn) {
	s.send(turnDoneMsg{turn: t})
}

func (s *programSink) OnError(t *chat.Turn, err error) {
	s.send(turnErrorMsg{turn: t, err: err})
}

func (s *programSink) OnAuthExpired(t *chat.Turn) {
	s.send(turnExpiredMsg{turn: t})
}
