// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/pocketpaw/pawtui/internal/chat"
	"github.com/pocketpaw/pawtui/internal/model"
	"github.com/pocketpaw/pawtui/internal/ui/styles"
	"github.com/pocketpaw/pawtui/internal/util"
)

const (
	sidebarWidth = 30
	inputHeight  = 3
)

// =============================================================================
// KEYS
// =============================================================================

func (m *Model) handleChatKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.NewChat):
		m.chat.NewChat()
		m.syncStream()
		m.refreshViewport(true)
		m.sidebarFocus = false
		return m.input.Focus()

	case key.Matches(msg, m.keys.CycleModel):
		name := m.chat.CycleModel()
		if name == "" {
			return m.flash("No models available", true)
		}
		return m.flash("Model: "+name, false)

	case key.Matches(msg, m.keys.Copy):
		text := m.chat.Conversation().LastAssistantText()
		if text == "" {
			return m.flash("Nothing to copy", true)
		}
		if err := clipboard.WriteAll(text); err != nil {
			log.Debug().Err(err).Msg("clipboard write failed")
			return m.flash("Clipboard unavailable", true)
		}
		return m.flash("Copied last reply", false)

	case key.Matches(msg, m.keys.Delete):
		if id, ok := m.deleteTarget(); ok {
			return m.deleteConversationCmd(id)
		}
		return nil

	case key.Matches(msg, m.keys.Focus):
		if m.showSidebar() {
			m.sidebarFocus = !m.sidebarFocus
			if m.sidebarFocus {
				m.input.Blur()
				return nil
			}
			return m.input.Focus()
		}
		return nil
	}

	if m.sidebarFocus {
		return m.handleSidebarKey(msg)
	}

	switch msg.Type {
	case tea.KeyEnter:
		return m.submit()
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Model) handleSidebarKey(msg tea.KeyMsg) tea.Cmd {
	list := m.chat.Conversations()
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.sidebarCursor > 0 {
			m.sidebarCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.sidebarCursor < len(list)-1 {
			m.sidebarCursor++
		}
	case key.Matches(msg, m.keys.Submit):
		if m.sidebarCursor < len(list) {
			m.sidebarFocus = false
			cmd := m.input.Focus()
			return tea.Batch(cmd, m.loadConversationCmd(list[m.sidebarCursor].ID))
		}
	}
	return nil
}

// deleteTarget is the highlighted conversation when the sidebar has focus,
// otherwise the open conversation if it has been saved.
func (m *Model) deleteTarget() (int, bool) {
	if m.sidebarFocus {
		list := m.chat.Conversations()
		if m.sidebarCursor < len(list) {
			return list[m.sidebarCursor].ID, true
		}
		return 0, false
	}
	if id := m.chat.ConversationID(); id != nil {
		return *id, true
	}
	return 0, false
}

func (m *Model) clampSidebar() {
	if n := len(m.chat.Conversations()); m.sidebarCursor >= n {
		m.sidebarCursor = max(n-1, 0)
	}
}

// =============================================================================
// TURNS
// =============================================================================

func (m *Model) submit() tea.Cmd {
	turn, err := m.chat.Submit(m.input.Value())
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		return nil
	case errors.Is(err, chat.ErrTurnInFlight):
		return m.flash("Wait for the current reply to finish", true)
	case err != nil:
		return m.flash(err.Error(), true)
	}
	m.input.Reset()
	m.refreshViewport(true)

	ctx, cancel := context.WithCancel(m.ctx)
	buf := NewStreamingBuffer(m.cfg.UI.MaxFPS)
	m.stream = &activeStream{turn: turn, buf: buf, cancel: cancel}

	runner, sink := m.runner, &programSink{send: m.send, buf: buf}
	run := func() tea.Msg {
		runner.Run(ctx, turn, sink)
		return nil
	}
	return tea.Batch(run, streamTickCmd(buf.Interval(), turn.ID), m.spinner.Tick)
}

func (m *Model) handleStreamTick(msg streamTickMsg) tea.Cmd {
	s := m.stream
	if s == nil || s.turn.ID != msg.turn {
		return nil
	}
	if text, ok := s.buf.Flush(); ok {
		if err := m.chat.Append(s.turn, text); err == nil {
			m.refreshViewport(false)
		}
	}
	return streamTickCmd(s.buf.Interval(), msg.turn)
}

// drainStream applies fragments still buffered for t.
func (m *Model) drainStream(t *chat.Turn) {
	s := m.stream
	if s == nil || s.turn != t {
		return
	}
	if text, ok := s.buf.ForceFlush(); ok {
		_ = m.chat.Append(t, text)
	}
}

func (m *Model) endStream(t *chat.Turn) {
	if m.stream != nil && m.stream.turn == t {
		m.stream.cancel()
		m.stream = nil
	}
}

// syncStream cancels the active stream once the controller has abandoned
// its turn.
func (m *Model) syncStream() {
	if m.stream != nil && m.chat.CurrentTurn() != m.stream.turn {
		m.stream.cancel()
		m.stream = nil
	}
}

// =============================================================================
// LAYOUT AND RENDERING
// =============================================================================

func (m *Model) showSidebar() bool {
	return m.theme.GetLayoutMode() != styles.LayoutNarrow
}

func (m *Model) chatWidth() int {
	w := m.width
	if m.showSidebar() {
		w -= sidebarWidth + 1
	}
	return max(w, 20)
}

// layout sizes the viewport: header, model line, input box and status bar
// are fixed height.
func (m *Model) layout() {
	w := m.chatWidth()
	m.viewport.Width = w
	m.viewport.Height = max(m.height-inputHeight-4, 3)
	m.input.Width = max(w-6, 10)
	m.urlInput.Width = max(m.width-10, 20)
	m.memInput.Width = max(m.width-10, 20)
	m.refreshViewport(false)
}

func (m *Model) refreshViewport(forceBottom bool) {
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages(m.viewport.Width))
	if forceBottom || atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderMessages(width int) string {
	msgs := m.chat.Messages()
	if len(msgs) == 0 {
		return m.theme.Placeholder.Render("Start a new conversation with the AI.")
	}
	bubbleWidth := max(width-4, 16)
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		parts = append(parts, m.renderMessage(msg, bubbleWidth))
	}
	return strings.Join(parts, "\n\n")
}

func (m *Model) renderMessage(msg *model.Message, width int) string {
	nameStyle, bubble := m.theme.AssistantName, m.theme.AssistantBubble
	if msg.Role == model.RoleUser {
		nameStyle, bubble = m.theme.UserName, m.theme.UserBubble
	}
	if msg.Notice {
		bubble = m.theme.NoticeBubble
	}

	header := nameStyle.Render(msg.Role.DisplayName())
	if m.cfg.UI.ShowTimestamps && !msg.Timestamp.IsZero() {
		header += " " + m.theme.Muted.Render(msg.Timestamp.Format("15:04"))
	}

	var body string
	switch {
	case msg.Streaming:
		body = msg.Text() + "▌"
	case msg.Role == model.RoleAssistant && !msg.Notice:
		body = m.md.Render(msg.Content, width-bubble.GetHorizontalFrameSize())
	default:
		body = msg.Content
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, bubble.Width(width).Render(body))
}

func (m *Model) renderChat(height int) string {
	main := m.renderChatMain()
	if !m.showSidebar() {
		return main
	}
	side := m.renderSidebar(height)
	return lipgloss.JoinHorizontal(lipgloss.Top, side, " ", main)
}

func (m *Model) renderChatMain() string {
	state := ""
	switch m.chat.State() {
	case chat.StateSending:
		state = m.spinner.View() + " Thinking..."
	case chat.StateStreaming:
		state = m.spinner.View() + " Streaming"
	}
	modelName := m.chat.Model()
	if modelName == "" {
		modelName = "none"
	}
	title := m.chat.Conversation().Title
	if title == "" {
		title = "New chat"
	}
	top := fmt.Sprintf("%s  %s %s  %s",
		m.theme.CardTitle.Render(util.Truncate(title, 40)),
		m.theme.Label.Render("Model:"), m.theme.Value.Render(modelName), state)

	input := m.theme.InputContainer.Width(max(m.chatWidth()-2, 10)).Render(m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, top, m.viewport.View(), input)
}

func (m *Model) renderSidebar(height int) string {
	var b strings.Builder
	b.WriteString(m.theme.CardTitle.Render("Conversations"))
	b.WriteString("\n")

	list := m.chat.Conversations()
	if len(list) == 0 {
		b.WriteString(m.theme.Muted.Render("No conversations yet"))
	}
	inner := sidebarWidth - 4
	for i, c := range list {
		title := util.Truncate(util.SingleLine(c.Title), inner)
		style := m.theme.SidebarItem
		if m.chat.Conversation().IsCurrent(c.ID) {
			style = m.theme.SidebarCurrent
		}
		if m.sidebarFocus && i == m.sidebarCursor {
			style = m.theme.SidebarSelected
		}
		b.WriteString(style.Render(title))
		b.WriteString("\n")
	}
	return m.theme.Sidebar.Width(sidebarWidth).Height(max(height-2, 1)).Render(b.String())
}
