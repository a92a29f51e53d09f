// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/pocketpaw/pawtui/internal/api"
)

// View renders the frame: header with tabs, the active tab and the status
// bar.
func (m *Model) View() string {
	if m.width == 0 {
		return ""
	}
	if !m.ready {
		return m.renderConnecting()
	}

	header := m.renderHeader()
	status := m.renderStatusBar()
	bodyHeight := max(m.height-lipgloss.Height(header)-lipgloss.Height(status), 1)

	var body string
	switch m.tab {
	case TabChat:
		body = m.renderChat(bodyHeight)
	case TabMemory:
		body = m.renderMemory()
	case TabTools:
		body = m.renderTools()
	case TabSettings:
		body = m.renderSettings()
	default:
		body = m.renderDashboard()
	}
	body = lipgloss.NewStyle().Height(bodyHeight).MaxHeight(bodyHeight).Render(body)

	return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
}

func (m *Model) renderConnecting() string {
	var lines []string
	lines = append(lines, m.theme.Brand.Render("PocketPaw"), "")
	if m.bootErr != nil {
		lines = append(lines,
			m.theme.Error.Render("Could not reach the PocketPaw server."),
			m.theme.Muted.Render(errorLine(m.bootErr)),
			"",
			m.theme.Muted.Render("Press r to retry, ctrl+c to quit."))
	} else {
		lines = append(lines, m.spinner.View()+" Connecting to "+m.deps.Client.BaseURL()+"...")
	}
	content := lipgloss.JoinVertical(lipgloss.Center, lines...)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func errorLine(err error) string {
	if ce, ok := api.AsClientError(err); ok {
		return ce.Message
	}
	return err.Error()
}

func (m *Model) renderHeader() string {
	tabs := make([]string, 0, tabCount)
	for t := Tab(0); t < tabCount; t++ {
		style := m.theme.Tab
		if t == m.tab {
			style = m.theme.TabActive
		}
		tabs = append(tabs, style.Render(t.String()))
	}
	user := ""
	if m.user != nil {
		user = m.theme.Muted.Render(m.user.DisplayName())
	}
	left := lipgloss.JoinHorizontal(lipgloss.Center, append([]string{m.theme.Brand.Render("PocketPaw")}, tabs...)...)
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(user)-1, 1)
	return left + strings.Repeat(" ", gap) + user
}

func (m *Model) renderStatusBar() string {
	var text string
	switch {
	case m.status != "" && m.statusErr:
		text = m.theme.Error.Render(m.status)
	case m.status != "":
		text = m.theme.Success.Render(m.status)
	default:
		text = m.shortcuts()
	}
	return m.theme.StatusBar.Width(m.width).Render(text)
}

func (m *Model) shortcuts() string {
	bindings := []key.Binding{m.keys.NextTab}
	switch m.tab {
	case TabChat:
		bindings = append(bindings, m.keys.Submit, m.keys.NewChat, m.keys.Focus, m.keys.CycleModel, m.keys.Copy, m.keys.Delete)
	case TabMemory:
		bindings = append(bindings, memAddKey, memSearchKey, memDeleteKey, m.keys.Retry)
	case TabSettings:
		bindings = append(bindings, settingsEditKey)
	default:
		bindings = append(bindings, m.keys.Retry)
	}
	bindings = append(bindings, m.keys.Quit)

	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, m.theme.ShortcutKey.Render(h.Key)+" "+m.theme.ShortcutDsc.Render(h.Desc))
	}
	return strings.Join(parts, "  ")
}

// =============================================================================
// DASHBOARD
// =============================================================================

func (m *Model) renderDashboard() string {
	convs := m.chat.Conversations()
	recent := make([]string, 0, 3)
	for i := 0; i < len(convs) && i < 3; i++ {
		recent = append(recent, "• "+convs[i].Title)
	}
	if len(recent) == 0 {
		recent = append(recent, "No conversations yet")
	}

	memNote := "Active"
	if len(m.mem.Items()) > 0 {
		memNote = "Vector store connected"
	}

	cardWidth := max((m.width-8)/3, 20)
	cards := []string{
		m.card(cardWidth, "Recent Chats", fmt.Sprint(len(convs)), strings.Join(recent, "\n")),
		m.card(cardWidth, "Memory Bank", fmt.Sprint(len(m.mem.Items())), memNote),
		m.card(cardWidth, "System Health", m.theme.Success.Render("Operational"),
			fmt.Sprintf("%d models\n%s (%s)", len(m.modelInfos), m.deps.Client.BaseURL(), m.deps.URLSource)),
	}
	if m.theme.Width < 60 {
		return lipgloss.JoinVertical(lipgloss.Left, cards...)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (m *Model) card(width int, title, value, note string) string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		m.theme.CardTitle.Render(title),
		m.theme.CardValue.Render(value),
		m.theme.CardNote.Render(note))
	return m.theme.Card.Width(width).Render(content)
}
