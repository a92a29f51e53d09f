// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pocketpaw/pawtui/internal/config"
	"github.com/pocketpaw/pawtui/internal/storage"
	"github.com/pocketpaw/pawtui/internal/util"
)

var (
	memAddKey       = key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add"))
	memSearchKey    = key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search"))
	memDeleteKey    = key.NewBinding(key.WithKeys("d", "ctrl+d"), key.WithHelp("d", "delete"))
	settingsEditKey = key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit API URL"))
)

// =============================================================================
// MEMORY
// =============================================================================

func (m *Model) handleMemoryKey(msg tea.KeyMsg) tea.Cmd {
	switch m.memMode {
	case memAdding, memSearching:
		return m.handleMemoryInput(msg)
	case memConfirm:
		switch msg.String() {
		case "y", "Y":
			m.memMode = memBrowse
			if m.mem.Pending() == nil {
				return nil
			}
			return m.deleteMemoryCmd()
		case "n", "N", "esc":
			m.mem.CancelDelete()
			m.memMode = memBrowse
		}
		return nil
	}

	items := m.mem.Items()
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.memCursor > 0 {
			m.memCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.memCursor < len(items)-1 {
			m.memCursor++
		}
	case key.Matches(msg, memAddKey):
		m.memMode = memAdding
		m.memInput.Placeholder = "Something PocketPaw should remember"
		m.memInput.Reset()
		return m.memInput.Focus()
	case key.Matches(msg, memSearchKey):
		m.memMode = memSearching
		m.memInput.Placeholder = "Search memories"
		m.memInput.SetValue(m.mem.Query())
		return m.memInput.Focus()
	case key.Matches(msg, memDeleteKey):
		if m.memCursor < len(items) && m.mem.RequestDelete(items[m.memCursor].ID) {
			m.memMode = memConfirm
		}
	case key.Matches(msg, m.keys.Retry):
		return m.loadMemoriesCmd("")
	}
	return nil
}

func (m *Model) handleMemoryInput(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.memMode = memBrowse
		m.memInput.Blur()
		return nil
	case tea.KeyEnter:
		value := m.memInput.Value()
		mode := m.memMode
		m.memMode = memBrowse
		m.memInput.Blur()
		m.memInput.Reset()
		if mode == memAdding {
			if util.IsBlank(value) {
				return nil
			}
			return m.addMemoryCmd(value)
		}
		return m.loadMemoriesCmd(strings.TrimSpace(value))
	}
	var cmd tea.Cmd
	m.memInput, cmd = m.memInput.Update(msg)
	return cmd
}

func (m *Model) renderMemory() string {
	var b strings.Builder
	title := "Memory Bank"
	if q := m.mem.Query(); q != "" {
		title = fmt.Sprintf("Results for %q", q)
	}
	b.WriteString(m.theme.CardTitle.Render(title))
	b.WriteString("\n\n")

	switch m.memMode {
	case memAdding, memSearching:
		b.WriteString(m.theme.InputContainer.Render(m.memInput.View()))
		b.WriteString("\n\n")
	case memConfirm:
		if p := m.mem.Pending(); p != nil {
			b.WriteString(m.theme.Confirm.Render(fmt.Sprintf("Delete %q? (y/n)", util.Truncate(p.Text, 50))))
			b.WriteString("\n\n")
		}
	}

	items := m.mem.Items()
	if !m.mem.Loaded() {
		b.WriteString(m.theme.Muted.Render("Loading memories..."))
		return b.String()
	}
	if len(items) == 0 {
		b.WriteString(m.theme.Muted.Render("No memories found."))
		return b.String()
	}
	textWidth := max(m.width-24, 20)
	for i, it := range items {
		style := m.theme.ListItem
		if i == m.memCursor {
			style = m.theme.ListSelected
		}
		line := util.PadRight(util.Truncate(util.SingleLine(it.Text), textWidth), textWidth) +
			"  " + m.theme.Muted.Render(it.CreatedAt.Display())
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// TOOLS
// =============================================================================

func (m *Model) renderTools() string {
	var b strings.Builder
	b.WriteString(m.theme.CardTitle.Render("Models"))
	b.WriteString("\n")
	if len(m.modelInfos) == 0 {
		b.WriteString(m.theme.Muted.Render("No models installed."))
		b.WriteString("\n")
	}
	for _, mi := range m.modelInfos {
		marker := "  "
		if mi.Name == m.chat.Model() {
			marker = "● "
		}
		b.WriteString(fmt.Sprintf("%s%s %s %s\n",
			marker,
			m.theme.Value.Render(util.PadRight(mi.Name, 28)),
			m.theme.Label.Render(util.PadRight(util.FormatGB(mi.Size), 10)),
			m.theme.Muted.Render(mi.ModifiedAt.Display())))
	}

	b.WriteString("\n")
	b.WriteString(m.theme.CardTitle.Render("Tools"))
	b.WriteString("\n")
	descWidth := max(m.width-26, 20)
	for _, t := range m.tools {
		b.WriteString(fmt.Sprintf("%s %s\n",
			m.theme.Value.Render(util.PadRight(t.Title(), 20)),
			m.theme.Muted.Render(util.Truncate(t.Description, descWidth))))
	}
	return b.String()
}

// =============================================================================
// SETTINGS
// =============================================================================

func (m *Model) handleSettingsKey(msg tea.KeyMsg) tea.Cmd {
	if !m.editingURL {
		if key.Matches(msg, settingsEditKey) {
			m.editingURL = true
			m.urlInput.SetValue(m.override)
			return m.urlInput.Focus()
		}
		return nil
	}
	switch msg.Type {
	case tea.KeyEsc:
		m.editingURL = false
		m.urlInput.Blur()
		return nil
	case tea.KeyEnter:
		m.editingURL = false
		m.urlInput.Blur()
		return m.saveOverrideCmd(m.urlInput.Value())
	}
	var cmd tea.Cmd
	m.urlInput, cmd = m.urlInput.Update(msg)
	return cmd
}

// saveOverrideCmd stores or clears the API URL override. It takes effect on
// the next start.
func (m *Model) saveOverrideCmd(value string) tea.Cmd {
	store := m.deps.Store
	value = strings.TrimSpace(value)
	return func() tea.Msg {
		if store == nil {
			return overrideSavedMsg{err: fmt.Errorf("no local storage")}
		}
		if value == "" {
			return overrideSavedMsg{err: store.Delete(storage.KeyAPIURL)}
		}
		if err := config.ValidateBaseURL(value); err != nil {
			return overrideSavedMsg{err: err}
		}
		return overrideSavedMsg{url: value, err: store.Set(storage.KeyAPIURL, value)}
	}
}

func (m *Model) renderSettings() string {
	row := func(label, value string) string {
		return m.theme.Label.Render(util.PadRight(label, 16)) + m.theme.Value.Render(value)
	}

	user := "-"
	if m.user != nil {
		user = m.user.DisplayName()
		if !m.user.IsGuest() {
			user += " <" + m.user.Email + ">"
		}
	}
	override := m.override
	if override == "" {
		override = "(none)"
	}
	modelName := m.chat.Model()
	if modelName == "" {
		modelName = "-"
	}

	lines := []string{
		m.theme.CardTitle.Render("Settings"),
		"",
		row("Signed in as", user),
		row("API URL", fmt.Sprintf("%s (%s)", m.deps.Client.BaseURL(), m.deps.URLSource)),
		row("URL override", override),
		row("Model", modelName),
		row("Theme", m.theme.ModeLabel()),
		row("Markdown", onOff(m.cfg.Chat.Markdown)),
	}
	if m.editingURL {
		lines = append(lines, "",
			m.theme.InputContainer.Render(m.urlInput.View()),
			m.theme.Muted.Render("enter to save, empty to clear, esc to cancel"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
