// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// Mode is the configured mode: auto, dark or light.
	Mode string

	Width  int
	Height int

	// Chrome
	App         lipgloss.Style
	Brand       lipgloss.Style
	Tab         lipgloss.Style
	TabActive   lipgloss.Style
	StatusBar   lipgloss.Style
	ShortcutKey lipgloss.Style
	ShortcutDsc lipgloss.Style

	// Cards
	Card      lipgloss.Style
	CardTitle lipgloss.Style
	CardValue lipgloss.Style
	CardNote  lipgloss.Style

	// Chat
	Sidebar         lipgloss.Style
	SidebarItem     lipgloss.Style
	SidebarSelected lipgloss.Style
	SidebarCurrent  lipgloss.Style
	UserName        lipgloss.Style
	UserBubble      lipgloss.Style
	AssistantName   lipgloss.Style
	AssistantBubble lipgloss.Style
	NoticeBubble    lipgloss.Style
	Placeholder     lipgloss.Style
	InputContainer  lipgloss.Style
	Spinner         lipgloss.Style

	// Lists and text
	ListItem     lipgloss.Style
	ListSelected lipgloss.Style
	Label        lipgloss.Style
	Value        lipgloss.Style
	Muted        lipgloss.Style
	Success      lipgloss.Style
	Warning      lipgloss.Style
	Error        lipgloss.Style
	Confirm      lipgloss.Style
}

// NewTheme creates a theme for mode ("auto", "dark" or "light").
func NewTheme(mode string) *Theme {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "auto"
	}

	t := &Theme{
		Mode:         mode,
		ColorProfile: termenv.ColorProfile(),
	}
	switch mode {
	case "dark":
		t.IsDark = true
		lipgloss.SetHasDarkBackground(true)
	case "light":
		t.IsDark = false
		lipgloss.SetHasDarkBackground(false)
	default:
		t.IsDark = termenv.HasDarkBackground()
	}

	t.initStyles()
	return t
}

// ModeLabel returns the appearance as shown in settings.
func (t *Theme) ModeLabel() string {
	switch t.Mode {
	case "dark":
		return "Dark"
	case "light":
		return "Light"
	default:
		return "Auto (System)"
	}
}

func (t *Theme) initStyles() {
	t.App = lipgloss.NewStyle()

	t.Brand = lipgloss.NewStyle().
		Bold(true).
		Foreground(Blue).
		Padding(0, 1)

	t.Tab = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Padding(0, 2)

	t.TabActive = lipgloss.NewStyle().
		Foreground(TextInverse).
		Background(Blue).
		Bold(true).
		Padding(0, 2)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Blue).
		Bold(true)

	t.ShortcutDsc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Card = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 2).
		Width(28)

	t.CardTitle = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Bold(true)

	t.CardValue = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Bold(true)

	t.CardNote = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		PaddingRight(1)

	t.SidebarItem = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.SidebarSelected = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(SurfaceBright)

	t.SidebarCurrent = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Bold(true)

	t.UserName = lipgloss.NewStyle().
		Foreground(Blue).
		Bold(true)

	t.UserBubble = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(Blue).
		PaddingLeft(1)

	t.AssistantName = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)

	t.AssistantBubble = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(Overlay).
		PaddingLeft(1)

	t.NoticeBubble = lipgloss.NewStyle().
		Foreground(Rose).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(Rose).
		PaddingLeft(1)

	t.Placeholder = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Purple)

	t.ListItem = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.ListSelected = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(SurfaceBright).
		Bold(true)

	t.Label = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Width(14)

	t.Value = lipgloss.NewStyle().
		Foreground(TextPrimary)

	t.Muted = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Success = lipgloss.NewStyle().
		Foreground(Emerald).
		Bold(true)

	t.Warning = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	t.Error = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)

	t.Confirm = lipgloss.NewStyle().
		Foreground(Rose).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Rose).
		Padding(0, 1)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns, no sidebar
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)

// GlamourStyle returns the glamour standard style name for the theme.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}
