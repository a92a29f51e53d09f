// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"
)

// markdownRenderer renders finished assistant replies. Renderers are rebuilt
// when the wrap width changes; rendered text is cached per message.
type markdownRenderer struct {
	style   string
	width   int
	enabled bool
	r       *glamour.TermRenderer
	cache   map[string]string
}

func newMarkdownRenderer(style string, enabled bool) *markdownRenderer {
	return &markdownRenderer{style: style, enabled: enabled, cache: map[string]string{}}
}

// Render returns content rendered for width, or content unchanged when
// rendering is disabled or fails.
func (m *markdownRenderer) Render(content string, width int) string {
	if !m.enabled || strings.TrimSpace(content) == "" {
		return content
	}
	if width < 20 {
		width = 20
	}
	if m.r == nil || width != m.width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			log.Debug().Err(err).Msg("markdown renderer unavailable")
			m.enabled = false
			return content
		}
		m.r = r
		m.width = width
		m.cache = map[string]string{}
	}

	if out, ok := m.cache[content]; ok {
		return out
	}
	out, err := m.r.Render(content)
	if err != nil {
		return content
	}
	out = strings.Trim(out, "\n")
	m.cache[content] = out
	return out
}
