// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pocketpaw/pawtui/internal/ui/styles"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a standalone HTML page. Colors come
// from the terminal palette so the page matches the dashboard.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates a new HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

type htmlPalette struct {
	Background, Card, Border, Text, Muted, User, Assistant string
}

func paletteFor(theme string) htmlPalette {
	pick := func(c lipgloss.AdaptiveColor) string {
		if strings.EqualFold(theme, "light") {
			return c.Light
		}
		return c.Dark
	}
	return htmlPalette{
		Background: pick(styles.SurfaceDim),
		Card:       pick(styles.SurfaceBright),
		Border:     pick(styles.Overlay),
		Text:       pick(styles.TextPrimary),
		Muted:      pick(styles.TextMuted),
		User:       pick(styles.Blue),
		Assistant:  pick(styles.Emerald),
	}
}

type htmlMessage struct {
	Class, Label, Time, Content string
}

type htmlPage struct {
	Title    string
	Meta     []string
	Messages []htmlMessage
	Footer   string
	Colors   htmlPalette
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta name="generator" content="pawtui">
<title>{{.Title}}</title>
<style>
body { background: {{.Colors.Background}}; color: {{.Colors.Text}}; font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 860px; margin: 2rem auto; padding: 0 1rem; }
header { border-bottom: 1px solid {{.Colors.Border}}; margin-bottom: 1.5rem; }
.meta { color: {{.Colors.Muted}}; font-size: 0.9rem; }
.message { background: {{.Colors.Card}}; border-left: 4px solid {{.Colors.Border}}; border-radius: 6px; padding: 0.75rem 1rem; margin-bottom: 1rem; }
.message.user { border-left-color: {{.Colors.User}}; }
.message.assistant { border-left-color: {{.Colors.Assistant}}; }
.label { font-weight: 600; margin-bottom: 0.4rem; }
.time { color: {{.Colors.Muted}}; font-weight: normal; font-size: 0.8rem; margin-left: 0.5rem; }
.content { white-space: pre-wrap; font-family: "SF Mono", Menlo, Consolas, monospace; font-size: 0.9rem; }
footer { color: {{.Colors.Muted}}; font-size: 0.8rem; margin-top: 2rem; }
</style>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
{{range .Meta}}<p class="meta">{{.}}</p>
{{end}}</header>
{{range .Messages}}<div class="message {{.Class}}">
<div class="label">{{.Label}}{{if .Time}}<span class="time">{{.Time}}</span>{{end}}</div>
<div class="content">{{.Content}}</div>
</div>
{{end}}<footer>{{.Footer}}</footer>
</body>
</html>
`))

// Export converts a document to HTML.
func (e *HTMLExporter) Export(doc *Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}

	page := htmlPage{
		Title:  doc.DisplayTitle(),
		Footer: "Exported from pawtui on " + doc.ExportedAt.Format("January 2, 2006 at 3:04 PM"),
		Colors: paletteFor(e.options.Theme),
	}
	if e.options.IncludeMetadata {
		if doc.Model != "" {
			page.Meta = append(page.Meta, "Model: "+doc.Model)
		}
		page.Meta = append(page.Meta, "Exported: "+doc.ExportedAt.Format(time.RFC3339))
	}
	for _, m := range doc.Messages {
		hm := htmlMessage{Class: string(m.Role), Label: m.Role.DisplayName(), Content: strings.TrimSpace(m.Content)}
		if e.options.IncludeTimestamps && !m.Timestamp.IsZero() {
			hm.Time = formatShortTimestamp(m.Timestamp)
		}
		page.Messages = append(page.Messages, hm)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string { return ".html" }

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string { return "text/html" }
