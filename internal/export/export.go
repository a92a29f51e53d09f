// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/pocketpaw/pawtui/internal/model"
	"github.com/pocketpaw/pawtui/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a document to one output format.
type Exporter interface {
	// Export renders doc in the target format.
	Export(doc *Document) ([]byte, error)

	// FileExtension returns the file extension including the dot.
	FileExtension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// Formats lists the accepted format names.
var Formats = []string{"md", "json", "html"}

// New returns the exporter for a format name.
func New(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(format) {
	case "markdown", "md":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(), nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want %s)", format, strings.Join(Formats, ", "))
	}
}

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures the text formats.
type Options struct {
	// IncludeMetadata adds the header block (id, model, counts).
	IncludeMetadata bool

	// IncludeTimestamps adds per-message times. Messages loaded from the
	// server carry the time they were fetched.
	IncludeTimestamps bool

	// Theme for HTML export ("light" or "dark").
	Theme string
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata: true,
		Theme:           "dark",
	}
}

// =============================================================================
// DOCUMENT
// =============================================================================

// Entry is one exported message.
type Entry struct {
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
}

// Document is a conversation snapshot ready for export.
type Document struct {
	ConversationID *int      `json:"conversation_id"`
	Title          string    `json:"title"`
	Model          string    `json:"model,omitempty"`
	Messages       []Entry   `json:"messages"`
	ExportedAt     time.Time `json:"exported_at"`
}

// FromConversation snapshots c. An in-progress message is exported with the
// text received so far.
func FromConversation(c *model.Conversation, modelName string) *Document {
	doc := &Document{
		ConversationID: c.ID,
		Title:          c.Title,
		Model:          modelName,
		ExportedAt:     time.Now(),
	}
	for _, m := range c.Messages {
		doc.Messages = append(doc.Messages, Entry{Role: m.Role, Content: m.Text(), Timestamp: m.Timestamp})
	}
	return doc
}

// DisplayTitle returns the title, or a placeholder for untitled chats.
func (d *Document) DisplayTitle() string {
	if t := strings.TrimSpace(d.Title); t != "" {
		return t
	}
	if d.ConversationID != nil {
		return fmt.Sprintf("Conversation %d", *d.ConversationID)
	}
	return "New Chat"
}

func (d *Document) validate() error {
	if d == nil {
		return errors.New("conversation is nil")
	}
	if len(d.Messages) == 0 {
		return errors.New("conversation has no messages")
	}
	return nil
}

// =============================================================================
// FILE OUTPUT
// =============================================================================

// FileName returns the default file name for doc in the given format.
func FileName(doc *Document, exp Exporter) string {
	return fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(doc.DisplayTitle()),
		doc.ExportedAt.Format("20060102_150405"),
		exp.FileExtension(),
	)
}

// ToFile renders doc and writes it into dir. Returns the written path.
func ToFile(doc *Document, exp Exporter, dir string) (string, error) {
	content, err := exp.Export(doc)
	if err != nil {
		return "", errors.Wrap(err, "export")
	}
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, FileName(doc, exp))
	if err := util.WriteFileAtomic(path, content, 0644, 0755); err != nil {
		return "", errors.Wrap(err, "write export")
	}
	return path, nil
}

// sanitizeFilename replaces characters that are invalid in file names on
// Windows or Unix and limits the length to 50 runes.
func sanitizeFilename(s string) string {
	const maxLen = 50
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			out = append(out, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			out = append(out, '_')
		case r < 32 || r == 127:
			out = append(out, '-')
		default:
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "conversation"
	}
	return string(out)
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
