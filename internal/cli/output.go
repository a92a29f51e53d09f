// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// STRUCTURED OUTPUT
// =============================================================================

// JSONResponse is the envelope of -o json output.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     *string     `json:"error"`
	Timestamp string      `json:"timestamp"`
	Command   string      `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response as indented JSON.
func (r *JSONResponse) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// printer writes command results in the selected format. Table output goes
// through a tabwriter; rows are tab separated.
type printer struct {
	w       io.Writer
	format  string
	command string
}

func (a *App) printer(w io.Writer, command string) *printer {
	return &printer{w: w, format: a.Options.Output, command: command}
}

// Print writes data as JSON or YAML, or calls table for the default format.
func (p *printer) Print(data interface{}, table func(tw io.Writer)) error {
	switch p.format {
	case "json":
		return NewJSONResponse(p.command, data).Write(p.w)
	case "yaml":
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	default:
		tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	}
}

// Message prints a confirmation line, or a {"message": ...} document for
// structured formats.
func (p *printer) Message(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if p.format == "table" {
		_, err := fmt.Fprintln(p.w, msg)
		return err
	}
	return p.Print(map[string]string{"message": msg}, nil)
}

// =============================================================================
// ROWS
// =============================================================================

type conversationRow struct {
	ID    int    `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
}

type messageRow struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

type memoryRow struct {
	ID        string `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	CreatedAt string `json:"created_at" yaml:"created_at"`
}

type modelRow struct {
	Name       string `json:"name" yaml:"name"`
	Size       int64  `json:"size" yaml:"size"`
	ModifiedAt string `json:"modified_at" yaml:"modified_at"`
	Default    bool   `json:"default" yaml:"default"`
}

type toolRow struct {
	Name        string `json:"name" yaml:"name"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

type userRow struct {
	ID      int    `json:"id" yaml:"id"`
	Email   string `json:"email" yaml:"email"`
	Name    string `json:"name" yaml:"name"`
	Guest   bool   `json:"guest" yaml:"guest"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	Source  string `json:"source" yaml:"source"`
}
