// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// USER / TOKEN
// =============================================================================

// Guest identity shown when the backend has not answered /auth/me yet.
const (
	GuestDisplayName = "Guest User"
	GuestEmail       = "guest@example.com"
)

// User is the body of GET /auth/me.
type User struct {
	ID          int    `json:"id"`
	Email       string `json:"email"`
	IsActive    bool   `json:"is_active"`
	IsSuperuser bool   `json:"is_superuser"`
}

// Validate checks a user decoded from the backend.
func (u User) Validate() error {
	if u.Email == "" {
		return errors.New("user has no email")
	}
	return nil
}

// IsGuest reports whether this is the shared guest account.
func (u User) IsGuest() bool {
	return strings.EqualFold(u.Email, GuestEmail)
}

// DisplayName returns a label for the settings screen.
func (u User) DisplayName() string {
	if u.IsGuest() || u.Email == "" {
		return GuestDisplayName
	}
	name, _, _ := strings.Cut(u.Email, "@")
	return name
}

// Token is the body of the login endpoints.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// Validate checks a token decoded from the backend.
func (t Token) Validate() error {
	if strings.TrimSpace(t.AccessToken) == "" {
		return errors.New("missing access_token")
	}
	return nil
}

// =============================================================================
// MODELS
// =============================================================================

// PreferredModel is selected when the server lists it.
const PreferredModel = "llama3"

// ModelInfo is an entry of GET /models/ (proxied from Ollama /api/tags).
type ModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt Timestamp `json:"modified_at"`
	Size       int64     `json:"size"`
}

// Validate checks a model entry decoded from the backend.
func (m ModelInfo) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("model has no name")
	}
	return nil
}

// ModelList is the body of GET /models/.
type ModelList struct {
	Models []ModelInfo `json:"models"`
}

// Validate checks every entry.
func (l ModelList) Validate() error {
	for i, m := range l.Models {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("models[%d]: %w", i, err)
		}
	}
	return nil
}

// Names returns the model names in server order.
func (l ModelList) Names() []string {
	names := make([]string, 0, len(l.Models))
	for _, m := range l.Models {
		names = append(names, m.Name)
	}
	return names
}

// DefaultModel picks the model to select after a model list loads: preferred
// when present, otherwise the first listed, otherwise current unchanged.
func DefaultModel(names []string, preferred, current string) string {
	for _, n := range names {
		if n == preferred {
			return preferred
		}
	}
	if len(names) > 0 {
		return names[0]
	}
	return current
}

// =============================================================================
// TOOLS
// =============================================================================

// Tool is an entry of GET /tools/.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ArgsSchema  json.RawMessage `json:"args_schema,omitempty"`
}

// Validate checks a tool decoded from the backend.
func (t Tool) Validate() error {
	if t.Name == "" {
		return errors.New("tool has no name")
	}
	return nil
}

// Title returns a display name such as "Web Search" for "web_search".
func (t Tool) Title() string {
	if title, ok := toolTitles[t.Name]; ok {
		return title
	}
	words := strings.Fields(strings.ReplaceAll(t.Name, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

var toolTitles = map[string]string{
	"notes": "Note Taker",
}

// BuiltinTools is shown when the backend tool list cannot be loaded.
var BuiltinTools = []Tool{
	{Name: "web_search", Description: "Search the web for information using DuckDuckGo."},
	{Name: "calculator", Description: "Evaluate a mathematical expression."},
	{Name: "notes", Description: "Manage notes. Actions: create, list, read, delete."},
	{Name: "reminder", Description: "Manage reminders."},
	{Name: "file_reader", Description: "Read the content of a local file."},
	{Name: "website_reader", Description: "Read the content of a website."},
}

// ToolResult is the body of POST /tools/execute.
type ToolResult struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

// Validate checks a tool result decoded from the backend.
func (r ToolResult) Validate() error {
	if r.Status == "" {
		return errors.New("tool result has no status")
	}
	return nil
}

// Text renders Result as plain text: JSON strings are unquoted, anything
// else is shown as JSON.
func (r ToolResult) Text() string {
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	return string(r.Result)
}
