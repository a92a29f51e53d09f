// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// OPAQUE IDS
// =============================================================================

// OpaqueID is a memory identifier. The backend sends it as an integer from
// the list endpoint and as a string from the search endpoint; both decode to
// the same OpaqueID and compare equal. No arithmetic is done on it.
type OpaqueID string

// UnmarshalJSON accepts a JSON string or number.
func (id *OpaqueID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errors.New("id is null")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = OpaqueID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = OpaqueID(n.String())
	return nil
}

// MarshalJSON writes the id as a number when it is numeric.
func (id OpaqueID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id OpaqueID) String() string { return string(id) }

// =============================================================================
// TIMESTAMPS
// =============================================================================

// Timestamp is a server time. The backend renders Python datetimes with
// str(), so several layouts are accepted. Raw keeps the original text.
type Timestamp struct {
	time.Time
	Raw string
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses s using the accepted layouts. Naive times are UTC.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t, Raw: s}, nil
		}
	}
	return Timestamp{Raw: s}, fmt.Errorf("unrecognized time %q", s)
}

// UnmarshalJSON accepts a string in any accepted layout, or null. An
// unparseable string keeps Raw with a zero Time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, _ := ParseTimestamp(s)
	*t = parsed
	return nil
}

// MarshalJSON writes the original text when known.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Raw != "" {
		return json.Marshal(t.Raw)
	}
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

// Display renders the time in local time for lists.
func (t Timestamp) Display() string {
	if t.IsZero() {
		if t.Raw != "" {
			return t.Raw
		}
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// =============================================================================
// MEMORY TYPES
// =============================================================================

// Memory is an entry of GET /memory/ and the body returned by POST /memory/.
type Memory struct {
	ID        OpaqueID  `json:"id"`
	Text      string    `json:"text"`
	CreatedAt Timestamp `json:"created_at"`
}

// Validate checks a memory decoded from the backend.
func (m Memory) Validate() error {
	if m.ID == "" {
		return errors.New("memory has no id")
	}
	return nil
}

// MemoryHit is an entry of POST /memory/search.
type MemoryHit struct {
	ID       OpaqueID `json:"id"`
	Text     string   `json:"text"`
	Metadata struct {
		CreatedAt *string `json:"created_at,omitempty"`
	} `json:"metadata"`
}

// Validate checks a search hit decoded from the backend.
func (h MemoryHit) Validate() error {
	if h.ID == "" {
		return errors.New("search hit has no id")
	}
	return nil
}

// ToMemory converts a hit to a Memory. A missing or blank created_at falls
// back to now.
func (h MemoryHit) ToMemory(now time.Time) Memory {
	m := Memory{ID: h.ID, Text: h.Text}
	if h.Metadata.CreatedAt != nil && strings.TrimSpace(*h.Metadata.CreatedAt) != "" {
		m.CreatedAt, _ = ParseTimestamp(*h.Metadata.CreatedAt)
		return m
	}
	m.CreatedAt = Timestamp{Time: now}
	return m
}
