// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// MESSAGE / CONVERSATION
// =============================================================================

func TestMessage_StreamingConcatenates(t *testing.T) {
	m := NewStreamingMessage()
	for _, f := range []string{"He", "l", "lo", "", " world"} {
		m.Append(f)
	}
	if got := m.Text(); got != "Hello world" {
		t.Fatalf("Text() = %q", got)
	}
	if m.Content != "" {
		t.Error("Content must stay empty until Finalize")
	}

	m.Finalize()
	if m.Streaming || m.Content != "Hello world" {
		t.Fatalf("after Finalize: streaming=%v content=%q", m.Streaming, m.Content)
	}

	m.Append("ignored")
	if m.Text() != "Hello world" {
		t.Error("finalized message changed")
	}
}

func TestConversation_SingleInProgress(t *testing.T) {
	c := NewConversation()
	c.AddUserMessage("hi")

	if _, err := c.StartAssistant(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.StartAssistant(); err != ErrStreamInProgress {
		t.Fatalf("second StartAssistant err = %v", err)
	}

	c.AppendToLast("He")
	c.AppendToLast("llo")
	c.FinalizeLast()

	if c.InProgress() != nil {
		t.Error("InProgress after FinalizeLast")
	}
	h := c.History()
	if len(h) != 2 || h[1].Role != RoleAssistant || h[1].Content != "Hello" {
		t.Fatalf("History = %+v", h)
	}
}

func TestConversation_HistorySkipsInProgress(t *testing.T) {
	c := NewConversation()
	c.AddUserMessage("one")
	c.StartAssistant()
	c.AppendToLast("partial")

	h := c.History()
	if len(h) != 1 || h[0].Content != "one" {
		t.Fatalf("History = %+v", h)
	}
}

func TestConversation_DropInProgress(t *testing.T) {
	c := NewConversation()
	c.AddUserMessage("q")
	c.StartAssistant()
	if c.DropInProgress() {
		t.Error("empty message reported text")
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d", c.Len())
	}

	c.StartAssistant()
	c.AppendToLast("x")
	if !c.DropInProgress() {
		t.Error("non-empty message reported no text")
	}
	if c.DropInProgress() {
		t.Error("nothing left to drop")
	}
}

func TestConversation_LastAssistantTextSkipsNotices(t *testing.T) {
	c := NewConversation()
	c.AddUserMessage("q")
	c.StartAssistant()
	c.AppendToLast("answer")
	c.FinalizeLast()
	c.AddUserMessage("q2")
	c.AddNotice("Error: boom")

	if got := c.LastAssistantText(); got != "answer" {
		t.Errorf("LastAssistantText = %q", got)
	}
}

func TestConversation_IDs(t *testing.T) {
	c := NewConversation()
	if !c.IsNew() || c.IsCurrent(1) {
		t.Error("new conversation must have no id")
	}
	c = FromDetail(7, &ConversationDetail{Title: "t", Messages: []Message{{Role: RoleUser, Content: "a"}}})
	if c.IsNew() || !c.IsCurrent(7) || c.IsCurrent(8) {
		t.Error("id not set from detail")
	}
	if c.Messages[0].Streaming {
		t.Error("loaded messages must be finalized")
	}
}

func TestConversationDetail_Validate(t *testing.T) {
	var d ConversationDetail
	if err := json.Unmarshal([]byte(`{"messages":[{"role":"user","content":"a"},{"role":"robot","content":"b"}]}`), &d); err != nil {
		t.Fatal(err)
	}
	err := d.Validate()
	if err == nil || !strings.Contains(err.Error(), "messages[1]") {
		t.Fatalf("Validate err = %v", err)
	}
}

// =============================================================================
// MEMORY
// =============================================================================

func TestOpaqueID_StringAndNumberAreEqual(t *testing.T) {
	var a, b struct {
		ID OpaqueID `json:"id"`
	}
	if err := json.Unmarshal([]byte(`{"id": 42}`), &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"id": "42"}`), &b); err != nil {
		t.Fatal(err)
	}
	if a.ID != b.ID {
		t.Errorf("%q != %q", a.ID, b.ID)
	}

	out, _ := json.Marshal(a.ID)
	if string(out) != "42" {
		t.Errorf("numeric id marshals as %s", out)
	}
	out, _ = json.Marshal(OpaqueID("abc"))
	if string(out) != `"abc"` {
		t.Errorf("string id marshals as %s", out)
	}

	var bad struct {
		ID OpaqueID `json:"id"`
	}
	if err := json.Unmarshal([]byte(`{"id": null}`), &bad); err == nil {
		t.Error("null id accepted")
	}
	if err := json.Unmarshal([]byte(`{"id": true}`), &bad); err == nil {
		t.Error("boolean id accepted")
	}
}

func TestParseTimestamp_Layouts(t *testing.T) {
	for _, s := range []string{
		"2024-05-01 12:34:56.123456",
		"2024-05-01 12:34:56",
		"2024-05-01T12:34:56Z",
		"2024-05-01 12:34:56.5+00:00",
		"2024-05-01T12:34:56.123456",
	} {
		ts, err := ParseTimestamp(s)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", s, err)
			continue
		}
		if ts.Year() != 2024 || ts.Month() != 5 || ts.Day() != 1 {
			t.Errorf("ParseTimestamp(%q) = %v", s, ts.Time)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("garbage accepted")
	}
}

func TestTimestamp_JSON(t *testing.T) {
	var m Memory
	if err := json.Unmarshal([]byte(`{"id":1,"text":"x","created_at":"2024-05-01 10:00:00"}`), &m); err != nil {
		t.Fatal(err)
	}
	if m.CreatedAt.IsZero() || m.CreatedAt.Raw != "2024-05-01 10:00:00" {
		t.Errorf("CreatedAt = %+v", m.CreatedAt)
	}
	out, _ := json.Marshal(m)
	if !strings.Contains(string(out), `"created_at":"2024-05-01 10:00:00"`) {
		t.Errorf("marshal = %s", out)
	}

	if err := json.Unmarshal([]byte(`{"id":1,"text":"x","created_at":null}`), &m); err != nil {
		t.Fatal(err)
	}
	if !m.CreatedAt.IsZero() || m.CreatedAt.Display() != "-" {
		t.Errorf("null CreatedAt = %+v", m.CreatedAt)
	}
}

func TestMemoryHit_ToMemory(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	var withDate, without MemoryHit
	json.Unmarshal([]byte(`{"id":"3","text":"a","metadata":{"created_at":"2024-05-01 10:00:00"}}`), &withDate)
	json.Unmarshal([]byte(`{"id":"4","text":"b","metadata":{}}`), &without)

	m := withDate.ToMemory(now)
	if m.ID != "3" || m.CreatedAt.Year() != 2024 {
		t.Errorf("with date: %+v", m)
	}
	m = without.ToMemory(now)
	if !m.CreatedAt.Equal(now) {
		t.Errorf("fallback CreatedAt = %v, want %v", m.CreatedAt.Time, now)
	}
}

// =============================================================================
// CATALOG
// =============================================================================

func TestDefaultModel(t *testing.T) {
	tests := []struct {
		name    string
		names   []string
		current string
		want    string
	}{
		{"preferred present", []string{"mixtral", "llama3"}, "x", "llama3"},
		{"first otherwise", []string{"mixtral", "phi3"}, "x", "mixtral"},
		{"empty keeps current", nil, "llama3", "llama3"},
		{"tagged name is not preferred", []string{"llama3:latest", "phi3"}, "x", "llama3:latest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultModel(tt.names, PreferredModel, tt.current); got != tt.want {
				t.Errorf("DefaultModel = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUser(t *testing.T) {
	g := User{Email: "guest@example.com"}
	if !g.IsGuest() || g.DisplayName() != GuestDisplayName {
		t.Errorf("guest: %v %q", g.IsGuest(), g.DisplayName())
	}
	u := User{Email: "ana@paw.dev"}
	if u.IsGuest() || u.DisplayName() != "ana" {
		t.Errorf("user: %v %q", u.IsGuest(), u.DisplayName())
	}
	if (User{}).Validate() == nil {
		t.Error("user without email validated")
	}
}

func TestToken_Validate(t *testing.T) {
	if (Token{}).Validate() == nil {
		t.Error("empty token validated")
	}
	if (Token{AccessToken: "x"}).Validate() != nil {
		t.Error("token rejected")
	}
}

func TestTool_Title(t *testing.T) {
	want := []string{"Web Search", "Calculator", "Note Taker", "Reminder", "File Reader", "Website Reader"}
	for i, tool := range BuiltinTools {
		if got := tool.Title(); got != want[i] {
			t.Errorf("Title(%s) = %q, want %q", tool.Name, got, want[i])
		}
	}
}

func TestToolResult_Text(t *testing.T) {
	r := ToolResult{Status: "success", Result: json.RawMessage(`"4"`)}
	if r.Text() != "4" {
		t.Errorf("Text = %q", r.Text())
	}
	r.Result = json.RawMessage(`{"a":1}`)
	if r.Text() != `{"a":1}` {
		t.Errorf("Text = %q", r.Text())
	}
}
