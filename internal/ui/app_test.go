// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pocketpaw/pawtui/internal/api"
	"github.com/pocketpaw/pawtui/internal/chat"
	"github.com/pocketpaw/pawtui/internal/config"
	"github.com/pocketpaw/pawtui/internal/model"
	"github.com/pocketpaw/pawtui/internal/session"
	"github.com/pocketpaw/pawtui/internal/storage"
)

// newTestModel builds a ready model against a server that fails every
// request. Tests drive Update directly and do not run returned commands
// unless they say so.
func newTestModel(t *testing.T) (*Model, storage.Store) {
	t.Helper()
	return newTestModelWith(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unexpected", http.StatusTeapot)
	})
}

func newTestModelWith(t *testing.T, h http.HandlerFunc) (*Model, storage.Store) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	store := storage.NewMemoryStore()
	cred := session.NewCredential(store)
	client := api.NewClient(&api.ClientConfig{BaseURL: srv.URL}, cred)
	sess := session.New(cred, client, session.DefaultConfig())

	m := New(Deps{
		Config:    config.Default(),
		Session:   sess,
		Client:    client,
		Store:     store,
		URLSource: config.SourceConfig,
	})
	t.Cleanup(m.Shutdown)

	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m.Update(sessionReadyMsg{user: &model.User{ID: 1, Email: model.GuestEmail}})
	return m, store
}

func typeText(m *Model, text string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func press(m *Model, k tea.KeyType) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: k})
	return cmd
}

func pressRune(m *Model, r rune) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	return cmd
}

func startTurn(t *testing.T, m *Model, text string) *chat.Turn {
	t.Helper()
	m.switchTab(TabChat)
	typeText(m, text)
	if cmd := press(m, tea.KeyEnter); cmd == nil {
		t.Fatal("submit returned no command")
	}
	if m.stream == nil {
		t.Fatal("no active stream after submit")
	}
	return m.stream.turn
}

func lastMessage(m *Model) *model.Message {
	msgs := m.chat.Messages()
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

// =============================================================================
// TURN TESTS
// =============================================================================

func TestTurn_StreamsIntoReply(t *testing.T) {
	m, _ := newTestModel(t)
	turn := startTurn(t, m, "hi")

	if m.chat.State() != chat.StateSending {
		t.Errorf("state = %v, want sending", m.chat.State())
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}

	m.stream.buf.Write("He")
	m.Update(turnStartMsg{turn: turn})
	m.stream.buf.Write("llo")
	_, cmd := m.Update(turnDoneMsg{turn: turn})

	if cmd == nil {
		t.Error("a new conversation should refresh the list")
	}
	if m.stream != nil {
		t.Error("stream still active after done")
	}
	last := lastMessage(m)
	if last == nil || last.Role != model.RoleAssistant || last.Content != "Hello" || last.Streaming {
		t.Errorf("reply = %+v", last)
	}
	if m.chat.State() != chat.StateIdle {
		t.Errorf("state = %v, want idle", m.chat.State())
	}
}

func TestTurn_TickAppliesBufferedText(t *testing.T) {
	m, _ := newTestModel(t)
	turn := startTurn(t, m, "hi")

	m.stream.buf.Write("partial")
	m.stream.buf.lastFlush = m.stream.buf.lastFlush.Add(-m.stream.buf.Interval())
	_, cmd := m.Update(streamTickMsg{turn: turn.ID})
	if cmd == nil {
		t.Error("tick should reschedule while the turn is active")
	}
	if last := lastMessage(m); last == nil || last.Text() != "partial" {
		t.Errorf("reply = %+v", last)
	}

	if _, cmd := m.Update(streamTickMsg{turn: turn.ID + 100}); cmd != nil {
		t.Error("tick for another turn should not reschedule")
	}
}

func TestTurn_ErrorShowsNotice(t *testing.T) {
	m, _ := newTestModel(t)
	turn := startTurn(t, m, "hi")

	cause := &api.ClientError{Type: api.ErrTypeConnection, Message: "Failed to fetch"}
	m.Update(turnErrorMsg{turn: turn, err: cause})

	last := lastMessage(m)
	if last == nil || !last.Notice {
		t.Fatalf("last message = %+v", last)
	}
	want := "Error: Failed to fetch. Make sure Ollama is running."
	if last.Content != want {
		t.Errorf("notice = %q, want %q", last.Content, want)
	}
	if m.chat.Busy() {
		t.Error("controller still busy after failure")
	}
}

func TestTurn_NewChatAbandonsStream(t *testing.T) {
	m, _ := newTestModel(t)
	turn := startTurn(t, m, "hi")

	press(m, tea.KeyCtrlN)
	if m.stream != nil {
		t.Fatal("stream not cancelled by new chat")
	}
	m.Update(turnDoneMsg{turn: turn})
	if len(m.chat.Messages()) != 0 {
		t.Errorf("stale turn changed the new chat: %d messages", len(m.chat.Messages()))
	}
}

func TestTurn_ExpiredReturnsToConnecting(t *testing.T) {
	m, _ := newTestModel(t)
	turn := startTurn(t, m, "hi")

	_, cmd := m.Update(turnExpiredMsg{turn: turn})
	if cmd == nil {
		t.Error("expiry should restart the bootstrap")
	}
	if m.ready {
		t.Error("model still ready after expiry")
	}
	if !strings.Contains(m.View(), "Connecting") {
		t.Error("connecting screen not shown")
	}
	if msgs := m.chat.Messages(); len(msgs) != 1 || msgs[0].Role != model.RoleUser {
		t.Errorf("messages = %d, want only the user message", len(msgs))
	}
}

func TestTurn_BlankInputIgnored(t *testing.T) {
	m, _ := newTestModel(t)
	m.switchTab(TabChat)
	typeText(m, "   ")
	if cmd := press(m, tea.KeyEnter); cmd != nil {
		t.Error("blank input should not start a turn")
	}
	if m.stream != nil || len(m.chat.Messages()) != 0 {
		t.Error("blank input changed the conversation")
	}
}

// =============================================================================
// SESSION TESTS
// =============================================================================

func TestBootFailure_Retry(t *testing.T) {
	m, _ := newTestModel(t)
	m.ready = false
	m.Update(sessionFailedMsg{err: &api.ClientError{Type: api.ErrTypeConnection, Message: "Failed to fetch"}})

	view := m.View()
	if !strings.Contains(view, "Could not reach") || !strings.Contains(view, "Failed to fetch") {
		t.Errorf("view = %q", view)
	}
	if cmd := pressRune(m, 'r'); cmd == nil {
		t.Error("retry should restart the bootstrap")
	}
	if m.bootErr != nil {
		t.Error("boot error not cleared on retry")
	}
}

func TestKeysIgnoredWhileConnecting(t *testing.T) {
	m, _ := newTestModel(t)
	m.ready = false
	press(m, tea.KeyTab)
	if m.tab != TabDashboard {
		t.Errorf("tab = %v while connecting", m.tab)
	}
}

// =============================================================================
// TAB TESTS
// =============================================================================

func TestTabSwitchPersists(t *testing.T) {
	m, store := newTestModel(t)
	press(m, tea.KeyTab)
	press(m, tea.KeyTab)
	if m.tab != TabMemory {
		t.Fatalf("tab = %v, want Memory", m.tab)
	}
	v, ok, err := store.Get(storage.KeyLastTab)
	if err != nil || !ok || v != "2" {
		t.Errorf("stored tab = %q, %v, %v", v, ok, err)
	}

	press(m, tea.KeyShiftTab)
	press(m, tea.KeyShiftTab)
	press(m, tea.KeyShiftTab)
	if m.tab != TabSettings {
		t.Errorf("tab = %v, want Settings", m.tab)
	}
}

func TestModelsSelectDefault(t *testing.T) {
	m, _ := newTestModel(t)
	m.Update(modelsMsg{models: []model.ModelInfo{{Name: "mistral"}, {Name: "llama3"}}})
	if m.chat.Model() != "llama3" {
		t.Errorf("model = %q", m.chat.Model())
	}

	m.switchTab(TabChat)
	press(m, tea.KeyCtrlP)
	if m.chat.Model() != "mistral" {
		t.Errorf("after cycle model = %q", m.chat.Model())
	}
}

func TestMemoryDeleteConfirm(t *testing.T) {
	m, _ := newTestModelWith(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && r.URL.Path == "/memory/2" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, "unexpected", http.StatusTeapot)
	})
	m.mem.SetItems([]model.Memory{{ID: "1", Text: "likes tea"}, {ID: "2", Text: "has a cat"}})
	m.switchTab(TabMemory)

	pressRune(m, 'd')
	if m.memMode != memConfirm || m.mem.Pending() == nil {
		t.Fatal("delete did not ask for confirmation")
	}
	pressRune(m, 'n')
	if m.memMode != memBrowse || m.mem.Pending() != nil {
		t.Error("cancel did not clear the pending delete")
	}

	press(m, tea.KeyDown)
	pressRune(m, 'd')
	cmd := pressRune(m, 'y')
	if cmd == nil {
		t.Fatal("confirm returned no command")
	}
	m.Update(cmd())
	items := m.mem.Items()
	if len(items) != 1 || items[0].ID != "1" {
		t.Errorf("items = %+v", items)
	}
	if m.memCursor != 0 {
		t.Errorf("cursor = %d", m.memCursor)
	}
}

func TestMemoryDeleteFailureKeepsItem(t *testing.T) {
	m, _ := newTestModel(t)
	m.mem.SetItems([]model.Memory{{ID: "1", Text: "likes tea"}})
	m.switchTab(TabMemory)
	pressRune(m, 'd')
	cmd := pressRune(m, 'y')
	if cmd == nil {
		t.Fatal("confirm returned no command")
	}

	m.Update(cmd())
	if len(m.mem.Items()) != 1 {
		t.Error("failed delete removed the item")
	}
	if m.mem.Pending() != nil {
		t.Error("pending delete not cleared")
	}
}

func TestFetchFailuresLoggedNotShown(t *testing.T) {
	m, _ := newTestModel(t)
	m.Update(conversationsMsg{list: []model.ConversationSummary{{ID: 7, Title: "kept"}}})
	m.mem.SetItems([]model.Memory{{ID: "1", Text: "likes tea"}})

	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	for _, cmd := range []tea.Cmd{
		m.loadConversationsCmd(),
		m.loadConversationCmd(7),
		m.deleteConversationCmd(7),
		m.loadModelsCmd(),
		m.loadToolsCmd(),
		m.loadMemoriesCmd(""),
	} {
		if _, next := m.Update(cmd()); next != nil {
			t.Errorf("failure returned a command: %T", next())
		}
	}

	out := buf.String()
	for _, op := range []string{
		"conversations.list", "conversations.get", "conversations.delete",
		"models.list", "tools.list", "memory.list",
	} {
		if n := strings.Count(out, `"op":"`+op+`"`); n != 1 {
			t.Errorf("%s logged %d times, want 1\n%s", op, n, out)
		}
	}
	if strings.Count(out, `"level":"error"`) != 6 {
		t.Errorf("want 6 error events\n%s", out)
	}

	if m.status != "" || m.statusErr {
		t.Errorf("status = %q", m.status)
	}
	if convs := m.chat.Conversations(); len(convs) != 1 || convs[0].ID != 7 {
		t.Errorf("conversations = %+v", convs)
	}
	if len(m.mem.Items()) != 1 {
		t.Errorf("memories = %+v", m.mem.Items())
	}
	if len(m.tools) != len(model.BuiltinTools) {
		t.Errorf("tools = %d, want the built-in list", len(m.tools))
	}
	m.switchTab(TabTools)
	if view := m.View(); strings.Contains(view, "Failed") {
		t.Errorf("tools tab shows an error:\n%s", view)
	}
}

func TestSessionResetReturnsToConnecting(t *testing.T) {
	m, _ := newTestModel(t)
	m.switchTab(TabChat)
	typeText(m, "draft")

	_, cmd := m.Update(SessionResetMsg{})
	if cmd == nil {
		t.Fatal("reset should restart the bootstrap")
	}
	if m.ready || m.user != nil {
		t.Error("session state not cleared")
	}
	if !strings.Contains(m.View(), "Connecting") {
		t.Error("connecting screen not shown")
	}
	if _, cmd := m.Update(SessionResetMsg{}); cmd != nil {
		t.Error("second reset while connecting started another bootstrap")
	}

	m.Update(sessionReadyMsg{user: &model.User{ID: 2, Email: model.GuestEmail}})
	if !m.ready || m.user.ID != 2 {
		t.Error("model not ready after the new session")
	}
}

func TestSessionResetFromCallback(t *testing.T) {
	m, _ := newTestModelWith(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"expired"}`, http.StatusUnauthorized)
	})
	var got []tea.Msg
	m.deps.Session.SetResetCallback(func() { got = append(got, SessionResetMsg{}) })

	msg := m.loadModelsCmd()()
	if len(got) != 1 {
		t.Fatalf("reset callback ran %d times", len(got))
	}
	m.Update(msg)
	m.Update(got[0])
	if m.ready {
		t.Error("model still ready after the session reset")
	}
}

func TestSaveOverride(t *testing.T) {
	m, store := newTestModel(t)

	msg := m.saveOverrideCmd("ftp://example.com")().(overrideSavedMsg)
	if msg.err == nil {
		t.Error("non-http URL accepted")
	}

	msg = m.saveOverrideCmd(" http://localhost:8000/api/v1 ")().(overrideSavedMsg)
	if msg.err != nil {
		t.Fatal(msg.err)
	}
	if v, _, _ := store.Get(storage.KeyAPIURL); v != "http://localhost:8000/api/v1" {
		t.Errorf("stored = %q", v)
	}
	m.Update(msg)
	if m.override != "http://localhost:8000/api/v1" {
		t.Errorf("override = %q", m.override)
	}

	msg = m.saveOverrideCmd("")().(overrideSavedMsg)
	if msg.err != nil {
		t.Fatal(msg.err)
	}
	if _, ok, _ := store.Get(storage.KeyAPIURL); ok {
		t.Error("override not cleared")
	}
}

func TestConfigReload(t *testing.T) {
	m, _ := newTestModel(t)
	cfg := config.Default()
	cfg.Chat.Markdown = false
	cfg.UI.Theme = "light"

	m.Update(ConfigReloadedMsg{Config: cfg})
	if m.cfg != cfg {
		t.Error("config not applied")
	}
	if m.md.enabled {
		t.Error("markdown still enabled")
	}
	if m.theme.ModeLabel() != "Light" {
		t.Errorf("theme = %q", m.theme.ModeLabel())
	}
}

func TestRestoreLastTab(t *testing.T) {
	store := storage.NewMemoryStore()
	if err := store.Set(storage.KeyLastTab, "3"); err != nil {
		t.Fatal(err)
	}
	cred := session.NewCredential(store)
	client := api.NewClient(&api.ClientConfig{BaseURL: "http://127.0.0.1:1"}, cred)
	m := New(Deps{Session: session.New(cred, client, session.DefaultConfig()), Client: client, Store: store})
	defer m.Shutdown()
	if m.tab != TabTools {
		t.Errorf("tab = %v, want Tools", m.tab)
	}
}
