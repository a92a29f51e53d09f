// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// FAKE BACKEND
// =============================================================================

type fakeServer struct {
	mu          sync.Mutex
	tokens      map[string]bool
	guestLogins int
	chatBodies  []map[string]interface{}
	memoryAdds  []string
	toolsDown   bool
	chatDown    bool
}

func newFakeServer(t *testing.T) (*fakeServer, string) {
	f := &fakeServer{tokens: map[string]bool{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/auth/login/guest" {
		f.guestLogins++
		tok := fmt.Sprintf("guest-%d", f.guestLogins)
		f.tokens[tok] = true
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"bearer"}`, tok)
		return
	}
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !f.tokens[tok] {
		http.Error(w, `{"detail":"Could not validate credentials"}`, http.StatusUnauthorized)
		return
	}

	switch r.Method + " " + r.URL.Path {
	case "GET /auth/me":
		fmt.Fprint(w, `{"id":1,"email":"guest@example.com","is_active":true}`)
	case "GET /conversations/":
		fmt.Fprint(w, `[{"id":1,"title":"first chat"},{"id":2,"title":"second chat"}]`)
	case "GET /conversations/1":
		fmt.Fprint(w, `{"id":1,"title":"first chat","messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}`)
	case "DELETE /conversations/2":
		w.WriteHeader(http.StatusNoContent)
	case "GET /memory/":
		fmt.Fprint(w, `[{"id":7,"text":"likes tea","created_at":"2024-05-01 10:00:00"}]`)
	case "POST /memory/":
		var body struct {
			Text string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.memoryAdds = append(f.memoryAdds, body.Text)
		fmt.Fprintf(w, `{"id":"8","text":%q,"created_at":"2024-05-02 09:00:00"}`, body.Text)
	case "POST /memory/search":
		fmt.Fprint(w, `[{"id":7,"text":"likes tea","metadata":{}}]`)
	case "GET /models/":
		fmt.Fprint(w, `{"models":[{"name":"mistral","size":4000000000},{"name":"llama3","size":5000000000,"modified_at":"2024-05-01T10:00:00Z"}]}`)
	case "GET /tools/":
		if f.toolsDown {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[{"name":"calculator","description":"Evaluate a mathematical expression."}]`)
	case "POST /tools/execute":
		fmt.Fprint(w, `{"status":"success","result":"4"}`)
	case "POST /chat/completions":
		if f.chatDown {
			http.Error(w, `{"detail":"ollama unreachable"}`, http.StatusInternalServerError)
			return
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		f.chatBodies = append(f.chatBodies, body)
		io.WriteString(w, "He")
		w.(http.Flusher).Flush()
		io.WriteString(w, "llo")
	default:
		http.NotFound(w, r)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func newHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("PAWTUI_HOME", home)
	t.Setenv("PAWTUI_API_URL", "")
	cfg := "[session]\nseal_token = false\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.toml"), []byte(cfg), 0600))
	return home
}

func runCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	app := NewApp("test")
	root := NewRootCommand(app)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config-dir", home}, args...))
	err := root.ExecuteContext(context.Background())
	app.Close()
	return out.String(), errOut.String(), err
}

func decodeJSON(t *testing.T, out string) JSONResponse {
	t.Helper()
	var resp JSONResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

func TestWhoami_GuestBootstrapOnce(t *testing.T) {
	f, url := newFakeServer(t)
	home := newHome(t)

	out, _, err := runCLI(t, home, "--api-url", url, "whoami", "-o", "json")
	require.NoError(t, err)
	resp := decodeJSON(t, out)
	assert.True(t, resp.Success)
	assert.Equal(t, "whoami", resp.Command)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "guest@example.com", data["email"])
	assert.Equal(t, "Guest User", data["name"])
	assert.Equal(t, "command line", data["source"])

	_, _, err = runCLI(t, home, "--api-url", url, "whoami")
	require.NoError(t, err)
	assert.Equal(t, 1, f.guestLogins, "stored token should be reused")
}

func TestLogin_Token(t *testing.T) {
	f, url := newFakeServer(t)
	home := newHome(t)
	f.tokens["secret"] = true

	out, _, err := runCLI(t, home, "--api-url", url, "login", "--token", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "guest@example.com")

	_, _, err = runCLI(t, home, "--api-url", url, "login", "--token", "bogus")
	require.Error(t, err)

	// The rejected token was not kept: the next command signs in as guest.
	_, _, err = runCLI(t, home, "--api-url", url, "whoami")
	require.NoError(t, err)
	assert.Equal(t, 1, f.guestLogins)
}

func TestLogin_RequiresFlags(t *testing.T) {
	home := newHome(t)
	_, _, err := runCLI(t, home, "login")
	require.Error(t, err)
}

// =============================================================================
// RESOURCE COMMANDS
// =============================================================================

func TestConversations(t *testing.T) {
	_, url := newFakeServer(t)
	home := newHome(t)

	out, _, err := runCLI(t, home, "--api-url", url, "conversations", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "first chat")
	assert.Contains(t, out, "second chat")

	out, _, err = runCLI(t, home, "--api-url", url, "conversations", "show", "1", "-o", "yaml")
	require.NoError(t, err)
	var msgs []messageRow
	require.NoError(t, yaml.Unmarshal([]byte(out), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "hello", msgs[1].Content)

	out, _, err = runCLI(t, home, "--api-url", url, "conversations", "rm", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted conversation 2")

	_, _, err = runCLI(t, home, "--api-url", url, "conversations", "show", "abc")
	require.Error(t, err)
}

func TestConversationsExport(t *testing.T) {
	_, url := newFakeServer(t)
	home := newHome(t)

	out, _, err := runCLI(t, home, "--api-url", url, "conversations", "export", "1", "-f", "json", "--stdout")
	require.NoError(t, err)
	var doc struct {
		ConversationID int    `json:"conversation_id"`
		Title          string `json:"title"`
		Messages       []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 1, doc.ConversationID)
	assert.Equal(t, "first chat", doc.Title)
	require.Len(t, doc.Messages, 2)

	dir := t.TempDir()
	out, _, err = runCLI(t, home, "--api-url", url, "conversations", "export", "1", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported conversation 1 to "+dir)
	matches, err := filepath.Glob(filepath.Join(dir, "conversation_first_chat_*.md"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	_, _, err = runCLI(t, home, "--api-url", url, "conversations", "export", "1", "-f", "pdf")
	require.Error(t, err)
}

func TestMemory(t *testing.T) {
	f, url := newFakeServer(t)
	home := newHome(t)

	out, _, err := runCLI(t, home, "--api-url", url, "memory", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "likes tea")
	assert.Contains(t, out, "7")

	out, _, err = runCLI(t, home, "--api-url", url, "memory", "add", "has", "a", "cat", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, []string{"has a cat"}, f.memoryAdds)
	rows := decodeJSON(t, out).Data.([]interface{})
	require.Len(t, rows, 1)
	assert.Equal(t, "8", rows[0].(map[string]interface{})["id"])

	out, _, err = runCLI(t, home, "--api-url", url, "memory", "search", "tea", "-o", "yaml")
	require.NoError(t, err)
	var hits []memoryRow
	require.NoError(t, yaml.Unmarshal([]byte(out), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "7", hits[0].ID)
	assert.NotEqual(t, "-", hits[0].CreatedAt, "missing created_at falls back to now")
}

func TestModels(t *testing.T) {
	_, url := newFakeServer(t)
	home := newHome(t)

	out, _, err := runCLI(t, home, "--api-url", url, "models")
	require.NoError(t, err)
	var llamaLine string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "llama3") {
			llamaLine = line
		}
	}
	assert.Contains(t, llamaLine, "4.66 GB")
	assert.Contains(t, llamaLine, "(default)")
}

func TestTools(t *testing.T) {
	f, url := newFakeServer(t)
	home := newHome(t)

	out, _, err := runCLI(t, home, "--api-url", url, "tools", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Calculator")
	assert.NotContains(t, out, "Web Search")

	f.mu.Lock()
	f.toolsDown = true
	f.mu.Unlock()
	out, errOut, err := runCLI(t, home, "--api-url", url, "tools", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Web Search")
	assert.Contains(t, out, "Note Taker")
	assert.Contains(t, errOut, "built-in")

	out, _, err = runCLI(t, home, "--api-url", url, "tools", "run", "calculator", "expression=2+2")
	require.NoError(t, err)
	assert.Equal(t, "4\n", out)
}

func TestParseToolArgs(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		pairs   []string
		want    map[string]interface{}
		wantErr bool
	}{
		{"pairs", "", []string{"query=go", "limit=3", "exact=true"},
			map[string]interface{}{"query": "go", "limit": float64(3), "exact": true}, false},
		{"json", `{"a":"b"}`, nil, map[string]interface{}{"a": "b"}, false},
		{"pair overrides json", `{"a":"b"}`, []string{"a=c"}, map[string]interface{}{"a": "c"}, false},
		{"bad pair", "", []string{"novalue"}, nil, true},
		{"bad json", "[1]", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseToolArgs(tt.raw, tt.pairs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_StreamsReply(t *testing.T) {
	f, url := newFakeServer(t)
	home := newHome(t)

	out, _, err := runCLI(t, home, "--api-url", url, "ask", "hi", "there")
	require.NoError(t, err)
	assert.Equal(t, "Hello\n", out)

	require.Len(t, f.chatBodies, 1)
	body := f.chatBodies[0]
	assert.Equal(t, "llama3", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.Nil(t, body["conversation_id"])
	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi there", msgs[0].(map[string]interface{})["content"])
}

func TestAsk_ContinuesConversation(t *testing.T) {
	f, url := newFakeServer(t)
	home := newHome(t)

	_, _, err := runCLI(t, home, "--api-url", url, "ask", "-c", "1", "-m", "mistral", "more")
	require.NoError(t, err)
	require.Len(t, f.chatBodies, 1)
	body := f.chatBodies[0]
	assert.Equal(t, float64(1), body["conversation_id"])
	assert.Equal(t, "mistral", body["model"])
	assert.Len(t, body["messages"], 3)
}

func TestAsk_ServerError(t *testing.T) {
	f, url := newFakeServer(t)
	home := newHome(t)
	f.chatDown = true

	_, _, err := runCLI(t, home, "--api-url", url, "ask", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Network response was not ok")
	assert.Contains(t, err.Error(), "Make sure Ollama is running.")
}

// =============================================================================
// CONFIG AND API URL
// =============================================================================

func TestConfigCommands(t *testing.T) {
	home := newHome(t)

	out, _, err := runCLI(t, home, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.toml")+"\n", out)

	_, _, err = runCLI(t, home, "config", "set", "chat.default_model", "mistral")
	require.NoError(t, err)

	out, _, err = runCLI(t, home, "config", "get", "chat.default_model")
	require.NoError(t, err)
	assert.Equal(t, "mistral\n", out)

	out, _, err = runCLI(t, home, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `default_model = "mistral"`)

	out, _, err = runCLI(t, home, "config", "show", "-o", "json")
	require.NoError(t, err)
	doc := decodeJSON(t, out).Data.(map[string]interface{})
	assert.Equal(t, "mistral", doc["chat"].(map[string]interface{})["default_model"])

	_, _, err = runCLI(t, home, "config", "get", "nope.key")
	require.Error(t, err)
}

func TestAPIURLOverride(t *testing.T) {
	home := newHome(t)

	out, _, err := runCLI(t, home, "api-url", "-o", "json")
	require.NoError(t, err)
	data := decodeJSON(t, out).Data.(map[string]interface{})
	assert.Equal(t, "fallback", data["source"])

	_, _, err = runCLI(t, home, "api-url", "ftp://example.test")
	require.Error(t, err)

	_, _, err = runCLI(t, home, "api-url", "https://example.test/api/v1/")
	require.NoError(t, err)

	out, _, err = runCLI(t, home, "api-url", "-o", "json")
	require.NoError(t, err)
	data = decodeJSON(t, out).Data.(map[string]interface{})
	assert.Equal(t, "https://example.test/api/v1", data["url"])
	assert.Equal(t, "local override", data["source"])

	out, _, err = runCLI(t, home, "api-url", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "fallback")
}

func TestOutputFormatValidated(t *testing.T) {
	home := newHome(t)
	_, _, err := runCLI(t, home, "config", "path", "-o", "xml")
	require.Error(t, err)
}
