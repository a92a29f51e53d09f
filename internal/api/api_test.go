// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"
	"unicode/utf8"

	"github.com/pocketpaw/pawtui/internal/model"
)

// =============================================================================
// HELPERS
// =============================================================================

type fakeCreds struct {
	mu       sync.Mutex
	token    string
	rejected []string
}

func (f *fakeCreds) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeCreds) Rejected(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, token)
	f.token = ""
}

func newTestClient(t *testing.T, h http.HandlerFunc, creds Credentials) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&ClientConfig{BaseURL: srv.URL + "/", SkipNgrokWarning: true}, creds)
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(&ClientConfig{BaseURL: "http://x/api/v1/"}, nil)

	if c.BaseURL() != "http://x/api/v1" {
		t.Errorf("BaseURL = %q", c.BaseURL())
	}
	if c.config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", c.config.Timeout)
	}
	if c.streamClient.Timeout != 0 {
		t.Errorf("stream client must not time out, got %v", c.streamClient.Timeout)
	}
	if c.limiter != nil {
		t.Error("limiter should be disabled when RequestsPerSecond is 0")
	}
}

func TestClient_Headers(t *testing.T) {
	var got http.Header
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		io.WriteString(w, `{"id":1,"email":"a@b.c","is_active":true}`)
	}, &fakeCreds{token: "tok"})

	if _, err := c.Me(context.Background()); err != nil {
		t.Fatalf("Me: %v", err)
	}
	if got.Get("Authorization") != "Bearer tok" {
		t.Errorf("Authorization = %q", got.Get("Authorization"))
	}
	if got.Get("ngrok-skip-browser-warning") != "true" {
		t.Error("missing ngrok header")
	}
	if got.Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
}

func TestLoginGuest_SendsNoCredential(t *testing.T) {
	var auth, path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth, path = r.Header.Get("Authorization"), r.URL.Path
		io.WriteString(w, `{"access_token":"guest-tok","token_type":"bearer"}`)
	}, &fakeCreds{token: "stale"})

	tok, err := c.LoginGuest(context.Background())
	if err != nil {
		t.Fatalf("LoginGuest: %v", err)
	}
	if tok.AccessToken != "guest-tok" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
	if auth != "" {
		t.Errorf("guest login carried Authorization %q", auth)
	}
	if path != "/auth/login/guest" {
		t.Errorf("path = %q", path)
	}
}

func TestLoginPassword_FormEncoded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		r.ParseForm()
		if r.PostForm.Get("username") != "me@x.io" || r.PostForm.Get("password") != "pw" {
			t.Errorf("form = %v", r.PostForm)
		}
		io.WriteString(w, `{"access_token":"t"}`)
	}, nil)

	if _, err := c.LoginPassword(context.Background(), "me@x.io", "pw"); err != nil {
		t.Fatalf("LoginPassword: %v", err)
	}
}

func TestClient_UnauthorizedRejectsOnce(t *testing.T) {
	creds := &fakeCreds{token: "expired"}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"Could not validate credentials"}`)
	}, creds)

	_, err := c.ListConversations(context.Background())
	if !IsUnauthorized(err) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Error("errors.Is(err, ErrUnauthorized) = false")
	}
	if len(creds.rejected) != 1 || creds.rejected[0] != "expired" {
		t.Errorf("rejected = %v, want [expired]", creds.rejected)
	}
}

func TestClient_ServerErrorDetail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"detail":"ollama unreachable"}`)
	}, nil)

	_, err := c.ListModels(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	want := "Network response was not ok (500 Internal Server Error): ollama unreachable"
	if err.Error() != want {
		t.Errorf("err = %q, want %q", err.Error(), want)
	}
}

func TestParseDetail(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"detail":"nope"}`, "nope"},
		{`{"detail":[{"msg":"field required"},{"msg":"bad"}]}`, "field required; bad"},
		{`not json`, ""},
		{`{}`, ""},
	}
	for _, tt := range tests {
		if got := parseDetail([]byte(tt.body)); got != tt.want {
			t.Errorf("parseDetail(%s) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestClient_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"models": [`},
		{"schema mismatch", `{"models":[{"name":""}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}, nil)

			_, err := c.ListModels(context.Background())
			if !IsDecode(err) {
				t.Fatalf("err = %v, want decode error", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.Endpoint != "GET /models/" {
				t.Errorf("DecodeError = %+v", de)
			}
		})
	}
}

func TestClient_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(&ClientConfig{BaseURL: url}, nil)
	_, err := c.Me(context.Background())
	if !IsConnection(err) {
		t.Errorf("err = %v, want connection error", err)
	}
}

func TestListModels_DefaultsToLlama3(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"models":[{"name":"llama3"},{"name":"mixtral"}]}`)
	}, nil)

	l, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if got := model.DefaultModel(l.Names(), model.PreferredModel, ""); got != "llama3" {
		t.Errorf("default model = %q, want llama3", got)
	}
}

func TestMemory_MixedIDs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/memory/":
			io.WriteString(w, `[{"id":7,"text":"cats","created_at":"2024-05-01T10:00:00"}]`)
		case "/memory/search":
			var in map[string]interface{}
			json.NewDecoder(r.Body).Decode(&in)
			if in["query"] != "cats" || in["limit"] != float64(5) {
				t.Errorf("search body = %v", in)
			}
			io.WriteString(w, `[{"id":"7","text":"cats","metadata":{}}]`)
		}
	}, nil)

	ctx := context.Background()
	list, err := c.ListMemories(ctx)
	if err != nil {
		t.Fatalf("ListMemories: %v", err)
	}
	hits, err := c.SearchMemory(ctx, "cats", 5)
	if err != nil {
		t.Fatalf("SearchMemory: %v", err)
	}
	if list[0].ID != hits[0].ID {
		t.Errorf("ids differ: %q vs %q", list[0].ID, hits[0].ID)
	}
}

func TestDeleteMemory_Path(t *testing.T) {
	var method, path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}, nil)

	if err := c.DeleteMemory(context.Background(), model.OpaqueID("42")); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}
	if method != http.MethodDelete || path != "/memory/42" {
		t.Errorf("%s %s", method, path)
	}
}

func TestExecuteTool(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Name      string                 `json:"name"`
			Arguments map[string]interface{} `json:"arguments"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		if in.Name != "calculator" || in.Arguments["expression"] != "2+2" {
			t.Errorf("body = %+v", in)
		}
		io.WriteString(w, `{"status":"success","result":"4"}`)
	}, nil)

	res, err := c.ExecuteTool(context.Background(), "calculator", map[string]interface{}{"expression": "2+2"})
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if res.Text() != "4" {
		t.Errorf("Text = %q", res.Text())
	}
}

// =============================================================================
// STREAM TESTS
// =============================================================================

func TestChatStream_ConcatenatesFragments(t *testing.T) {
	var body ChatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		f := w.(http.Flusher)
		io.WriteString(w, "He")
		f.Flush()
		io.WriteString(w, "llo")
		f.Flush()
	}, &fakeCreds{token: "t"})

	var got strings.Builder
	req := ChatRequest{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
		Model:    "llama3",
	}
	if err := c.ChatStream(context.Background(), req, func(s string) { got.WriteString(s) }); err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if got.String() != "Hello" {
		t.Errorf("reply = %q, want Hello", got.String())
	}
	if !body.Stream || body.Model != "llama3" || body.ConversationID != nil {
		t.Errorf("request = %+v", body)
	}
}

func TestChatRequest_NullConversationID(t *testing.T) {
	data, _ := json.Marshal(ChatRequest{Messages: []model.Message{}, Stream: true, Model: "m"})
	if !strings.Contains(string(data), `"conversation_id":null`) {
		t.Errorf("body = %s", data)
	}
	data, _ = json.Marshal(ChatRequest{ConversationID: model.IntPtr(3)})
	if !strings.Contains(string(data), `"conversation_id":3`) {
		t.Errorf("body = %s", data)
	}
}

func TestChatStream_Unauthorized(t *testing.T) {
	creds := &fakeCreds{token: "old"}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, creds)

	called := false
	err := c.ChatStream(context.Background(), ChatRequest{}, func(string) { called = true })
	if !IsUnauthorized(err) {
		t.Fatalf("err = %v", err)
	}
	if called {
		t.Error("callback ran on 401")
	}
	if len(creds.rejected) != 1 {
		t.Errorf("rejected %d times, want 1", len(creds.rejected))
	}
}

func TestStreamReader_SplitRunes(t *testing.T) {
	// "héllo 世界" delivered one byte per read.
	src := "héllo 世界"
	r := NewStreamReader(iotest.OneByteReader(strings.NewReader(src)))

	var frags []string
	if err := r.Process(context.Background(), func(s string) { frags = append(frags, s) }); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if strings.Join(frags, "") != src {
		t.Errorf("joined = %q", strings.Join(frags, ""))
	}
	for _, f := range frags {
		if !utf8.ValidString(f) {
			t.Errorf("fragment %q is not valid UTF-8", f)
		}
	}
}

func TestStreamReader_TruncatedTail(t *testing.T) {
	r := NewStreamReader(strings.NewReader("ok\xe4\xb8"))
	var got strings.Builder
	r.Process(context.Background(), func(s string) { got.WriteString(s) })
	if got.String() != "ok�" {
		t.Errorf("got %q", got.String())
	}
}

func TestStreamReader_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewStreamReader(strings.NewReader("x")).Process(ctx, func(string) {})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestChatStreamChan(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "a")
		w.(http.Flusher).Flush()
		io.WriteString(w, "b")
	}, nil)

	var text strings.Builder
	var last StreamEvent
	for ev := range c.ChatStreamChan(context.Background(), ChatRequest{}) {
		text.WriteString(ev.Fragment)
		last = ev
	}
	if !last.Done || last.Err != nil {
		t.Errorf("last = %+v", last)
	}
	if text.String() != "ab" {
		t.Errorf("text = %q", text.String())
	}
}
