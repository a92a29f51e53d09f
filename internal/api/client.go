// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the PocketPaw backend.
//
// Every endpoint has a typed method. Responses are decoded into the model
// package's types and validated before they are returned; a body that does
// not match fails with a DecodeError instead of leaking partial data.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/pocketpaw/pawtui/internal/model"
)

// =============================================================================
// CREDENTIALS
// =============================================================================

// Credentials supplies the bearer token for outgoing requests.
type Credentials interface {
	// Token returns the current token, or "" when there is none.
	Token() string

	// Rejected is called once for each 401 response with the token that
	// request carried.
	Rejected(token string)
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. https://host/api/v1 (no trailing slash).
	BaseURL string

	// Timeout for non-streaming requests (default: 30s). Streams have no
	// overall timeout; they end with the server or the context.
	Timeout time.Duration

	// RequestsPerSecond and Burst configure the client-side limiter.
	// Zero RequestsPerSecond disables it.
	RequestsPerSecond float64
	Burst             int

	// SkipNgrokWarning adds the ngrok-skip-browser-warning header.
	SkipNgrokWarning bool

	UserAgent string

	// HTTPClient overrides the transport for non-streaming requests.
	HTTPClient *http.Client
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:          30 * time.Second,
		Burst:            20,
		SkipNgrokWarning: true,
		UserAgent:        "pawtui",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the PocketPaw API. It is safe for concurrent use.
//
// Example:
//
//	client := api.NewClient(&api.ClientConfig{BaseURL: base}, sess)
//	convs, err := client.ListConversations(ctx)
type Client struct {
	config       *ClientConfig
	creds        Credentials
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
}

// NewClient creates a client. creds may be nil for unauthenticated use.
func NewClient(config *ClientConfig, creds Credentials) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "pawtui"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	// Same transport, no overall timeout: a reply can stream for minutes.
	streamClient := &http.Client{Transport: httpClient.Transport}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}

	return &Client{
		config:       &cfg,
		creds:        creds,
		httpClient:   httpClient,
		streamClient: streamClient,
		limiter:      limiter,
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// maxErrorBody bounds how much of an error response is read for its detail.
const maxErrorBody = 64 << 10

type validator interface {
	Validate() error
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return nil, "", &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.config.SkipNgrokWarning {
		req.Header.Set("ngrok-skip-browser-warning", "true")
	}

	token := ""
	if c.creds != nil {
		token = c.creds.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, token, nil
}

// send performs req and maps transport failures and non-2xx statuses to
// ClientErrors. On success the caller owns resp.Body.
func (c *Client) send(hc *http.Client, req *http.Request, token string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, transportError(req.Context(), err)
		}
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return nil, transportError(req.Context(), err)
	}

	log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Dur("elapsed", time.Since(start)).
		Msg("api request")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && c.creds != nil {
		c.creds.Rejected(token)
	}
	return nil, statusError(resp, body)
}

func transportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return &ClientError{Type: ErrTypeCanceled, Message: "request canceled", Cause: err}
	case errors.Is(err, context.DeadlineExceeded) || isNetTimeout(err):
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	default:
		return &ClientError{Type: ErrTypeConnection, Message: "Failed to fetch", Cause: err}
	}
}

func isNetTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// do sends a JSON request and decodes a JSON response into out (when out is
// not nil).
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, token, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	return c.roundTrip(req, token, out)
}

func (c *Client) roundTrip(req *http.Request, token string, out interface{}) error {
	resp, err := c.send(c.httpClient, req, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	endpoint := req.Method + " " + req.URL.Path
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return transportError(req.Context(), ctxErr)
		}
		return decodeErr(endpoint, "invalid JSON", err)
	}
	if v, ok := out.(validator); ok {
		if err := v.Validate(); err != nil {
			return decodeErr(endpoint, "schema mismatch", err)
		}
	}
	return nil
}

func validateEach[T validator](endpoint string, items []T) error {
	for i, it := range items {
		if err := it.Validate(); err != nil {
			return decodeErr(endpoint, fmt.Sprintf("item %d", i), err)
		}
	}
	return nil
}

// =============================================================================
// AUTH
// =============================================================================

// LoginGuest obtains a guest token. The request carries no credential.
func (c *Client) LoginGuest(ctx context.Context) (*model.Token, error) {
	req, _, err := c.newRequest(ctx, http.MethodPost, "/auth/login/guest", nil, "")
	if err != nil {
		return nil, err
	}
	req.Header.Del("Authorization")

	var tok model.Token
	if err := c.roundTrip(req, "", &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// LoginPassword obtains a token with the OAuth2 password form.
func (c *Client) LoginPassword(ctx context.Context, email, password string) (*model.Token, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	req, _, err := c.newRequest(ctx, http.MethodPost, "/auth/login/access-token",
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}
	req.Header.Del("Authorization")

	var tok model.Token
	if err := c.roundTrip(req, "", &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, email, password string) (*model.User, error) {
	var u model.User
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/register", in, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Me returns the identity behind the current token.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// ListConversations returns the user's conversations in server order.
func (c *Client) ListConversations(ctx context.Context) ([]model.ConversationSummary, error) {
	var out []model.ConversationSummary
	if err := c.do(ctx, http.MethodGet, "/conversations/", nil, &out); err != nil {
		return nil, err
	}
	if err := validateEach("GET /conversations/", out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetConversation returns the messages of one conversation.
func (c *Client) GetConversation(ctx context.Context, id int) (*model.ConversationDetail, error) {
	var d model.ConversationDetail
	if err := c.do(ctx, http.MethodGet, "/conversations/"+strconv.Itoa(id), nil, &d); err != nil {
		return nil, err
	}
	if d.ID == 0 {
		d.ID = id
	}
	return &d, nil
}

// DeleteConversation deletes a conversation on the server.
func (c *Client) DeleteConversation(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+strconv.Itoa(id), nil, nil)
}

// =============================================================================
// MEMORY
// =============================================================================

// ListMemories returns stored memories.
func (c *Client) ListMemories(ctx context.Context) ([]model.Memory, error) {
	var out []model.Memory
	if err := c.do(ctx, http.MethodGet, "/memory/", nil, &out); err != nil {
		return nil, err
	}
	if err := validateEach("GET /memory/", out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddMemory stores text and returns the created memory.
func (c *Client) AddMemory(ctx context.Context, text string) (*model.Memory, error) {
	var m model.Memory
	if err := c.do(ctx, http.MethodPost, "/memory/", map[string]string{"text": text}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMemory removes a memory.
func (c *Client) DeleteMemory(ctx context.Context, id model.OpaqueID) error {
	return c.do(ctx, http.MethodDelete, "/memory/"+url.PathEscape(id.String()), nil, nil)
}

// SearchMemory runs a semantic search. limit <= 0 uses the server default.
func (c *Client) SearchMemory(ctx context.Context, query string, limit int) ([]model.MemoryHit, error) {
	in := struct {
		Query string `json:"query"`
		Limit int    `json:"limit,omitempty"`
	}{Query: query, Limit: limit}

	var out []model.MemoryHit
	if err := c.do(ctx, http.MethodPost, "/memory/search", in, &out); err != nil {
		return nil, err
	}
	if err := validateEach("POST /memory/search", out); err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// MODELS / TOOLS
// =============================================================================

// ListModels returns the models the backend can serve.
func (c *Client) ListModels(ctx context.Context) (*model.ModelList, error) {
	var l model.ModelList
	if err := c.do(ctx, http.MethodGet, "/models/", nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// ListTools returns the backend tool registry.
func (c *Client) ListTools(ctx context.Context) ([]model.Tool, error) {
	var out []model.Tool
	if err := c.do(ctx, http.MethodGet, "/tools/", nil, &out); err != nil {
		return nil, err
	}
	if err := validateEach("GET /tools/", out); err != nil {
		return nil, err
	}
	return out, nil
}

// ExecuteTool runs a tool on the backend with JSON arguments.
func (c *Client) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (*model.ToolResult, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	in := struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}{Name: name, Arguments: args}

	var r model.ToolResult
	if err := c.do(ctx, http.MethodPost, "/tools/execute", in, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
