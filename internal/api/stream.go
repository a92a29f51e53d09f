// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/pocketpaw/pawtui/internal/model"
)

// =============================================================================
// CHAT REQUEST
// =============================================================================

// ChatRequest is the body of POST /chat/completions. ConversationID is
// serialized as null for a new conversation.
type ChatRequest struct {
	Messages       []model.Message `json:"messages"`
	Stream         bool            `json:"stream"`
	ConversationID *int            `json:"conversation_id"`
	Model          string          `json:"model"`
}

// StreamCallback receives each decoded fragment in arrival order.
type StreamCallback func(fragment string)

// StreamEvent is one item of ChatStreamChan. Err is set on the final event
// when the stream failed; Done is set on the final event either way.
type StreamEvent struct {
	Fragment string
	Done     bool
	Err      error
}

// =============================================================================
// STREAM READER
// =============================================================================

// readBufferSize is the size of a single read from the response body.
const readBufferSize = 4096

// StreamReader turns a chunked text body into UTF-8 fragments. A multi-byte
// rune split across two reads is carried over and emitted whole with the
// next fragment.
type StreamReader struct {
	r     io.Reader
	buf   []byte
	carry []byte
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{r: r, buf: make([]byte, readBufferSize)}
}

// Process reads the stream and calls the callback for each non-empty
// fragment. Blocks until the stream ends or the context is cancelled.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := s.r.Read(s.buf)
		if n > 0 {
			if frag := s.decode(s.buf[:n]); frag != "" {
				callback(frag)
			}
		}
		if err == io.EOF {
			if tail := s.flush(); tail != "" {
				callback(tail)
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// decode returns the complete runes of carry+p and keeps an incomplete
// trailing sequence for the next call.
func (s *StreamReader) decode(p []byte) string {
	data := append(s.carry, p...)
	s.carry = nil

	cut := len(data)
	// A rune is at most utf8.UTFMax bytes, so only the tail can be partial.
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				cut = i
			}
			break
		}
	}

	if cut < len(data) {
		s.carry = append([]byte(nil), data[cut:]...)
	}
	return string(data[:cut])
}

// flush returns whatever is left at end of stream. Invalid bytes become
// U+FFFD when the caller converts them.
func (s *StreamReader) flush() string {
	if len(s.carry) == 0 {
		return ""
	}
	tail := string(bytes.ToValidUTF8(s.carry, []byte(string(utf8.RuneError))))
	s.carry = nil
	return tail
}

// =============================================================================
// CHAT COMPLETIONS
// =============================================================================

// ChatStream sends req and streams the reply through callback.
//
// A 401 is reported before any fragment is delivered, so the caller can tell
// an expired credential from a reply that failed half way. Errors after the
// first fragment leave the already delivered text with the caller.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, callback StreamCallback) error {
	req.Stream = true
	if req.Messages == nil {
		req.Messages = []model.Message{}
	}

	data, err := json.Marshal(req)
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	httpReq, token, err := c.newRequest(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(data), "application/json")
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/plain, */*")

	resp, err := c.send(c.streamClient, httpReq, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := NewStreamReader(resp.Body).Process(ctx, callback); err != nil {
		return transportError(ctx, err)
	}
	return nil
}

// ChatStreamChan is like ChatStream but delivers fragments on a channel.
// The channel is closed after the final event.
func (c *Client) ChatStreamChan(ctx context.Context, req ChatRequest) <-chan StreamEvent {
	ch := make(chan StreamEvent, 32)

	go func() {
		defer close(ch)

		err := c.ChatStream(ctx, req, func(fragment string) {
			select {
			case ch <- StreamEvent{Fragment: fragment}:
			case <-ctx.Done():
			}
		})

		select {
		case ch <- StreamEvent{Done: true, Err: err}:
		case <-ctx.Done():
		}
	}()

	return ch
}
