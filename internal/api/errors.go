// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the PocketPaw client.
type ClientError struct {
	Type    ErrorType
	Status  int // HTTP status when a response was received, else 0
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches sentinels by type so errors.Is(err, ErrUnauthorized) holds for
// any unauthorized ClientError.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t == e || (t.Message == "" && t.Type == e.Type)
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeCanceled
	ErrTypeUnauthorized
	ErrTypeNotFound
	ErrTypeServer
	ErrTypeInvalidResponse
	ErrTypeDecode
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeCanceled:
		return "canceled"
	case ErrTypeUnauthorized:
		return "unauthorized"
	case ErrTypeNotFound:
		return "not_found"
	case ErrTypeServer:
		return "server"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	case ErrTypeDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Sentinel errors for errors.Is checks. They carry no message so that they
// match any ClientError of the same type.
var (
	ErrUnauthorized = &ClientError{Type: ErrTypeUnauthorized}
	ErrNotFound     = &ClientError{Type: ErrTypeNotFound}
	ErrTimeout      = &ClientError{Type: ErrTypeTimeout}
	ErrConnection   = &ClientError{Type: ErrTypeConnection}
)

// =============================================================================
// DECODE ERRORS
// =============================================================================

// DecodeError reports a response body that does not match the endpoint's
// schema.
type DecodeError struct {
	Endpoint string
	Reason   string
	Cause    error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Endpoint, e.Reason, e.Cause)
	}
	return fmt.Sprintf("decode %s: %s", e.Endpoint, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

func decodeErr(endpoint, reason string, cause error) error {
	return &ClientError{
		Type:    ErrTypeDecode,
		Message: "unexpected response from " + endpoint,
		Cause:   &DecodeError{Endpoint: endpoint, Reason: reason, Cause: cause},
	}
}

// =============================================================================
// STATUS MAPPING
// =============================================================================

// statusError converts a non-2xx response into a ClientError. body is the
// (possibly truncated) response body, used for the FastAPI detail message.
func statusError(resp *http.Response, body []byte) error {
	detail := parseDetail(body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &ClientError{Type: ErrTypeUnauthorized, Status: resp.StatusCode, Message: "unauthorized"}
	case resp.StatusCode == http.StatusNotFound:
		msg := "not found"
		if detail != "" {
			msg = detail
		}
		return &ClientError{Type: ErrTypeNotFound, Status: resp.StatusCode, Message: msg}
	default:
		msg := "Network response was not ok (" + resp.Status + ")"
		if detail != "" {
			msg += ": " + detail
		}
		return &ClientError{Type: ErrTypeServer, Status: resp.StatusCode, Message: msg}
	}
}

// parseDetail extracts FastAPI's {"detail": ...}. detail is a string for
// HTTPException and a list of {msg} objects for validation errors.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

// =============================================================================
// HELPERS
// =============================================================================

// AsClientError returns the ClientError in err's chain.
func AsClientError(err error) (*ClientError, bool) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

func errorType(err error) (ErrorType, bool) {
	if ce, ok := AsClientError(err); ok {
		return ce.Type, true
	}
	return ErrTypeUnknown, false
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeUnauthorized
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeNotFound
}

// IsTimeout reports whether err is a client-side timeout.
func IsTimeout(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeTimeout
}

// IsConnection reports whether the backend could not be reached.
func IsConnection(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeConnection
}

// IsDecode reports whether a response failed schema validation.
func IsDecode(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeDecode
}
