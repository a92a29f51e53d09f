// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/pkg/errors"

	"github.com/pocketpaw/pawtui/internal/api"
	"github.com/pocketpaw/pawtui/internal/session"
)

// =============================================================================
// SINK
// =============================================================================

// Sink receives the events of one turn, in order, from the runner's
// goroutine. Exactly one of OnDone, OnError or OnAuthExpired ends the turn.
type Sink interface {
	OnStart(t *Turn)
	OnFragment(t *Turn, fragment string)
	OnDone(t *Turn)
	OnError(t *Turn, err error)
	OnAuthExpired(t *Turn)
}

// ControllerSink applies events directly to a controller. Use it when the
// runner is called on the controller's own goroutine, as the REPL does.
type ControllerSink struct {
	Controller *Controller

	// Optional hooks run after each event is applied.
	Fragment    func(fragment string)
	Done        func(refresh bool)
	Failed      func(err error)
	AuthExpired func()
}

func (s *ControllerSink) OnStart(t *Turn) {
	s.Controller.Begin(t)
}

func (s *ControllerSink) OnFragment(t *Turn, fragment string) {
	if s.Controller.Append(t, fragment) == nil && s.Fragment != nil {
		s.Fragment(fragment)
	}
}

func (s *ControllerSink) OnDone(t *Turn) {
	refresh, err := s.Controller.Complete(t)
	if err == nil && s.Done != nil {
		s.Done(refresh)
	}
}

func (s *ControllerSink) OnError(t *Turn, err error) {
	if s.Controller.Fail(t, err) == nil && s.Failed != nil {
		s.Failed(err)
	}
}

func (s *ControllerSink) OnAuthExpired(t *Turn) {
	if s.Controller.Expire(t) == nil && s.AuthExpired != nil {
		s.AuthExpired()
	}
}

// =============================================================================
// RUNNER
// =============================================================================

// Runner streams turns through a Service.
type Runner struct {
	svc *Service
}

// NewRunner creates a runner.
func NewRunner(svc *Service) *Runner {
	return &Runner{svc: svc}
}

// Run sends t and reports progress to sink. It blocks until the stream ends.
// OnStart is sent once the reply starts, which for an empty reply is just
// before OnDone.
func (r *Runner) Run(ctx context.Context, t *Turn, sink Sink) {
	started := false
	start := func() {
		if !started {
			started = true
			sink.OnStart(t)
		}
	}

	req := api.ChatRequest{
		Messages:       t.History,
		Stream:         true,
		ConversationID: t.ConversationID,
		Model:          t.Model,
	}

	err := r.svc.Stream(ctx, req, func(fragment string) {
		start()
		sink.OnFragment(t, fragment)
	})

	switch {
	case err == nil:
		start()
		sink.OnDone(t)
	case errors.Is(err, session.ErrAuthExpired), r.svc.sess == nil && api.IsUnauthorized(err):
		sink.OnAuthExpired(t)
	default:
		sink.OnError(t, err)
	}
}
