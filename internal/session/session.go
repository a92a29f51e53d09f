// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/pocketpaw/pawtui/internal/api"
	"github.com/pocketpaw/pawtui/internal/model"
)

// ErrAuthExpired is returned once in-place re-authentication is exhausted.
// The credential has been wiped and the next EnsureSession bootstraps again.
var ErrAuthExpired = errors.New("session expired")

// Backend is the subset of the API client the session needs.
type Backend interface {
	LoginGuest(ctx context.Context) (*model.Token, error)
	LoginPassword(ctx context.Context, email, password string) (*model.Token, error)
	Me(ctx context.Context) (*model.User, error)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds configuration for the session.
type Config struct {
	// ReauthAttempts is how many guest re-logins Call tries after a 401
	// before giving up. Zero escalates immediately.
	ReauthAttempts int
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{ReauthAttempts: 2}
}

// =============================================================================
// SESSION
// =============================================================================

// bootstrap is one run of the bootstrap algorithm. It is replaced on failure
// and on hard reset so that the next EnsureSession runs again.
type bootstrap struct {
	once sync.Once
	user *model.User
	err  error
}

func doneBootstrap(u *model.User) *bootstrap {
	b := &bootstrap{}
	b.once.Do(func() { b.user = u })
	return b
}

// Session bootstraps and maintains the credential.
type Session struct {
	cred    *Credential
	backend Backend
	config  Config

	mu   sync.Mutex
	boot *bootstrap
	user *model.User

	// reauthMu serializes re-logins so concurrent 401s share one guest login.
	reauthMu sync.Mutex

	onReset func()
}

// New creates a Session. Nothing is sent until EnsureSession.
func New(cred *Credential, backend Backend, cfg Config) *Session {
	if cfg.ReauthAttempts < 0 {
		cfg.ReauthAttempts = 0
	}
	return &Session{
		cred:    cred,
		backend: backend,
		config:  cfg,
		boot:    &bootstrap{},
	}
}

// Credential returns the credential handle.
func (s *Session) Credential() *Credential {
	return s.cred
}

// ReauthAttempts returns the configured re-login budget.
func (s *Session) ReauthAttempts() int {
	return s.config.ReauthAttempts
}

// SetResetCallback sets the function called after a hard reset.
func (s *Session) SetResetCallback(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReset = fn
}

// EnsureSession runs the bootstrap once and returns the signed-in user.
// Concurrent callers wait for the same run. A failed run is forgotten so a
// later call can try again.
func (s *Session) EnsureSession(ctx context.Context) (*model.User, error) {
	s.mu.Lock()
	b := s.boot
	s.mu.Unlock()

	b.once.Do(func() {
		b.user, b.err = s.bootstrap(ctx)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if b.err != nil {
		if s.boot == b {
			s.boot = &bootstrap{}
		}
		return nil, b.err
	}
	if s.boot == b {
		s.user = b.user
	}
	return b.user, nil
}

// bootstrap validates the stored token, falling back to a guest login.
func (s *Session) bootstrap(ctx context.Context) (*model.User, error) {
	if s.cred.Token() != "" {
		u, err := s.backend.Me(ctx)
		if err == nil {
			log.Info().Str("user", u.Email).Msg("stored credential accepted")
			return u, nil
		}
		if !rejectsCredential(err) {
			return nil, errors.Wrap(err, "validate stored credential")
		}
		log.Info().Err(err).Msg("stored credential invalid, falling back to guest")
		// The client may already have dropped the rejected token.
		if s.cred.Token() != "" {
			s.cred.Clear()
		}
	}
	return s.loginGuest(ctx)
}

// rejectsCredential reports whether err came from the backend answering,
// as opposed to the backend being unreachable.
func rejectsCredential(err error) bool {
	return !api.IsConnection(err) && !api.IsTimeout(err) && !errors.Is(err, context.Canceled)
}

func (s *Session) loginGuest(ctx context.Context) (*model.User, error) {
	tok, err := s.backend.LoginGuest(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "guest login")
	}
	if err := s.cred.Set(tok.AccessToken); err != nil {
		return nil, errors.Wrap(err, "persist credential")
	}
	u, err := s.backend.Me(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetch guest identity")
	}
	log.Info().Str("user", u.Email).Msg("signed in as guest")
	return u, nil
}

// Ready reports whether a bootstrap or login has succeeded.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil
}

// User returns the signed-in user, or nil before bootstrap.
func (s *Session) User() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) adopt(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
	s.boot = doneBootstrap(u)
}

// =============================================================================
// RE-AUTHENTICATION
// =============================================================================

// Reauthenticate signs in again as guest after the credential carrying
// rejected was refused. If another caller already replaced that credential
// the newer one is kept.
func (s *Session) Reauthenticate(ctx context.Context, rejected string) (*model.User, error) {
	s.reauthMu.Lock()
	defer s.reauthMu.Unlock()

	if cur := s.cred.Token(); cur != "" && cur != rejected {
		if u := s.User(); u != nil {
			return u, nil
		}
	}

	s.cred.Clear()
	u, err := s.loginGuest(ctx)
	if err != nil {
		return nil, err
	}
	s.adopt(u)
	return u, nil
}

// Invalidate clears the credential after a 401 on a request that carried
// token. Only the first call for a given token has an effect.
func (s *Session) Invalidate(token string) {
	s.cred.Rejected(token)
}

// HardReset wipes the credential and forgets the bootstrap.
func (s *Session) HardReset() {
	s.cred.Clear()

	s.mu.Lock()
	s.user = nil
	s.boot = &bootstrap{}
	fn := s.onReset
	s.mu.Unlock()

	log.Warn().Msg("session reset, credential discarded")
	if fn != nil {
		fn()
	}
}

// Call runs fn and, when it fails with 401, re-authenticates in place and
// retries up to ReauthAttempts times. When that is exhausted the session is
// hard reset and ErrAuthExpired is returned.
func Call[T any](ctx context.Context, s *Session, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		token := s.cred.Token()
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		if !api.IsUnauthorized(err) {
			return zero, err
		}
		if attempt >= s.config.ReauthAttempts {
			s.HardReset()
			return zero, ErrAuthExpired
		}

		log.Info().Int("attempt", attempt+1).Msg("re-authenticating after 401")
		if _, rerr := s.Reauthenticate(ctx, token); rerr != nil {
			log.Warn().Err(rerr).Msg("re-authentication failed")
			s.HardReset()
			return zero, ErrAuthExpired
		}
	}
}

// Do is Call for operations without a result.
func Do(ctx context.Context, s *Session, fn func(context.Context) error) error {
	_, err := Call(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

// Login adopts an explicit token after checking it with the backend.
func (s *Session) Login(ctx context.Context, token string) (*model.User, error) {
	if err := s.cred.Set(token); err != nil {
		return nil, errors.Wrap(err, "persist credential")
	}
	u, err := s.backend.Me(ctx)
	if err != nil {
		s.cred.Clear()
		return nil, errors.Wrap(err, "validate token")
	}
	s.adopt(u)
	log.Info().Str("user", u.Email).Msg("signed in")
	return u, nil
}

// LoginPassword signs in with email and password.
func (s *Session) LoginPassword(ctx context.Context, email, password string) (*model.User, error) {
	tok, err := s.backend.LoginPassword(ctx, email, password)
	if err != nil {
		return nil, errors.Wrap(err, "password login")
	}
	return s.Login(ctx, tok.AccessToken)
}

// Logout does nothing: pawtui runs in single-user mode and the guest
// credential is kept.
func (s *Session) Logout() {
	log.Info().Msg("logout is a no-op in single-user mode")
}
