// Package session implements the session manager (C2, §4.2): it
// acquires, verifies, persists, and refreshes the credential used to
// authenticate every outbound call.
package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vidcrawl/vidcrawl/internal/apperrors"
	"github.com/vidcrawl/vidcrawl/internal/transport"
)

// Credential is the opaque session token set acquired from the remote
// service. The core never interprets its fields; only the adapter
// (e.g. internal/remote/bilivideo) knows their meaning.
type Credential map[string]string

// Headers returns the credential's fields as HTTP headers/cookies,
// passed to Transport.SetSessionHeaders. The default mapping treats every field as a
// cookie pair; adapters that need bespoke header names can bypass
// this by calling Transport.SetSessionHeaders directly.
func (c Credential) Headers() map[string]string {
	if len(c) == 0 {
		return nil
	}
	cookie := ""
	for k, v := range c {
		if cookie != "" {
			cookie += "; "
		}
		cookie += k + "=" + v
	}
	return map[string]string{"Cookie": cookie}
}

// Authenticator is the out-of-band interactive login capability
// delegated to the outer system (§1 Out of scope: "Credential
// acquisition via scanning a login prompt"), plus the lightweight
// probe used by Verify (§6 "Verify session").
type Authenticator interface {
	Authenticate(ctx context.Context) (Credential, error)
	VerifySession(ctx context.Context, cred Credential) (bool, error)
}

// Store persists and loads the credential document (§4.2 save/load).
type Store interface {
	Save(cred Credential) error
	Load() (Credential, bool, error)
}

// Manager implements the session manager operations of §4.2.
type Manager struct {
	auth      Authenticator
	store     Store
	transport *transport.Transport
	logger    *zap.Logger

	maxRetries int
	baseDelay  time.Duration

	precheckHosts   []string
	precheckTimeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetryPolicy overrides the default re-auth retry policy.
func WithRetryPolicy(maxRetries int, baseDelay time.Duration) Option {
	return func(m *Manager) {
		m.maxRetries = maxRetries
		m.baseDelay = baseDelay
	}
}

// WithPrecheck configures the network pre-check §4.2 runs before any
// login attempt. An empty hosts list disables the pre-check.
func WithPrecheck(hosts []string, timeout time.Duration) Option {
	return func(m *Manager) {
		m.precheckHosts = hosts
		m.precheckTimeout = timeout
	}
}

// New builds a session Manager.
func New(auth Authenticator, store Store, tr *transport.Transport, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		auth:       auth,
		store:      store,
		transport:  tr,
		logger:     logger.Named("session"),
		maxRetries: 3,
		baseDelay:  time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login implements §4.2's login(force) → Credential.
func (m *Manager) Login(ctx context.Context, force bool) (Credential, error) {
	if err := transport.PreflightHosts(ctx, m.precheckHosts, m.precheckTimeout); err != nil {
		return nil, err
	}

	if !force {
		if cred, ok, err := m.store.Load(); err != nil {
			m.logger.Warn("failed to load persisted credential", zap.Error(err))
		} else if ok {
			valid, err := m.Verify(ctx, cred)
			if err == nil && valid {
				m.applyHeaders(cred)
				return cred, nil
			}
			m.logger.Info("persisted credential failed verification, discarding")
		}
	}

	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		if attempt > 0 {
			delay := m.baseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, apperrors.Wrap(apperrors.KindNetworkUnavailable, "login aborted", ctx.Err())
			}
		}

		cred, err := m.auth.Authenticate(ctx)
		if err != nil {
			lastErr = err
			m.logger.Warn("authentication attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		if err := m.Save(cred); err != nil {
			m.logger.Warn("failed to persist new credential", zap.Error(err))
		}
		m.applyHeaders(cred)
		return cred, nil
	}

	return nil, apperrors.Wrap(apperrors.KindAuthExpired, "login failed after retries", lastErr)
}

// Verify implements §4.2's verify(credential) → bool.
func (m *Manager) Verify(ctx context.Context, cred Credential) (bool, error) {
	return m.auth.VerifySession(ctx, cred)
}

// Save implements §4.2's save(credential).
func (m *Manager) Save(cred Credential) error {
	return m.store.Save(cred)
}

// Load implements §4.2's load() → Option<Credential>.
func (m *Manager) Load() (Credential, bool, error) {
	return m.store.Load()
}

func (m *Manager) applyHeaders(cred Credential) {
	if m.transport != nil {
		m.transport.SetSessionHeaders(cred.Headers())
	}
}
