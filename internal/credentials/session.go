package credentials

import (
	"context"
	"errors"
	"sync"
)

// ErrNoToken is returned by Session.Token when no credential is stored.
var ErrNoToken = errors.New("no API token configured")

// Session supplies the token to the REST client. It caches the token after
// the first lookup and drops it when the server rejects it.
type Session struct {
	manager *Manager
	server  string
	account string

	mu      sync.Mutex
	token   string
	loaded  bool
	invalid bool
}

// NewSession returns a session for one server account.
func NewSession(m *Manager, server, account string) *Session {
	return &Session{manager: m, server: server, account: account}
}

// Token returns the cached token, loading it on first use.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalid {
		return "", ErrNoToken
	}
	if !s.loaded {
		info, err := s.manager.Get(ctx, s.server, s.account)
		if err != nil {
			return "", err
		}
		s.token = info.Token
		s.loaded = true
	}
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

// HasCredential reports whether a usable token is available.
func (s *Session) HasCredential() bool {
	_, err := s.Token(context.Background())
	return err == nil
}

// Invalidate forgets the token after the server rejected it. Later calls
// fail with ErrNoToken until Reload.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.invalid = true
}

// Reload discards the cached token so the next call reads storage again.
func (s *Session) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.loaded = false
	s.invalid = false
}
