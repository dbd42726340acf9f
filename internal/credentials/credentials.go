// Package credentials stores the API token in the OS keyring, with the
// TASKDECK_TOKEN environment variable as a fallback, and hands it to the
// REST client through a Session.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// EnvToken is the environment variable read when the keyring has no token.
const EnvToken = "TASKDECK_TOKEN"

// Source indicates where credentials were retrieved from
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
	SourceNone        Source = "none"
)

// CredentialInfo contains credential information returned by Get()
type CredentialInfo struct {
	Source  Source // Where the token came from
	Server  string // Normalized server name (host[:port])
	Account string // Account identifier
	Token   string // Token (never printed)
	Found   bool   // Whether a token was found
}

// JSON serializes the credential info to JSON (token excluded)
func (c *CredentialInfo) JSON() ([]byte, error) {
	output := struct {
		Server  string `json:"server"`
		Account string `json:"account"`
		Source  string `json:"source"`
		Found   bool   `json:"found"`
	}{
		Server:  c.Server,
		Account: c.Account,
		Source:  string(c.Source),
		Found:   c.Found,
	}
	return json.Marshal(output)
}

// Keyring is the interface for keyring operations
type Keyring interface {
	Set(service, account, password string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Manager handles credential operations
type Manager struct {
	keyring Keyring
	getenv  func(string) string
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithKeyring sets a custom keyring implementation
func WithKeyring(k Keyring) ManagerOption {
	return func(m *Manager) {
		m.keyring = k
	}
}

// WithGetenv replaces the environment lookup.
func WithGetenv(fn func(string) string) ManagerOption {
	return func(m *Manager) {
		m.getenv = fn
	}
}

// NewManager creates a new credential manager
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		keyring: &systemKeyring{},
		getenv:  os.Getenv,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NormalizeServer reduces a base URL or host to the lowercase host[:port]
// used in keyring service names.
func NormalizeServer(server string) string {
	server = strings.TrimSpace(server)
	if u, err := url.Parse(server); err == nil && u.Host != "" {
		server = u.Host
	}
	return strings.ToLower(strings.TrimSuffix(server, "/"))
}

// serviceName returns the keyring service name for a server
func serviceName(server string) string {
	return fmt.Sprintf("taskdeck-%s", NormalizeServer(server))
}

// Set stores a token in the keyring
func (m *Manager) Set(ctx context.Context, server, account, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token cannot be empty")
	}
	return m.keyring.Set(serviceName(server), account, token)
}

// Get retrieves the token from available sources (keyring first, then env)
func (m *Manager) Get(ctx context.Context, server, account string) (*CredentialInfo, error) {
	info := &CredentialInfo{
		Source:  SourceNone,
		Server:  NormalizeServer(server),
		Account: account,
	}

	token, err := m.keyring.Get(serviceName(server), account)
	if err == nil && token != "" {
		info.Source = SourceKeyring
		info.Token = token
		info.Found = true
		return info, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrKeyringNotAvailable) {
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}

	if token := strings.TrimSpace(m.getenv(EnvToken)); token != "" {
		info.Source = SourceEnvironment
		info.Token = token
		info.Found = true
	}
	return info, nil
}

// Delete removes the token from the keyring
func (m *Manager) Delete(ctx context.Context, server, account string) error {
	err := m.keyring.Delete(serviceName(server), account)
	// Idempotent: return nil if not found
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
