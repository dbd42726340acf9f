package credentials

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrKeyringNotAvailable is returned when no OS keyring can be reached
// (for example a headless container without a Secret Service).
var ErrKeyringNotAvailable = errors.New("system keyring not available")

// ErrNotFound is returned when the keyring has no entry.
var ErrNotFound = errors.New("credential not found")

// MockKeyring is a test implementation of the Keyring interface
type MockKeyring struct {
	mu    sync.RWMutex
	store map[string]map[string]string // service -> account -> token
	err   error
}

// NewMockKeyring creates a new mock keyring for testing
func NewMockKeyring() *MockKeyring {
	return &MockKeyring{
		store: make(map[string]map[string]string),
	}
}

// FailWith makes every later call return err.
func (m *MockKeyring) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Set stores a token in the mock keyring
func (m *MockKeyring) Set(service, account, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	if m.store[service] == nil {
		m.store[service] = make(map[string]string)
	}
	m.store[service][account] = password
	return nil
}

// Get retrieves a token from the mock keyring
func (m *MockKeyring) Get(service, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return "", m.err
	}

	if accounts, ok := m.store[service]; ok {
		if password, ok := accounts[account]; ok {
			return password, nil
		}
	}
	return "", fmt.Errorf("%s/%s: %w", service, account, ErrNotFound)
}

// Delete removes a token from the mock keyring
func (m *MockKeyring) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	if accounts, ok := m.store[service]; ok {
		if _, ok := accounts[account]; ok {
			delete(accounts, account)
			return nil
		}
	}
	return fmt.Errorf("%s/%s: %w", service, account, ErrNotFound)
}

// systemKeyring is the real keyring implementation using the OS keyring
type systemKeyring struct{}

func (s *systemKeyring) Set(service, account, password string) error {
	return wrapKeyringError(keyring.Set(service, account, password))
}

func (s *systemKeyring) Get(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	return secret, wrapKeyringError(err)
}

func (s *systemKeyring) Delete(service, account string) error {
	return wrapKeyringError(keyring.Delete(service, account))
}

// wrapKeyringError maps go-keyring errors onto this package's sentinels
func wrapKeyringError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, keyring.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, keyring.ErrUnsupportedPlatform):
		return ErrKeyringNotAvailable
	}
	// D-Bus/Secret Service failures surface as plain errors
	return fmt.Errorf("%w: %v", ErrKeyringNotAvailable, err)
}
