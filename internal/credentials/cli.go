package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Verifier checks a token against the server.
type Verifier func(ctx context.Context, token string) error

// CLIHandler handles CLI commands for credential management
type CLIHandler struct {
	manager *Manager
	stdin   io.Reader
	stdout  io.Writer
	tty     TerminalReader
}

// NewCLIHandler creates a new CLI handler for credential commands.
// tty may be nil, in which case the token is read from stdin.
func NewCLIHandler(manager *Manager, stdin io.Reader, stdout io.Writer, tty TerminalReader) *CLIHandler {
	return &CLIHandler{
		manager: manager,
		stdin:   stdin,
		stdout:  stdout,
		tty:     tty,
	}
}

// Set prompts for a token and stores it in the keyring
func (h *CLIHandler) Set(ctx context.Context, server, account string) error {
	token, err := PromptPasswordWithTTY(h.stdin, h.stdout, NormalizeServer(server), account, h.tty)
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	if err := h.manager.Set(ctx, server, account, token); err != nil {
		if errors.Is(err, ErrKeyringNotAvailable) {
			return keyringNotAvailableError()
		}
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	_, _ = fmt.Fprintf(h.stdout, "Token stored in system keyring\n")
	return nil
}

// keyringNotAvailableError returns a helpful error message when keyring is not available
func keyringNotAvailableError() error {
	msg := fmt.Sprintf(`System keyring not available.

Alternative: set the token in the environment instead:
  export %s="your-api-token"

Run 'taskdeck credentials get' to verify the token is detected.
`, EnvToken)

	return errors.New(msg)
}

// Get prints where the token comes from. When verify is non-nil the token
// is also checked against the server.
func (h *CLIHandler) Get(ctx context.Context, server, account string, jsonOutput bool, verify Verifier) error {
	info, err := h.manager.Get(ctx, server, account)
	if err != nil {
		return fmt.Errorf("failed to get credentials: %w", err)
	}

	if jsonOutput {
		jsonBytes, err := info.JSON()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(h.stdout, string(jsonBytes))
	} else {
		h.outputGetText(info)
	}

	if verify == nil || !info.Found {
		return nil
	}
	if err := verify(ctx, info.Token); err != nil {
		return fmt.Errorf("token rejected: %w", err)
	}
	if !jsonOutput {
		_, _ = fmt.Fprintf(h.stdout, "Verified: session valid\n")
	}
	return nil
}

// outputGetText outputs credential info as text
func (h *CLIHandler) outputGetText(info *CredentialInfo) {
	if !info.Found {
		_, _ = fmt.Fprintf(h.stdout, "No token found for %s/%s\n", info.Server, info.Account)
		_, _ = fmt.Fprintf(h.stdout, "Searched:\n")
		_, _ = fmt.Fprintf(h.stdout, "  - System keyring: Not found\n")
		_, _ = fmt.Fprintf(h.stdout, "  - Environment variable %s: Not set\n", EnvToken)
		_, _ = fmt.Fprintf(h.stdout, "\nSuggestion: Run 'taskdeck credentials set'\n")
		return
	}

	_, _ = fmt.Fprintf(h.stdout, "Source: %s\n", info.Source)
	_, _ = fmt.Fprintf(h.stdout, "Server: %s\n", info.Server)
	_, _ = fmt.Fprintf(h.stdout, "Account: %s\n", info.Account)
	_, _ = fmt.Fprintf(h.stdout, "Token: ******** (hidden)\n")
}

// Delete removes the token from the keyring
func (h *CLIHandler) Delete(ctx context.Context, server, account string) error {
	if err := h.manager.Delete(ctx, server, account); err != nil {
		if errors.Is(err, ErrKeyringNotAvailable) {
			return keyringNotAvailableError()
		}
		return fmt.Errorf("failed to delete credentials: %w", err)
	}

	_, _ = fmt.Fprintf(h.stdout, "Token removed from system keyring\n")
	return nil
}
