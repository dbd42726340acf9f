package credentials

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// TerminalReader reads a secret without echoing it.
type TerminalReader interface {
	ReadPassword() (string, error)
}

type ttyReader struct {
	fd int
}

func (r *ttyReader) ReadPassword() (string, error) {
	b, err := term.ReadPassword(r.fd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// StdinTerminal returns a TerminalReader for stdin, or nil when stdin is
// not a terminal.
func StdinTerminal() TerminalReader {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	return &ttyReader{fd: fd}
}

// PromptPassword prompts for a token and reads one line from reader
func PromptPassword(reader io.Reader, writer io.Writer, server, account string) (string, error) {
	return PromptPasswordWithTTY(reader, writer, server, account, nil)
}

// PromptPasswordWithTTY prompts for a token, reading it through tty with
// echo disabled when tty is non-nil and from reader otherwise (piped input).
func PromptPasswordWithTTY(reader io.Reader, writer io.Writer, server, account string, tty TerminalReader) (string, error) {
	_, _ = fmt.Fprintf(writer, "Enter API token for %s (account: %s): ", server, account)

	if tty != nil {
		token, err := tty.ReadPassword()
		_, _ = fmt.Fprintln(writer)
		return token, err
	}

	scanner := bufio.NewScanner(reader)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no input received")
}
