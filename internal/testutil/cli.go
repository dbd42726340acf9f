// Package testutil provides shared test utilities: a mock task server and a
// CLI harness that runs commands against it in isolation.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskdeck/cmd/taskdeck/cmd"
	"taskdeck/internal/credentials"
)

// CLITest provides a test helper for running CLI commands in isolation.
type CLITest struct {
	t          *testing.T
	Server     *MockServer
	Keyring    *credentials.MockKeyring
	cfg        *cmd.Config
	tmpDir     string
	configPath string
	env        map[string]string
	stdin      string
}

// NewCLITest creates a CLI harness wired to a fresh mock server. The token
// comes from TASKDECK_TOKEN; the keyring starts empty.
func NewCLITest(t *testing.T) *CLITest {
	t.Helper()

	tmpDir := t.TempDir()
	c := &CLITest{
		t:          t,
		Server:     NewMockServer(t),
		Keyring:    credentials.NewMockKeyring(),
		tmpDir:     tmpDir,
		configPath: filepath.Join(tmpDir, "config.yaml"),
		env:        map[string]string{credentials.EnvToken: DefaultToken},
	}
	c.cfg = &cmd.Config{
		ConfigPath: c.configPath,
		DBPath:     filepath.Join(tmpDir, "taskdeck.db"),
		Keyring:    c.Keyring,
		Getenv:     func(k string) string { return c.env[k] },
		Now:        func() time.Time { return time.Date(2026, time.October, 15, 9, 0, 0, 0, time.Local) },
	}
	c.SetFullConfig("server:\n  base_url: \"" + c.Server.URL() + "\"\n  max_retries: 0\nlogging:\n  background_enabled: false\n")
	return c
}

// Config returns the process config passed to cmd.Execute.
func (c *CLITest) Config() *cmd.Config {
	return c.cfg
}

// TmpDir returns the temporary directory for this test.
func (c *CLITest) TmpDir() string {
	return c.tmpDir
}

// ConfigPath returns the path to the config file.
func (c *CLITest) ConfigPath() string {
	return c.configPath
}

// DBPath returns the path to the local store.
func (c *CLITest) DBPath() string {
	return c.cfg.DBPath
}

// SetEnv sets a variable seen by the credential lookup. An empty value unsets it.
func (c *CLITest) SetEnv(key, value string) {
	if value == "" {
		delete(c.env, key)
		return
	}
	c.env[key] = value
}

// SetStdin sets the input for the next commands.
func (c *CLITest) SetStdin(input string) {
	c.stdin = input
}

// SetFullConfig replaces the config file contents.
func (c *CLITest) SetFullConfig(yamlContent string) {
	c.t.Helper()
	if err := os.WriteFile(c.configPath, []byte(yamlContent), 0644); err != nil {
		c.t.Fatalf("failed to write config: %v", err)
	}
}

// Execute runs a CLI command and returns stdout, stderr, and exit code.
func (c *CLITest) Execute(args ...string) (stdout, stderr string, exitCode int) {
	c.t.Helper()
	var outBuf, errBuf bytes.Buffer
	c.cfg.Stdin = strings.NewReader(c.stdin)
	exitCode = cmd.Execute(args, &outBuf, &errBuf, c.cfg)
	return outBuf.String(), errBuf.String(), exitCode
}

// MustExecute runs a CLI command and fails the test if it returns non-zero exit code.
func (c *CLITest) MustExecute(args ...string) string {
	c.t.Helper()
	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode != 0 {
		c.t.Fatalf("command %v failed with exit code %d\nstdout: %s\nstderr: %s", args, exitCode, stdout, stderr)
	}
	return stdout
}

// ExecuteAndFail runs a CLI command and fails the test if it succeeds.
func (c *CLITest) ExecuteAndFail(args ...string) (stdout, stderr string) {
	c.t.Helper()
	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode == 0 {
		c.t.Fatalf("command %v should have failed but succeeded\nstdout: %s", args, stdout)
	}
	return stdout, stderr
}

// AssertContains checks if output contains expected string.
func AssertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, output)
	}
}

// AssertNotContains checks if output does not contain unexpected string.
func AssertNotContains(t *testing.T, output, unexpected string) {
	t.Helper()
	if strings.Contains(output, unexpected) {
		t.Errorf("expected output NOT to contain %q, got:\n%s", unexpected, output)
	}
}

// AssertExitCode checks if exit code matches expected.
func AssertExitCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("expected exit code %d, got %d", want, got)
	}
}
