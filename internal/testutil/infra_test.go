// infra_test.go checks the shared test infrastructure and project files the
// tests rely on.
package testutil

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"testing"

	"taskdeck/backend"
	"taskdeck/internal/config"
)

// getProjectRoot returns the project root directory.
func getProjectRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to get test file path")
	}
	// Navigate from internal/testutil/ to project root
	return filepath.Join(filepath.Dir(filename), "..", "..")
}

// =============================================================================
// Project files
// =============================================================================

// TestMigrationsAreSequential verifies the store migrations are numbered
// without gaps and carry goose annotations.
func TestMigrationsAreSequential(t *testing.T) {
	dir := filepath.Join(getProjectRoot(t), "internal", "store", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read migrations: %v", err)
	}

	name := regexp.MustCompile(`^(\d{5})_[a-z0-9_]+\.sql$`)
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		t.Fatal("no migrations found")
	}

	for i, f := range files {
		m := name.FindStringSubmatch(f)
		if m == nil {
			t.Errorf("migration %s does not match NNNNN_name.sql", f)
			continue
		}
		if want := fmt.Sprintf("%05d", i+1); m[1] != want {
			t.Errorf("migration %s: expected sequence %s", f, want)
		}
		content, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			t.Fatalf("failed to read %s: %v", f, err)
		}
		if !strings.Contains(string(content), "-- +goose Up") {
			t.Errorf("migration %s is missing the goose Up annotation", f)
		}
	}
}

// TestSampleConfigIsValid verifies the embedded sample parses and validates.
func TestSampleConfigIsValid(t *testing.T) {
	cfg, err := config.Parse([]byte(config.GetSampleConfig()))
	if err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("sample config is invalid: %v", err)
	}
}

// =============================================================================
// Mock server
// =============================================================================

func TestMockServerRejectsWrongToken(t *testing.T) {
	m := NewMockServer(t)

	req, _ := http.NewRequest(http.MethodGet, m.URL()+"/tasks", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMockServerFailWith(t *testing.T) {
	m := NewMockServer(t)
	m.FailWith(http.MethodGet, "/statuses", http.StatusServiceUnavailable, "maintenance")

	req, _ := http.NewRequest(http.MethodGet, m.URL()+"/statuses", nil)
	req.Header.Set("Authorization", "Bearer "+DefaultToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if n := m.CountRequests("GET /statuses"); n != 1 {
		t.Errorf("CountRequests = %d, want 1", n)
	}

	m.ClearFailures()
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status after ClearFailures = %d, want 200", resp.StatusCode)
	}
}

func TestMockServerAddTaskAssignsIDs(t *testing.T) {
	m := NewMockServer(t)
	first := m.AddTask(backend.Task{Name: "a"})
	second := m.AddTask(backend.Task{Name: "b"})
	if first == 0 || second == first {
		t.Errorf("ids = %d, %d", first, second)
	}
	if got, ok := m.Task(second); !ok || got.Name != "b" {
		t.Errorf("Task(%d) = %+v, %v", second, got, ok)
	}
}

// =============================================================================
// CLI harness
// =============================================================================

func TestCLITestIsolation(t *testing.T) {
	c := NewCLITest(t)
	if !strings.HasPrefix(c.DBPath(), c.TmpDir()) {
		t.Errorf("store %s is outside the temp dir", c.DBPath())
	}
	data, err := os.ReadFile(c.ConfigPath())
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	AssertContains(t, string(data), c.Server.URL())
}
