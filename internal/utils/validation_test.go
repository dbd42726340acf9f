package utils

import (
	"errors"
	"strings"
	"testing"
	"time"

	"taskdeck/backend"
)

// =============================================================================
// Date Parsing Tests
// =============================================================================

func TestParseDateFlagAt(t *testing.T) {
	now := time.Date(2026, 1, 31, 15, 4, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"today", time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)},
		{"tomorrow", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"yesterday", time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)},
		{"+7d", time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)},
		{"-3d", time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)},
		{"+2w", time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)},
		{"2026-03-05", time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseDateFlagAt(tt.in, now)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseDateFlagEmpty(t *testing.T) {
	got, err := ParseDateFlag("")
	if got != nil || err != nil {
		t.Errorf("empty should be nil, nil; got %v, %v", got, err)
	}
}

func TestParseDateFlagInvalid(t *testing.T) {
	for _, in := range []string{"2026-13-01", "next week", "+3y"} {
		_, err := ParseDateFlag(in)
		var ews *ErrorWithSuggestion
		if !errors.As(err, &ews) {
			t.Errorf("%q: expected ErrorWithSuggestion, got %v", in, err)
		}
	}
}

func TestValidateDateRange(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := a.AddDate(0, 0, 1)

	if err := ValidateDateRange(&a, &b); err != nil {
		t.Errorf("valid range rejected: %v", err)
	}
	if err := ValidateDateRange(&a, &a); err != nil {
		t.Errorf("same day rejected: %v", err)
	}
	if err := ValidateDateRange(&b, &a); err == nil {
		t.Error("start after end accepted")
	}
	if err := ValidateDateRange(nil, &a); err != nil {
		t.Errorf("nil start rejected: %v", err)
	}
}

// =============================================================================
// Task Name Tests
// =============================================================================

func TestValidateTaskName(t *testing.T) {
	if got, err := ValidateTaskName("  Write report \n"); err != nil || got != "Write report" {
		t.Errorf("got %q, %v", got, err)
	}
	if _, err := ValidateTaskName("   "); !errors.Is(err, ErrEmptyTaskName) {
		t.Errorf("expected ErrEmptyTaskName, got %v", err)
	}
	if _, err := ValidateTaskName(strings.Repeat("x", MaxTaskNameLength+1)); err == nil {
		t.Error("overlong name accepted")
	}
}

// =============================================================================
// Task Input Tests
// =============================================================================

func TestValidateTaskInput(t *testing.T) {
	refs := TaskRefs{
		Tasks: []backend.Task{
			{ID: 1, Name: "parent"},
			{ID: 2, Name: "child", ParentTaskID: 1},
		},
		Statuses:   []backend.Status{{ID: 1, Name: "Done"}, {ID: 2, Name: "To Do"}},
		Priorities: []backend.Priority{{ID: 1, Name: "High"}},
	}
	d1 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 2)

	name, err := ValidateTaskInput(TaskInput{Name: " ok ", StartTime: d1, EndTime: d2, ParentID: 1, StatusID: 2, PriorityID: 1}, refs)
	if err != nil || name != "ok" {
		t.Fatalf("valid input rejected: %q, %v", name, err)
	}

	tests := []struct {
		name string
		in   TaskInput
		is   error
	}{
		{"empty name", TaskInput{Name: ""}, ErrEmptyTaskName},
		{"nested subtask", TaskInput{Name: "x", ParentID: 2}, ErrNestedSubtask},
		{"end before start", TaskInput{Name: "x", StartTime: d2, EndTime: d1}, nil},
		{"missing parent", TaskInput{Name: "x", ParentID: 99}, nil},
		{"unknown status", TaskInput{Name: "x", StatusID: 7}, nil},
		{"unknown priority", TaskInput{Name: "x", PriorityID: 7}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateTaskInput(tt.in, refs)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("expected %v, got %v", tt.is, err)
			}
		})
	}

	// without reference data only the local checks run
	if _, err := ValidateTaskInput(TaskInput{Name: "x", ParentID: 99, StatusID: 7}, TaskRefs{}); err != nil {
		t.Errorf("empty refs should skip lookups: %v", err)
	}
}
