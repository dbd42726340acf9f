package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"taskdeck/backend"
)

// MaxTaskNameLength is the longest task name accepted.
const MaxTaskNameLength = 255

// relativePattern matches relative date formats like +7d, -3d, +2w, +1m
var relativePattern = regexp.MustCompile(`^([+-])(\d+)([dwm])$`)

// parseRelativeDate parses relative date strings like "today", "tomorrow", "yesterday", "+7d", "-3d", "+2w", "+1m".
// Returns nil if the string is not a relative date format.
func parseRelativeDate(dateStr string, now time.Time) (*time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	lower := strings.ToLower(dateStr)

	switch lower {
	case "today":
		return &today, nil
	case "tomorrow":
		t := today.AddDate(0, 0, 1)
		return &t, nil
	case "yesterday":
		t := today.AddDate(0, 0, -1)
		return &t, nil
	}

	matches := relativePattern.FindStringSubmatch(lower)
	if matches == nil {
		return nil, nil // Not a relative format
	}

	num, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, ErrInvalidDate(dateStr)
	}
	if matches[1] == "-" {
		num = -num
	}

	var result time.Time
	switch matches[3] {
	case "d":
		result = today.AddDate(0, 0, num)
	case "w":
		result = today.AddDate(0, 0, num*7)
	case "m":
		result = today.AddDate(0, num, 0)
	}

	return &result, nil
}

// ParseDateFlag parses a date string supporting both relative and absolute formats.
// Supported relative formats: today, tomorrow, yesterday, +Nd, -Nd, +Nw, +Nm
// Supported absolute format: YYYY-MM-DD
// Returns nil, nil for empty string (unset date).
func ParseDateFlag(dateStr string) (*time.Time, error) {
	return ParseDateFlagAt(dateStr, time.Now())
}

// ParseDateFlagAt is ParseDateFlag relative to now.
func ParseDateFlagAt(dateStr string, now time.Time) (*time.Time, error) {
	if dateStr == "" {
		return nil, nil
	}

	t, err := parseRelativeDate(dateStr, now)
	if err != nil {
		return nil, err
	}
	if t != nil {
		return t, nil
	}

	parsed, err := time.ParseInLocation("2006-01-02", dateStr, now.Location())
	if err != nil {
		return nil, ErrInvalidDate(dateStr)
	}
	return &parsed, nil
}

// ValidateDateRange validates that start date is not after the end date.
// Nil dates are considered valid.
func ValidateDateRange(start, end *time.Time) error {
	if start == nil || end == nil {
		return nil
	}
	if start.After(*end) {
		return errors.New("start date cannot be after end date")
	}
	return nil
}

// ValidateTaskName trims name and rejects blank or overlong names.
func ValidateTaskName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyTaskName
	}
	if utf8.RuneCountInString(name) > MaxTaskNameLength {
		return "", errors.New("task name is too long")
	}
	return name, nil
}

// ErrNestedSubtask is returned when a subtask would hang under another subtask.
var ErrNestedSubtask = errors.New("subtasks cannot have subtasks")

// TaskInput is what a create or update form submits.
type TaskInput struct {
	Name       string
	StartTime  time.Time
	EndTime    time.Time
	ParentID   int64
	StatusID   int64
	PriorityID int64
}

// TaskRefs is the reference data ValidateTaskInput checks against. Empty
// slices skip the corresponding check.
type TaskRefs struct {
	Tasks      []backend.Task
	Statuses   []backend.Status
	Priorities []backend.Priority
}

// ValidateTaskInput checks a task before it is sent and returns the trimmed name.
func ValidateTaskInput(in TaskInput, refs TaskRefs) (string, error) {
	name, err := ValidateTaskName(in.Name)
	if err != nil {
		return "", err
	}

	if !in.StartTime.IsZero() && !in.EndTime.IsZero() {
		if err := ValidateDateRange(&in.StartTime, &in.EndTime); err != nil {
			return "", err
		}
	}

	if in.ParentID != 0 && len(refs.Tasks) > 0 {
		parent := backend.FindTask(refs.Tasks, in.ParentID)
		if parent == nil {
			return "", ErrTaskNotFound(in.ParentID)
		}
		if parent.IsSubtask() {
			return "", ErrNestedSubtask
		}
	}

	if in.StatusID != 0 && len(refs.Statuses) > 0 {
		var valid []string
		found := false
		for _, s := range refs.Statuses {
			valid = append(valid, s.Name)
			found = found || s.ID == in.StatusID
		}
		if !found {
			return "", ErrInvalidStatus(strconv.FormatInt(in.StatusID, 10), valid)
		}
	}

	if in.PriorityID != 0 && len(refs.Priorities) > 0 {
		var valid []string
		found := false
		for _, p := range refs.Priorities {
			valid = append(valid, fmt.Sprintf("%d (%s)", p.ID, p.Name))
			found = found || p.ID == in.PriorityID
		}
		if !found {
			return "", ErrInvalidPriority(strconv.FormatInt(in.PriorityID, 10), valid)
		}
	}

	return name, nil
}
