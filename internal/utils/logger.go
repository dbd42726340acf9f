package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level orders log messages; Debug is only written in verbose mode.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// Logger provides leveled logging with verbose mode support.
type Logger struct {
	mu      sync.RWMutex
	verbose bool
	out     io.Writer
}

var (
	loggerInstance *Logger
	once           sync.Once
)

// GetLogger returns the singleton logger instance.
func GetLogger() *Logger {
	once.Do(func() {
		loggerInstance = &Logger{out: os.Stderr}
	})
	return loggerInstance
}

// SetVerboseMode sets the verbose mode globally.
func SetVerboseMode(verbose bool) {
	GetLogger().SetVerbose(verbose)
}

// SetVerbose sets the verbose mode for this logger instance.
func (l *Logger) SetVerbose(verbose bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = verbose
}

// IsVerbose returns whether verbose mode is enabled.
func (l *Logger) IsVerbose() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// SetOutput redirects log output and returns a func restoring the previous
// writer. The TUI points this at the background log while it owns the terminal.
func (l *Logger) SetOutput(w io.Writer) (restore func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.out
	l.out = w
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.out = prev
	}
}

// Log writes one line at level. Debug lines carry a timestamp.
func (l *Logger) Log(level Level, msgOrFormat string, args ...any) {
	l.mu.RLock()
	out, verbose := l.out, l.verbose
	l.mu.RUnlock()

	if level == LevelDebug && !verbose {
		return
	}
	msg := msgOrFormat
	if len(args) > 0 {
		msg = fmt.Sprintf(msgOrFormat, args...)
	}
	if level == LevelDebug {
		_, _ = fmt.Fprintf(out, "%s [%s] %s\n", time.Now().Format("15:04:05"), level, msg)
		return
	}
	_, _ = fmt.Fprintf(out, "[%s] %s\n", level, msg)
}

// Debug logs a message shown only when verbose is on.
func (l *Logger) Debug(msgOrFormat string, args ...any) { l.Log(LevelDebug, msgOrFormat, args...) }

// Info logs an info message.
func (l *Logger) Info(msgOrFormat string, args ...any) { l.Log(LevelInfo, msgOrFormat, args...) }

// Warn logs a warning.
func (l *Logger) Warn(msgOrFormat string, args ...any) { l.Log(LevelWarn, msgOrFormat, args...) }

// Error logs an error message.
func (l *Logger) Error(msgOrFormat string, args ...any) { l.Log(LevelError, msgOrFormat, args...) }

// Debugf logs through the global logger.
func Debugf(format string, args ...any) { GetLogger().Debug(format, args...) }

// Infof logs through the global logger.
func Infof(format string, args ...any) { GetLogger().Info(format, args...) }

// Warnf logs through the global logger.
func Warnf(format string, args ...any) { GetLogger().Warn(format, args...) }

// Errorf logs through the global logger.
func Errorf(format string, args ...any) { GetLogger().Error(format, args...) }

// =============================================================================
// Background log
// =============================================================================

// BackgroundLogger is a PID-specific log file that receives Logger output
// while the TUI owns the terminal. A disabled or closed BackgroundLogger
// discards everything.
type BackgroundLogger struct {
	mu       sync.Mutex
	file     *os.File
	logger   *log.Logger
	filePath string
}

// BackgroundLogPath returns the PID-specific log file path inside dir.
func BackgroundLogPath(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("taskdeck-%d.log", os.Getpid()))
}

// NewBackgroundLoggerWithEnabled opens the log in dir when enabled, which
// callers take from logging.background_enabled.
func NewBackgroundLoggerWithEnabled(enabled bool, dir string) (*BackgroundLogger, error) {
	if !enabled {
		return &BackgroundLogger{}, nil
	}
	return NewBackgroundLoggerWithPath(BackgroundLogPath(dir))
}

// NewBackgroundLoggerWithPath opens path for appending. On failure the
// returned logger is usable but disabled.
func NewBackgroundLoggerWithPath(path string) (*BackgroundLogger, error) {
	bl := &BackgroundLogger{filePath: path}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return bl, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return bl, err
	}
	bl.file = file
	bl.logger = log.New(file, "", log.LstdFlags)
	return bl, nil
}

// Printf writes a timestamped line.
func (bl *BackgroundLogger) Printf(format string, args ...any) {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	if bl.logger != nil {
		bl.logger.Printf(format, args...)
	}
}

// Write lets the background logger serve as the Logger output.
func (bl *BackgroundLogger) Write(p []byte) (int, error) {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	if bl.file == nil {
		return len(p), nil
	}
	return bl.file.Write(p)
}

// Close closes the file; later writes are discarded.
func (bl *BackgroundLogger) Close() {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	if bl.file != nil {
		_ = bl.file.Close()
	}
	bl.file = nil
	bl.logger = nil
}

// GetLogPath returns the log file path.
func (bl *BackgroundLogger) GetLogPath() string {
	return bl.filePath
}

// IsEnabled reports whether the log file is open.
func (bl *BackgroundLogger) IsEnabled() bool {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	return bl.file != nil
}
