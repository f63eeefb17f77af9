package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

var Logger *log.Logger

var (
	notifyMu   sync.RWMutex
	uiNotifier func(level, message string)
)

func init() {
	Logger = log.New(os.Stderr)

	// Set log level from environment variable
	SetLevel(os.Getenv("LOG_LEVEL"))
}

// SetLevel parses a level name; unknown or empty values fall back to INFO
func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		Logger.SetLevel(log.DebugLevel)
	case "INFO":
		Logger.SetLevel(log.InfoLevel)
	case "WARN", "WARNING":
		Logger.SetLevel(log.WarnLevel)
	case "ERROR":
		Logger.SetLevel(log.ErrorLevel)
	case "FATAL":
		Logger.SetLevel(log.FatalLevel)
	default:
		// Default to INFO level if not specified or invalid
		Logger.SetLevel(log.InfoLevel)
	}
}

// LogDir returns the directory used for log files
func LogDir() string {
	if os.Getuid() == 0 {
		return "/var/log/onekm"
	}
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "onekm")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "onekm")
	}
	return filepath.Join(os.TempDir(), "onekm")
}

// SetupFileLogging sends log output to onekm.log with the given prefix.
// Call it before a TUI takes over the terminal. The caller closes the file.
func SetupFileLogging(prefix string) (*os.File, error) {
	dir := LogDir()
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, "onekm.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	Logger.SetOutput(f)
	Logger.SetPrefix(prefix)
	Logger.SetReportTimestamp(true)
	return f, nil
}

// SetUINotifier mirrors log lines to a UI. Pass nil to stop.
func SetUINotifier(fn func(level, message string)) {
	notifyMu.Lock()
	defer notifyMu.Unlock()
	uiNotifier = fn
}

func notify(level log.Level, msg string) {
	if Logger.GetLevel() > level {
		return
	}
	notifyMu.RLock()
	fn := uiNotifier
	notifyMu.RUnlock()
	if fn != nil {
		fn(strings.ToUpper(level.String()), msg)
	}
}

// Convenience functions for common operations
func Info(msg interface{}, keyvals ...interface{}) {
	Logger.Info(msg, keyvals...)
	notify(log.InfoLevel, fmt.Sprint(msg))
}

func Debug(msg interface{}, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
	notify(log.DebugLevel, fmt.Sprint(msg))
}

func Warn(msg interface{}, keyvals ...interface{}) {
	Logger.Warn(msg, keyvals...)
	notify(log.WarnLevel, fmt.Sprint(msg))
}

func Error(msg interface{}, keyvals ...interface{}) {
	Logger.Error(msg, keyvals...)
	notify(log.ErrorLevel, fmt.Sprint(msg))
}

func Fatal(msg interface{}, keyvals ...interface{}) {
	Logger.Fatal(msg, keyvals...)
}

func Infof(format string, args ...interface{}) {
	Logger.Infof(format, args...)
	notify(log.InfoLevel, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
	notify(log.DebugLevel, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
	notify(log.WarnLevel, fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...interface{}) {
	Logger.Errorf(format, args...)
	notify(log.ErrorLevel, fmt.Sprintf(format, args...))
}

func Fatalf(format string, args ...interface{}) {
	Logger.Fatalf(format, args...)
}
