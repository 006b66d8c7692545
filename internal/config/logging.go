package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLogLevel maps a level name to a slog.Level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogLevel resolves the effective level: CCHAT_LOG_LEVEL wins over the file.
func LogLevel(cfg Config) slog.Level {
	if v := os.Getenv("CCHAT_LOG_LEVEL"); v != "" {
		return ParseLogLevel(v)
	}
	return ParseLogLevel(cfg.General.LogLevel)
}

// SetupLogger creates a dual-output logger: text to console, JSON to file.
// Outside development the console handler only passes warnings and above.
// Pass io.Discard as console when the terminal is owned by the TUI.
// Returns the logger and a cleanup function to close the file.
func SetupLogger(logFile string, level slog.Level, console io.Writer) (*slog.Logger, func() error) {
	consoleLevel := level
	if os.Getenv("CCHAT_ENV") != "development" && consoleLevel < slog.LevelWarn {
		consoleLevel = slog.LevelWarn
	}
	consoleHandler := slog.NewTextHandler(console, &slog.HandlerOptions{Level: consoleLevel})

	if err := os.MkdirAll(filepath.Dir(logFile), 0o750); err != nil {
		slog.New(consoleHandler).Error("failed to create log dir, using console only", "error", err)
		return slog.New(consoleHandler), func() error { return nil }
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path from LogPath
	if err != nil {
		slog.New(consoleHandler).Error("failed to open log file, using console only", "error", err, "file", logFile)
		return slog.New(consoleHandler), func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	logger := slog.New(slogmulti.Fanout(consoleHandler, fileHandler))

	return logger, file.Close
}

// SetupLoggerWithWriters creates a logger with custom writers (for testing).
func SetupLoggerWithWriters(console, file io.Writer, level slog.Level) *slog.Logger {
	consoleHandler := slog.NewTextHandler(console, &slog.HandlerOptions{Level: level})
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(consoleHandler, fileHandler))
}
