package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Configure the default slog logger from a log level string and an optional
// output file.
//
// Valid levels are "none", "error", "warn", "info", "debug"; anything else is
// an error. With an empty logFile the logger writes text to stdout, otherwise
// JSON to the given path.
//
// Returns the *os.File slog writes to (nil for stdout or "none") so the
// caller can close it on shutdown:
//
//	logFilePointer, err := utils.ConfigureDefaultLogger(...)
//	if logFilePointer != nil {
//		defer logFilePointer.Close()
//	}
func ConfigureDefaultLogger(logLevel string, logFile string, loggerOptions slog.HandlerOptions) (*os.File, error) {
	if logLevel == "none" {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil, nil
	}

	level, err := parseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	loggerOptions.Level = level

	// --------------------------------------------------------------------------------

	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &loggerOptions)))
		return nil, nil
	}

	logFilePointer, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(logFilePointer, &loggerOptions)))
	return logFilePointer, nil
}

func parseLevel(logLevel string) (slog.Level, error) {
	switch logLevel {
	case "error":
		return slog.LevelError, nil
	case "warn":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	}
	return 0, fmt.Errorf("unexpected log level %q", logLevel)
}
