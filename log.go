package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/dgnsrekt/speakstream/internal/config"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "speakstream").CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "speakstream.log"), nil
}

// setupLog points the default logger at the configured file, or at stderr
// in debug mode. The returned func closes the file.
func setupLog(cfg config.LogConfig, debug bool) (func() error, error) {
	noop := func() error { return nil }
	log.SetOutput(io.Discard)

	if debug {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.DebugLevel)
		return noop, nil
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return noop, fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)

	logFile := cfg.File
	if logFile == "" {
		if logFile, err = getLogFilePath(); err != nil {
			return noop, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		// log disabled
		return noop, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		// log disabled
		return noop, nil
	}
	log.SetOutput(f)
	return f.Close, nil
}
