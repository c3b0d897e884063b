//go:build windows
// +build windows

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/hidio"
)

// setupLogging opens debug.log in dataDir, truncating it like every fresh
// start does, and falls back to appending when the file is locked.
func setupLogging(dataDir string, console bool) (zerolog.Logger, func()) {
	logFile := filepath.Join(dataDir, "debug.log")
	_ = os.MkdirAll(dataDir, 0o755)

	var writers []io.Writer
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		f, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	}
	if err == nil {
		writers = append(writers, f)
	}
	if console || f == nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	if err != nil {
		log.Warn().Err(err).Str("path", logFile).Msg("failed to open log file")
	}
	log.Info().Str("version", version).Msg("=== flowOSD started ===")
	log.Info().Str("path", logFile).Msg("log file location")

	return log, func() {
		if f != nil {
			_ = f.Close()
		}
	}
}

// applyLogLevel sets the global level from a config value.
func applyLogLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// scanDevices logs every ASUS HID interface and whether the selector would
// consider it.
func scanDevices(log zerolog.Logger) error {
	if err := hidio.Init(); err != nil {
		return fmt.Errorf("hid init: %w", err)
	}
	defer hidio.Exit()

	log.Info().Msg("=== Scanning for HID devices ===")
	infos, err := hidio.System{}.Enumerate(hidio.VendorAsus)
	if err != nil {
		return fmt.Errorf("enumerate: %w", err)
	}
	if len(infos) == 0 {
		log.Info().Msgf("No devices found for VID: 0x%04x", hidio.VendorAsus)
		return nil
	}
	for i, info := range infos {
		log.Info().
			Int("n", i+1).
			Str("vid", fmt.Sprintf("0x%04X", info.VendorID)).
			Str("pid", fmt.Sprintf("0x%04X", info.ProductID)).
			Str("usagePage", fmt.Sprintf("0x%04X", info.UsagePage)).
			Str("usage", fmt.Sprintf("0x%04X", info.Usage)).
			Int("interface", info.Interface).
			Str("product", info.Product).
			Bool("vendorPage", info.UsagePage >= 0xFF00).
			Str("path", info.Path).
			Msg("[HID_SCAN] interface")
	}
	log.Info().Int("count", len(infos)).Msg("=== End HID Scan ===")
	return nil
}
