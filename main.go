//go:build windows
// +build windows

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/joygram/flowOSD-sub000/internal/config"
)

const version = "0.4.0"

func main() {
	var (
		console    = os.Getenv("FLOWOSD_CONSOLE") == "1"
		scanHID    bool
		configPath string
	)
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch a := args[i]; a {
		case "--console":
			console = true
		case "--scan-hid":
			scanHID = true
		case "--config":
			if i+1 < len(args) {
				i++
				configPath = args[i]
			}
		case "--version":
			fmt.Println(config.AppName, version)
			return
		}
	}

	if configPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			fmt.Fprintln(os.Stderr, "cannot locate settings:", err)
			os.Exit(1)
		}
		configPath = p
	}
	dataDir := filepath.Dir(configPath)

	log, closeLog := setupLogging(dataDir, console || scanHID)

	code := 0
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("[FATAL RECOVER]")
			code = 2
		}
		closeLog()
		os.Exit(code)
	}()

	if scanHID {
		if err := scanDevices(log); err != nil {
			log.Error().Err(err).Msg("[HID_SCAN] failed")
			code = 1
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, configPath, dataDir, log); err != nil {
		log.Error().Err(err).Msg("agent stopped")
		code = 1
		return
	}
	log.Info().Msg("=== flowOSD stopped ===")
}
