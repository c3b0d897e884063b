//go:build windows
// +build windows

package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/hub"
)

const (
	historyFile     = "history.json"
	historySaveTick = 5 * time.Minute
)

func historyPath(dataDir string) string { return filepath.Join(dataDir, historyFile) }

func loadHistory(j *hub.Journal, path string, log zerolog.Logger) {
	if err := j.LoadFile(path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("history not restored")
		return
	}
	log.Debug().Int("events", len(j.Events())).Msg("history restored")
}

// persistHistory saves the journal whenever it changed since the last
// save, and once more when ctx is done.
func persistHistory(ctx context.Context, j *hub.Journal, path string, log zerolog.Logger) error {
	t := time.NewTicker(historySaveTick)
	defer t.Stop()

	saved := j.Version()
	save := func() {
		v := j.Version()
		if v == saved {
			return
		}
		if err := j.SaveFile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("history not saved")
			return
		}
		saved = v
	}
	for {
		select {
		case <-ctx.Done():
			save()
			return nil
		case <-t.C:
			save()
		}
	}
}
