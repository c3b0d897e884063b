//go:build windows
// +build windows

// rawkeys opens the ASUS keyboard channel and prints every input report
// with the key it decodes to. With -save DIR each report is also captured
// to a file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/hidio"
	"github.com/joygram/flowOSD-sub000/internal/keys"
)

func main() {
	var saveDir string
	if len(os.Args) > 2 && os.Args[1] == "-save" {
		saveDir = os.Args[2]
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	if err := hidio.Init(); err != nil {
		log.Fatal().Err(err).Msg("hid init")
	}
	defer hidio.Exit()

	ch, err := hidio.Open(hidio.System{}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("no ASUS keyboard channel")
	}
	defer ch.Close()
	log.Info().Str("path", ch.Info().Path).Msg("reading input reports, Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	buf := make([]byte, 64)
	for {
		n, err := ch.ReadInput(ctx, buf)
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("read failed")
			return
		}
		report := append([]byte(nil), buf[:n]...)
		if code, ok := keys.Decode(report); ok {
			fmt.Printf("key %s (0x%02X)\n", code, byte(code))
		}
		fmt.Println(keys.HexDump(report))

		if saveDir != "" {
			path, err := keys.SaveReport(saveDir, report, time.Now())
			if err != nil {
				log.Warn().Err(err).Msg("capture not saved")
				continue
			}
			log.Info().Str("path", path).Msg("capture saved")
		}
	}
}
