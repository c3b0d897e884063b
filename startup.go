//go:build windows
// +build windows

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/config"
)

// startup keeps a shortcut in the user's Startup folder in line with the
// start_with_windows setting.
type startup struct {
	store *config.Store
	log   zerolog.Logger
}

func startupShortcutPath() string {
	return filepath.Join(
		os.Getenv("APPDATA"),
		`Microsoft\Windows\Start Menu\Programs\Startup`,
		config.AppName+".lnk",
	)
}

// SetStartWithWindows updates the shortcut and persists the choice.
func (s *startup) SetStartWithWindows(on bool) error {
	if err := s.apply(on); err != nil {
		return err
	}
	return s.store.SetStartWithWindows(on)
}

func (s *startup) apply(on bool) error {
	if !on {
		return removeStartupShortcut()
	}
	exePath, err := os.Executable()
	if err != nil {
		return err
	}
	if err := createStartupShortcut(exePath); err != nil {
		return err
	}
	s.log.Info().Str("path", startupShortcutPath()).Msg("[STARTUP] shortcut created")
	return nil
}

func createStartupShortcut(exePath string) error {
	linkPath := startupShortcutPath()
	if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
		return err
	}

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		// S_FALSE: already initialized on this thread.
		if oleErr, ok := err.(*ole.OleError); !ok || oleErr.Code() != 1 {
			return fmt.Errorf("CoInitialize: %w", err)
		}
	}
	defer ole.CoUninitialize()

	shellObj, err := oleutil.CreateObject("WScript.Shell")
	if err != nil {
		return fmt.Errorf("CreateObject(WScript.Shell): %w", err)
	}
	defer shellObj.Release()

	shellDisp, err := shellObj.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return fmt.Errorf("QueryInterface IDispatch: %w", err)
	}
	defer shellDisp.Release()

	scV, err := oleutil.CallMethod(shellDisp, "CreateShortcut", linkPath)
	if err != nil {
		return fmt.Errorf("CreateShortcut: %w", err)
	}
	sc := scV.ToIDispatch()
	defer sc.Release()

	if _, err = oleutil.PutProperty(sc, "TargetPath", exePath); err != nil {
		return fmt.Errorf("set TargetPath: %w", err)
	}
	_, _ = oleutil.PutProperty(sc, "WorkingDirectory", filepath.Dir(exePath))
	_, _ = oleutil.PutProperty(sc, "Description", config.AppName)
	_, _ = oleutil.PutProperty(sc, "IconLocation", exePath)

	if _, err = oleutil.CallMethod(sc, "Save"); err != nil {
		return fmt.Errorf("save shortcut: %w", err)
	}
	return nil
}

func removeStartupShortcut() error {
	err := os.Remove(startupShortcutPath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
