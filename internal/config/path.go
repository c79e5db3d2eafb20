package config

import (
	"os"
	"path/filepath"
	goruntime "runtime"
)

const appDir = "flolog"

// DefaultDataDir returns the per-user data directory of flolog:
// $XDG_DATA_HOME/flolog when set, otherwise the platform location
// (~/Library/Application Support on darwin, %LOCALAPPDATA% on windows,
// ~/.local/share elsewhere). Without a home directory it is ./data.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	switch goruntime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDir)
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appDir)
		}
		return filepath.Join(home, "AppData", "Local", appDir)
	default:
		return filepath.Join(home, ".local", "share", appDir)
	}
}

// LogsDir is the root of the disk backend under dataDir.
func LogsDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}
