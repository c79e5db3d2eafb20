package config

import (
	"path/filepath"
	goruntime "runtime"
	"strings"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/flolog" {
		t.Fatalf("got %s", got)
	}
}

func TestDefaultDataDirUnderHome(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("home is USERPROFILE on windows")
	}
	home := t.TempDir()
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", home)
	got := DefaultDataDir()
	if !strings.HasPrefix(got, home) || filepath.Base(got) != "flolog" {
		t.Fatalf("got %s for home %s", got, home)
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	if goruntime.GOOS == "windows" {
		t.Skip("home is USERPROFILE on windows")
	}
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "")
	if got := DefaultDataDir(); got != "./data" {
		t.Fatalf("expected ./data, got %s", got)
	}
}

func TestLogsDir(t *testing.T) {
	if got := LogsDir("/d"); got != filepath.Join("/d", "logs") {
		t.Fatalf("got %s", got)
	}
}
