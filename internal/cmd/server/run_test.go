package serverrun

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cfgpkg "github.com/rzbill/flolog/internal/config"
)

func TestResolveFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		dataDir  string
		httpAddr string
	}{
		{
			name:     "overrides win",
			opts:     Options{Config: cfgpkg.Config{DataDir: "/cfg", HTTPAddr: ":1"}, DataDir: "/flag", HTTPAddr: ":2"},
			dataDir:  "/flag",
			httpAddr: ":2",
		},
		{
			name:     "config kept without overrides",
			opts:     Options{Config: cfgpkg.Config{DataDir: "/cfg", HTTPAddr: ":1"}},
			dataDir:  "/cfg",
			httpAddr: ":1",
		},
		{
			name:     "defaults when empty",
			opts:     Options{},
			dataDir:  cfgpkg.DefaultDataDir(),
			httpAddr: ":8080",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.opts.resolve()
			require.Equal(t, tt.dataDir, cfg.DataDir)
			require.Equal(t, tt.httpAddr, cfg.HTTPAddr)
		})
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.Backend = "tape"
	err := Run(context.Background(), Options{Config: cfg, DataDir: t.TempDir(), HTTPAddr: "127.0.0.1:0"})
	require.ErrorContains(t, err, "unknown backend")
}

// TestRunIntegration starts the server on an ephemeral port and stops it
// through context cancellation.
func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	cfg := cfgpkg.Default()
	cfg.Disk.Fsync = "never"
	cfg.Log.Level = "error"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := Run(ctx, Options{Config: cfg, DataDir: t.TempDir(), HTTPAddr: "127.0.0.1:0"})
	require.NoError(t, err)
}
