package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/flolog/internal/cmd/client"
	serverrun "github.com/rzbill/flolog/internal/cmd/server"
	cfgpkg "github.com/rzbill/flolog/internal/config"
)

func main() {
	var apiURL string

	rootCmd := &cobra.Command{
		Use:          "flolog",
		Short:        "flolog append-log CLI",
		Long:         "flolog is a partitioned append-log with consumer groups on local disk or Kafka. This CLI runs the server and talks to its HTTP API.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", clientcmd.DefaultBaseURL(), "HTTP API base URL (env FLOLOG_HTTP)")

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the flolog server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := cfgpkg.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfgpkg.FromEnv(&cfg)

			// flags override file and env
			if v, _ := cmd.Flags().GetString("backend"); v != "" {
				cfg.Backend = v
			}
			if v, _ := cmd.Flags().GetString("retention"); v != "" {
				cfg.Disk.Retention = v
			}
			if v, _ := cmd.Flags().GetString("fsync"); v != "" {
				cfg.Disk.Fsync = v
			}
			if v, _ := cmd.Flags().GetStringSlice("kafka-brokers"); len(v) > 0 {
				cfg.Kafka.Brokers = v
			}
			if v, _ := cmd.Flags().GetInt("partitions"); v > 0 {
				cfg.DefaultPartitions = v
			}
			if v, _ := cmd.Flags().GetString("log-level"); v != "" {
				cfg.Log.Level = v
			}
			if v, _ := cmd.Flags().GetString("log-format"); v != "" {
				cfg.Log.Format = v
			}
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{Config: cfg, DataDir: dataDir, HTTPAddr: httpAddr}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().String("config", os.Getenv("FLOLOG_CONFIG"), "Config file (.yaml, .yml or .json)")
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default :8080)")
	serverStartCmd.Flags().String("backend", "", "Backend: disk|kafka")
	serverStartCmd.Flags().String("retention", "", "Disk retention, e.g. 10m, 12h, 4d (0 keeps everything)")
	serverStartCmd.Flags().String("fsync", "", "Disk fsync mode: always|interval|never")
	serverStartCmd.Flags().StringSlice("kafka-brokers", nil, "Kafka seed brokers")
	serverStartCmd.Flags().Int("partitions", 0, "Default partitions for new logs")
	serverStartCmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", "", "Log format: text|json")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	rootCmd.AddCommand(clientcmd.NewLogCommand(func() string { return apiURL }))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
