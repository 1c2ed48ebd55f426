package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/agentic-research/arbor/internal/config"
	"github.com/agentic-research/arbor/internal/httpapi"
	"github.com/agentic-research/arbor/internal/observability"
	"github.com/agentic-research/arbor/internal/store"
	"github.com/agentic-research/arbor/internal/treeops"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tree HTTP API server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		slog.Info("starting arbor",
			"db", cfg.DBPath,
			"environment", cfg.Environment,
			"port", cfg.Port,
			"allowed_origins", cfg.AllowedOrigins)

		st, err := store.Open(cfg.DBPath, cfg.Development())
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }() // best-effort on shutdown

		svc := treeops.New(st)
		metrics := observability.New(prometheus.DefaultRegisterer)
		server := httpapi.New(svc, metrics, prometheus.DefaultGatherer, cfg.AllowedOrigins)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return server.Run(ctx, fmt.Sprintf(":%d", cfg.Port))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
