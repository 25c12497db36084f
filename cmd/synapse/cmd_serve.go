package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/synapsedb/synapse/internal/api"
	"github.com/synapsedb/synapse/internal/app"
	"github.com/synapsedb/synapse/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server",
	Long:  `Start the synapse REST API, serving search/save/link over HTTP until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.RestAPI.Enabled {
		return fmt.Errorf("rest_api.enabled is false in config")
	}

	a, err := app.Open(cfg)
	if err != nil {
		return fmt.Errorf("open app: %w", err)
	}
	defer a.Close()

	server := api.NewServer(cfg, a.Memory, a.Graph, a.Consolidation)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return server.Start(ctx, 10*time.Second)
}
