package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xhad/insight/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	serverConfig := server.Config{
		Analyzer:       a.orchestrator,
		BodyLimit:      cfg.Server.BodyLimit,
		AnalyzeTimeout: cfg.Server.AnalyzeTimeout,
		SessionTTL:     cfg.Server.SessionTTL,
		MaxUploads:     cfg.Server.MaxUploads,
		Version:        version,
		Logger:         logger.Named("server"),
	}
	if a.vectors != nil {
		serverConfig.Indexer = a.vectors
		serverConfig.Chunker = a.processor
	}

	srv, err := server.New(serverConfig)
	if err != nil {
		return err
	}
	return srv.Run(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
}
