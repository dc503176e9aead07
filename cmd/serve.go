package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/isabella-tue/retrofit/api"
	"github.com/isabella-tue/retrofit/internal/app"
	"github.com/isabella-tue/retrofit/internal/config"
)

// runServe initializes and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr, err := parseServeAddr(cfg.ServerAddr())
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("starting HTTP API server", "version", Version)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	server, err := api.NewServer(api.Deps{
		DB:        a.DBPool,
		JobCtx:    a.JobContext(),
		Predictor: a.Predictor,
		Optimizer: a.Optimizer,
		Buildings: a.Buildings,
		ChatFlow:  a.ChatFlow,
		Sessions:  a.Sessions,
		Feedback:  a.Feedback,
		Logger:    logger,
	}, api.Options{
		CORSOrigins:    cfg.CORSOrigins,
		TrustProxy:     cfg.TrustProxy,
		RateBurst:      cfg.RateBurst,
		PrimaryModel:   cfg.FullModelName(cfg.ModelName),
		CheapModel:     cfg.FullModelName(cfg.CheapModelName),
		FallbackModels: cfg.FallbackModels,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	return server.Run(ctx, addr)
}
