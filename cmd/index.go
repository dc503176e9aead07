package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/isabella-tue/retrofit/internal/app"
	"github.com/isabella-tue/retrofit/internal/config"
	"github.com/isabella-tue/retrofit/internal/knowledge"
)

// runIndex embeds the documentation corpus and simulation case studies
// into the vector store. Safe to re-run; each run replaces the indexed
// collections.
func runIndex() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("indexing knowledge base",
		"docs_dir", cfg.DocsDir,
		"inputs_dir", cfg.InputsDir)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	indexer := knowledge.NewIndexer(a.Knowledge, cfg.DocsDir, cfg.InputsDir, logger)
	if err := indexer.Run(ctx); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	logger.Info("indexing complete")
	return nil
}
