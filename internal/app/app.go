// Package app assembles the application: configuration, database,
// Genkit, the prediction and optimization services, the RAG store, and
// the chat agent. Commands call Setup once and pull what they need from
// the returned App.
package app

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/isabella-tue/retrofit/internal/buildings"
	"github.com/isabella-tue/retrofit/internal/chat"
	"github.com/isabella-tue/retrofit/internal/config"
	"github.com/isabella-tue/retrofit/internal/knowledge"
	"github.com/isabella-tue/retrofit/internal/log"
	"github.com/isabella-tue/retrofit/internal/optimize"
	"github.com/isabella-tue/retrofit/internal/retrofit"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Knowledge *knowledge.Store
	Retriever *knowledge.Retriever
	Buildings *buildings.Store
	Predictor *retrofit.Predictor
	Optimizer *optimize.Runner

	Sessions *chat.SessionStore
	Feedback *chat.FeedbackStore
	Agent    *chat.Agent
	ChatFlow *chat.Flow

	jobCtx      context.Context
	otelCleanup func(context.Context) error
	dbCleanup   func()
	cancel      context.CancelFunc
}

// JobContext returns the context that background jobs run under.
// It outlives individual requests and is cancelled by Close.
func (a *App) JobContext() context.Context {
	if a.jobCtx == nil {
		return context.Background()
	}
	return a.jobCtx
}

// Close gracefully releases all resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.cancel != nil {
		a.cancel()
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
		a.Logger.Info("database pool closed")
	}
	if a.otelCleanup != nil {
		ctx, cancelFn := context.WithTimeout(context.Background(), otelShutdownTimeout)
		defer cancelFn()
		if err := a.otelCleanup(ctx); err != nil {
			a.Logger.Warn("shutting down tracer provider", "error", err)
		}
	}
	return nil
}
