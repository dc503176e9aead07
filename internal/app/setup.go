package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	gkapi "github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/isabella-tue/retrofit/db"
	"github.com/isabella-tue/retrofit/internal/buildings"
	"github.com/isabella-tue/retrofit/internal/chat"
	"github.com/isabella-tue/retrofit/internal/config"
	"github.com/isabella-tue/retrofit/internal/database"
	"github.com/isabella-tue/retrofit/internal/knowledge"
	"github.com/isabella-tue/retrofit/internal/log"
	"github.com/isabella-tue/retrofit/internal/observability"
	"github.com/isabella-tue/retrofit/internal/optimize"
	"github.com/isabella-tue/retrofit/internal/retrofit"
)

const otelShutdownTimeout = 5 * time.Second

// Setup creates and initializes the application.
// The returned App owns every resource it holds; call Close to release them.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be wired before genkit.Init so flows register
	// against a provider that already exports.
	a.otelCleanup = observability.Setup(ctx, observability.Config{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "retrofit-api",
		Environment: cfg.Environment,
	})

	if err := db.Migrate(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	pool, dbCleanup, err := database.Connect(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Knowledge = knowledge.New(pool, embedder, logger)
	a.Retriever = knowledge.NewRetriever(a.Knowledge, cfg.RetrieveDocs, cfg.RetrieveCases, logger)
	a.Buildings = buildings.NewStore(pool, logger)

	a.Predictor = retrofit.NewPredictor(cfg.ModelWeightsPath, logger)
	a.Optimizer = optimize.NewRunner(a.Predictor, optimize.Params{
		PopSize:     cfg.PopulationSize,
		Generations: cfg.Generations,
	}, cfg.OptimizeSeed, logger)

	a.Sessions = chat.NewSessionStore(
		time.Duration(cfg.SessionTTLSeconds)*time.Second, cfg.SessionCapacity, logger)
	a.Feedback = chat.NewFeedbackStore(pool, logger)

	// Background jobs and tool-started optimizations outlive requests;
	// cancelling this context on Close stops them.
	appCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.jobCtx = appCtx
	a.cancel = cancel

	tools := chat.RegisterTools(g, chat.ToolDeps{
		Predictor:     a.Predictor,
		Optimizer:     a.Optimizer,
		Retriever:     a.Retriever,
		Logger:        logger,
		BackgroundCtx: appCtx,
	})

	agent, err := chat.New(chat.Config{
		Genkit:        g,
		Sessions:      a.Sessions,
		Retriever:     a.Retriever,
		Logger:        logger,
		Tools:         tools,
		PrimaryModel:  cfg.FullModelName(cfg.ModelName),
		CheapModel:    cfg.FullModelName(cfg.CheapModelName),
		FallbackChain: fallbackChain(cfg),
		TokenBudget:   cfg.TokenBudget,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat agent: %w", err)
	}
	a.Agent = agent
	a.ChatFlow = chat.NewFlow(g, agent)

	return a, nil
}

// fallbackChain qualifies the configured fallback models with the
// active provider.
func fallbackChain(cfg *config.Config) []string {
	chain := make([]string, len(cfg.FallbackModels))
	for i, name := range cfg.FallbackModels {
		chain[i] = cfg.FullModelName(name)
	}
	return chain
}

// provideGenkit initializes Genkit with the configured AI provider.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderGoogleAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with googleai provider")
		}
		logger.Info("initialized Genkit with googleai provider", "model", cfg.ModelName)

	default: // openai
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider
// plugin. OpenAI auto-registers embedders in Init(); GoogleAI exposes a
// lookup helper.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderGoogleAI:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	default: // openai
		return genkit.LookupEmbedder(g, gkapi.NewName(config.ProviderOpenAI, cfg.EmbedderModel))
	}
}
