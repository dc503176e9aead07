package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/isabella-tue/retrofit/internal/knowledge"
	"github.com/isabella-tue/retrofit/internal/log"
)

// Generation parameters fixed across models.
const (
	generationTemperature = 0.7
	defaultMaxTurns       = 5
)

// fallbackResponseMessage is returned when the model produces an empty
// response with no tool requests.
const fallbackResponseMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// exhaustedMessage is returned when every model in the fallback chain
// is rate limited or failing.
const exhaustedMessage = "All models are currently unavailable. Please try again later."

// ErrExecutionFailed indicates chat generation failed.
var ErrExecutionFailed = errors.New("execution failed")

// StreamCallback receives each chunk of a streaming response.
// Returning an error aborts the stream.
type StreamCallback func(ctx context.Context, chunk StreamChunk) error

// Retriever supplies RAG context. Satisfied by *knowledge.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, query string, timeHorizon int) []knowledge.Result
	SimilarBuildings(ctx context.Context, query string, timeHorizon, n int) ([]knowledge.Result, error)
}

// Config carries the required parameters for the chat agent.
type Config struct {
	Genkit    *genkit.Genkit
	Sessions  *SessionStore
	Retriever Retriever
	Logger    log.Logger
	Tools     []ai.Tool // pre-registered via RegisterTools

	// Provider-qualified model names (e.g. "openai/gpt-4o").
	PrimaryModel string
	CheapModel   string
	// FallbackChain is tried in order when a model hits its rate limit.
	// The first entry should be the primary model.
	FallbackChain []string

	MaxTurns    int // agentic tool-loop turns
	TokenBudget int // history budget in tokens (0 = window-based only)

	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
	RateLimiter          *rate.Limiter // nil = default 10 rps, burst 30
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	if cfg.Retriever == nil {
		return errors.New("retriever is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if len(cfg.Tools) == 0 {
		return errors.New("at least one tool is required")
	}
	if cfg.PrimaryModel == "" {
		return errors.New("primary model is required")
	}
	return nil
}

// Agent is the conversational assistant. It is stateless apart from the
// injected session store; configuration is captured immutably at
// construction for safe concurrent use.
type Agent struct {
	primaryModel  string
	cheapModel    string
	fallbackChain []string
	maxTurns      int
	tokenBudget   int

	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker
	rateLimiter    *rate.Limiter

	g         *genkit.Genkit
	sessions  *SessionStore
	retriever Retriever
	logger    log.Logger
	tools     []ai.Tool
	toolRefs  []ai.ToolRef
}

// New creates the chat agent.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	cheap := cfg.CheapModel
	if cheap == "" {
		cheap = cfg.PrimaryModel
	}
	chain := cfg.FallbackChain
	if len(chain) == 0 {
		chain = []string{cfg.PrimaryModel}
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}
	cbConfig := cfg.CircuitBreakerConfig
	if cbConfig.FailureThreshold == 0 {
		cbConfig = DefaultCircuitBreakerConfig()
	}
	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	toolRefs := make([]ai.ToolRef, len(cfg.Tools))
	names := make([]string, len(cfg.Tools))
	for i, t := range cfg.Tools {
		toolRefs[i] = t
		names[i] = t.Name()
	}

	a := &Agent{
		primaryModel:   cfg.PrimaryModel,
		cheapModel:     cheap,
		fallbackChain:  chain,
		maxTurns:       maxTurns,
		tokenBudget:    cfg.TokenBudget,
		retryConfig:    retryConfig,
		circuitBreaker: NewCircuitBreaker(cbConfig),
		rateLimiter:    rl,
		g:              cfg.Genkit,
		sessions:       cfg.Sessions,
		retriever:      cfg.Retriever,
		logger:         cfg.Logger,
		tools:          cfg.Tools,
		toolRefs:       toolRefs,
	}

	a.logger.Info("chat agent initialized",
		"primary_model", a.primaryModel,
		"tools", strings.Join(names, ", "),
		"max_turns", a.maxTurns)
	return a, nil
}

// Chat processes a request without streaming.
func (a *Agent) Chat(ctx context.Context, req Request) (*Response, error) {
	return a.ChatStream(ctx, req, nil)
}

// ChatStream processes a request, invoking callback for each chunk when
// non-nil. The complete response is returned either way. The final Done
// chunk is emitted before returning.
func (a *Agent) ChatStream(ctx context.Context, req Request, callback StreamCallback) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	responseID := uuid.NewString()[:8]

	// Session context: cached state with the request's context merged on
	// top, non-zero fields winning.
	session, err := a.sessions.GetOrCreate(req.SessionID)
	if err != nil {
		a.logger.Warn("session unavailable, continuing without", "error", err)
	}
	var sctx SessionContext
	if session != nil {
		sctx = session.Context
	}
	if req.Context != nil {
		sctx = sctx.Merge(*req.Context)
	}

	lastMessage := req.Messages[len(req.Messages)-1].Content

	// Retrieval failures degrade to an uninformed but working assistant.
	ragDocs := a.retriever.Retrieve(ctx, lastMessage, sctx.TimeHorizon)

	systemPrompt := buildSystemPrompt(&sctx, ragDocs, req.Mode)

	msgs := req.Messages
	if check := checkContextWindow(systemPrompt, msgs); !check.Fits {
		a.logger.Debug("truncating history",
			"total_tokens", check.TotalTokens, "remaining", check.Remaining)
		msgs = truncateHistory(msgs, truncateTarget)
	}
	if a.tokenBudget > 0 {
		msgs = truncateHistory(msgs, a.tokenBudget)
	}

	model := a.selectModel(msgs)

	genCtx := WithSessionContext(ctx, &sctx)
	resp, model, err := a.generate(genCtx, model, systemPrompt, msgs, req.MaxTokens, responseID, callback)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecutionFailed, err)
	}

	var out *Response
	if resp == nil {
		// Every model in the chain was unavailable.
		out = &Response{
			Message:    exhaustedMessage,
			ResponseID: responseID,
			Model:      "none",
		}
	} else {
		text := resp.Text()
		if strings.TrimSpace(text) == "" && len(resp.ToolRequests()) == 0 {
			a.logger.Warn("model returned empty response", "response_id", responseID)
			text = fallbackResponseMessage
		}

		usage := Usage{}
		if resp.Usage != nil {
			usage.InputTokens = resp.Usage.InputTokens
			usage.OutputTokens = resp.Usage.OutputTokens
			usage.TotalTokens = resp.Usage.InputTokens + resp.Usage.OutputTokens
			usage.CostUSD = modelCost(model, usage.InputTokens, usage.OutputTokens)
		}

		out = &Response{
			Message:    text,
			ResponseID: responseID,
			Model:      shortModelName(model),
			Usage:      usage,
			Sources:    sources(ragDocs),
			ToolCalls:  toolCallNames(resp),
		}
	}

	if callback != nil {
		final := StreamChunk{ResponseID: responseID, Done: true, Model: out.Model}
		if err := callback(ctx, final); err != nil {
			return nil, fmt.Errorf("stream callback: %w", err)
		}
	}

	// Persist the turn and the merged context. Best effort; the response
	// is already built.
	if session != nil {
		now := time.Now()
		appendErr := a.sessions.AppendMessages(session.ID,
			Message{Role: "user", Content: lastMessage, Time: now},
			Message{Role: "assistant", Content: out.Message, Time: now})
		if appendErr != nil {
			a.logger.Warn("appending session history", "error", appendErr)
		}
		if _, mergeErr := a.sessions.MergeContext(session.ID, sctx); mergeErr != nil {
			a.logger.Warn("persisting session context", "error", mergeErr)
		}
	}

	return out, nil
}

// generate runs one model, advancing the fallback chain on rate limits.
// A nil response with nil error means the whole chain was exhausted.
func (a *Agent) generate(ctx context.Context, model, systemPrompt string, msgs []Message, maxTokens int, responseID string, callback StreamCallback) (*ai.ModelResponse, string, error) {
	if err := a.circuitBreaker.Allow(); err != nil {
		a.logger.Warn("circuit breaker open, rejecting request",
			"state", a.circuitBreaker.State().String())
		return nil, model, fmt.Errorf("service unavailable: %w", err)
	}

	opts := a.generateOpts(model, systemPrompt, msgs, maxTokens, responseID, callback)

	resp, err := a.generateWithRetry(ctx, opts)
	if err == nil {
		a.circuitBreaker.Success()
		return resp, model, nil
	}
	a.circuitBreaker.Failure()

	if !rateLimitError(err) {
		return nil, model, err
	}

	for _, next := range a.nextFallbackModels(model) {
		a.logger.Warn("model rate limited, falling back",
			"failed_model", model, "next_model", next)
		model = next

		opts = a.generateOpts(model, systemPrompt, msgs, maxTokens, responseID, callback)
		resp, err = a.generateWithRetry(ctx, opts)
		if err == nil {
			a.circuitBreaker.Success()
			return resp, model, nil
		}
		a.circuitBreaker.Failure()
		if !retryableError(err) {
			return nil, model, err
		}
	}

	a.logger.Error("all models exhausted", "last_error", err)
	return nil, model, nil
}

func (a *Agent) generateOpts(model, systemPrompt string, msgs []Message, maxTokens int, responseID string, callback StreamCallback) []ai.GenerateOption {
	opts := []ai.GenerateOption{
		ai.WithModelName(model),
		ai.WithSystem(systemPrompt),
		ai.WithMessages(toAIMessages(msgs)...),
		ai.WithTools(a.toolRefs...),
		ai.WithMaxTurns(a.maxTurns),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     generationTemperature,
			MaxOutputTokens: maxTokens,
		}),
	}
	if callback != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if chunk == nil {
				return nil
			}
			for _, part := range chunk.Content {
				if part.Text == "" {
					continue
				}
				err := callback(ctx, StreamChunk{
					Content:    part.Text,
					ResponseID: responseID,
				})
				if err != nil {
					return err
				}
			}
			return nil
		}))
	}
	return opts
}

// toAIMessages converts conversation turns to Genkit messages.
func toAIMessages(msgs []Message) []*ai.Message {
	out := make([]*ai.Message, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case "assistant":
			out[i] = ai.NewModelMessage(ai.NewTextPart(m.Content))
		case "system":
			out[i] = ai.NewSystemTextMessage(m.Content)
		default:
			out[i] = ai.NewUserMessage(ai.NewTextPart(m.Content))
		}
	}
	return out
}

// sources summarizes the retrieved documents for the response payload.
func sources(docs []knowledge.Result) []Source {
	if len(docs) == 0 {
		return nil
	}
	out := make([]Source, len(docs))
	for i, d := range docs {
		name := d.Document.Metadata["source"]
		if name == "" {
			name = d.Document.Metadata["simulation_id"]
		}
		out[i] = Source{
			ID:         d.Document.ID,
			Collection: d.Document.Collection,
			Name:       name,
			Similarity: d.Similarity,
		}
	}
	return out
}

// toolCallNames collects the tools invoked during the agentic loop.
func toolCallNames(resp *ai.ModelResponse) []string {
	if resp == nil || resp.Request == nil {
		return nil
	}
	var names []string
	seen := map[string]bool{}
	for _, msg := range resp.Request.Messages {
		for _, part := range msg.Content {
			if part.ToolRequest != nil && !seen[part.ToolRequest.Name] {
				seen[part.ToolRequest.Name] = true
				names = append(names, part.ToolRequest.Name)
			}
		}
	}
	return names
}
