// Package chat implements the conversational assistant: session state,
// prompt assembly, RAG context injection, model routing with a fallback
// chain, and the retrofit tool set exposed to the LLM.
package chat

import (
	"errors"
	"time"

	"github.com/isabella-tue/retrofit/internal/optimize"
	"github.com/isabella-tue/retrofit/internal/retrofit"
)

// Conversation modes select a focus section in the system prompt.
const (
	ModeGeneral        = "general"
	ModeNavigation     = "navigation"
	ModeInterpretation = "interpretation"
	ModeTechnical      = "technical"
)

// Request token limits.
const (
	MinMaxTokens     = 100
	MaxMaxTokens     = 4000
	DefaultMaxTokens = 1000
)

// Sentinel errors for chat operations.
var (
	// ErrNoMessages indicates a request without any conversation turns.
	ErrNoMessages = errors.New("at least one message is required")

	// ErrBadRole indicates a message role outside user/assistant/system.
	ErrBadRole = errors.New("invalid message role")

	// ErrBadMode indicates an unknown conversation mode.
	ErrBadMode = errors.New("invalid conversation mode")
)

// Message is one conversation turn.
type Message struct {
	Role    string    `json:"role"` // user | assistant | system
	Content string    `json:"content"`
	Time    time.Time `json:"time,omitempty"`
}

// SessionContext carries the UI state the assistant reasons about.
// All fields are optional; merging overlays non-zero fields only.
type SessionContext struct {
	CurrentStage     string                     `json:"current_stage,omitempty"`
	BuildingID       string                     `json:"building_id,omitempty"`
	TimeHorizon      int                        `json:"time_horizon,omitempty"`
	DesignVariables  *retrofit.DesignVariables  `json:"design_variables,omitempty"`
	InferenceResults *retrofit.Outputs          `json:"inference_results,omitempty"`
	ParetoSolutions  []optimize.ParetoSolution  `json:"pareto_solutions,omitempty"`
	SelectedSolution string                     `json:"selected_solution,omitempty"`
	Constraints      map[string]float64         `json:"optimization_constraints,omitempty"`
	MCDMWeights      *optimize.Weights          `json:"mcdm_weights,omitempty"`
}

// Merge overlays the non-zero fields of other onto a copy of c.
func (c SessionContext) Merge(other SessionContext) SessionContext {
	if other.CurrentStage != "" {
		c.CurrentStage = other.CurrentStage
	}
	if other.BuildingID != "" {
		c.BuildingID = other.BuildingID
	}
	if other.TimeHorizon != 0 {
		c.TimeHorizon = other.TimeHorizon
	}
	if other.DesignVariables != nil {
		c.DesignVariables = other.DesignVariables
	}
	if other.InferenceResults != nil {
		c.InferenceResults = other.InferenceResults
	}
	if other.ParetoSolutions != nil {
		c.ParetoSolutions = other.ParetoSolutions
	}
	if other.SelectedSolution != "" {
		c.SelectedSolution = other.SelectedSolution
	}
	if other.Constraints != nil {
		c.Constraints = other.Constraints
	}
	if other.MCDMWeights != nil {
		c.MCDMWeights = other.MCDMWeights
	}
	return c
}

// Request is one chat completion request.
type Request struct {
	Messages  []Message       `json:"messages"`
	SessionID string          `json:"session_id,omitempty"`
	Context   *SessionContext `json:"context,omitempty"`
	Stream    bool            `json:"stream,omitempty"`
	Mode      string          `json:"mode,omitempty"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

// Validate normalizes defaults and rejects malformed requests.
func (r *Request) Validate() error {
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	for _, m := range r.Messages {
		switch m.Role {
		case "user", "assistant", "system":
		default:
			return ErrBadRole
		}
	}
	if r.Mode == "" {
		r.Mode = ModeGeneral
	}
	switch r.Mode {
	case ModeGeneral, ModeNavigation, ModeInterpretation, ModeTechnical:
	default:
		return ErrBadMode
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	if r.MaxTokens < MinMaxTokens {
		r.MaxTokens = MinMaxTokens
	}
	if r.MaxTokens > MaxMaxTokens {
		r.MaxTokens = MaxMaxTokens
	}
	return nil
}

// Usage reports token consumption and estimated cost for one response.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Source names a retrieved document that informed the response.
type Source struct {
	ID         string  `json:"id"`
	Collection string  `json:"collection"`
	Name       string  `json:"name"`
	Similarity float32 `json:"similarity"`
}

// Response is a complete (non-streamed) chat result.
type Response struct {
	Message    string   `json:"message"`
	ResponseID string   `json:"response_id"`
	Model      string   `json:"model"`
	Usage      Usage    `json:"usage"`
	Sources    []Source `json:"sources,omitempty"`
	ToolCalls  []string `json:"tool_calls,omitempty"`
}

// StreamChunk is one server-sent event of a streamed response.
// Model is only set on the final chunk (Done true).
type StreamChunk struct {
	Content    string `json:"content"`
	ResponseID string `json:"response_id"`
	Done       bool   `json:"done"`
	Model      string `json:"model,omitempty"`
}
