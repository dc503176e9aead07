package chat

import (
	"strings"
	"unicode/utf8"
)

// cheapQueryMaxLen bounds queries eligible for the cheap model.
const cheapQueryMaxLen = 50

// navigationKeywords mark short UI-guidance queries that a small model
// answers as well as the primary one.
var navigationKeywords = []string{
	"how do i", "where", "what page", "next step",
	"how to", "what is", "explain", "help",
}

var greetings = []string{"hello", "hi", "hey", "thanks", "thank you"}

// modelPricing is USD per million tokens, keyed by bare model name.
var modelPricing = map[string]struct{ input, output float64 }{
	"gpt-4o":        {2.50, 10.00},
	"gpt-4o-mini":   {0.15, 0.60},
	"gpt-3.5-turbo": {0.50, 1.50},
}

// shortModelName strips the Genkit provider prefix ("openai/gpt-4o").
func shortModelName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// modelCost estimates the USD cost of one invocation.
// Unknown models are billed at the most expensive tier.
func modelCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := modelPricing[shortModelName(model)]
	if !ok {
		p = modelPricing["gpt-4o"]
	}
	return float64(inputTokens)/1e6*p.input + float64(outputTokens)/1e6*p.output
}

// cheapQuery reports whether the query is simple enough for the cheap
// model: a short navigation question or a greeting.
func cheapQuery(query string) bool {
	lower := strings.ToLower(query)

	if utf8.RuneCountInString(query) < cheapQueryMaxLen {
		for _, kw := range navigationKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	for _, g := range greetings {
		if strings.Contains(lower, g) {
			return true
		}
	}
	return false
}

// selectModel picks the model for a request based on the last user turn.
func (a *Agent) selectModel(msgs []Message) string {
	if len(msgs) == 0 {
		return a.primaryModel
	}
	if cheapQuery(msgs[len(msgs)-1].Content) {
		return a.cheapModel
	}
	return a.primaryModel
}

// nextFallbackModels returns the models to try after failed, in order.
// An unknown model restarts the chain after the primary.
func (a *Agent) nextFallbackModels(failed string) []string {
	for i, m := range a.fallbackChain {
		if m == failed {
			return a.fallbackChain[i+1:]
		}
	}
	if len(a.fallbackChain) > 1 {
		return a.fallbackChain[1:]
	}
	return nil
}
