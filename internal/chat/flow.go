package chat

import (
	"context"
	"sync"

	"github.com/firebase/genkit/go/core"
	"github.com/firebase/genkit/go/genkit"
)

// FlowName is the registered name of the chat flow in Genkit.
const FlowName = "isabella/chat"

// Flow is the Genkit streaming flow wrapping the chat agent. It exists
// for DevUI tracing and typed HTTP exposure; the agent holds the logic.
type Flow = core.Flow[Request, Response, StreamChunk]

// Flow registration is global in Genkit; re-registration panics.
var (
	flowOnce sync.Once
	flow     *Flow
)

// NewFlow returns the chat flow singleton, defining it on first call.
func NewFlow(g *genkit.Genkit, agent *Agent) *Flow {
	flowOnce.Do(func() {
		flow = defineFlow(g, agent)
	})
	return flow
}

// ResetFlowForTesting clears the singleton so tests can register flows
// against fresh registries. Not safe for concurrent use.
func ResetFlowForTesting() {
	flowOnce = sync.Once{}
	flow = nil
}

func defineFlow(g *genkit.Genkit, agent *Agent) *Flow {
	return genkit.DefineStreamingFlow(g, FlowName,
		func(ctx context.Context, req Request, streamCb func(context.Context, StreamChunk) error) (Response, error) {
			var callback StreamCallback
			if streamCb != nil {
				callback = func(ctx context.Context, chunk StreamChunk) error {
					return streamCb(ctx, chunk)
				}
			}

			resp, err := agent.ChatStream(ctx, req, callback)
			if err != nil {
				return Response{}, err
			}
			return *resp, nil
		},
	)
}
