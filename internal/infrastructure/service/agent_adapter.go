package service

import (
	"context"

	"github.com/eval-hub/student-evaluation-hub/internal/application/command"
	"github.com/eval-hub/student-evaluation-hub/internal/infrastructure/external/agent"
)

// AgentInvokerAdapter adapts the agent.Client to the command.AgentInvoker
// interface.
type AgentInvokerAdapter struct {
	client *agent.Client
}

func NewAgentInvokerAdapter(client *agent.Client) *AgentInvokerAdapter {
	return &AgentInvokerAdapter{client: client}
}

func (a *AgentInvokerAdapter) Invoke(ctx context.Context, sessionID, inputText string) (command.ResponseStream, error) {
	stream, err := a.client.Invoke(ctx, sessionID, inputText)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
