package tools

import (
	"context"

	"github.com/amcp-dev/amcp/errors"
)

// Delegator runs a sub-agent to completion and returns its final answer.
// The agent package implements this and wires it in via
// ToolRegistry.SetTaskDelegator, breaking what would otherwise be an import
// cycle between tools and agent.
type Delegator interface {
	Delegate(ctx context.Context, agentType, prompt, description string) (string, error)
}

// TaskTool delegates a sub-task to a named AgentSpec, running it as an
// independent agent loop and returning its final answer as this call's
// result.
type TaskTool struct {
	delegator Delegator
}

func (t *TaskTool) Name() string { return "task" }
func (t *TaskTool) Description() string {
	return "Delegates a self-contained task to a named sub-agent and returns its final answer."
}
func (t *TaskTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"agent_type":  map[string]interface{}{"type": "string"},
			"prompt":      map[string]interface{}{"type": "string"},
			"description": map[string]interface{}{"type": "string"},
		},
		"required": []string{"agent_type", "prompt"},
	}
}

func (t *TaskTool) Execute(ctx context.Context, args map[string]interface{}) ToolResult {
	if t.delegator == nil {
		return Fail(errors.New("task delegation is not available in this context"))
	}
	agentType, ok := args["agent_type"].(string)
	if !ok {
		return Fail(errors.New("missing or invalid 'agent_type' argument"))
	}
	prompt, ok := args["prompt"].(string)
	if !ok {
		return Fail(errors.New("missing or invalid 'prompt' argument"))
	}
	description, _ := args["description"].(string)

	result, err := t.delegator.Delegate(ctx, agentType, prompt, description)
	if err != nil {
		return Fail(err)
	}
	return Ok(result)
}
