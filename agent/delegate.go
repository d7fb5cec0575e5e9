package agent

import (
	"context"

	"github.com/amcp-dev/amcp/errors"
	"github.com/amcp-dev/amcp/session"
)

// Delegate implements tools.Delegator: it runs agentType as an independent,
// in-memory sub-agent against prompt and returns its final assistant
// message. description is carried through only for the caller's own
// observability (OnToolCall sees it as part of the task call's arguments).
func (a *Agent) Delegate(ctx context.Context, agentType, prompt, description string) (string, error) {
	spec, ok := a.findAgentSpec(agentType)
	if !ok {
		return "", errors.New("no agent spec named '%s' is registered for delegation", agentType)
	}

	subSession, err := session.New("")
	if err != nil {
		return "", errors.Wrapf(err, "failed to create delegated sub-session")
	}
	subSession.Mode = a.Session.Mode

	toolsetName := spec.Toolset
	if toolsetName == "" {
		toolsetName = a.toolsetName
	}

	sub, err := New(a.Config, subSession, toolsetName, ModeAuto, a.LLMClient, ToolVerbosityNone)
	if err != nil {
		return "", errors.Wrapf(err, "failed to build delegated sub-agent '%s'", agentType)
	}

	if spec.SystemPrompt != "" {
		sub.Session.AddMessage(session.Message{Role: "system", Content: spec.SystemPrompt})
	}

	var final string
	callbacks := ProcessCallbacks{
		OnAssistantMessage: func(message string) { final = message },
	}
	if err := sub.ProcessUserInput(ctx, prompt, callbacks); err != nil {
		return "", errors.Wrapf(err, "delegated sub-agent '%s' failed", agentType)
	}
	return final, nil
}

func (a *Agent) findAgentSpec(name string) (session.AgentSpec, bool) {
	for _, spec := range a.Session.AgentSpecs {
		if spec.Name == name {
			return spec, true
		}
	}
	return session.AgentSpec{}, false
}
