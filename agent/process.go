package agent

import (
	"context"
	"fmt"

	"github.com/amcp-dev/amcp/eventbus"
	"github.com/amcp-dev/amcp/hooks"
	"github.com/amcp-dev/amcp/permission"
	"github.com/amcp-dev/amcp/session"
	"github.com/amcp-dev/amcp/telemetry"
	"github.com/amcp-dev/amcp/tools"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ProcessCallbacks lets a caller (terminal, ACP server, HTTP/WS handler)
// observe and steer a single ProcessUserInput call without the core loop
// knowing anything about its presentation.
type ProcessCallbacks struct {
	OnAssistantMessage func(message string)
	OnToolCall         func(toolCall session.ToolCall)
	OnToolResult       func(toolCall session.ToolCall, result string)
	ShouldExecuteTool  func(toolCall session.ToolCall) bool
	OnWarning          func(warning string)
}

func (c ProcessCallbacks) warn(format string, args ...interface{}) {
	if c.OnWarning != nil {
		c.OnWarning(fmt.Sprintf(format, args...))
	}
}

// maxToolTurns bounds the LLM<->tool loop so a misbehaving model cannot spin
// forever; it is generous enough to cover any realistic multi-step task.
const maxToolTurns = 50

// ProcessUserInput runs one full turn: it appends the user's message,
// repeatedly calls the LLM and dispatches any tool calls it asks for
// (sequentially — see permission and compaction notes in the module's
// design doc for why calls are never parallelized), and returns once the
// model produces a turn with no further tool calls or the turn is
// canceled. The session is saved after the turn completes, and compaction
// runs first if the transcript has grown past its threshold.
func (a *Agent) ProcessUserInput(ctx context.Context, text string, callbacks ProcessCallbacks) error {
	ctx, span := telemetry.Tracer().Start(ctx, "agent.process_user_input",
		trace.WithAttributes(attribute.String("session.id", a.Session.ID)))
	defer span.End()

	a.bus.Emit(eventbus.Event{Type: eventbus.AgentTurnStarted, SessionID: a.Session.ID})

	a.runHooks(ctx, hooks.UserPromptSubmit, hooks.Input{
		SessionID: a.Session.ID,
		Prompt:    text,
	}, callbacks)

	a.Session.AddMessage(session.Message{Role: "user", Content: text})

	if err := a.maybeCompact(ctx); err != nil {
		callbacks.warn("compaction failed: %v", err)
	}

	for turn := 0; turn < maxToolTurns; turn++ {
		if err := ctx.Err(); err != nil {
			a.bus.Emit(eventbus.Event{Type: eventbus.AgentTurnCanceled, SessionID: a.Session.ID})
			span.SetStatus(codes.Error, "canceled")
			return err
		}

		resp, err := a.LLMClient.Chat(ctx, a.Session.Snapshot(), a.AvailableTools, func(delta string) {
			a.bus.Emit(eventbus.Event{Type: eventbus.MessageChunk, SessionID: a.Session.ID, Payload: map[string]interface{}{"delta": delta}})
		})
		if err != nil {
			a.bus.Emit(eventbus.Event{Type: eventbus.Error, SessionID: a.Session.ID, Payload: map[string]interface{}{"error": err.Error()}})
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("LLM chat failed: %w", err)
		}

		a.Session.AddMessage(*resp)
		if resp.Content != "" && callbacks.OnAssistantMessage != nil {
			callbacks.OnAssistantMessage(resp.Content)
		}
		a.bus.Emit(eventbus.Event{Type: eventbus.MessageAssistant, SessionID: a.Session.ID, Payload: map[string]interface{}{"content": resp.Content}})

		if len(resp.ToolCalls) == 0 {
			break
		}

		for _, tc := range resp.ToolCalls {
			a.dispatchToolCall(ctx, tc, callbacks)
		}

		if err := a.maybeCompact(ctx); err != nil {
			callbacks.warn("compaction failed: %v", err)
		}
	}

	if err := a.Session.Save(); err != nil {
		callbacks.warn("failed to save session: %v", err)
	}

	a.bus.Emit(eventbus.Event{Type: eventbus.AgentTurnCompleted, SessionID: a.Session.ID})
	return nil
}

// dispatchToolCall runs the full per-call pipeline: confirmation callback,
// permission engine, PreToolUse hooks, execution, PostToolUse hooks, and
// finally appends the tool's result message to history.
func (a *Agent) dispatchToolCall(ctx context.Context, tc session.ToolCall, callbacks ProcessCallbacks) {
	ctx, span := telemetry.Tracer().Start(ctx, "agent.dispatch_tool_call",
		trace.WithAttributes(
			attribute.String("session.id", a.Session.ID),
			attribute.String("tool.name", tc.Name),
		))
	defer span.End()

	if callbacks.OnToolCall != nil {
		callbacks.OnToolCall(tc)
	}
	a.bus.Emit(eventbus.Event{Type: eventbus.ToolCallStarted, SessionID: a.Session.ID, Payload: map[string]interface{}{"tool": tc.Name}})

	if callbacks.ShouldExecuteTool != nil && !callbacks.ShouldExecuteTool(tc) {
		a.recordToolResult(tc, "tool call was not approved by the caller", callbacks)
		return
	}

	decision, err := a.permissions.Decide(ctx, permission.Request{
		SessionID: a.Session.ID,
		ToolName:  tc.Name,
		Path:      extractPathArg(tc.Args),
		Mode:      permission.Mode(a.Session.Mode),
	})
	if err != nil {
		a.recordToolResult(tc, fmt.Sprintf("permission check failed: %v", err), callbacks)
		return
	}
	if decision == permission.Deny {
		a.bus.Emit(eventbus.Event{Type: eventbus.PermissionDecided, SessionID: a.Session.ID, Payload: map[string]interface{}{"tool": tc.Name, "action": "deny"}})
		a.recordToolResult(tc, fmt.Sprintf("permission denied for tool '%s'", tc.Name), callbacks)
		return
	}
	a.bus.Emit(eventbus.Event{Type: eventbus.PermissionDecided, SessionID: a.Session.ID, Payload: map[string]interface{}{"tool": tc.Name, "action": string(decision)}})

	preOutputs := a.runHooks(ctx, hooks.PreToolUse, hooks.Input{
		SessionID: a.Session.ID,
		ToolName:  tc.Name,
		ToolInput: tc.Args,
	}, callbacks)
	for _, out := range preOutputs {
		if out.Decision == hooks.DecisionDeny {
			a.recordToolResult(tc, fmt.Sprintf("blocked by hook: %s", out.DecisionReason), callbacks)
			return
		}
		if out.UpdatedInput != nil {
			tc.Args = out.UpdatedInput
		}
	}

	tool, ok := a.registry.GetTool(tc.Name)
	if !ok {
		a.recordToolResult(tc, fmt.Sprintf("unknown tool '%s'", tc.Name), callbacks)
		a.bus.Emit(eventbus.Event{Type: eventbus.ToolCallFailed, SessionID: a.Session.ID, Payload: map[string]interface{}{"tool": tc.Name}})
		return
	}

	result := tool.Execute(ctx, tc.Args)
	content := result.Content

	postOutputs := a.runHooks(ctx, hooks.PostToolUse, hooks.Input{
		SessionID:    a.Session.ID,
		ToolName:     tc.Name,
		ToolInput:    tc.Args,
		ToolResponse: map[string]interface{}{"content": content, "success": result.Success},
	}, callbacks)
	for _, out := range postOutputs {
		if out.Decision == hooks.DecisionDeny {
			content = fmt.Sprintf("result withheld by hook: %s", out.DecisionReason)
		} else if out.UpdatedResponse != nil {
			if c, ok := out.UpdatedResponse["content"].(string); ok {
				content = c
			}
		}
	}

	if !result.Success {
		a.bus.Emit(eventbus.Event{Type: eventbus.ToolCallFailed, SessionID: a.Session.ID, Payload: map[string]interface{}{"tool": tc.Name}})
		span.SetStatus(codes.Error, content)
	} else {
		a.bus.Emit(eventbus.Event{Type: eventbus.ToolCallCompleted, SessionID: a.Session.ID, Payload: map[string]interface{}{"tool": tc.Name}})
	}

	a.recordToolResult(tc, content, callbacks)
}

// ExecuteTool runs a single named tool outside of a conversation turn, for
// a caller that wants to invoke it directly (the HTTP API's
// /tools/{name}/execute endpoint) rather than going through the LLM loop.
// It still goes through the permission engine and Pre/PostToolUse hooks,
// and publishes the same ToolCallStarted/Completed/Failed/PermissionDecided
// events dispatchToolCall does, but does not append anything to session
// history, since there is no turn for the result to belong to.
func (a *Agent) ExecuteTool(ctx context.Context, toolName string, args map[string]interface{}) (tools.ToolResult, error) {
	tool, ok := a.registry.GetTool(toolName)
	if !ok {
		return tools.ToolResult{}, fmt.Errorf("unknown tool '%s'", toolName)
	}

	decision, err := a.permissions.Decide(ctx, permission.Request{
		SessionID: a.Session.ID,
		ToolName:  toolName,
		Path:      extractPathArg(args),
		Mode:      permission.Mode(a.Session.Mode),
	})
	if err != nil {
		return tools.ToolResult{}, fmt.Errorf("permission check failed: %w", err)
	}
	if decision == permission.Deny {
		a.bus.Emit(eventbus.Event{Type: eventbus.PermissionDecided, SessionID: a.Session.ID, Payload: map[string]interface{}{"tool": toolName, "action": "deny"}})
		return tools.ToolResult{}, fmt.Errorf("permission denied for tool '%s'", toolName)
	}
	a.bus.Emit(eventbus.Event{Type: eventbus.PermissionDecided, SessionID: a.Session.ID, Payload: map[string]interface{}{"tool": toolName, "action": string(decision)}})

	preOutputs := a.runHooks(ctx, hooks.PreToolUse, hooks.Input{
		SessionID: a.Session.ID,
		ToolName:  toolName,
		ToolInput: args,
	}, ProcessCallbacks{})
	for _, out := range preOutputs {
		if out.Decision == hooks.DecisionDeny {
			return tools.ToolResult{}, fmt.Errorf("blocked by hook: %s", out.DecisionReason)
		}
		if out.UpdatedInput != nil {
			args = out.UpdatedInput
		}
	}

	a.bus.Emit(eventbus.Event{Type: eventbus.ToolCallStarted, SessionID: a.Session.ID, Payload: map[string]interface{}{"tool": toolName}})
	result := tool.Execute(ctx, args)

	postOutputs := a.runHooks(ctx, hooks.PostToolUse, hooks.Input{
		SessionID:    a.Session.ID,
		ToolName:     toolName,
		ToolInput:    args,
		ToolResponse: map[string]interface{}{"content": result.Content, "success": result.Success},
	}, ProcessCallbacks{})
	for _, out := range postOutputs {
		if out.Decision == hooks.DecisionDeny {
			result = tools.Fail(fmt.Errorf("result withheld by hook: %s", out.DecisionReason))
		} else if out.UpdatedResponse != nil {
			if c, ok := out.UpdatedResponse["content"].(string); ok {
				result.Content = c
			}
		}
	}

	if !result.Success {
		a.bus.Emit(eventbus.Event{Type: eventbus.ToolCallFailed, SessionID: a.Session.ID, Payload: map[string]interface{}{"tool": toolName}})
	} else {
		a.bus.Emit(eventbus.Event{Type: eventbus.ToolCallCompleted, SessionID: a.Session.ID, Payload: map[string]interface{}{"tool": toolName}})
	}
	return result, nil
}

func (a *Agent) recordToolResult(tc session.ToolCall, content string, callbacks ProcessCallbacks) {
	if callbacks.OnToolResult != nil {
		callbacks.OnToolResult(tc, content)
	}
	a.Session.AddMessage(session.Message{
		Role:      "tool",
		Content:   content,
		ToolCalls: []session.ToolCall{tc},
	})
}

// runHooks invokes the hook runner and surfaces a non-fatal execution error
// (not a hook's own blocking decision) to the caller as a warning.
func (a *Agent) runHooks(ctx context.Context, event hooks.Event, input hooks.Input, callbacks ProcessCallbacks) []hooks.Output {
	outputs, err := a.hookRunner.Run(ctx, event, input)
	if err != nil {
		callbacks.warn("hook error during %s: %v", event, err)
		a.bus.Emit(eventbus.Event{Type: eventbus.HookFailed, SessionID: a.Session.ID, Payload: map[string]interface{}{"event": string(event), "error": err.Error()}})
	}
	for range outputs {
		a.bus.Emit(eventbus.Event{Type: eventbus.HookInvoked, SessionID: a.Session.ID, Payload: map[string]interface{}{"event": string(event)}})
	}
	return outputs
}

func (a *Agent) maybeCompact(ctx context.Context) error {
	messages := a.Session.Snapshot()
	if !a.compactor.ShouldCompact(messages) {
		return nil
	}
	a.runHooks(ctx, hooks.PreCompact, hooks.Input{SessionID: a.Session.ID}, ProcessCallbacks{})
	compacted, _ := a.compactor.Compact(ctx, a.Session.ID, messages)
	a.Session.Replace(compacted)
	return nil
}

// extractPathArg best-effort-extracts a filesystem path from a tool call's
// arguments, checking the argument names the built-in tools actually use.
func extractPathArg(args map[string]interface{}) string {
	for _, key := range []string{"path", "file_path", "command"} {
		if v, ok := args[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
