// Package hooks runs user-configured external commands at fixed points in
// the agent lifecycle (PreToolUse, PostToolUse, UserPromptSubmit,
// SessionStart, SessionEnd, Stop, PreCompact, Notification), feeding them a
// JSON document on stdin and interpreting their exit code and stdout as a
// decision. The contract is grounded on the reference hooks manager: exit 0
// means success (stdout may carry JSON or be used verbatim as feedback),
// exit 2 means a blocking denial, any other code is a non-blocking failure
// that is logged and ignored.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/amcp-dev/amcp/telemetry"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Event names a point in the agent lifecycle a handler can bind to.
type Event string

const (
	PreToolUse       Event = "PreToolUse"
	PostToolUse      Event = "PostToolUse"
	UserPromptSubmit Event = "UserPromptSubmit"
	SessionStart     Event = "SessionStart"
	SessionEnd       Event = "SessionEnd"
	Stop             Event = "Stop"
	PreCompact       Event = "PreCompact"
	Notification     Event = "Notification"
)

// Decision is the permission-relevant outcome of a PreToolUse/PostToolUse
// hook.
type Decision string

const (
	DecisionContinue Decision = "continue"
	DecisionAllow    Decision = "allow"
	DecisionDeny     Decision = "deny"
	DecisionAsk      Decision = "ask"
)

// Handler is one configured hook: a shell command run when Matcher matches
// the tool name. Non-tool events have no tool name, so only an empty or "*"
// matcher runs for them.
type Handler struct {
	Matcher string        `toml:"matcher" json:"matcher"`
	Command string        `toml:"command" json:"command"`
	Timeout time.Duration `toml:"timeout" json:"timeout"`
	Enabled bool          `toml:"enabled" json:"enabled"`
}

// Matches reports whether h should run for toolName. An empty or "*"
// matcher always matches; otherwise the matcher is a regex anchored at both
// ends, falling back to an exact string match if it fails to compile.
func (h Handler) Matches(toolName string) bool {
	if toolName == "" {
		return h.Matcher == "" || h.Matcher == "*"
	}
	if h.Matcher == "" || h.Matcher == "*" {
		return true
	}
	re, err := regexp.Compile("^(" + h.Matcher + ")$")
	if err != nil {
		return h.Matcher == toolName
	}
	return re.MatchString(toolName)
}

// Input is the JSON document written to a hook's stdin.
type Input struct {
	SessionID     string                 `json:"session_id"`
	HookEventName Event                  `json:"hook_event_name"`
	Cwd           string                 `json:"cwd"`
	ToolName      string                 `json:"tool_name,omitempty"`
	ToolInput     map[string]interface{} `json:"tool_input,omitempty"`
	ToolResponse  map[string]interface{} `json:"tool_response,omitempty"`
	ToolUseID     string                 `json:"tool_use_id,omitempty"`
	Prompt        string                 `json:"prompt,omitempty"`
	Message       string                 `json:"message,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Output is the normalized result of running one hook.
type Output struct {
	Success           bool
	ContinueExecution bool
	StopReason        string
	Decision          Decision
	DecisionReason    string
	UpdatedInput      map[string]interface{}
	UpdatedResponse   map[string]interface{}
	Feedback          string
	SystemMessage     string
	SuppressOutput    bool
	ExitCode          int
	Stdout            string
	Stderr            string
}

type jsonOutput struct {
	Continue        *bool                  `json:"continue"`
	StopReason      string                 `json:"stopReason"`
	SuppressOutput  *bool                  `json:"suppressOutput"`
	SystemMessage   string                 `json:"systemMessage"`
	Feedback        string                 `json:"feedback"`
	HookSpecific    map[string]interface{} `json:"hookSpecificOutput"`
}

// fromExitCode classifies a completed hook invocation the way the reference
// implementation does: 0 is success (parse stdout as JSON if it looks like
// JSON, otherwise treat it as plain feedback text), 2 is a blocking denial,
// anything else is a non-blocking failure that does not stop the pipeline.
func fromExitCode(event Event, exitCode int, stdout, stderr string) Output {
	out := Output{ExitCode: exitCode, Stdout: stdout, Stderr: stderr, Decision: DecisionContinue}

	switch {
	case exitCode == 0:
		out.Success = true
		out.ContinueExecution = true
		if s := strings.TrimSpace(stdout); s != "" {
			var parsed jsonOutput
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				applyJSON(&out, event, parsed)
			} else {
				out.Feedback = s
			}
		}
	case exitCode == 2:
		out.Success = false
		out.ContinueExecution = true
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = "hook returned blocking error"
		}
		out.Feedback = msg
		out.Decision = DecisionDeny
		out.DecisionReason = msg
	default:
		out.Success = false
		out.ContinueExecution = true
	}
	return out
}

func applyJSON(out *Output, event Event, data jsonOutput) {
	if data.Continue != nil {
		out.ContinueExecution = *data.Continue
	}
	if data.StopReason != "" {
		out.StopReason = data.StopReason
	}
	if data.SuppressOutput != nil {
		out.SuppressOutput = *data.SuppressOutput
	}
	if data.SystemMessage != "" {
		out.SystemMessage = data.SystemMessage
	}
	if data.Feedback != "" {
		out.Feedback = data.Feedback
	}
	if data.HookSpecific == nil {
		return
	}
	switch event {
	case PreToolUse:
		if v, ok := data.HookSpecific["permissionDecision"].(string); ok {
			out.Decision = Decision(strings.ToLower(v))
		}
		if v, ok := data.HookSpecific["permissionDecisionReason"].(string); ok {
			out.DecisionReason = v
		}
		if v, ok := data.HookSpecific["updatedInput"].(map[string]interface{}); ok {
			out.UpdatedInput = v
		}
	case PostToolUse:
		if v, ok := data.HookSpecific["decision"].(string); ok && v == "block" {
			out.Decision = DecisionDeny
			if r, ok := data.HookSpecific["reason"].(string); ok {
				out.DecisionReason = r
			}
		}
		if v, ok := data.HookSpecific["updatedResponse"].(map[string]interface{}); ok {
			out.UpdatedResponse = v
		}
	case Stop:
		if v, ok := data.HookSpecific["decision"].(string); ok && v == "block" {
			out.ContinueExecution = true
		}
	}
}

// Runner executes the configured handlers for each event.
type Runner struct {
	handlers map[Event][]Handler
	cwd      string
}

// NewRunner builds a Runner from handlers keyed by event, bound to cwd
// (exposed to hooks as AMCP_PROJECT_DIR and the Input.Cwd field).
func NewRunner(cwd string, handlers map[Event][]Handler) *Runner {
	return &Runner{handlers: handlers, cwd: cwd}
}

// Run executes every enabled handler registered for event whose matcher
// matches input.ToolName, in configuration order, and aggregates their
// outputs. A handler that times out degrades open: it is treated as a
// non-blocking failure (ContinueExecution stays true) rather than aborting
// the whole chain, since a hung validator should not wedge the agent loop.
func (r *Runner) Run(ctx context.Context, event Event, input Input) ([]Output, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "hooks.run",
		trace.WithAttributes(
			attribute.String("hook.event", string(event)),
			attribute.String("hook.tool_name", input.ToolName),
		))
	defer span.End()

	input.HookEventName = event
	if input.Cwd == "" {
		input.Cwd = r.cwd
	}

	var outputs []Output
	var errs *multierror.Error
	for _, h := range r.handlers[event] {
		if !h.Enabled || !h.Matches(input.ToolName) {
			continue
		}
		out, err := r.runOne(ctx, h, input)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		outputs = append(outputs, out)
	}
	return outputs, errs.ErrorOrNil()
}

func (r *Runner) runOne(ctx context.Context, h Handler, input Input) (Output, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return Output{}, fmt.Errorf("hook %q: marshal input: %w", h.Matcher, err)
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", h.Command)
	cmd.Dir = r.cwd
	cmd.Env = append(cmd.Environ(), "AMCP_PROJECT_DIR="+r.cwd, "AMCP_SESSION_ID="+input.SessionID)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() != nil {
		// Degrade open: a timed-out hook never blocks the pipeline.
		return Output{Success: false, ContinueExecution: true, Stdout: stdout.String(), Stderr: stderr.String()}, nil
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Output{}, fmt.Errorf("hook %q: %w", h.Matcher, runErr)
		}
	}
	return fromExitCode(input.HookEventName, exitCode, stdout.String(), stderr.String()), nil
}
