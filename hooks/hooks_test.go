package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerMatchesRegexAndWildcard(t *testing.T) {
	h := Handler{Matcher: "bash|write_file"}
	assert.True(t, h.Matches("bash"))
	assert.True(t, h.Matches("write_file"))
	assert.False(t, h.Matches("read_file"))

	wild := Handler{Matcher: "*"}
	assert.True(t, wild.Matches("anything"))

	empty := Handler{}
	assert.True(t, empty.Matches("anything"))
}

func TestRunSkipsDisabledAndNonMatchingHandlers(t *testing.T) {
	r := NewRunner(t.TempDir(), map[Event][]Handler{
		PreToolUse: {
			{Matcher: "bash", Command: "echo skip", Enabled: false},
			{Matcher: "write_file", Command: "echo skip", Enabled: true},
			{Matcher: "bash", Command: "echo ok", Enabled: true},
		},
	})

	outputs, err := r.Run(context.Background(), PreToolUse, Input{ToolName: "bash"})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.True(t, outputs[0].Success)
	assert.Equal(t, "ok", outputs[0].Feedback)
}

func TestRunExitCode2IsBlockingDenial(t *testing.T) {
	r := NewRunner(t.TempDir(), map[Event][]Handler{
		PreToolUse: {{Matcher: "*", Command: "echo denied 1>&2; exit 2", Enabled: true}},
	})

	outputs, err := r.Run(context.Background(), PreToolUse, Input{ToolName: "bash"})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.False(t, outputs[0].Success)
	assert.Equal(t, DecisionDeny, outputs[0].Decision)
	assert.Equal(t, "denied", outputs[0].DecisionReason)
}

func TestRunOtherExitCodeIsNonBlockingFailure(t *testing.T) {
	r := NewRunner(t.TempDir(), map[Event][]Handler{
		PostToolUse: {{Matcher: "*", Command: "exit 7", Enabled: true}},
	})

	outputs, err := r.Run(context.Background(), PostToolUse, Input{ToolName: "bash"})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.False(t, outputs[0].Success)
	assert.True(t, outputs[0].ContinueExecution)
}

func TestRunParsesJSONHookSpecificOutput(t *testing.T) {
	cmd := `echo '{"hookSpecificOutput":{"permissionDecision":"deny","permissionDecisionReason":"nope"}}'`
	r := NewRunner(t.TempDir(), map[Event][]Handler{
		PreToolUse: {{Matcher: "*", Command: cmd, Enabled: true}},
	})

	outputs, err := r.Run(context.Background(), PreToolUse, Input{ToolName: "bash"})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, DecisionDeny, outputs[0].Decision)
	assert.Equal(t, "nope", outputs[0].DecisionReason)
}

func TestFromExitCodePlainStdoutBecomesFeedback(t *testing.T) {
	out := fromExitCode(Stop, 0, "plain text\n", "")
	assert.True(t, out.Success)
	assert.Equal(t, "plain text", out.Feedback)
}
