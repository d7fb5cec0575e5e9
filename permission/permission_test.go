package permission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRulesAllowReadDenySecrets(t *testing.T) {
	e := New(0)

	action, err := e.Decide(context.Background(), Request{ToolName: "read_file"})
	require.NoError(t, err)
	assert.Equal(t, Allow, action)

	action, err = e.Decide(context.Background(), Request{ToolName: "write_file", Path: "repo/.env"})
	require.NoError(t, err)
	assert.Equal(t, Deny, action)
}

func TestYoloModeAlwaysAllows(t *testing.T) {
	e := New(0)
	action, err := e.Decide(context.Background(), Request{ToolName: "bash", Mode: ModeYolo})
	require.NoError(t, err)
	assert.Equal(t, Allow, action)
}

func TestAskWithNoConfirmerDefaultsToDeny(t *testing.T) {
	e := New(0)
	action, err := e.Decide(context.Background(), Request{ToolName: "bash"})
	require.NoError(t, err)
	assert.Equal(t, Deny, action)
}

func TestAskResolvedByConfirmer(t *testing.T) {
	e := New(0)
	e.SetConfirmer(func(ctx context.Context, req Request) (Action, error) {
		return Allow, nil
	})
	action, err := e.Decide(context.Background(), Request{ToolName: "bash"})
	require.NoError(t, err)
	assert.Equal(t, Allow, action)
}

func TestAskTimesOutToDeny(t *testing.T) {
	e := New(10 * time.Millisecond)
	e.SetConfirmer(func(ctx context.Context, req Request) (Action, error) {
		<-ctx.Done()
		return Deny, ctx.Err()
	})
	action, err := e.Decide(context.Background(), Request{ToolName: "bash"})
	require.NoError(t, err)
	assert.Equal(t, Deny, action)
}

func TestSessionAlwaysAllowShadowsAskRule(t *testing.T) {
	e := New(0)
	e.ApproveAlways("s1", Rule{ToolPattern: "bash"})

	action, err := e.Decide(context.Background(), Request{SessionID: "s1", ToolName: "bash"})
	require.NoError(t, err)
	assert.Equal(t, Allow, action)

	action, err = e.Decide(context.Background(), Request{SessionID: "s2", ToolName: "bash"})
	require.NoError(t, err)
	assert.Equal(t, Deny, action)
}

func TestStrictModeIgnoresSessionAlwaysAllow(t *testing.T) {
	e := New(0)
	e.ApproveAlways("s1", Rule{ToolPattern: "bash"})

	action, err := e.Decide(context.Background(), Request{SessionID: "s1", ToolName: "bash", Mode: ModeStrict})
	require.NoError(t, err)
	assert.Equal(t, Deny, action)
}

func TestProjectRulesOverrideUserRules(t *testing.T) {
	e := New(0)
	e.SetUserRules([]Rule{{ToolPattern: "custom_tool", Action: Deny}})
	e.SetProjectRules([]Rule{{ToolPattern: "custom_tool", Action: Allow}})

	action, err := e.Decide(context.Background(), Request{ToolName: "custom_tool"})
	require.NoError(t, err)
	assert.Equal(t, Allow, action)
}

func TestClearApprovalsForgetsSessionRules(t *testing.T) {
	e := New(0)
	e.ApproveAlways("s1", Rule{ToolPattern: "bash"})
	e.ClearApprovals("s1")

	action, err := e.Decide(context.Background(), Request{SessionID: "s1", ToolName: "bash"})
	require.NoError(t, err)
	assert.Equal(t, Deny, action)
}

func TestYoloModeDoesNotOverrideDeny(t *testing.T) {
	e := New(0)
	action, err := e.Decide(context.Background(), Request{ToolName: "write_file", Path: "repo/.env", Mode: ModeYolo})
	require.NoError(t, err)
	assert.Equal(t, Deny, action)
}

func TestStrictModeAsksEvenForDefaultAllowTool(t *testing.T) {
	e := New(0)
	called := false
	e.SetConfirmer(func(ctx context.Context, req Request) (Action, error) {
		called = true
		return Allow, nil
	})

	action, err := e.Decide(context.Background(), Request{ToolName: "read_file", Mode: ModeStrict})
	require.NoError(t, err)
	assert.Equal(t, Allow, action)
	assert.True(t, called, "strict mode should route a default-allow tool through the confirmer instead of auto-allowing it")
}

func TestCommandPrefixGeneralizesKnownTools(t *testing.T) {
	assert.Equal(t, "git status*", CommandPrefix("git status --short"))
	assert.Equal(t, "npm run*", CommandPrefix("npm run build --watch"))
	assert.Equal(t, "ls*", CommandPrefix("ls -la"))
	assert.Equal(t, "*", CommandPrefix(""))
}
