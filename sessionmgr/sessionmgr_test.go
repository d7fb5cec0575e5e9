package sessionmgr

import (
	"context"
	"testing"

	"github.com/amcp-dev/amcp/agent"
	"github.com/amcp-dev/amcp/config"
	"github.com/amcp-dev/amcp/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		LLMClient: "mock",
		Model:     "mock-model",
		Toolsets: []config.Toolset{
			{Name: "default", Tools: []string{}},
		},
	}
}

func TestCreateGetListDeleteSession(t *testing.T) {
	mgr := New(testConfig(), DefaultConfig())

	managed, err := mgr.CreateSession(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, managed.Status())

	got, err := mgr.GetSession(managed.ID)
	require.NoError(t, err)
	assert.Equal(t, managed.ID, got.ID)

	assert.Len(t, mgr.ListSessions(), 1)

	require.NoError(t, mgr.DeleteSession(managed.ID))
	_, err = mgr.GetSession(managed.ID)
	assert.Error(t, err)
}

func TestMaxSessionsReached(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSessions = 1
	mgr := New(testConfig(), cfg)

	_, err := mgr.CreateSession(context.Background(), "", "")
	require.NoError(t, err)

	_, err = mgr.CreateSession(context.Background(), "", "")
	assert.Error(t, err)
}

func TestPromptSessionUnknownID(t *testing.T) {
	mgr := New(testConfig(), DefaultConfig())
	err := mgr.PromptSession(context.Background(), "does-not-exist", "hello", PromptOptions{}, agent.ProcessCallbacks{})
	assert.Error(t, err)
}

func TestCancelUnknownSession(t *testing.T) {
	mgr := New(testConfig(), DefaultConfig())
	err := mgr.CancelSession("does-not-exist", false)
	assert.Error(t, err)
}

func TestDefaultAgentName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultAgent = "reviewer"
	mgr := New(testConfig(), cfg)
	assert.Equal(t, "reviewer", mgr.DefaultAgentName())
}

func TestPromptSessionReturnsBusyWhenAlreadyRunning(t *testing.T) {
	mgr := New(testConfig(), DefaultConfig())
	managed, err := mgr.CreateSession(context.Background(), "", "")
	require.NoError(t, err)

	require.True(t, mgr.queues.Acquire(managed.ID))
	defer mgr.queues.Release(managed.ID)

	err = mgr.PromptSession(context.Background(), managed.ID, "hello", PromptOptions{Priority: queue.PriorityNormal, ConflictStrategy: ConflictQueue}, agent.ProcessCallbacks{})
	assert.Error(t, err)
	assert.Equal(t, 1, mgr.QueueStatus(managed.ID).QueuedCount)
}

func TestPromptSessionRejectsWhenBusyAndConflictStrategyReject(t *testing.T) {
	mgr := New(testConfig(), DefaultConfig())
	managed, err := mgr.CreateSession(context.Background(), "", "")
	require.NoError(t, err)

	require.True(t, mgr.queues.Acquire(managed.ID))
	defer mgr.queues.Release(managed.ID)

	err = mgr.PromptSession(context.Background(), managed.ID, "hello", PromptOptions{ConflictStrategy: ConflictReject}, agent.ProcessCallbacks{})
	assert.Error(t, err)
	assert.Equal(t, 0, mgr.QueueStatus(managed.ID).QueuedCount, "reject must not enqueue")
}

func TestPromptSessionQueuesAtRequestedPriority(t *testing.T) {
	mgr := New(testConfig(), DefaultConfig())
	managed, err := mgr.CreateSession(context.Background(), "", "")
	require.NoError(t, err)

	require.True(t, mgr.queues.Acquire(managed.ID))
	defer mgr.queues.Release(managed.ID)

	err = mgr.PromptSession(context.Background(), managed.ID, "urgent one", PromptOptions{Priority: queue.PriorityUrgent, ConflictStrategy: ConflictQueue}, agent.ProcessCallbacks{})
	assert.Error(t, err)

	msg, ok := mgr.queues.Peek(managed.ID)
	require.True(t, ok)
	assert.Equal(t, queue.PriorityUrgent, msg.Priority)
}

func TestDrainOnceRunsQueuedPromptOnceIdle(t *testing.T) {
	mgr := New(testConfig(), DefaultConfig())
	managed, err := mgr.CreateSession(context.Background(), "", "")
	require.NoError(t, err)

	require.True(t, mgr.queues.Acquire(managed.ID))
	queued, _ := mgr.queues.EnqueueIfBusy(managed.ID, "hello", nil, queue.PriorityNormal, nil)
	require.True(t, queued)
	mgr.queues.Release(managed.ID)

	mgr.drainOnce(context.Background())

	assert.Equal(t, 0, mgr.QueueStatus(managed.ID).QueuedCount)
	assert.Equal(t, 1, managed.MessageCount())
}
