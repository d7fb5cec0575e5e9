package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseGatesConcurrentTurns(t *testing.T) {
	m := NewManager()
	assert.True(t, m.Acquire("s1"))
	assert.False(t, m.Acquire("s1"))
	assert.True(t, m.IsBusy("s1"))

	m.Release("s1")
	assert.False(t, m.IsBusy("s1"))
	assert.True(t, m.Acquire("s1"))
}

func TestEnqueueIfBusyOnlyQueuesWhenBusy(t *testing.T) {
	m := NewManager()
	queued, msg := m.EnqueueIfBusy("s1", "hello", nil, PriorityNormal, nil)
	assert.False(t, queued)
	assert.Nil(t, msg)

	m.Acquire("s1")
	queued, msg = m.EnqueueIfBusy("s1", "hello", nil, PriorityNormal, nil)
	require.True(t, queued)
	require.NotNil(t, msg)
	assert.Equal(t, "hello", msg.Prompt)
	assert.Equal(t, 1, m.QueuedCount("s1"))
}

func TestDequeueOrdersByPriorityThenFIFO(t *testing.T) {
	m := NewManager()
	m.Enqueue("s1", "first", nil, PriorityNormal, nil)
	m.Enqueue("s1", "urgent", nil, PriorityUrgent, nil)
	m.Enqueue("s1", "second", nil, PriorityNormal, nil)

	first, ok := m.Dequeue("s1")
	require.True(t, ok)
	assert.Equal(t, "urgent", first.Prompt)

	second, ok := m.Dequeue("s1")
	require.True(t, ok)
	assert.Equal(t, "first", second.Prompt)

	third, ok := m.Dequeue("s1")
	require.True(t, ok)
	assert.Equal(t, "second", third.Prompt)

	_, ok = m.Dequeue("s1")
	assert.False(t, ok)
}

func TestClearQueueDiscardsEverything(t *testing.T) {
	m := NewManager()
	m.Enqueue("s1", "a", nil, PriorityNormal, nil)
	m.Enqueue("s1", "b", nil, PriorityNormal, nil)

	n := m.ClearQueue("s1")
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, m.QueuedCount("s1"))
}

func TestGetStatusReportsBusyAndQueuedPrompts(t *testing.T) {
	m := NewManager()
	m.Acquire("s1")
	m.Enqueue("s1", "next", nil, PriorityNormal, nil)

	status := m.GetStatus("s1")
	assert.True(t, status.IsBusy)
	assert.Equal(t, 1, status.QueuedCount)
	assert.Equal(t, []string{"next"}, status.QueuedPrompts)
}

func TestBusySessionsListsOnlyAcquired(t *testing.T) {
	m := NewManager()
	m.Acquire("s1")
	m.Acquire("s2")
	m.Release("s2")

	assert.ElementsMatch(t, []string{"s1"}, m.BusySessions())
	assert.True(t, m.AnyBusy())
}
