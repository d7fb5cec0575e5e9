package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDispatchesInPriorityOrder(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var order []string

	b.Subscribe(ToolCallStarted, func(ctx context.Context, ev Event) {
		mu.Lock()
		order = append(order, "low")
		mu.Unlock()
	}, WithPriority(PriorityLow))
	b.Subscribe(ToolCallStarted, func(ctx context.Context, ev Event) {
		mu.Lock()
		order = append(order, "critical")
		mu.Unlock()
	}, WithPriority(PriorityCritical))
	b.Subscribe(ToolCallStarted, func(ctx context.Context, ev Event) {
		mu.Lock()
		order = append(order, "normal")
		mu.Unlock()
	})

	b.Emit(Event{Type: ToolCallStarted})
	assert.Equal(t, []string{"critical", "normal", "low"}, order)
}

func TestEmitFiltersBySessionID(t *testing.T) {
	b := New()
	var got []string
	b.Subscribe(SessionCreated, func(ctx context.Context, ev Event) {
		got = append(got, ev.SessionID)
	}, WithSessionFilter("s1"))

	b.Emit(Event{Type: SessionCreated, SessionID: "s2"})
	assert.Empty(t, got)

	b.Emit(Event{Type: SessionCreated, SessionID: "s1"})
	assert.Equal(t, []string{"s1"}, got)
}

func TestOnceUnsubscribesAfterFirstDispatch(t *testing.T) {
	b := New()
	calls := 0
	b.Subscribe(HookInvoked, func(ctx context.Context, ev Event) {
		calls++
	}, Once())

	b.Emit(Event{Type: HookInvoked})
	b.Emit(Event{Type: HookInvoked})
	assert.Equal(t, 1, calls)
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	b := New()
	calls := 0
	id := b.Subscribe(AgentTurnStarted, func(ctx context.Context, ev Event) { calls++ })
	b.Unsubscribe(id)
	b.Emit(Event{Type: AgentTurnStarted})
	assert.Equal(t, 0, calls)
}

func TestEmitStampsIDAndTime(t *testing.T) {
	b := New()
	done := make(chan Event, 1)
	b.Subscribe(Error, func(ctx context.Context, ev Event) { done <- ev })

	b.Emit(Event{Type: Error})

	select {
	case ev := <-done:
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Time.IsZero())
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestEmitAsyncReturnsWithoutWaitingForHandler(t *testing.T) {
	b := New()
	done := make(chan struct{})
	b.Subscribe(Error, func(ctx context.Context, ev Event) {
		<-done
	})

	start := time.Now()
	b.EmitAsync(Event{Type: Error})
	assert.Less(t, time.Since(start), 100*time.Millisecond, "EmitAsync must not block on a slow handler")
	close(done)
}

func TestSubscribeWildcardMatchesEveryType(t *testing.T) {
	b := New()
	var types []Type
	b.Subscribe("", func(ctx context.Context, ev Event) {
		types = append(types, ev.Type)
	})

	b.Emit(Event{Type: SessionCreated})
	b.Emit(Event{Type: ToolCallFailed})
	require.Len(t, types, 2)
	assert.Equal(t, SessionCreated, types[0])
	assert.Equal(t, ToolCallFailed, types[1])
}
