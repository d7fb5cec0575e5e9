package protocol

import (
	"strings"
	"testing"

	"github.com/amcp-dev/amcp/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToWSMessage(t *testing.T) {
	a := New()
	ev := eventbus.Event{Type: eventbus.ToolCallStarted, SessionID: "s1", Payload: map[string]interface{}{"tool": "bash"}}
	msg := a.ToWSMessage(ev, "req-1")
	assert.Equal(t, string(eventbus.ToolCallStarted), msg["type"])
	assert.Equal(t, "req-1", msg["id"])
}

func TestToSSEData(t *testing.T) {
	a := New()
	ev := eventbus.Event{Type: eventbus.MessageAssistant, SessionID: "s1"}
	data, err := a.ToSSEData(ev)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(data, "data: "))
	assert.True(t, strings.HasSuffix(data, "\n\n"))
}

func TestACPUpdateRoundTrip(t *testing.T) {
	a := New()
	ev := eventbus.Event{
		Type:      eventbus.ToolCallStarted,
		SessionID: "s1",
		Payload:   map[string]interface{}{"tool": "bash"},
	}
	update, ok := a.ToACPUpdate(ev)
	require.True(t, ok)
	assert.Equal(t, "tool_call", update["sessionUpdate"])

	back, ok := a.FromACPUpdate("s1", update)
	require.True(t, ok)
	assert.Equal(t, eventbus.ToolCallStarted, back.Type)
	assert.Equal(t, "bash", back.Payload["tool"])
}

func TestToACPUpdateUnknownEventType(t *testing.T) {
	a := New()
	_, ok := a.ToACPUpdate(eventbus.Event{Type: eventbus.SessionCreated})
	assert.False(t, ok)
}

func TestWrapError(t *testing.T) {
	err := NewError(ErrSessionNotFound, "session not found: abc")
	wrapped := WrapError(err)
	assert.Equal(t, ErrSessionNotFound, wrapped.Code)

	body, status := wrapped.ToHTTPResponse()
	assert.Equal(t, 404, status)
	assert.Equal(t, string(ErrSessionNotFound), body["code"])
}

func TestWrapErrorDefaultsToInternal(t *testing.T) {
	wrapped := WrapError(assertErr("boom"))
	assert.Equal(t, ErrInternal, wrapped.Code)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
