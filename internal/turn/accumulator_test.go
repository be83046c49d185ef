package turn

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settled(a *Accumulator) bool {
	select {
	case <-a.Done():
		return true
	default:
		return false
	}
}

func apply(a *Accumulator, method, params string) {
	a.Apply(method, json.RawMessage(params))
}

func TestErrorNotificationSettles(t *testing.T) {
	a := NewAccumulator()
	require.False(t, settled(a))

	apply(a, "error", `{"message":"model overloaded"}`)

	assert.True(t, settled(a))
	assert.Equal(t, "model overloaded", a.Failure())
}

func TestErrorNotificationFallbackMessage(t *testing.T) {
	a := NewAccumulator()
	apply(a, "error", `{}`)
	assert.Equal(t, "backend reported an error", a.Failure())
}

func TestItemLevelMessageDoesNotSettle(t *testing.T) {
	a := NewAccumulator()
	apply(a, "item/completed", `{"item":{"type":"agentMessage","text":"partial answer"}}`)

	assert.False(t, settled(a))
	msg, ok := a.Resolve()
	assert.True(t, ok)
	assert.Equal(t, "partial answer", msg)
}

func TestNonAgentItemsIgnored(t *testing.T) {
	a := NewAccumulator()
	apply(a, "item/completed", `{"item":{"type":"commandExecution","text":"ls"}}`)
	apply(a, "item/completed", `{"item":{"type":"agentMessage"}}`) // no text

	_, ok := a.Resolve()
	assert.False(t, ok)
}

func TestTaskLevelWinsOverItemLevel(t *testing.T) {
	a := NewAccumulator()
	// Order must not matter: task-level is authoritative whenever observed.
	apply(a, "task/completed", `{"lastAgentMessage":"final answer"}`)
	apply(a, "item/completed", `{"item":{"type":"agentMessage","text":"stale answer"}}`)
	apply(a, "turn/completed", `{"turn":{"status":"completed"}}`)

	require.True(t, settled(a))
	assert.Empty(t, a.Failure())
	msg, ok := a.Resolve()
	assert.True(t, ok)
	assert.Equal(t, "final answer", msg)
}

func TestResolveFallsBackToItemLevel(t *testing.T) {
	a := NewAccumulator()
	apply(a, "item/completed", `{"item":{"type":"agentMessage","text":"item answer"}}`)
	apply(a, "turn/completed", `{"turn":{"status":"completed"}}`)

	msg, ok := a.Resolve()
	assert.True(t, ok)
	assert.Equal(t, "item answer", msg)
}

func TestTurnCompletedFailedStatus(t *testing.T) {
	a := NewAccumulator()
	apply(a, "turn/completed", `{"turn":{"status":"failed"}}`)

	assert.True(t, settled(a))
	assert.Equal(t, "turn failed", a.Failure())
}

func TestTurnCompletedExplicitErrorWins(t *testing.T) {
	a := NewAccumulator()
	apply(a, "error", `{"message":"first error"}`)
	apply(a, "turn/completed", `{"turn":{"status":"failed","error":{"message":"explicit reason"}}}`)

	assert.Equal(t, "explicit reason", a.Failure())
}

func TestSettleIsOneShot(t *testing.T) {
	a := NewAccumulator()
	apply(a, "error", `{"message":"x"}`)
	// A second settling event must not re-close the channel.
	apply(a, "turn/completed", `{"turn":{"status":"completed"}}`)
	assert.True(t, settled(a))
}

func TestUnknownNotificationsIgnored(t *testing.T) {
	a := NewAccumulator()
	apply(a, "thread/tokenCount", `{"count":1234}`)
	apply(a, "item/started", `{"item":{"type":"agentMessage"}}`)

	assert.False(t, settled(a))
	_, ok := a.Resolve()
	assert.False(t, ok)
}
