package turn

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbrandt/legate/internal/domain"
	"github.com/dbrandt/legate/internal/logging"
	"github.com/dbrandt/legate/internal/transport"
)

// fakeTransport scripts backend responses and can emit notifications when
// turn/start arrives.
type fakeTransport struct {
	notify   transport.NotifyFunc
	respond  map[string]func(params any) (json.RawMessage, error)
	onTurn   []scriptedNotification
	calls    []string
	disposed atomic.Int32
}

type scriptedNotification struct {
	method string
	params string
}

func (f *fakeTransport) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	f.calls = append(f.calls, method)
	if method == "turn/start" {
		for _, n := range f.onTurn {
			f.notify(n.method, json.RawMessage(n.params))
		}
	}
	if fn, ok := f.respond[method]; ok {
		return fn(params)
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeTransport) Notify(method string, params any) error { return nil }

func (f *fakeTransport) Dispose() { f.disposed.Add(1) }

func defaultResponses() map[string]func(params any) (json.RawMessage, error) {
	return map[string]func(params any) (json.RawMessage, error){
		"collaborationMode/list": func(any) (json.RawMessage, error) {
			return json.RawMessage(`{"data":[
				{"name":"Default","mode":"default","reasoning_effort":"medium"},
				{"name":"Plan","mode":"plan","reasoning_effort":"high"}
			]}`), nil
		},
		"thread/start": func(any) (json.RawMessage, error) {
			return json.RawMessage(`{"threadId":"th_1","cwd":"/w","model":"gpt-x"}`), nil
		},
		"thread/resume": func(any) (json.RawMessage, error) {
			return json.RawMessage(`{"threadId":"th_old","cwd":"/w","model":"gpt-x"}`), nil
		},
	}
}

func newTestOrchestrator(f *fakeTransport, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		cfg: Config{Binary: "fake", Timeout: timeout},
		spawn: func(dir string, notify transport.NotifyFunc) (Transport, error) {
			f.notify = notify
			return f, nil
		},
		log: logging.Silent(),
	}
}

func TestCreateThread(t *testing.T) {
	f := &fakeTransport{respond: defaultResponses()}
	o := newTestOrchestrator(f, 0)

	sess, err := o.CreateThread(context.Background(), domain.ModePlan, "/w")
	require.NoError(t, err)
	assert.Equal(t, "th_1", sess.ThreadID)
	assert.Equal(t, domain.ModePlan, sess.Mode)
	assert.Equal(t, "gpt-x", sess.Model)
	assert.Equal(t, "/w", sess.Cwd)
	assert.Equal(t, []string{"initialize", "thread/start"}, f.calls)
	assert.Equal(t, int32(1), f.disposed.Load())
}

func TestRunTurnFreshSession(t *testing.T) {
	f := &fakeTransport{
		respond: defaultResponses(),
		onTurn: []scriptedNotification{
			{"item/completed", `{"item":{"type":"agentMessage","text":"draft"}}`},
			{"task/completed", `{"lastAgentMessage":"the answer"}`},
			{"turn/completed", `{"turn":{"status":"completed"}}`},
		},
	}
	o := newTestOrchestrator(f, 0)

	result, err := o.RunTurn(context.Background(), "hello", domain.ModeDefault, nil, "/w")
	require.NoError(t, err)
	assert.Equal(t, "the answer", result.Message)
	assert.Equal(t, "th_1", result.ThreadID)
	assert.Equal(t, "gpt-x", result.Model)
	assert.Equal(t, domain.ModeDefault, result.Mode)
	assert.Equal(t, "/w", result.Cwd)
	assert.Equal(t,
		[]string{"initialize", "collaborationMode/list", "thread/start", "turn/start"},
		f.calls)
	assert.Equal(t, int32(1), f.disposed.Load())
}

func TestRunTurnResumesPriorSession(t *testing.T) {
	f := &fakeTransport{
		respond: defaultResponses(),
		onTurn: []scriptedNotification{
			{"task/completed", `{"lastAgentMessage":"resumed answer"}`},
			{"turn/completed", `{"turn":{"status":"completed"}}`},
		},
	}
	o := newTestOrchestrator(f, 0)

	sess := &domain.Session{ThreadID: "th_old", Mode: domain.ModeDefault, Model: "gpt-x", Cwd: "/w"}
	result, err := o.RunTurn(context.Background(), "again", domain.ModeDefault, sess, "/w")
	require.NoError(t, err)
	assert.Equal(t, "th_old", result.ThreadID)
	assert.Contains(t, f.calls, "thread/resume")
	assert.NotContains(t, f.calls, "thread/start")
}

func TestRunTurnSurfacesTurnError(t *testing.T) {
	f := &fakeTransport{
		respond: defaultResponses(),
		onTurn: []scriptedNotification{
			{"error", `{"message":"usage limit reached"}`},
		},
	}
	o := newTestOrchestrator(f, 0)

	_, err := o.RunTurn(context.Background(), "hello", domain.ModeDefault, nil, "/w")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usage limit reached")
	assert.Equal(t, int32(1), f.disposed.Load())
}

func TestRunTurnBlankMessageFails(t *testing.T) {
	f := &fakeTransport{
		respond: defaultResponses(),
		onTurn: []scriptedNotification{
			{"task/completed", `{"lastAgentMessage":"   "}`},
			{"turn/completed", `{"turn":{"status":"completed"}}`},
		},
	}
	o := newTestOrchestrator(f, 0)

	_, err := o.RunTurn(context.Background(), "hello", domain.ModeDefault, nil, "/w")
	assert.ErrorIs(t, err, ErrNoMessage)
}

func TestRunTurnUnknownModeFails(t *testing.T) {
	f := &fakeTransport{respond: defaultResponses()}
	o := newTestOrchestrator(f, 0)

	_, err := o.RunTurn(context.Background(), "hello", domain.Mode("yolo"), nil, "/w")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
	assert.NotContains(t, f.calls, "turn/start")
	assert.Equal(t, int32(1), f.disposed.Load())
}

func TestRunTurnTimesOut(t *testing.T) {
	// The backend never settles the turn.
	f := &fakeTransport{respond: defaultResponses()}
	o := newTestOrchestrator(f, 50*time.Millisecond)

	start := time.Now()
	_, err := o.RunTurn(context.Background(), "hello", domain.ModeDefault, nil, "/w")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), f.disposed.Load())
}

func TestRunTurnModelFallsBackToSession(t *testing.T) {
	responses := defaultResponses()
	responses["thread/resume"] = func(any) (json.RawMessage, error) {
		return json.RawMessage(`{"threadId":"th_old","cwd":"/w"}`), nil
	}
	f := &fakeTransport{
		respond: responses,
		onTurn: []scriptedNotification{
			{"task/completed", `{"lastAgentMessage":"ok"}`},
			{"turn/completed", `{"turn":{"status":"completed"}}`},
		},
	}
	o := newTestOrchestrator(f, 0)

	sess := &domain.Session{ThreadID: "th_old", Model: "gpt-fallback", Cwd: "/w"}
	result, err := o.RunTurn(context.Background(), "hi", domain.ModeDefault, sess, "/w")
	require.NoError(t, err)
	assert.Equal(t, "gpt-fallback", result.Model)
}
