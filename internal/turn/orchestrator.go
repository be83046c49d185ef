package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dbrandt/legate/internal/domain"
	"github.com/dbrandt/legate/internal/logging"
	"github.com/dbrandt/legate/internal/thread"
	"github.com/dbrandt/legate/internal/transport"
)

var (
	// ErrTimeout marks an operation that outlived the configured deadline.
	// The owning subprocess is torn down before this is returned.
	ErrTimeout = errors.New("turn: operation timed out")

	// ErrNoMessage marks a completed turn that resolved to a blank message.
	ErrNoMessage = errors.New("turn: backend returned no message")
)

// Transport is what the orchestrator needs from a spawned backend.
type Transport interface {
	thread.RPC
	Dispose()
}

// SpawnFunc creates one backend transport rooted at dir. Notifications go to
// notify for the lifetime of the process.
type SpawnFunc func(dir string, notify transport.NotifyFunc) (Transport, error)

// Config configures the orchestrator.
type Config struct {
	Binary  string
	Args    []string
	Timeout time.Duration // zero disables the overall deadline
}

// Result is the outcome of one successful turn.
type Result struct {
	ThreadID string      `json:"threadId"`
	Model    string      `json:"model"`
	Mode     domain.Mode `json:"mode"`
	Message  string      `json:"message"`
	Cwd      string      `json:"cwd"`
}

// Orchestrator runs create-thread and run-turn operations, spawning one
// backend process per call.
type Orchestrator struct {
	cfg   Config
	spawn SpawnFunc
	log   *logging.Logger
}

// New creates an orchestrator that spawns the configured backend binary.
func New(cfg Config, log *logging.Logger) *Orchestrator {
	o := &Orchestrator{cfg: cfg, log: log.Named("turn")}
	o.spawn = func(dir string, notify transport.NotifyFunc) (Transport, error) {
		return transport.Spawn(transport.SpawnOpts{
			Binary: cfg.Binary,
			Args:   cfg.Args,
			Dir:    dir,
		}, notify, log)
	}
	return o
}

// CreateThread opens a fresh backend thread and returns a new session in the
// requested mode.
func (o *Orchestrator) CreateThread(ctx context.Context, mode domain.Mode, cwd string) (*domain.Session, error) {
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	client, err := o.spawn(cwd, nil)
	if err != nil {
		return nil, err
	}
	defer client.Dispose()

	if err := thread.Initialize(ctx, client); err != nil {
		return nil, o.mapTimeout(ctx, err)
	}
	info, err := thread.Start(ctx, client, cwd)
	if err != nil {
		return nil, o.mapTimeout(ctx, err)
	}

	o.log.Info().Str("threadId", info.ThreadID).Str("cwd", cwd).Str("mode", string(mode)).Msg("thread created")

	return &domain.Session{
		ThreadID: info.ThreadID,
		Mode:     mode,
		Model:    info.Model,
		Cwd:      cwd,
	}, nil
}

// turnInput is one text input block for turn/start.
type turnInput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type turnStartParams struct {
	ThreadID          string             `json:"threadId"`
	Input             []turnInput        `json:"input"`
	CollaborationMode thread.ModePayload `json:"collaborationMode"`
}

// RunTurn relays one prompt through the backend and waits for the settled
// answer. sess may be nil for a first-contact turn.
func (o *Orchestrator) RunTurn(ctx context.Context, prompt string, mode domain.Mode, sess *domain.Session, cwd string) (*Result, error) {
	ctx, cancel := o.withDeadline(ctx)
	defer cancel()

	acc := NewAccumulator()
	client, err := o.spawn(cwd, acc.Apply)
	if err != nil {
		return nil, err
	}
	defer client.Dispose()

	if err := thread.Initialize(ctx, client); err != nil {
		return nil, o.mapTimeout(ctx, err)
	}

	masks, err := thread.ListModes(ctx, client)
	if err != nil {
		return nil, o.mapTimeout(ctx, err)
	}

	info, err := thread.Open(ctx, client, sess, cwd)
	if err != nil {
		return nil, o.mapTimeout(ctx, err)
	}

	model := info.Model
	if model == "" && sess != nil {
		model = sess.Model
	}

	payload, err := thread.SelectMode(masks, mode, model)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if _, err := client.Request(ctx, "turn/start", turnStartParams{
		ThreadID:          info.ThreadID,
		Input:             []turnInput{{Type: "text", Text: prompt}},
		CollaborationMode: payload,
	}); err != nil {
		return nil, o.mapTimeout(ctx, err)
	}

	select {
	case <-acc.Done():
	case <-ctx.Done():
		return nil, o.mapTimeout(ctx, ctx.Err())
	}

	if failure := acc.Failure(); failure != "" {
		return nil, fmt.Errorf("turn: %s", failure)
	}

	message, ok := acc.Resolve()
	message = strings.TrimSpace(message)
	if !ok || message == "" {
		return nil, ErrNoMessage
	}

	o.log.Info().
		Str("threadId", info.ThreadID).
		Str("model", model).
		Dur("duration", time.Since(start)).
		Msg("turn completed")

	return &Result{
		ThreadID: info.ThreadID,
		Model:    model,
		Mode:     mode,
		Message:  message,
		Cwd:      cwd,
	}, nil
}

func (o *Orchestrator) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.Timeout)
}

// mapTimeout converts a deadline expiry into the distinct timeout error class.
func (o *Orchestrator) mapTimeout(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, o.cfg.Timeout)
	}
	return err
}
