// Package routing binds chat adapters to the session store and the turn
// orchestrator.
package routing

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dbrandt/legate/internal/domain"
	"github.com/dbrandt/legate/internal/logging"
	"github.com/dbrandt/legate/internal/session"
	"github.com/dbrandt/legate/internal/transcript"
	"github.com/dbrandt/legate/internal/turn"
)

// maxTitleLen bounds the session title derived from the first prompt.
const maxTitleLen = 48

// Runner is the slice of the orchestrator the router uses.
type Runner interface {
	CreateThread(ctx context.Context, mode domain.Mode, cwd string) (*domain.Session, error)
	RunTurn(ctx context.Context, prompt string, mode domain.Mode, sess *domain.Session, cwd string) (*turn.Result, error)
}

// Router serializes per-conversation work and keeps the session store in
// step with every successful turn.
type Router struct {
	runner      Runner
	store       *session.Store
	archive     *transcript.Store // nil disables archiving
	workspace   string
	defaultMode domain.Mode
	log         *logging.Logger
}

// New creates a router. archive may be nil.
func New(runner Runner, store *session.Store, archive *transcript.Store, workspace string, defaultMode domain.Mode, log *logging.Logger) *Router {
	return &Router{
		runner:      runner,
		store:       store,
		archive:     archive,
		workspace:   workspace,
		defaultMode: defaultMode,
		log:         log.Named("routing"),
	}
}

// Handle relays one inbound message and returns the reply text. An empty
// reply with a nil error means "do not reply".
func (r *Router) Handle(ctx context.Context, msg domain.InboundMessage) (string, error) {
	prompt := strings.TrimSpace(msg.Text)
	if prompt == "" {
		return "", nil
	}

	key := domain.SessionKey(msg.ChatType, msg.ChatID, msg.SenderID)

	var reply string
	err := r.store.WithLock(key, func() error {
		sess := r.store.Get(key)

		mode := r.defaultMode
		if sess != nil && sess.Mode != "" {
			mode = sess.Mode
		}

		r.log.Info().
			Str("key", key).
			Str("mode", string(mode)).
			Bool("resuming", sess != nil).
			Msg("running turn")

		start := time.Now()
		result, err := r.runner.RunTurn(ctx, prompt, mode, sess, r.workspace)
		if err != nil {
			return err
		}

		next := domain.Session{
			ThreadID: result.ThreadID,
			Mode:     result.Mode,
			Model:    result.Model,
			Cwd:      result.Cwd,
		}
		if sess != nil && sess.Title != "" {
			next.Title = sess.Title
		} else {
			next.Title = titleFrom(prompt)
		}
		if err := r.store.Set(key, next); err != nil {
			return err
		}

		r.recordTurn(ctx, key, result, prompt, time.Since(start))
		reply = result.Message
		return nil
	})
	if err != nil {
		r.log.Error().Err(err).Str("key", key).Msg("turn failed")
		return "", err
	}
	return reply, nil
}

// NewSession discards any active session for the chat identity and starts a
// fresh thread in the given mode.
func (r *Router) NewSession(ctx context.Context, chatType domain.ChatType, chatID, senderID string, mode domain.Mode) (*domain.Session, error) {
	if mode == "" {
		mode = r.defaultMode
	}
	key := domain.SessionKey(chatType, chatID, senderID)

	var created *domain.Session
	err := r.store.WithLock(key, func() error {
		sess, err := r.runner.CreateThread(ctx, mode, r.workspace)
		if err != nil {
			return err
		}
		if err := r.store.Set(key, *sess); err != nil {
			return err
		}
		created = sess
		return nil
	})
	return created, err
}

// Reset removes the active session for the chat identity. History stays.
func (r *Router) Reset(chatType domain.ChatType, chatID, senderID string) error {
	key := domain.SessionKey(chatType, chatID, senderID)
	return r.store.WithLock(key, func() error {
		return r.store.Clear(key)
	})
}

// recordTurn archives the turn; failures are logged, never surfaced.
func (r *Router) recordTurn(ctx context.Context, key string, result *turn.Result, prompt string, duration time.Duration) {
	if r.archive == nil {
		return
	}
	err := r.archive.Record(ctx, transcript.Entry{
		SessionKey: key,
		Workspace:  r.workspace,
		ThreadID:   result.ThreadID,
		Model:      result.Model,
		Prompt:     prompt,
		Reply:      result.Message,
		Duration:   duration,
	})
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("archiving turn failed")
	}
}

// titleFrom derives a short session title from the first prompt.
func titleFrom(prompt string) string {
	title := prompt
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > maxTitleLen {
		runes := []rune(title)
		title = string(runes[:maxTitleLen-1]) + "…"
	}
	return title
}
