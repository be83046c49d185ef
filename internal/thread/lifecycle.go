// Package thread implements resume-or-start thread lifecycle decisions and
// collaboration-mode selection against the backend RPC surface.
package thread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dbrandt/legate/internal/domain"
	"github.com/dbrandt/legate/internal/rpc"
)

// RPC is the slice of the transport client this package needs.
type RPC interface {
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(method string, params any) error
}

// Info describes an open backend thread.
type Info struct {
	ThreadID string `json:"threadId"`
	Cwd      string `json:"cwd"`
	Model    string `json:"model"`
}

// startParams carries the fixed unattended-operation policy: approvals are
// never requested interactively and writes stay inside the workspace.
type startParams struct {
	Cwd            string `json:"cwd"`
	ApprovalPolicy string `json:"approvalPolicy"`
	SandboxPolicy  string `json:"sandboxPolicy"`
}

// Initialize performs the protocol handshake.
func Initialize(ctx context.Context, c RPC) error {
	params := map[string]any{
		"clientInfo": map[string]string{"name": "legate", "version": "1"},
	}
	if _, err := c.Request(ctx, "initialize", params); err != nil {
		return fmt.Errorf("thread: initialize: %w", err)
	}
	if err := c.Notify("initialized", nil); err != nil {
		return fmt.Errorf("thread: initialized: %w", err)
	}
	return nil
}

// Start opens a fresh thread rooted at cwd.
func Start(ctx context.Context, c RPC, cwd string) (Info, error) {
	result, err := c.Request(ctx, "thread/start", startParams{
		Cwd:            cwd,
		ApprovalPolicy: "never",
		SandboxPolicy:  "workspace-write",
	})
	if err != nil {
		return Info{}, fmt.Errorf("thread: start: %w", err)
	}
	return decodeInfo(result)
}

// Resume reopens an existing thread by id.
func Resume(ctx context.Context, c RPC, threadID string) (Info, error) {
	result, err := c.Request(ctx, "thread/resume", map[string]string{"threadId": threadID})
	if err != nil {
		return Info{}, err
	}
	return decodeInfo(result)
}

// Open decides between resuming a prior session's thread and starting fresh.
//
// A missing session, a recorded cwd that differs from the requested one, a
// not-found resume failure, or a resumed thread rooted elsewhere all lead to
// a fresh start. Any other resume failure propagates.
func Open(ctx context.Context, c RPC, sess *domain.Session, cwd string) (Info, error) {
	if sess == nil || sess.ThreadID == "" || sess.Cwd != cwd {
		return Start(ctx, c, cwd)
	}

	info, err := Resume(ctx, c, sess.ThreadID)
	if err != nil {
		if isNotFound(err) {
			return Start(ctx, c, cwd)
		}
		return Info{}, fmt.Errorf("thread: resume %s: %w", sess.ThreadID, err)
	}

	// Stale or foreign persisted state: the backend reopened the thread
	// somewhere else. Discard it.
	if info.Cwd != "" && info.Cwd != cwd {
		return Start(ctx, c, cwd)
	}
	return info, nil
}

func decodeInfo(result json.RawMessage) (Info, error) {
	var info Info
	if err := json.Unmarshal(result, &info); err != nil {
		return Info{}, fmt.Errorf("thread: decode thread info: %w", err)
	}
	if info.ThreadID == "" {
		return Info{}, errors.New("thread: backend returned no thread id")
	}
	return info, nil
}

// isNotFound reports whether an error is a not-found-shaped RPC error.
func isNotFound(err error) bool {
	var rpcErr *rpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	return strings.Contains(strings.ToLower(rpcErr.Message), "not found")
}
