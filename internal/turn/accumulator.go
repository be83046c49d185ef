// Package turn composes the transport, thread lifecycle, and notification
// accumulation into the two top-level operations: create-thread and run-turn.
package turn

import (
	"encoding/json"
	"sync"
)

// fallbackError is used when the backend reports an error without a message.
const fallbackError = "backend reported an error"

// failedTurnError is used when a turn completes with a failed status and no
// explicit error message.
const failedTurnError = "turn failed"

// Accumulator folds the backend's notification stream into one settled
// outcome. It moves forward-only from pending to settled; the settled state
// carries a resolved message, an error, or both, with the error authoritative.
//
// One Accumulator serves exactly one run-turn call.
type Accumulator struct {
	mu        sync.Mutex
	completed bool
	turnErr   string
	itemMsg   string
	hasItem   bool
	taskMsg   string
	hasTask   bool

	done chan struct{}
}

// NewAccumulator returns a pending accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{done: make(chan struct{})}
}

// Apply folds one notification into the state. Safe for concurrent use with
// the readers; notifications arriving after settlement still update message
// candidates but cannot un-settle the turn.
func (a *Accumulator) Apply(method string, params json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch method {
	case "error":
		var p struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(params, &p)
		if p.Message != "" {
			a.turnErr = p.Message
		} else if a.turnErr == "" {
			a.turnErr = fallbackError
		}
		a.settleLocked()

	case "item/completed":
		var p struct {
			Item struct {
				Type string  `json:"type"`
				Text *string `json:"text"`
			} `json:"item"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		if p.Item.Type == "agentMessage" && p.Item.Text != nil {
			a.itemMsg = *p.Item.Text
			a.hasItem = true
		}

	case "task/completed":
		var p struct {
			LastAgentMessage *string `json:"lastAgentMessage"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return
		}
		if p.LastAgentMessage != nil {
			a.taskMsg = *p.LastAgentMessage
			a.hasTask = true
		}

	case "turn/completed":
		var p struct {
			Turn struct {
				Status string `json:"status"`
				Error  *struct {
					Message string `json:"message"`
				} `json:"error"`
			} `json:"turn"`
		}
		_ = json.Unmarshal(params, &p)
		if p.Turn.Error != nil && p.Turn.Error.Message != "" {
			// An explicit error message wins over anything recorded so far.
			a.turnErr = p.Turn.Error.Message
		} else if p.Turn.Status == "failed" && a.turnErr == "" {
			a.turnErr = failedTurnError
		}
		a.settleLocked()
	}
}

func (a *Accumulator) settleLocked() {
	if !a.completed {
		a.completed = true
		close(a.done)
	}
}

// Done is closed exactly once, the first time the turn settles.
func (a *Accumulator) Done() <-chan struct{} {
	return a.done
}

// Failure returns the turn's error message, or "" if none was recorded.
func (a *Accumulator) Failure() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.turnErr
}

// Resolve returns the final agent message: the task-level candidate is
// fresher than the item-level one. The second return is false when neither
// was observed.
func (a *Accumulator) Resolve() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hasTask {
		return a.taskMsg, true
	}
	if a.hasItem {
		return a.itemMsg, true
	}
	return "", false
}
