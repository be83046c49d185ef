// Package transport drives one backend subprocess over newline-delimited
// JSON-RPC on its standard streams.
//
// A Client owns exactly one child process for the lifetime of one logical
// operation. Requests are correlated by id, notifications are forwarded to a
// registered handler, and server-to-client requests are answered
// automatically since no interactive input exists in this environment.
package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/dbrandt/legate/internal/logging"
	"github.com/dbrandt/legate/internal/rpc"
)

// scanBufferSize bounds a single backend output line.
const scanBufferSize = 1024 * 1024

// NotifyFunc receives every notification the backend emits, in arrival order.
type NotifyFunc func(method string, params json.RawMessage)

// SpawnOpts configures the backend child process.
type SpawnOpts struct {
	Binary string
	Args   []string
	Dir    string
}

type outcome struct {
	result json.RawMessage
	err    error
}

// Client is a JSON-RPC connection to one backend subprocess.
type Client struct {
	name   string
	stdin  io.WriteCloser
	notify NotifyFunc
	log    *logging.Logger

	kill func()

	wmu sync.Mutex // serializes stdin writes

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan outcome
	exitErr error

	diagMu   sync.Mutex
	lastDiag string

	readers sync.WaitGroup
	done    chan struct{}
	dispose sync.Once
}

// Spawn starts the backend binary and begins reading its output.
func Spawn(opts SpawnOpts, notify NotifyFunc, log *logging.Logger) (*Client, error) {
	cmd := exec.Command(opts.Binary, opts.Args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("transport: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("transport: start %s: %w", opts.Binary, err)
	}

	c := newClient(opts.Binary, stdin, notify, log)
	c.kill = func() {
		if cmd.Process != nil {
			_ = cmd.Process.Signal(syscall.SIGTERM)
		}
	}

	c.log.Debug().Str("binary", opts.Binary).Int("pid", cmd.Process.Pid).Msg("backend started")

	c.startReaders(stdout, stderr)
	go c.supervise(cmd.Wait)
	return c, nil
}

// newClient wires the shared state. Spawn attaches a real process; tests
// attach in-memory pipes via startReaders/supervise directly.
func newClient(name string, stdin io.WriteCloser, notify NotifyFunc, log *logging.Logger) *Client {
	return &Client{
		name:    name,
		stdin:   stdin,
		notify:  notify,
		log:     log.Named("transport"),
		pending: make(map[int64]chan outcome),
		done:    make(chan struct{}),
	}
}

func (c *Client) startReaders(stdout, stderr io.Reader) {
	c.readers.Add(2)
	go c.readOutput(stdout)
	go c.readDiagnostics(stderr)
}

// Request sends one request line and waits for the matching response.
// It fails immediately if the process has already exited.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.exitErr != nil {
		err := c.exitErr
		c.mu.Unlock()
		return nil, err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan outcome, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	line, err := rpc.EncodeRequest(id, method, params)
	if err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("transport: encode %s: %w", method, err)
	}
	if err := c.writeLine(line); err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("transport: write %s: %w", method, err)
	}

	select {
	case out := <-ch:
		return out.result, out.err
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	case <-c.done:
		c.mu.Lock()
		err := c.exitErr
		c.mu.Unlock()
		return nil, err
	}
}

// Notify sends one client-to-server notification line.
func (c *Client) Notify(method string, params any) error {
	line, err := rpc.EncodeNotification(method, params)
	if err != nil {
		return fmt.Errorf("transport: encode %s: %w", method, err)
	}
	return c.writeLine(line)
}

// Dispose terminates the child if it is still alive. Idempotent; called on
// every exit path so no process is orphaned.
func (c *Client) Dispose() {
	c.dispose.Do(func() {
		_ = c.stdin.Close()
		if c.kill != nil {
			c.kill()
		}
	})
}

func (c *Client) writeLine(line []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.stdin.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

func (c *Client) dropPending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readOutput classifies each stdout line and dispatches it.
func (c *Client) readOutput(r io.Reader) {
	defer c.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), scanBufferSize)

	for scanner.Scan() {
		msg, ok := rpc.ParseLine(scanner.Bytes())
		if !ok {
			continue
		}
		switch msg.Kind {
		case rpc.KindResponse:
			c.settle(msg, outcome{result: msg.Result})
		case rpc.KindError:
			c.settle(msg, outcome{err: msg.Err})
		case rpc.KindNotification:
			if c.notify != nil {
				c.notify(msg.Method, msg.Params)
			}
		case rpc.KindServerRequest:
			c.answerServerRequest(msg)
		}
	}
}

func (c *Client) settle(msg *rpc.Message, out outcome) {
	id, ok := msg.IDInt64()
	if !ok {
		return
	}
	c.mu.Lock()
	ch, found := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if found {
		ch <- out
	}
}

// answerServerRequest applies the fixed unattended-operation policy.
func (c *Client) answerServerRequest(msg *rpc.Message) {
	result, ok := autoAnswer(msg.Method)

	var line []byte
	var err error
	if ok {
		line, err = rpc.EncodeResponse(msg.ID, result)
	} else {
		c.log.Warn().Str("method", msg.Method).Msg("unsupported server request")
		line, err = rpc.EncodeErrorResponse(msg.ID, rpc.CodeMethodNotFound, "method not supported")
	}
	if err != nil {
		return
	}
	if werr := c.writeLine(line); werr != nil {
		c.log.Debug().Err(werr).Str("method", msg.Method).Msg("answering server request failed")
	}
}

// readDiagnostics keeps the last non-empty stderr line for exit reporting.
func (c *Client) readDiagnostics(r io.Reader) {
	defer c.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), scanBufferSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.diagMu.Lock()
		c.lastDiag = line
		c.diagMu.Unlock()
		c.log.Debug().Str("stderr", line).Msg("backend diagnostic")
	}
}

// supervise waits for process exit, then fails every still-pending request
// with one synthesized error.
func (c *Client) supervise(wait func() error) {
	c.readers.Wait()
	err := wait()
	exitErr := c.exitError(err)

	c.mu.Lock()
	c.exitErr = exitErr
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- outcome{err: exitErr}
	}
	c.mu.Unlock()
	close(c.done)
}

// exitError combines exit status and the last diagnostic line.
func (c *Client) exitError(waitErr error) error {
	status := "code 0"
	if waitErr != nil {
		status = waitErr.Error()
		if ee, ok := waitErr.(*exec.ExitError); ok {
			if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				status = "signal " + ws.Signal().String()
			} else {
				status = fmt.Sprintf("code %d", ee.ExitCode())
			}
		}
	}

	c.diagMu.Lock()
	diag := c.lastDiag
	c.diagMu.Unlock()

	if diag != "" {
		return fmt.Errorf("transport: %s exited (%s): %s", c.name, status, diag)
	}
	return fmt.Errorf("transport: %s exited (%s)", c.name, status)
}
