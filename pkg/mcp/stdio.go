package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xhad/veritas/pkg/logging"
)

// ErrClosed is returned for calls on a connection that has been closed.
var ErrClosed = errors.New("mcp: connection closed")

// Conn is a live connection to one tool server subprocess.
type Conn struct {
	mu sync.Mutex

	command Command
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser

	connected bool
	closed    bool
	pending   map[int]chan *message
	nextID    int

	wg     sync.WaitGroup
	logger *zap.Logger
}

// Dial starts the tool server and performs the initialize handshake. The
// subprocess outlives ctx; ctx only bounds the handshake.
func Dial(ctx context.Context, command Command, info ClientInfo, logger *zap.Logger) (*Conn, error) {
	if command.Name == "" {
		return nil, fmt.Errorf("empty command for stdio transport")
	}
	logger = logging.OrNop(logger)

	c := &Conn{
		command: command,
		pending: make(map[int]chan *message),
		nextID:  1,
		logger:  logger.With(zap.String("command", command.String())),
	}

	c.cmd = exec.Command(command.Name, command.Args...)
	if len(command.Env) > 0 {
		c.cmd.Env = append(os.Environ(), command.Env...)
	}

	var err error
	c.stdin, err = c.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	c.stdout, err = c.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	c.stderr, err = c.cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := c.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command %s: %w", command.Name, err)
	}
	c.connected = true

	c.wg.Add(2)
	go c.readStderr()
	go c.readStdout()

	if err := c.initialize(ctx, info); err != nil {
		_ = c.Close()
		return nil, err
	}

	c.logger.Debug("MCP stdio transport connected")
	return c, nil
}

func (c *Conn) initialize(ctx context.Context, info ClientInfo) error {
	_, err := c.call(ctx, "initialize", map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo":      info,
	})
	if err != nil {
		return fmt.Errorf("initialize handshake: %w", err)
	}

	data, err := json.Marshal(notification{JSONRPC: "2.0", Method: "notifications/initialized"})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to stdin: %w", err)
	}
	return nil
}

// CallTool invokes a tool and returns its result. A result flagged isError
// is returned as an error carrying the tool's text.
func (c *Conn) CallTool(ctx context.Context, name string, args map[string]interface{}) (*ToolResult, error) {
	start := time.Now()
	resp, err := c.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}

	var result ToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("tool %s: failed to parse result: %w", name, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("tool %s reported an error: %s", name, result.Text())
	}

	c.logger.Debug("MCP tool call finished",
		zap.String("tool", name),
		zap.Duration("latency", time.Since(start)))
	return &result, nil
}

// Connected reports whether the subprocess is still considered alive.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close kills the subprocess and releases its pipes. It is safe to call
// more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false

	_ = c.stdin.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}

	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		c.logger.Warn("Timeout waiting for stdio transport readers to exit")
	}

	// Reap the process; the kill above makes a non-nil error expected.
	_ = c.cmd.Wait()

	c.logger.Debug("MCP stdio transport disconnected")
	return nil
}

func (c *Conn) readStderr() {
	defer c.wg.Done()
	scanner := bufio.NewScanner(c.stderr)
	for scanner.Scan() {
		c.logger.Debug("tool server stderr", zap.String("line", scanner.Text()))
	}
}

func (c *Conn) readStdout() {
	defer c.wg.Done()
	scanner := bufio.NewScanner(c.stdout)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			c.logger.Debug("Skipping non JSON-RPC output", zap.Error(err))
			continue
		}
		if msg.Method != "" {
			c.handleServerRequest(&msg)
			continue
		}

		var id int
		if err := json.Unmarshal(msg.ID, &id); err != nil {
			c.logger.Debug("Skipping response without a numeric ID", zap.ByteString("id", msg.ID))
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
			ch <- &msg
		} else {
			c.logger.Warn("Received response for unknown ID", zap.Int("id", id))
		}
		c.mu.Unlock()
	}

	if err := scanner.Err(); err != nil && c.Connected() {
		c.logger.Error("Error reading stdout", zap.Error(err))
	}

	// The server went away: fail every waiter instead of leaving it hanging.
	c.mu.Lock()
	c.connected = false
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// handleServerRequest answers requests the server sends us. Their IDs are
// the server's own and may collide with ours, so they never reach pending.
// Notifications carry no ID and are dropped.
func (c *Conn) handleServerRequest(msg *message) {
	if len(msg.ID) == 0 || string(msg.ID) == "null" {
		return
	}

	out := reply{JSONRPC: "2.0", ID: msg.ID}
	if msg.Method == "ping" {
		out.Result = map[string]interface{}{}
	} else {
		c.logger.Debug("Rejecting server request", zap.String("method", msg.Method))
		out.Error = &rpcError{Code: codeMethodNotFound, Message: "method not found: " + msg.Method}
	}

	data, err := json.Marshal(out)
	if err != nil {
		c.logger.Warn("Failed to marshal reply", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		c.logger.Warn("Failed to answer server request", zap.String("method", msg.Method), zap.Error(err))
	}
}

// call sends a request and waits for its response.
func (c *Conn) call(ctx context.Context, method string, params interface{}) (*message, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	id := c.nextID
	c.nextID++

	data, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ch := make(chan *message, 1)
	c.pending[id] = ch

	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to write to stdin: %w", err)
	}
	c.mu.Unlock()

	select {
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, ErrClosed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}
