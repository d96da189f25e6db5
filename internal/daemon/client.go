package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"

	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
	"github.com/Aman-CERP/reqfind/internal/search"
	"github.com/Aman-CERP/reqfind/internal/urlindex"
	"github.com/Aman-CERP/reqfind/internal/worker"
)

// Client talks to the daemon. Every call uses its own connection.
type Client struct {
	socketPath string
	timeout    time.Duration
	retry      reqerrors.Backoff
}

// NewClient creates a new daemon client.
func NewClient(cfg Config) *Client {
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
		retry: reqerrors.Backoff{
			Retries: cfg.DialRetries,
			Initial: 50 * time.Millisecond,
			Max:     500 * time.Millisecond,
		},
	}
}

// Connect dials the daemon, retrying while the socket is missing or refusing
// connections, which is how a daemon that is still starting looks.
func (c *Client) Connect(ctx context.Context) (net.Conn, error) {
	return reqerrors.RetryWithResult(ctx, c.retry, func() (net.Conn, error) {
		conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
		if err != nil {
			return nil, c.dialError(err)
		}
		return conn, nil
	})
}

func (c *Client) dialError(err error) *reqerrors.ReqError {
	re := reqerrors.New(reqerrors.ErrCodeDaemonUnavailable,
		fmt.Sprintf("failed to connect to daemon at %s", c.socketPath), err).
		WithSuggestion("Start the daemon with: reqfind serve")
	re.Retryable = errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED)
	return re
}

// IsRunning checks if the daemon is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Call sends one message and waits for its reply. A message without a task id
// gets a generated one. A reply carrying an error is returned as-is; the
// returned error only reports transport failures.
func (c *Client) Call(ctx context.Context, msg Message) (Reply, error) {
	if msg.TaskID == "" {
		msg.TaskID = uuid.NewString()
	}

	conn, err := c.Connect(ctx)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()

	// Set deadline from context or timeout
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return Reply{}, fmt.Errorf("failed to set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return Reply{}, c.transportError("send", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), DefaultMaxMessageSize)
	for scanner.Scan() {
		var r Reply
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return Reply{}, reqerrors.ProtocolError(reqerrors.ErrCodeMalformedMessage, "failed to decode reply", err)
		}
		if r.TaskID == msg.TaskID {
			return r, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return Reply{}, c.transportError("receive", err)
	}
	return Reply{}, reqerrors.New(reqerrors.ErrCodeDaemonUnavailable, "daemon closed the connection", nil)
}

func (c *Client) transportError(op string, err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return reqerrors.New(reqerrors.ErrCodeDaemonTimeout, fmt.Sprintf("%s timed out after %s", op, c.timeout), err)
	}
	return reqerrors.New(reqerrors.ErrCodeDaemonUnavailable, fmt.Sprintf("failed to %s", op), err)
}

// call sends kind with payload and decodes the reply data into out.
func (c *Client) call(ctx context.Context, taskID, kind string, payload, out any) error {
	msg := Message{TaskID: taskID, Kind: kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", kind, err)
		}
		msg.Payload = raw
	}

	r, err := c.Call(ctx, msg)
	if err != nil {
		return err
	}
	if err := r.Err(); err != nil {
		return err
	}
	if out == nil || len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return reqerrors.ProtocolError(reqerrors.ErrCodeMalformedMessage,
			fmt.Sprintf("failed to decode %s result", kind), err)
	}
	return nil
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var res PingResult
	if err := c.call(ctx, "", KindPing, nil, &res); err != nil {
		return err
	}
	if !res.Pong {
		return reqerrors.New(reqerrors.ErrCodeDaemonUnavailable, "daemon did not answer the ping", nil)
	}
	return nil
}

// Status retrieves daemon status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var status StatusResult
	if err := c.call(ctx, "", KindStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Index submits an index task and returns its item results.
func (c *Client) Index(ctx context.Context, refs ...urlindex.RequestRef) ([]worker.ItemResult, error) {
	var items []worker.ItemResult
	err := c.call(ctx, "", string(worker.KindIndex), refs, &items)
	return items, err
}

// Delete submits a delete task and returns its item results.
func (c *Client) Delete(ctx context.Context, requestIDs ...string) ([]worker.ItemResult, error) {
	var items []worker.ItemResult
	err := c.call(ctx, "", string(worker.KindDelete), requestIDs, &items)
	return items, err
}

// Query submits a query task and returns its matches.
func (c *Client) Query(ctx context.Context, q search.Query) ([]search.Match, error) {
	var matches []search.Match
	err := c.call(ctx, "", string(worker.KindQuery), q, &matches)
	return matches, err
}

// Clear submits a clear task.
func (c *Client) Clear(ctx context.Context) error {
	return c.call(ctx, "", string(worker.KindClear), nil, nil)
}

// Cancel asks the daemon to drop a queued task. It reports whether the task
// had not started yet.
func (c *Client) Cancel(ctx context.Context, taskID string) (bool, error) {
	var res CancelResult
	err := c.call(ctx, "", KindCancel, CancelPayload{TaskID: taskID}, &res)
	return res.Canceled, err
}

// Event sends a collaborator event (request.*, history.*) and decodes its result into out.
func (c *Client) Event(ctx context.Context, kind string, payload, out any) error {
	return c.call(ctx, "", kind, payload, out)
}
