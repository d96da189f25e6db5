package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/reqfind/internal/dispatch"
	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
	"github.com/Aman-CERP/reqfind/internal/worker"
)

// DefaultMaxMessageSize bounds one message line.
const DefaultMaxMessageSize = 16 << 20

// TaskRunner is the part of the worker coordinator the server needs.
type TaskRunner interface {
	Submit(task worker.Task) <-chan worker.Response
	Cancel(taskID string) bool
	Snapshot() worker.Snapshot
}

// EventDispatcher routes non-task messages.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev dispatch.Event) (dispatch.Result, error)
}

// Server listens on a Unix socket and serves newline-delimited JSON messages.
// A connection may carry many messages; replies are written as each one
// completes, so their order follows completion, not submission.
type Server struct {
	socketPath string
	listener   net.Listener
	tasks      TaskRunner
	events     EventDispatcher
	logger     *slog.Logger
	maxMessage int
	started    time.Time

	connections atomic.Int64

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server that feeds tasks to the given runner.
func NewServer(socketPath string, tasks TaskRunner) (*Server, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("socket path cannot be empty")
	}
	if tasks == nil {
		return nil, fmt.Errorf("task runner is required")
	}
	return &Server{
		socketPath: socketPath,
		tasks:      tasks,
		logger:     slog.Default(),
		maxMessage: DefaultMaxMessageSize,
	}, nil
}

// SetDispatcher sets the handler chain for collaborator events.
func (s *Server) SetDispatcher(d EventDispatcher) {
	s.events = d
}

// SetLogger replaces the server logger.
func (s *Server) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetMaxMessageSize bounds the size of one message line.
func (s *Server) SetMaxMessageSize(n int) {
	if n > 0 {
		s.maxMessage = n
	}
}

// ListenAndServe starts the server and blocks until context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Clean up any stale socket
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	s.logger.Info("server_listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			s.logger.Error("accept_failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

// connection serializes reply writes for one client.
type connection struct {
	conn    net.Conn
	writeMu sync.Mutex
	enc     *json.Encoder
	pending sync.WaitGroup
}

func (c *connection) write(r Reply) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.enc.Encode(r)
}

// handleConnection reads messages until the client hangs up, the context ends
// or a read fails. It waits for outstanding replies before closing.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	s.connections.Add(1)
	defer s.connections.Add(-1)

	c := &connection{conn: conn, enc: json.NewEncoder(conn)}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	r := bufio.NewReaderSize(conn, min(64*1024, s.maxMessage))
	for {
		line, err := readMessage(r, s.maxMessage)
		if errors.Is(err, errMessageTooLong) {
			s.reply(c, NewErrorReply("", "",
				reqerrors.ProtocolError(reqerrors.ErrCodeMalformedMessage,
					fmt.Sprintf("message exceeds %d bytes", s.maxMessage), nil)))
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.logger.Debug("connection_read_failed", slog.String("error", err.Error()))
			}
			break
		}
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.reply(c, NewErrorReply("", "",
				reqerrors.ProtocolError(reqerrors.ErrCodeMalformedMessage, "failed to parse message", err)))
			continue
		}
		if msg.Kind == "" {
			s.reply(c, NewErrorReply(msg.TaskID, "",
				reqerrors.ProtocolError(reqerrors.ErrCodeMalformedMessage, "message kind is required", nil)))
			continue
		}
		s.handleMessage(ctx, c, msg)
	}

	c.pending.Wait()
}

var errMessageTooLong = errors.New("message too long")

// readMessage reads one newline-terminated line of at most limit bytes, without
// the line ending. A longer line is consumed through its newline and reported
// as errMessageTooLong so the connection can continue with the next message.
func readMessage(r *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		size := len(line) + len(chunk)
		if err == nil {
			size--
		}
		if size > limit {
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = r.ReadSlice('\n')
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return nil, errMessageTooLong
		}
		line = append(line, chunk...)

		switch {
		case err == nil:
			line = bytes.TrimSuffix(line[:len(line)-1], []byte("\r"))
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) > 0:
			return line, nil
		default:
			return nil, err
		}
	}
}

// handleMessage routes one message. Server kinds reply inline; worker tasks and
// events reply from their own goroutine so the connection keeps reading.
func (s *Server) handleMessage(ctx context.Context, c *connection, msg Message) {
	switch {
	case msg.Kind == KindPing:
		s.reply(c, NewSuccessReply(msg.TaskID, msg.Kind, newPingResult()))

	case msg.Kind == KindStatus:
		s.reply(c, NewSuccessReply(msg.TaskID, msg.Kind, s.Status()))

	case msg.Kind == KindCancel:
		var p CancelPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.TaskID == "" {
			s.reply(c, NewErrorReply(msg.TaskID, msg.Kind,
				reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "cancel needs a taskId", err)))
			return
		}
		s.reply(c, NewSuccessReply(msg.TaskID, msg.Kind, CancelResult{Canceled: s.tasks.Cancel(p.TaskID)}))

	case IsTaskKind(msg.Kind):
		task, err := DecodeTask(msg)
		if err != nil {
			s.reply(c, NewErrorReply(task.ID, msg.Kind, err))
			return
		}
		respCh := s.tasks.Submit(task)
		c.pending.Add(1)
		go func() {
			defer c.pending.Done()
			select {
			case resp := <-respCh:
				s.reply(c, TaskReply(resp))
			case <-ctx.Done():
				// Shutting down: drop the task if it has not started yet.
				s.tasks.Cancel(task.ID)
			}
		}()

	default:
		if s.events == nil {
			s.reply(c, NewErrorReply(msg.TaskID, msg.Kind,
				reqerrors.ProtocolError(reqerrors.ErrCodeUnknownKind, fmt.Sprintf("unknown kind %q", msg.Kind), nil)))
			return
		}
		c.pending.Add(1)
		go func() {
			defer c.pending.Done()
			res, err := s.events.Dispatch(ctx, dispatch.Event{Kind: msg.Kind, Payload: msg.Payload})
			if err != nil {
				s.logger.Debug("event_failed",
					slog.String("task_id", msg.TaskID),
					slog.String("kind", msg.Kind),
					reqerrors.LogAttr(err))
				s.reply(c, NewErrorReply(msg.TaskID, msg.Kind, err))
				return
			}
			s.reply(c, NewSuccessReply(msg.TaskID, msg.Kind, res.Value))
		}()
	}
}

func (s *Server) reply(c *connection, r Reply) {
	if err := c.write(r); err != nil {
		s.logger.Debug("reply_write_failed",
			slog.String("task_id", r.TaskID),
			slog.String("kind", r.Kind),
			slog.String("error", err.Error()))
	}
}

// Status returns the current server status.
func (s *Server) Status() StatusResult {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	return StatusResult{
		Running:     true,
		PID:         os.Getpid(),
		Uptime:      time.Since(started).Round(time.Second).String(),
		Connections: s.connections.Load(),
		Worker:      s.tasks.Snapshot(),
	}
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		return listener.Close()
	}
	return nil
}
