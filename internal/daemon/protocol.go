package daemon

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
	"github.com/Aman-CERP/reqfind/internal/search"
	"github.com/Aman-CERP/reqfind/internal/worker"
)

// Message kinds answered by the server itself. Worker kinds (index, delete,
// query, clear) go to the coordinator; anything else goes to the event chain.
const (
	KindCancel = "cancel"
	KindStatus = "status"
	KindPing   = "ping"
)

// Message is one line sent by a client.
type Message struct {
	TaskID  string          `json:"taskId,omitempty"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply is one line sent back by the server. Exactly one of Data and Error is set,
// except for kinds without a result (clear) where both are empty.
type Reply struct {
	TaskID string          `json:"taskId"`
	Kind   string          `json:"kind"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *reqerrors.Info `json:"error,omitempty"`
}

// NewSuccessReply creates a reply carrying data.
func NewSuccessReply(taskID, kind string, data any) Reply {
	r := Reply{TaskID: taskID, Kind: kind}
	if data == nil {
		return r
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return NewErrorReply(taskID, kind, reqerrors.InternalError("encode reply data", err))
	}
	r.Data = raw
	return r
}

// NewErrorReply creates a reply carrying err.
func NewErrorReply(taskID, kind string, err error) Reply {
	return Reply{TaskID: taskID, Kind: kind, Error: reqerrors.ToInfo(err)}
}

// Err returns the reply error, or nil.
func (r Reply) Err() error {
	if r.Error == nil {
		return nil
	}
	return reqerrors.FromInfo(r.Error)
}

// CancelPayload names the task to cancel.
type CancelPayload struct {
	TaskID string `json:"taskId"`
}

// CancelResult reports whether the task was still queued.
type CancelResult struct {
	Canceled bool `json:"canceled"`
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running     bool            `json:"running"`
	PID         int             `json:"pid"`
	Uptime      string          `json:"uptime"`
	Connections int64           `json:"connections"`
	Worker      worker.Snapshot `json:"worker"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool  `json:"pong"`
	Time int64 `json:"time"`
}

func newPingResult() PingResult {
	return PingResult{Pong: true, Time: time.Now().UnixMilli()}
}

// IsTaskKind reports whether kind is handled by the worker coordinator.
func IsTaskKind(kind string) bool {
	switch worker.Kind(kind) {
	case worker.KindIndex, worker.KindDelete, worker.KindQuery, worker.KindClear:
		return true
	}
	return false
}

// DecodeTask converts a worker message into a task. A missing task id is generated.
func DecodeTask(msg Message) (worker.Task, error) {
	task := worker.Task{ID: msg.TaskID, Kind: worker.Kind(msg.Kind)}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	var err error
	switch task.Kind {
	case worker.KindIndex:
		err = decodePayload(msg.Payload, &task.Refs)
	case worker.KindDelete:
		err = decodePayload(msg.Payload, &task.RequestIDs)
	case worker.KindQuery:
		if err = decodePayload(msg.Payload, &task.Query); err == nil {
			task.Query.Mode, err = search.ParseMode(string(task.Query.Mode))
		}
	case worker.KindClear:
	default:
		err = reqerrors.ProtocolError(reqerrors.ErrCodeUnknownKind,
			fmt.Sprintf("unknown task kind %q", msg.Kind), nil)
	}
	return task, err
}

func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "payload is required", nil)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return reqerrors.ProtocolError(reqerrors.ErrCodeMalformedMessage, "malformed payload: "+err.Error(), err)
	}
	return nil
}

// EncodeTask is the inverse of DecodeTask.
func EncodeTask(task worker.Task) (Message, error) {
	msg := Message{TaskID: task.ID, Kind: string(task.Kind)}
	var payload any
	switch task.Kind {
	case worker.KindIndex:
		payload = task.Refs
	case worker.KindDelete:
		payload = task.RequestIDs
	case worker.KindQuery:
		payload = task.Query
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return msg, fmt.Errorf("encode %s payload: %w", task.Kind, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// TaskReply converts a worker response into its wire form.
func TaskReply(resp worker.Response) Reply {
	kind := string(resp.Kind)
	if resp.Err != nil {
		return NewErrorReply(resp.TaskID, kind, resp.Err)
	}
	switch resp.Kind {
	case worker.KindIndex, worker.KindDelete:
		items := resp.Items
		if items == nil {
			items = []worker.ItemResult{}
		}
		return NewSuccessReply(resp.TaskID, kind, items)
	case worker.KindQuery:
		matches := resp.Matches
		if matches == nil {
			matches = []search.Match{}
		}
		return NewSuccessReply(resp.TaskID, kind, matches)
	default:
		return NewSuccessReply(resp.TaskID, kind, nil)
	}
}
