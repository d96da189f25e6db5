// Package worker serializes every index store operation through one
// coordinator goroutine with an owned FIFO queue.
package worker

import (
	"github.com/google/uuid"

	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
	"github.com/Aman-CERP/reqfind/internal/search"
	"github.com/Aman-CERP/reqfind/internal/urlindex"
)

// Kind identifies a task.
type Kind string

const (
	KindIndex  Kind = "index"
	KindDelete Kind = "delete"
	KindQuery  Kind = "query"
	KindClear  Kind = "clear"
)

// Mutates reports whether tasks of this kind change the index store.
func (k Kind) Mutates() bool {
	return k == KindIndex || k == KindDelete || k == KindClear
}

// Task is one unit of work for the coordinator.
// Only the field matching Kind is read.
type Task struct {
	ID         string
	Kind       Kind
	Refs       []urlindex.RequestRef // index
	RequestIDs []string              // delete
	Query      search.Query          // query
}

// NewIndexTask creates an index task with a fresh id.
func NewIndexTask(refs ...urlindex.RequestRef) Task {
	return Task{ID: uuid.NewString(), Kind: KindIndex, Refs: refs}
}

// NewDeleteTask creates a delete task with a fresh id.
func NewDeleteTask(requestIDs ...string) Task {
	return Task{ID: uuid.NewString(), Kind: KindDelete, RequestIDs: requestIDs}
}

// NewQueryTask creates a query task with a fresh id.
func NewQueryTask(q search.Query) Task {
	return Task{ID: uuid.NewString(), Kind: KindQuery, Query: q}
}

// NewClearTask creates a clear task with a fresh id.
func NewClearTask() Task {
	return Task{ID: uuid.NewString(), Kind: KindClear}
}

// ItemResult is the outcome for one request of an index or delete task.
// A URL that fell back to a raw fragment is OK with a ParseError attached.
type ItemResult struct {
	ID       string         `json:"id"`
	OK       bool           `json:"ok"`
	Inserted int            `json:"inserted"`
	Removed  int            `json:"removed"`
	Error    *reqerrors.Info `json:"error,omitempty"`
}

// Response is the single terminal outcome of a task.
type Response struct {
	TaskID  string
	Kind    Kind
	Items   []ItemResult   // index, delete
	Matches []search.Match // query
	Err     error          // task-level failure
}

// Outcome classifies the response for metrics and logs.
func (r Response) Outcome() string {
	if r.Err == nil {
		for _, it := range r.Items {
			if !it.OK {
				return "partial"
			}
		}
		return "ok"
	}
	switch reqerrors.GetCategory(r.Err) {
	case reqerrors.CategoryCanceled:
		return "canceled"
	case reqerrors.CategoryStoreFatal:
		return "fatal"
	default:
		return "error"
	}
}
