// Package model holds the request and URL history collections. Request writes
// and removals keep the URL index in sync by submitting worker tasks.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/reqfind/internal/docstore"
	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
	"github.com/Aman-CERP/reqfind/internal/search"
	"github.com/Aman-CERP/reqfind/internal/urlindex"
	"github.com/Aman-CERP/reqfind/internal/worker"
)

// TaskRunner runs worker tasks to completion.
type TaskRunner interface {
	Do(ctx context.Context, task worker.Task) (worker.Response, error)
}

// Request is a stored HTTP request.
type Request struct {
	ID       string   `json:"_id"`
	Rev      string   `json:"_rev,omitempty"`
	Name     string   `json:"name,omitempty"`
	Method   string   `json:"method,omitempty"`
	URL      string   `json:"url"`
	Headers  string   `json:"headers,omitempty"`
	Payload  string   `json:"payload,omitempty"`
	Projects []string `json:"projects,omitempty"`
	Created  int64    `json:"created,omitempty"` // unix millis
	Updated  int64    `json:"updated,omitempty"` // unix millis

	// LegacyProject is folded into Projects on write.
	LegacyProject string `json:"legacyProject,omitempty"`
}

// Requests is one request collection (saved or history).
type Requests struct {
	*docstore.Collection

	typ    string
	tasks  TaskRunner
	logger *slog.Logger
	now    func() time.Time
}

// RequestModel groups the saved and history request collections.
type RequestModel struct {
	Saved   *Requests
	History *Requests
}

// NewRequestModel binds both request collections of db to the task runner.
func NewRequestModel(db *docstore.DB, tasks TaskRunner, logger *slog.Logger) *RequestModel {
	if logger == nil {
		logger = slog.Default()
	}
	newRequests := func(typ string) *Requests {
		return &Requests{
			Collection: db.Collection(typ + "-requests"),
			typ:        typ,
			tasks:      tasks,
			logger:     logger,
			now:        time.Now,
		}
	}
	return &RequestModel{
		Saved:   newRequests(urlindex.TypeSaved),
		History: newRequests(urlindex.TypeHistory),
	}
}

// Collection returns the requests of a type.
func (m *RequestModel) Collection(typ string) (*Requests, error) {
	switch typ {
	case urlindex.TypeSaved:
		return m.Saved, nil
	case urlindex.TypeHistory:
		return m.History, nil
	default:
		return nil, reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload,
			fmt.Sprintf("unknown request type %q (use saved or history)", typ), nil)
	}
}

// Type returns the request type of the collection.
func (r *Requests) Type() string {
	return r.typ
}

// Normalize folds the legacy project into Projects and stamps missing times.
func (r *Requests) Normalize(req *Request) *Request {
	if req == nil {
		return nil
	}
	if req.LegacyProject != "" {
		req.Projects = append(req.Projects, req.LegacyProject)
		req.LegacyProject = ""
	}
	now := r.now().UnixMilli()
	if req.Created == 0 {
		req.Created = now
	}
	if req.Updated == 0 {
		req.Updated = now
	}
	return req
}

// Read returns one request.
func (r *Requests) Read(ctx context.Context, id string) (*Request, error) {
	doc, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeRequest(doc)
}

// ReadBulk returns the requests with the given ids, in order. Missing ids are nil.
func (r *Requests) ReadBulk(ctx context.Context, ids []string) ([]*Request, error) {
	results, err := r.BulkGet(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*Request, len(results))
	for i, res := range results {
		if res.Err != nil {
			continue
		}
		if out[i], err = decodeRequest(res.Doc); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Update stores a request and indexes its URL. The returned request carries
// the new revision.
func (r *Requests) Update(ctx context.Context, req *Request) (*Request, error) {
	saved, err := r.put(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := r.index(ctx, saved); err != nil {
		return saved, err
	}
	return saved, nil
}

// UpdateBulk stores requests independently and indexes every stored one in a
// single task. errs[i] is the storage error of reqs[i].
func (r *Requests) UpdateBulk(ctx context.Context, reqs []*Request) (saved []*Request, errs []error, err error) {
	saved = make([]*Request, len(reqs))
	errs = make([]error, len(reqs))
	var ok []*Request
	for i, req := range reqs {
		saved[i], errs[i] = r.put(ctx, req)
		if errs[i] == nil {
			ok = append(ok, saved[i])
		}
	}
	return saved, errs, r.index(ctx, ok...)
}

func (r *Requests) put(ctx context.Context, req *Request) (*Request, error) {
	if req == nil {
		return nil, reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "request is required", nil)
	}
	r.Normalize(req)
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	doc, err := r.Put(ctx, docstore.Document{ID: req.ID, Rev: req.Rev, Data: data})
	if err != nil {
		return nil, err
	}
	out := *req
	out.ID, out.Rev = doc.ID, doc.Rev
	return &out, nil
}

// Remove deletes a request at its current revision and drops its index fragments.
func (r *Requests) Remove(ctx context.Context, id, rev string) error {
	if err := r.Collection.Remove(ctx, id, rev); err != nil {
		return err
	}
	resp, err := r.tasks.Do(ctx, worker.NewDeleteTask(id))
	if err != nil {
		return err
	}
	return resp.Err
}

// List returns a page of requests in id order and the key of the next page.
func (r *Requests) List(ctx context.Context, opts docstore.ListOptions) ([]*Request, string, error) {
	docs, next, err := r.Collection.List(ctx, opts)
	if err != nil {
		return nil, "", err
	}
	out := make([]*Request, 0, len(docs))
	for _, doc := range docs {
		req, err := decodeRequest(doc)
		if err != nil {
			return nil, "", err
		}
		out = append(out, req)
	}
	return out, next, nil
}

// IndexAll reindexes every request of the collection.
func (r *Requests) IndexAll(ctx context.Context) (int, error) {
	var all []*Request
	opts := docstore.ListOptions{Limit: 500}
	for {
		page, next, err := r.List(ctx, opts)
		if err != nil {
			return 0, err
		}
		all = append(all, page...)
		if next == "" {
			break
		}
		opts.StartAfter = next
	}
	return len(all), r.index(ctx, all...)
}

// index submits one index task for reqs and logs item failures.
func (r *Requests) index(ctx context.Context, reqs ...*Request) error {
	if len(reqs) == 0 {
		return nil
	}
	refs := make([]urlindex.RequestRef, len(reqs))
	for i, req := range reqs {
		refs[i] = urlindex.RequestRef{ID: req.ID, URL: req.URL, Type: r.typ}
	}

	resp, err := r.tasks.Do(ctx, worker.NewIndexTask(refs...))
	if err != nil {
		return err
	}
	for _, item := range resp.Items {
		if item.Error != nil {
			r.logger.Warn("request_index_item",
				slog.String("request_id", item.ID),
				slog.Bool("ok", item.OK),
				reqerrors.LogAttr(reqerrors.FromInfo(item.Error)))
		}
	}
	return resp.Err
}

// Query finds requests whose URL matches q. typ "" searches both collections.
func (m *RequestModel) Query(ctx context.Context, q search.Query) ([]*Request, error) {
	if q.Text == "" {
		return nil, reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "query text is required", nil)
	}

	runner := m.Saved.tasks
	resp, err := runner.Do(ctx, worker.NewQueryTask(q))
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	byType := map[string][]string{}
	for _, match := range resp.Matches {
		byType[match.Type] = append(byType[match.Type], match.RequestID)
	}

	found := map[string]*Request{}
	for typ, ids := range byType {
		coll, err := m.Collection(typ)
		if err != nil {
			continue
		}
		reqs, err := coll.ReadBulk(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i, req := range reqs {
			if req != nil {
				found[typ+"\x00"+ids[i]] = req
			}
		}
	}

	// Keep match order; drop matches whose document is gone.
	out := make([]*Request, 0, len(found))
	for _, match := range resp.Matches {
		if req, ok := found[match.Type+"\x00"+match.RequestID]; ok {
			out = append(out, req)
		}
	}
	return out, nil
}

func decodeRequest(doc docstore.Document) (*Request, error) {
	var req Request
	if err := json.Unmarshal(doc.Data, &req); err != nil {
		return nil, fmt.Errorf("decode request %s: %w", doc.ID, err)
	}
	req.ID, req.Rev = doc.ID, doc.Rev
	return &req, nil
}
