package model

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/reqfind/internal/docstore"
	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
	"github.com/Aman-CERP/reqfind/internal/urlindex"
)

// ProjectCollection is the collection name of projects.
const ProjectCollection = "legacy-projects"

// Project groups saved requests. Requests lists saved request ids in display
// order; each linked request lists the project in its Projects.
type Project struct {
	ID          string   `json:"_id"`
	Rev         string   `json:"_rev,omitempty"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Order       int      `json:"order,omitempty"`
	Requests    []string `json:"requests,omitempty"`
	Created     int64    `json:"created,omitempty"`
	Updated     int64    `json:"updated,omitempty"`
}

func (p *Project) setKey(id, rev string) { p.ID, p.Rev = id, rev }

// ProjectModel stores projects and keeps their links to saved requests.
type ProjectModel struct {
	*docstore.Collection

	requests *RequestModel
	now      func() time.Time
}

// NewProjectModel binds the project collection of db. Linking writes go
// through requests so linked requests stay indexed.
func NewProjectModel(db *docstore.DB, requests *RequestModel) *ProjectModel {
	return &ProjectModel{Collection: db.Collection(ProjectCollection), requests: requests, now: time.Now}
}

func (m *ProjectModel) normalize(p *Project) {
	if p.Requests == nil {
		p.Requests = []string{}
	}
	now := m.now().UnixMilli()
	if p.Created == 0 {
		p.Created = now
	}
	p.Updated = now
}

// Read returns one project.
func (m *ProjectModel) Read(ctx context.Context, id string) (*Project, error) {
	return readEntity[Project](ctx, m.Collection, id)
}

// ReadBulk returns the projects with the given ids, in order. Missing ids are nil.
func (m *ProjectModel) ReadBulk(ctx context.Context, ids []string) ([]*Project, error) {
	if len(ids) == 0 {
		return nil, reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "ids are required", nil)
	}
	results, err := m.BulkGet(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*Project, len(results))
	for i, res := range results {
		if res.Err != nil {
			continue
		}
		if out[i], err = decodeEntity[Project](res.Doc); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Update creates or updates a project. A project with an id but no revision
// is merged into the stored one; without an id it gets a new one.
func (m *ProjectModel) Update(ctx context.Context, p *Project) (*Project, error) {
	if p == nil {
		return nil, reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "project is required", nil)
	}
	if p.ID != "" && p.Rev == "" {
		merged, err := mergeEntity(ctx, m.Collection, p.ID, p)
		if err != nil {
			return nil, err
		}
		p = merged
	}
	return m.put(ctx, p)
}

func (m *ProjectModel) put(ctx context.Context, p *Project) (*Project, error) {
	m.normalize(p)
	return putEntity(ctx, m.Collection, p.ID, p.Rev, p)
}

// UpdateBulk stores projects independently. errs[i] is the error of ps[i].
func (m *ProjectModel) UpdateBulk(ctx context.Context, ps []*Project) (saved []*Project, errs []error) {
	saved = make([]*Project, len(ps))
	errs = make([]error, len(ps))
	for i, p := range ps {
		if p == nil {
			errs[i] = reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "project is required", nil)
			continue
		}
		saved[i], errs[i] = m.put(ctx, p)
	}
	return saved, errs
}

// List returns a page of projects in id order and the key of the next page.
func (m *ProjectModel) List(ctx context.Context, opts docstore.ListOptions) ([]*Project, string, error) {
	return listEntities[Project](ctx, m.Collection, opts)
}

// ListAll returns the projects with the given ids, or every project when ids
// is empty. Missing ids are skipped.
func (m *ProjectModel) ListAll(ctx context.Context, ids []string) ([]*Project, error) {
	if len(ids) == 0 {
		return listAllEntities[Project](ctx, m.Collection)
	}
	found, err := m.ReadBulk(ctx, ids)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(found, func(p *Project) bool { return p == nil }), nil
}

// Remove deletes a project. Saved requests linked only to it are removed with
// it; requests shared with other projects just lose the link.
func (m *ProjectModel) Remove(ctx context.Context, id string) error {
	p, err := m.Read(ctx, id)
	if err != nil {
		return err
	}
	if err := m.Collection.Remove(ctx, id, p.Rev); err != nil {
		return err
	}
	if len(p.Requests) == 0 {
		return nil
	}

	saved := m.requests.Saved
	reqs, err := saved.ReadBulk(ctx, p.Requests)
	if err != nil {
		return err
	}
	for _, req := range reqs {
		if req == nil {
			continue
		}
		rest := slices.DeleteFunc(slices.Clone(req.Projects), func(pid string) bool { return pid == id })
		if len(rest) == 0 {
			err = saved.Remove(ctx, req.ID, req.Rev)
		} else {
			req.Projects = rest
			_, err = saved.Update(ctx, req)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// AddRequest links request rid of type typ to project pid at position (nil
// appends). A history request is copied into a new saved request first.
func (m *ProjectModel) AddRequest(ctx context.Context, pid, rid, typ string, position *int) (*Request, error) {
	req, err := m.savedCopy(ctx, rid, typ)
	if err != nil {
		return nil, err
	}
	return m.link(ctx, pid, req, position, false)
}

// MoveRequest links request rid to project pid and unlinks it from every
// other project.
func (m *ProjectModel) MoveRequest(ctx context.Context, pid, rid, typ string, position *int) (*Request, error) {
	req, err := m.savedCopy(ctx, rid, typ)
	if err != nil {
		return nil, err
	}
	for _, other := range req.Projects {
		if other == pid {
			continue
		}
		if err := m.unlink(ctx, other, req.ID); err != nil && !docstore.NotFound(err) {
			return nil, err
		}
	}
	n := len(req.Projects)
	req.Projects = slices.DeleteFunc(req.Projects, func(id string) bool { return id != pid })
	return m.link(ctx, pid, req, position, len(req.Projects) != n)
}

// RemoveRequest unlinks saved request rid from project pid. The request is kept.
func (m *ProjectModel) RemoveRequest(ctx context.Context, pid, rid string) error {
	req, err := m.requests.Saved.Read(ctx, rid)
	if err != nil {
		return err
	}
	if i := slices.Index(req.Projects, pid); i >= 0 {
		req.Projects = slices.Delete(req.Projects, i, i+1)
		req.Updated = m.now().UnixMilli()
		if _, err := m.requests.Saved.Update(ctx, req); err != nil {
			return err
		}
	}
	return m.unlink(ctx, pid, rid)
}

// savedCopy reads a request as the saved request to link: history requests
// become a new saved request with a fresh id.
func (m *ProjectModel) savedCopy(ctx context.Context, rid, typ string) (*Request, error) {
	coll, err := m.requests.Collection(typ)
	if err != nil {
		return nil, err
	}
	req, err := coll.Read(ctx, rid)
	if err != nil {
		return nil, err
	}
	if typ == urlindex.TypeHistory {
		req.ID, req.Rev = uuid.NewString(), ""
		req.Projects = nil
		req.Created = 0
	}
	req.Updated = m.now().UnixMilli()
	return req, nil
}

// link adds req to project pid and pid to req, storing whichever changed.
// dirty forces the request write.
func (m *ProjectModel) link(ctx context.Context, pid string, req *Request, position *int, dirty bool) (*Request, error) {
	p, err := m.Read(ctx, pid)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(p.Requests, req.ID) {
		at := len(p.Requests)
		if position != nil {
			at = min(max(*position, 0), len(p.Requests))
		}
		p.Requests = slices.Insert(p.Requests, at, req.ID)
		if _, err := m.put(ctx, p); err != nil {
			return nil, err
		}
	}

	if !slices.Contains(req.Projects, pid) {
		req.Projects = append(req.Projects, pid)
	} else if !dirty && req.Rev != "" {
		return req, nil
	}
	return m.requests.Saved.Update(ctx, req)
}

func (m *ProjectModel) unlink(ctx context.Context, pid, rid string) error {
	p, err := m.Read(ctx, pid)
	if err != nil {
		return err
	}
	i := slices.Index(p.Requests, rid)
	if i < 0 {
		return nil
	}
	p.Requests = slices.Delete(p.Requests, i, i+1)
	_, err = m.put(ctx, p)
	return err
}
