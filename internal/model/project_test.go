package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/reqfind/internal/docstore"
	"github.com/Aman-CERP/reqfind/internal/urlindex"
)

func (f *fixture) project(t *testing.T, id, name string, requests ...string) *Project {
	t.Helper()
	p, err := f.models.Projects.Update(context.Background(), &Project{ID: id, Name: name, Requests: requests})
	require.NoError(t, err)
	return p
}

func (f *fixture) saved(t *testing.T, req *Request) *Request {
	t.Helper()
	out, err := f.requests.Saved.Update(context.Background(), req)
	require.NoError(t, err)
	return out
}

func TestProjects_UpdateNormalizes(t *testing.T) {
	f := newFixture(t)
	m := f.models.Projects
	m.now = fixedClock(500)

	p, err := m.Update(context.Background(), &Project{Name: "Billing"})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID, "a project without an id gets one")
	assert.NotEmpty(t, p.Rev)
	assert.Equal(t, []string{}, p.Requests)
	assert.Equal(t, int64(500), p.Created)
	assert.Equal(t, int64(500), p.Updated)

	_, err = m.Update(context.Background(), nil)
	require.Error(t, err)
}

func TestProjects_UpdateMergesWithoutRev(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.models.Projects
	f.project(t, "p1", "Billing", "r1")

	// Given: a write with only the id and a new description
	m.now = fixedClock(900)
	got, err := m.Update(ctx, &Project{ID: "p1", Description: "invoices"})
	require.NoError(t, err)

	// Then: stored fields survive and the new one is applied
	assert.Equal(t, "Billing", got.Name)
	assert.Equal(t, "invoices", got.Description)
	assert.Equal(t, []string{"r1"}, got.Requests)
	assert.Equal(t, 2, docstore.Generation(got.Rev))
	assert.Equal(t, int64(900), got.Updated)

	// An unknown id with no revision is created as given.
	created, err := m.Update(ctx, &Project{ID: "p2", Name: "New"})
	require.NoError(t, err)
	assert.Equal(t, "p2", created.ID)
}

func TestProjects_UpdateStaleRevConflicts(t *testing.T) {
	f := newFixture(t)
	p := f.project(t, "p1", "Billing")
	_, err := f.models.Projects.Update(context.Background(), &Project{ID: "p1", Rev: p.Rev, Name: "Renamed"})
	require.NoError(t, err)

	_, err = f.models.Projects.Update(context.Background(), &Project{ID: "p1", Rev: p.Rev, Name: "Stale"})
	assert.True(t, docstore.Conflict(err))
}

func TestProjects_UpdateBulkAndReads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.models.Projects

	saved, errs := m.UpdateBulk(ctx, []*Project{{ID: "a", Name: "A"}, nil, {ID: "b", Name: "B"}})
	require.Len(t, saved, 3)
	assert.NoError(t, errs[0])
	assert.Error(t, errs[1])
	assert.NoError(t, errs[2])

	got, err := m.ReadBulk(ctx, []string{"b", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "B", got[0].Name)
	assert.Nil(t, got[1])
	assert.Equal(t, "A", got[2].Name)

	_, err = m.ReadBulk(ctx, nil)
	assert.Error(t, err)

	all, err := m.ListAll(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	some, err := m.ListAll(ctx, []string{"missing", "b"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "b", some[0].ID)

	page, next, err := m.List(ctx, docstore.ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].ID)
	assert.Equal(t, "a", next)
}

func TestProjects_AddSavedRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.models.Projects
	f.project(t, "p1", "Billing", "x", "y")
	f.saved(t, &Request{ID: "r1", URL: "https://api.com/invoices"})

	pos := 1
	req, err := m.AddRequest(ctx, "p1", "r1", urlindex.TypeSaved, &pos)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, req.Projects)

	p, err := m.Read(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "r1", "y"}, p.Requests)

	stored, err := f.requests.Saved.Read(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, stored.Projects)

	// Adding again changes nothing.
	again, err := m.AddRequest(ctx, "p1", "r1", urlindex.TypeSaved, nil)
	require.NoError(t, err)
	assert.Equal(t, stored.Rev, again.Rev)
	p, err = m.Read(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "r1", "y"}, p.Requests)
}

func TestProjects_AddHistoryRequestCopiesToSaved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.models.Projects
	f.project(t, "p1", "Billing")
	_, err := f.requests.History.Update(ctx, &Request{ID: "h1", URL: "https://api.com/history"})
	require.NoError(t, err)

	req, err := m.AddRequest(ctx, "p1", "h1", urlindex.TypeHistory, nil)
	require.NoError(t, err)

	assert.NotEqual(t, "h1", req.ID)
	assert.Equal(t, []string{"p1"}, req.Projects)

	// the history request is untouched and the copy is saved and indexed
	_, err = f.requests.History.Read(ctx, "h1")
	require.NoError(t, err)
	copied, err := f.requests.Saved.Read(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://api.com/history", copied.URL)
	assert.NotEmpty(t, f.fragments(t, req.ID))

	p, err := m.Read(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{req.ID}, p.Requests)
}

func TestProjects_AddRequestMissing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.saved(t, &Request{ID: "r1", URL: "https://a.com"})

	_, err := f.models.Projects.AddRequest(ctx, "nope", "r1", urlindex.TypeSaved, nil)
	assert.True(t, docstore.NotFound(err))

	f.project(t, "p1", "Billing")
	_, err = f.models.Projects.AddRequest(ctx, "p1", "nope", urlindex.TypeSaved, nil)
	assert.True(t, docstore.NotFound(err))

	_, err = f.models.Projects.AddRequest(ctx, "p1", "r1", "archived", nil)
	assert.Error(t, err)
}

func TestProjects_MoveRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.models.Projects
	f.project(t, "p1", "Old", "r1")
	f.project(t, "p2", "Other", "r1")
	f.project(t, "p3", "Target")
	f.saved(t, &Request{ID: "r1", URL: "https://a.com", Projects: []string{"p1", "p2"}})

	req, err := m.MoveRequest(ctx, "p3", "r1", urlindex.TypeSaved, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, req.Projects)

	for _, pid := range []string{"p1", "p2"} {
		p, err := m.Read(ctx, pid)
		require.NoError(t, err)
		assert.Empty(t, p.Requests, pid)
	}
	p3, err := m.Read(ctx, "p3")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, p3.Requests)

	stored, err := f.requests.Saved.Read(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p3"}, stored.Projects)
}

func TestProjects_MoveWithinSameProjectDropsOthers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.project(t, "p1", "Keep", "r1")
	f.project(t, "p2", "Drop", "r1")
	f.saved(t, &Request{ID: "r1", URL: "https://a.com", Projects: []string{"p1", "p2"}})

	req, err := f.models.Projects.MoveRequest(ctx, "p1", "r1", urlindex.TypeSaved, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, req.Projects)

	stored, err := f.requests.Saved.Read(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, stored.Projects)
}

func TestProjects_RemoveRequestKeepsRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.models.Projects
	f.project(t, "p1", "Billing", "r1", "r2")
	f.saved(t, &Request{ID: "r1", URL: "https://a.com", Projects: []string{"p1"}})

	require.NoError(t, m.RemoveRequest(ctx, "p1", "r1"))

	p, err := m.Read(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, p.Requests)

	stored, err := f.requests.Saved.Read(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, stored.Projects)
	assert.NotEmpty(t, f.fragments(t, "r1"))
}

func TestProjects_RemoveCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.models.Projects
	f.project(t, "p1", "Going", "only", "shared")
	f.project(t, "p2", "Staying", "shared")
	f.saved(t, &Request{ID: "only", URL: "https://a.com/only", Projects: []string{"p1"}})
	f.saved(t, &Request{ID: "shared", URL: "https://a.com/shared", Projects: []string{"p1", "p2"}})

	require.NoError(t, m.Remove(ctx, "p1"))

	_, err := m.Read(ctx, "p1")
	assert.True(t, docstore.NotFound(err))

	// a request linked only to the project goes with it, index included
	_, err = f.requests.Saved.Read(ctx, "only")
	assert.True(t, docstore.NotFound(err))
	assert.Empty(t, f.fragments(t, "only"))

	// a shared request just loses the link
	shared, err := f.requests.Saved.Read(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, shared.Projects)

	assert.True(t, docstore.NotFound(m.Remove(ctx, "p1")))
}
