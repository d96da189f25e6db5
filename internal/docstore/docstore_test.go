package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func data(s string) json.RawMessage {
	return json.RawMessage(`{"v":"` + s + `"}`)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestCollection_PutGet(t *testing.T) {
	c := newTestDB(t).Collection("saved")
	ctx := context.Background()

	created, err := c.Put(ctx, Document{ID: "a", Data: data("1")})
	require.NoError(t, err)
	assert.Equal(t, 1, Generation(created.Rev))

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.JSONEq(t, `{"v":"1"}`, string(got.Data))
}

func TestCollection_Put_AssignsID(t *testing.T) {
	c := newTestDB(t).Collection("saved")

	doc, err := c.Put(context.Background(), Document{Data: data("x")})

	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
}

func TestCollection_Put_RevisionConflict(t *testing.T) {
	c := newTestDB(t).Collection("saved")
	ctx := context.Background()

	v1, err := c.Put(ctx, Document{ID: "a", Data: data("1")})
	require.NoError(t, err)

	v2, err := c.Put(ctx, Document{ID: "a", Rev: v1.Rev, Data: data("2")})
	require.NoError(t, err)
	assert.Equal(t, 2, Generation(v2.Rev))
	assert.NotEqual(t, v1.Rev, v2.Rev)

	tests := []struct {
		name string
		doc  Document
	}{
		{"stale revision", Document{ID: "a", Rev: v1.Rev, Data: data("3")}},
		{"missing revision", Document{ID: "a", Data: data("3")}},
		{"revision for new document", Document{ID: "b", Rev: "1-abc", Data: data("3")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Put(ctx, tt.doc)
			require.Error(t, err)
			assert.True(t, Conflict(err))
			assert.Equal(t, reqerrors.CategoryConflict, reqerrors.GetCategory(err))
		})
	}

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, v2.Rev, got.Rev)
}

func TestCollection_Get_NotFound(t *testing.T) {
	c := newTestDB(t).Collection("saved")

	_, err := c.Get(context.Background(), "missing")

	assert.True(t, NotFound(err))
	assert.Equal(t, reqerrors.CategoryNotFound, reqerrors.GetCategory(err))
}

func TestCollection_CollectionsAreIsolated(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_, err := db.Collection("saved").Put(ctx, Document{ID: "a", Data: data("1")})
	require.NoError(t, err)

	_, err = db.Collection("history").Get(ctx, "a")
	assert.True(t, NotFound(err))
}

func TestCollection_BulkGet(t *testing.T) {
	c := newTestDB(t).Collection("saved")
	ctx := context.Background()
	_, err := c.Put(ctx, Document{ID: "a", Data: data("1")})
	require.NoError(t, err)

	results, err := c.BulkGet(ctx, []string{"a", "nope"})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "a", results[0].Doc.ID)
	assert.True(t, NotFound(results[1].Err))
}

func TestCollection_BulkPut_IndependentItems(t *testing.T) {
	c := newTestDB(t).Collection("saved")
	ctx := context.Background()

	results := c.BulkPut(ctx, []Document{
		{ID: "a", Data: data("1")},
		{ID: "b", Rev: "7-stale", Data: data("2")},
		{ID: "c", Data: data("3")},
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.True(t, Conflict(results[1].Err))
	assert.Equal(t, "b", results[1].Doc.ID)
	assert.NoError(t, results[2].Err)
}

func TestCollection_Remove(t *testing.T) {
	c := newTestDB(t).Collection("saved")
	ctx := context.Background()
	doc, err := c.Put(ctx, Document{ID: "a", Data: data("1")})
	require.NoError(t, err)

	assert.True(t, Conflict(c.Remove(ctx, "a", "1-wrong")))
	require.NoError(t, c.Remove(ctx, "a", doc.Rev))

	_, err = c.Get(ctx, "a")
	assert.True(t, NotFound(err))
	assert.True(t, NotFound(c.Remove(ctx, "a", doc.Rev)))

	// A removed id can be created again from scratch
	_, err = c.Put(ctx, Document{ID: "a", Data: data("2")})
	assert.NoError(t, err)
}

func TestCollection_List_Pagination(t *testing.T) {
	c := newTestDB(t).Collection("saved")
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := c.Put(ctx, Document{ID: fmt.Sprintf("doc-%d", i), Data: data("x")})
		require.NoError(t, err)
	}
	_, err := c.db.Collection("savedother").Put(ctx, Document{ID: "zzz", Data: data("x")})
	require.NoError(t, err)

	page, next, err := c.List(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-0", "doc-1"}, docIDs(page))
	assert.Equal(t, "doc-1", next)

	page, next, err = c.List(ctx, ListOptions{Limit: 2, StartAfter: next})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-2", "doc-3"}, docIDs(page))

	page, next, err = c.List(ctx, ListOptions{Limit: 2, StartAfter: next})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-4"}, docIDs(page))
	assert.Empty(t, next)

	all, next, err := c.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Empty(t, next)
}

func TestDB_PersistsAcrossReopen(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.SyncWrites = false
	ctx := context.Background()

	db, err := Open(cfg)
	require.NoError(t, err)
	doc, err := db.Collection("saved").Put(ctx, Document{ID: "a", Data: data("1")})
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	db, err = Open(cfg)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	got, err := db.Collection("saved").Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, doc.Rev, got.Rev)
}

func TestNextRev(t *testing.T) {
	r1 := nextRev("", []byte("a"))
	r2 := nextRev(r1, []byte("a"))

	assert.Equal(t, 1, Generation(r1))
	assert.Equal(t, 2, Generation(r2))
	assert.NotEqual(t, r1, r2)
	assert.Equal(t, 0, Generation("garbage"))
}

func docIDs(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
