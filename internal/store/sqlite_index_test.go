package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
	"github.com/Aman-CERP/reqfind/internal/urlindex"
)

func newTestStore(t *testing.T, batch int) *SQLiteIndexStore {
	t.Helper()
	s, err := NewSQLiteIndexStore("", IndexStoreConfig{BatchSize: batch})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func frag(requestID, typ, value string) urlindex.Fragment {
	return urlindex.Fragment{
		ID:        urlindex.FragmentID(value, typ),
		RequestID: requestID,
		Type:      typ,
		Value:     value,
		Kind:      urlindex.KindURL,
	}
}

func fragValues(fs []urlindex.Fragment) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Value
	}
	return out
}

func collect(t *testing.T, c RangeCursor, from string) []urlindex.Fragment {
	t.Helper()
	ctx := context.Background()
	var out []urlindex.Fragment
	f, ok, err := c.Seek(ctx, from)
	for ; ok; f, ok, err = c.Next(ctx) {
		out = append(out, f)
	}
	require.NoError(t, err)
	return out
}

// ============================================================================
// Bulk operations
// ============================================================================

func TestSQLiteIndexStore_BulkPut_RangeByRequestID(t *testing.T) {
	// Given: an empty store
	s := newTestStore(t, 0)
	ctx := context.Background()

	// When: fragments of two requests are put
	results := s.BulkPut(ctx, []urlindex.Fragment{
		frag("r1", "saved", "https://a.com"),
		frag("r1", "saved", "/x"),
		frag("r2", "saved", "https://b.com"),
	})

	// Then: every item succeeds and ranges are per request
	assert.Empty(t, Failed(results))
	got, err := s.RangeByRequestID(ctx, "r1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"https://a.com", "/x"}, fragValues(got))

	got, err = s.RangeByRequestID(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteIndexStore_BulkPut_SameURLDifferentRequests(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	s.BulkPut(ctx, []urlindex.Fragment{
		frag("r1", "saved", "https://same.com"),
		frag("r2", "saved", "https://same.com"),
	})

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Fragments)
	assert.Equal(t, 2, st.Requests)
}

func TestSQLiteIndexStore_BulkPut_ReplacesSameKey(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()

	s.BulkPut(ctx, []urlindex.Fragment{frag("r1", "saved", "https://A.com")})
	s.BulkPut(ctx, []urlindex.Fragment{frag("r1", "saved", "https://a.com")})

	got, err := s.RangeByRequestID(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://a.com", got[0].Value)
}

func TestSQLiteIndexStore_BulkPut_ItemFailureDoesNotAbortBatch(t *testing.T) {
	// Given: a batch with one invalid fragment in the middle
	s := newTestStore(t, 0)
	ctx := context.Background()
	bad := frag("r1", "saved", "bad")
	bad.ID = ""

	// When: the batch is put
	results := s.BulkPut(ctx, []urlindex.Fragment{
		frag("r1", "saved", "one"),
		bad,
		frag("r1", "saved", "two"),
	})

	// Then: only the invalid item fails
	require.Len(t, results, 3)
	assert.True(t, results[0].OK())
	assert.False(t, results[1].OK())
	assert.Equal(t, reqerrors.CategoryStoreItem, reqerrors.GetCategory(results[1].Err))
	assert.True(t, results[2].OK())

	got, err := s.RangeByRequestID(ctx, "r1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"one", "two"}, fragValues(got))
}

func TestSQLiteIndexStore_BulkDelete(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()
	a, b := frag("r1", "saved", "a"), frag("r1", "saved", "b")
	s.BulkPut(ctx, []urlindex.Fragment{a, b})

	results := s.BulkDelete(ctx, []urlindex.FragmentKey{a.Key(), {RequestID: "r9", ID: "nope"}})

	assert.Empty(t, Failed(results))
	got, err := s.RangeByRequestID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, fragValues(got))
}

func TestSQLiteIndexStore_BulkOps_Empty(t *testing.T) {
	s := newTestStore(t, 0)
	assert.Empty(t, s.BulkPut(context.Background(), nil))
	assert.Empty(t, s.BulkDelete(context.Background(), nil))
}

func TestSQLiteIndexStore_DeleteByRequestID(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()
	s.BulkPut(ctx, []urlindex.Fragment{
		frag("r1", "saved", "a"),
		frag("r1", "saved", "b"),
		frag("r2", "saved", "a"),
	})

	n, err := s.DeleteByRequestID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Fragments)
}

func TestSQLiteIndexStore_Clear(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()
	s.BulkPut(ctx, []urlindex.Fragment{frag("r1", "saved", "a"), frag("r2", "history", "b")})

	require.NoError(t, s.Clear(ctx))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Fragments)
	assert.Empty(t, st.ByType)
}

func TestSQLiteIndexStore_Clear_ClosedIsFatal(t *testing.T) {
	s := newTestStore(t, 0)
	require.NoError(t, s.Close())

	err := s.Clear(context.Background())

	require.Error(t, err)
	assert.True(t, reqerrors.IsFatal(err))
	assert.Equal(t, reqerrors.CategoryStoreFatal, reqerrors.GetCategory(err))
}

func TestSQLiteIndexStore_Stats_ByType(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()
	s.BulkPut(ctx, []urlindex.Fragment{
		frag("r1", "saved", "a"),
		frag("r1", "saved", "b"),
		frag("h1", "history", "a"),
	})

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"saved": 2, "history": 1}, st.ByType)
	assert.Equal(t, 2, st.Requests)
}

// ============================================================================
// Cursor and scan
// ============================================================================

func TestSQLiteIndexStore_Cursor_SortedAcrossBatches(t *testing.T) {
	// Given: a tiny batch size so the cursor must page
	s := newTestStore(t, 2)
	ctx := context.Background()
	s.BulkPut(ctx, []urlindex.Fragment{
		frag("r1", "saved", "banana"),
		frag("r2", "saved", "Apple"),
		frag("r3", "saved", "apple"),
		frag("r4", "saved", "cherry"),
		frag("r5", "saved", "banana"),
	})

	// When: walking from the start
	got := collect(t, s.Cursor("saved"), "")

	// Then: byte order by value, then request id
	assert.Equal(t, []string{"Apple", "apple", "banana", "banana", "cherry"}, fragValues(got))
	assert.Equal(t, "r1", got[2].RequestID)
	assert.Equal(t, "r5", got[3].RequestID)
}

func TestSQLiteIndexStore_Cursor_Seek(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()
	s.BulkPut(ctx, []urlindex.Fragment{
		frag("r1", "saved", "alpha"),
		frag("r2", "saved", "beta"),
		frag("r3", "saved", "gamma"),
	})
	c := s.Cursor("saved")

	f, ok, err := c.Seek(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "beta", f.Value)

	// Seeking backwards is allowed
	f, ok, err = c.Seek(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alpha", f.Value)

	_, ok, err = c.Seek(ctx, "zzz")
	require.NoError(t, err)
	assert.False(t, ok)

	// Next after exhaustion stays exhausted
	_, ok, err = c.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteIndexStore_Cursor_FiltersType(t *testing.T) {
	s := newTestStore(t, 0)
	ctx := context.Background()
	s.BulkPut(ctx, []urlindex.Fragment{
		frag("r1", "saved", "a"),
		frag("h1", "history", "b"),
	})

	assert.Equal(t, []string{"a"}, fragValues(collect(t, s.Cursor("saved"), "")))
	assert.Equal(t, []string{"b"}, fragValues(collect(t, s.Cursor("history"), "")))
	assert.Equal(t, []string{"a", "b"}, fragValues(collect(t, s.Cursor(""), "")))
}

func TestSQLiteIndexStore_Scan_StopsEarly(t *testing.T) {
	s := newTestStore(t, 2)
	ctx := context.Background()
	s.BulkPut(ctx, []urlindex.Fragment{
		frag("r1", "saved", "a"),
		frag("r2", "saved", "b"),
		frag("r3", "saved", "c"),
	})

	var seen []string
	err := s.Scan(ctx, "saved", func(f urlindex.Fragment) bool {
		seen = append(seen, f.Value)
		return len(seen) < 2
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestSQLiteIndexStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "index.db")
	ctx := context.Background()

	s, err := NewSQLiteIndexStore(path, DefaultIndexStoreConfig())
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	s.BulkPut(ctx, []urlindex.Fragment{frag("r1", "saved", "https://a.com")})
	require.NoError(t, s.Close())

	s, err = NewSQLiteIndexStore(path, DefaultIndexStoreConfig())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.RangeByRequestID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.com"}, fragValues(got))
}

func TestSQLiteIndexStore_CorruptedFileIsCleared(t *testing.T) {
	// Given: a file that is not a database
	path := filepath.Join(t.TempDir(), "index.db")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("not sqlite "), 512), 0644))

	// When: opening the store
	s, err := NewSQLiteIndexStore(path, DefaultIndexStoreConfig())

	// Then: it starts empty
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Fragments)
}

func TestSQLiteIndexStore_Close_Idempotent(t *testing.T) {
	s, err := NewSQLiteIndexStore("", DefaultIndexStoreConfig())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.RangeByRequestID(context.Background(), "r1")
	assert.Error(t, err)
	results := s.BulkPut(context.Background(), []urlindex.Fragment{frag("r1", "saved", "a")})
	assert.Len(t, Failed(results), 1)
}
