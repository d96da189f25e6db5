// Package store persists URL fragments in a sorted index (SQLite).
// It is the only layer that touches the fragment table.
package store

import (
	"context"

	"github.com/Aman-CERP/reqfind/internal/urlindex"
)

// DefaultBatchSize is the number of rows a cursor fetches per round trip.
const DefaultBatchSize = 256

// IndexStoreConfig configures an index store.
type IndexStoreConfig struct {
	// BatchSize bounds how many rows a RangeCursor buffers.
	BatchSize int
}

// DefaultIndexStoreConfig returns the default store configuration.
func DefaultIndexStoreConfig() IndexStoreConfig {
	return IndexStoreConfig{BatchSize: DefaultBatchSize}
}

// ItemResult is the outcome of one item of a bulk operation.
type ItemResult struct {
	Key urlindex.FragmentKey
	Err error // nil on success
}

// OK reports whether the item succeeded.
func (r ItemResult) OK() bool { return r.Err == nil }

// Failed returns the failed items of a bulk result.
func Failed(results []ItemResult) []ItemResult {
	var out []ItemResult
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Stats summarizes the index store contents.
type Stats struct {
	Fragments int            `json:"fragments"`
	Requests  int            `json:"requests"`
	ByType    map[string]int `json:"byType"`
}

// IndexStore is the fragment index.
//
// Bulk operations never fail as a whole: every item gets its own result.
// Fatal conditions (open, clear) are reported as StoreFatalError.
type IndexStore interface {
	// BulkPut inserts or replaces fragments, keyed by (requestId, id).
	BulkPut(ctx context.Context, fragments []urlindex.Fragment) []ItemResult

	// BulkDelete removes fragments by key. Missing keys succeed.
	BulkDelete(ctx context.Context, keys []urlindex.FragmentKey) []ItemResult

	// RangeByRequestID returns every fragment owned by a request.
	RangeByRequestID(ctx context.Context, requestID string) ([]urlindex.Fragment, error)

	// DeleteByRequestID removes every fragment owned by a request.
	DeleteByRequestID(ctx context.Context, requestID string) (int, error)

	// Clear removes every fragment in one transaction.
	Clear(ctx context.Context) error

	// Scan visits the fragments of a type ("" for all types) in value order
	// until fn returns false.
	Scan(ctx context.Context, typ string, fn func(urlindex.Fragment) bool) error

	// Cursor opens a sorted range cursor over the fragments of a type.
	Cursor(typ string) RangeCursor

	// Stats returns fragment and request counts.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the store.
	Close() error
}

// RangeCursor walks fragments sorted by value (byte order), then request id.
type RangeCursor interface {
	// Seek positions the cursor on the first fragment whose value is >= from.
	// ok is false when no such fragment exists.
	Seek(ctx context.Context, from string) (f urlindex.Fragment, ok bool, err error)

	// Next advances past the current fragment.
	Next(ctx context.Context) (f urlindex.Fragment, ok bool, err error)
}
