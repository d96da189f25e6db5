package model

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/reqfind/internal/docstore"
	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
)

// Collection names of typed URLs.
const (
	URLHistoryCollection          = "url-history"
	WebsocketURLHistoryCollection = "websocket-url-history"
)

// URLEntry is a URL the user typed, with its use count.
type URLEntry struct {
	ID    string `json:"_id"` // lower-cased URL
	Rev   string `json:"_rev,omitempty"`
	URL   string `json:"url"`
	Count int    `json:"cnt"`
	Time  int64  `json:"time"` // unix millis of last use
}

func (e *URLEntry) setKey(id, rev string) { e.ID, e.Rev = id, rev }

// URLHistoryModel stores typed URLs and suggests them back.
type URLHistoryModel struct {
	*docstore.Collection
	now func() time.Time
}

// NewURLHistoryModel binds the URL history collection of db.
func NewURLHistoryModel(db *docstore.DB) *URLHistoryModel {
	return &URLHistoryModel{Collection: db.Collection(URLHistoryCollection), now: time.Now}
}

// NewWebsocketURLHistoryModel binds the collection of typed websocket URLs.
func NewWebsocketURLHistoryModel(db *docstore.DB) *URLHistoryModel {
	return &URLHistoryModel{Collection: db.Collection(WebsocketURLHistoryCollection), now: time.Now}
}

// Store records one use of url: a new entry starts at count 1, an existing
// one (matched case-insensitively) is incremented and its time refreshed.
func (m *URLHistoryModel) Store(ctx context.Context, url string) (*URLEntry, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "url is required", nil)
	}
	id := strings.ToLower(url)

	// Concurrent stores of one URL race on the revision; retry on conflict.
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		var entry *URLEntry
		if entry, err = m.store(ctx, id, url); err == nil || !docstore.Conflict(err) {
			return entry, err
		}
	}
	return nil, err
}

func (m *URLHistoryModel) store(ctx context.Context, id, url string) (*URLEntry, error) {
	entry := URLEntry{ID: id, URL: url}
	doc, err := m.Get(ctx, id)
	switch {
	case err == nil:
		if err := json.Unmarshal(doc.Data, &entry); err != nil {
			return nil, fmt.Errorf("decode url history %s: %w", id, err)
		}
		entry.Rev = doc.Rev
	case !docstore.NotFound(err):
		return nil, err
	}

	entry.Count++
	entry.Time = m.now().UnixMilli()
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode url history: %w", err)
	}
	saved, err := m.Put(ctx, docstore.Document{ID: id, Rev: entry.Rev, Data: data})
	if err != nil {
		return nil, err
	}
	entry.Rev = saved.Rev
	return &entry, nil
}

// Query returns entries whose URL contains q, ignoring case, most used first
// and most recent first among equals.
func (m *URLHistoryModel) Query(ctx context.Context, q string) ([]*URLEntry, error) {
	needle := strings.ToLower(strings.TrimSpace(q))
	if needle == "" {
		return nil, reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload, "query is required", nil)
	}

	all, err := listAllEntities[URLEntry](ctx, m.Collection)
	if err != nil {
		return nil, err
	}
	out := slices.DeleteFunc(all, func(e *URLEntry) bool { return !strings.Contains(e.ID, needle) })
	if out == nil {
		out = []*URLEntry{}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Time > out[j].Time
	})
	return out, nil
}

// List returns a page of entries in id order and the key of the next page.
func (m *URLHistoryModel) List(ctx context.Context, opts docstore.ListOptions) ([]*URLEntry, string, error) {
	return listEntities[URLEntry](ctx, m.Collection, opts)
}
