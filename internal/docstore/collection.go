package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
)

// maxTxnRetries bounds retries of a write that lost a Badger transaction race.
const maxTxnRetries = 3

// Document is one revisioned record.
type Document struct {
	ID   string          `json:"id"`
	Rev  string          `json:"rev"`
	Data json.RawMessage `json:"data"`
}

// Result is the outcome for one document of a bulk operation.
type Result struct {
	Doc Document
	Err error
}

// ListOptions pages through a collection in id order.
type ListOptions struct {
	Limit      int    // 0 means no limit
	StartAfter string // exclusive; "" starts at the beginning
}

// Collection is a named set of documents. It is safe for concurrent use.
type Collection struct {
	db     *DB
	name   string
	prefix []byte
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) key(id string) []byte {
	return append(append([]byte(nil), c.prefix...), id...)
}

// NotFound reports whether err is a missing document error.
func NotFound(err error) bool {
	return reqerrors.GetCode(err) == reqerrors.ErrCodeDocNotFound
}

// Conflict reports whether err is a revision conflict.
func Conflict(err error) bool {
	return reqerrors.GetCode(err) == reqerrors.ErrCodeDocConflict
}

func notFound(id string) error {
	return reqerrors.New(reqerrors.ErrCodeDocNotFound, "document "+id+" not found", nil)
}

// Get returns the current revision of a document.
func (c *Collection) Get(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	var doc Document
	err := c.db.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = c.read(txn, id)
		return err
	})
	return doc, err
}

// BulkGet returns one result per id, in order. Missing ids carry a NotFound error.
func (c *Collection) BulkGet(ctx context.Context, ids []string) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	results := make([]Result, len(ids))
	err := c.db.db.View(func(txn *badger.Txn) error {
		for i, id := range ids {
			doc, err := c.read(txn, id)
			if err != nil && !NotFound(err) {
				return err
			}
			results[i] = Result{Doc: doc, Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Collection) read(txn *badger.Txn, id string) (Document, error) {
	item, err := txn.Get(c.key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Document{}, notFound(id)
	}
	if err != nil {
		return Document{}, fmt.Errorf("read %s/%s: %w", c.name, id, err)
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return Document{}, fmt.Errorf("read %s/%s: %w", c.name, id, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode %s/%s: %w", c.name, id, err)
	}
	return doc, nil
}

// Put writes doc if doc.Rev names the current revision ("" for a new document)
// and returns it with its new revision. A document without an id gets a new one.
func (c *Collection) Put(ctx context.Context, doc Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	var out Document
	err := c.update(func(txn *badger.Txn) error {
		var err error
		out, err = c.write(txn, doc)
		return err
	})
	return out, err
}

// BulkPut writes each document independently; one result per document.
func (c *Collection) BulkPut(ctx context.Context, docs []Document) []Result {
	results := make([]Result, len(docs))
	for i, doc := range docs {
		results[i].Doc, results[i].Err = c.Put(ctx, doc)
		if results[i].Err != nil {
			results[i].Doc = doc
		}
	}
	return results
}

func (c *Collection) write(txn *badger.Txn, doc Document) (Document, error) {
	current, err := c.read(txn, doc.ID)
	switch {
	case NotFound(err):
		if doc.Rev != "" {
			return Document{}, reqerrors.New(reqerrors.ErrCodeDocConflict,
				"document "+doc.ID+" does not exist at revision "+doc.Rev, nil)
		}
	case err != nil:
		return Document{}, err
	case current.Rev != doc.Rev:
		return Document{}, reqerrors.New(reqerrors.ErrCodeDocConflict,
			fmt.Sprintf("document %s is at revision %s, not %q", doc.ID, current.Rev, doc.Rev), nil)
	}

	doc.Rev = nextRev(current.Rev, doc.Data)
	raw, err := json.Marshal(doc)
	if err != nil {
		return Document{}, fmt.Errorf("encode %s/%s: %w", c.name, doc.ID, err)
	}
	if err := txn.Set(c.key(doc.ID), raw); err != nil {
		return Document{}, fmt.Errorf("write %s/%s: %w", c.name, doc.ID, err)
	}
	return doc, nil
}

// Remove deletes a document at its current revision.
func (c *Collection) Remove(ctx context.Context, id, rev string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.update(func(txn *badger.Txn) error {
		current, err := c.read(txn, id)
		if err != nil {
			return err
		}
		if current.Rev != rev {
			return reqerrors.New(reqerrors.ErrCodeDocConflict,
				fmt.Sprintf("document %s is at revision %s, not %q", id, current.Rev, rev), nil)
		}
		return txn.Delete(c.key(id))
	})
}

// List returns documents in id order and the id to pass as StartAfter for the
// next page, or "" when the collection is exhausted.
func (c *Collection) List(ctx context.Context, opts ListOptions) ([]Document, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	var docs []Document
	more := false
	err := c.db.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(c.key(opts.StartAfter)); it.ValidForPrefix(c.prefix); it.Next() {
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), string(c.prefix))
			if opts.StartAfter != "" && id == opts.StartAfter {
				continue
			}
			if opts.Limit > 0 && len(docs) == opts.Limit {
				more = true
				return nil
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s/%s: %w", c.name, id, err)
			}
			var doc Document
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("decode %s/%s: %w", c.name, id, err)
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	next := ""
	if more {
		next = docs[len(docs)-1].ID
	}
	return docs, next, nil
}

// update runs fn in a read-write transaction, retrying lost races.
func (c *Collection) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = c.db.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// nextRev derives "<generation>-<hash>" from the previous revision and new data.
func nextRev(prev string, data []byte) string {
	gen := 0
	if g, _, ok := strings.Cut(prev, "-"); ok {
		gen, _ = strconv.Atoi(g)
	}
	sum := sha256.Sum256(append([]byte(prev+"\x00"), data...))
	return strconv.Itoa(gen+1) + "-" + hex.EncodeToString(sum[:16])
}

// Generation returns the numeric prefix of a revision, or 0.
func Generation(rev string) int {
	g, _, _ := strings.Cut(rev, "-")
	n, _ := strconv.Atoi(g)
	return n
}
