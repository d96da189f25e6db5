package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/reqfind/internal/urlindex"
)

// sqliteCursor is a keyset-paginated RangeCursor.
// It buffers at most BatchSize rows and never holds a statement open between calls,
// so other store operations can run while a cursor is alive.
type sqliteCursor struct {
	s    *SQLiteIndexStore
	typ  string
	buf  []urlindex.Fragment
	pos  int
	last *urlindex.Fragment // last row handed out; nil before Seek
	done bool               // no rows after buf
}

// Cursor opens a sorted range cursor over the fragments of typ ("" = all types).
func (s *SQLiteIndexStore) Cursor(typ string) RangeCursor {
	return &sqliteCursor{s: s, typ: typ}
}

// Seek positions the cursor on the first fragment whose value is >= from.
func (c *sqliteCursor) Seek(ctx context.Context, from string) (urlindex.Fragment, bool, error) {
	rows, err := c.fetch(ctx, "value >= ?", from)
	if err != nil {
		return urlindex.Fragment{}, false, err
	}
	c.buf, c.pos = rows, 0
	c.done = len(rows) < c.s.config.BatchSize
	return c.current()
}

// Next advances to the fragment after the current one.
func (c *sqliteCursor) Next(ctx context.Context) (urlindex.Fragment, bool, error) {
	if c.last == nil {
		return urlindex.Fragment{}, false, nil
	}
	c.pos++
	if c.pos < len(c.buf) {
		return c.current()
	}
	if c.done {
		c.last = nil
		return urlindex.Fragment{}, false, nil
	}

	l := c.last
	rows, err := c.fetch(ctx, "(value, request_id, id) > (?, ?, ?)", l.Value, l.RequestID, l.ID)
	if err != nil {
		return urlindex.Fragment{}, false, err
	}
	c.buf, c.pos = rows, 0
	c.done = len(rows) < c.s.config.BatchSize
	return c.current()
}

func (c *sqliteCursor) current() (urlindex.Fragment, bool, error) {
	if c.pos >= len(c.buf) {
		c.last = nil
		return urlindex.Fragment{}, false, nil
	}
	f := c.buf[c.pos]
	c.last = &f
	return f, true, nil
}

// fetch loads the next batch matching cond, in (value, request_id, id) order.
func (c *sqliteCursor) fetch(ctx context.Context, cond string, args ...any) ([]urlindex.Fragment, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	if c.s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	var where []string
	if c.typ != "" {
		where = append(where, "type = ?")
		args = append([]any{c.typ}, args...)
	}
	where = append(where, cond)
	args = append(args, c.s.config.BatchSize)

	query := `SELECT request_id, id, type, value, kind FROM fragments
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY value, request_id, id
		LIMIT ?`

	rows, err := c.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read range: %w", err)
	}
	defer rows.Close()

	return scanFragments(rows)
}
