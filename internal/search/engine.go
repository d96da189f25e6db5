package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/Aman-CERP/reqfind/internal/store"
	"github.com/Aman-CERP/reqfind/internal/urlindex"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Engine runs queries against an index store.
type Engine struct {
	store  store.IndexStore
	logger *slog.Logger
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for query tracing.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates a search engine over s.
func NewEngine(s store.IndexStore, opts ...EngineOption) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("index store: %w", ErrNilDependency)
	}
	e := &Engine{store: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search returns the requests with a fragment matching q, deduplicated by
// request id, without ignored ids, in order of discovery.
// An empty or whitespace-only query matches nothing.
func (e *Engine) Search(ctx context.Context, q Query) ([]Match, error) {
	mode, err := ParseMode(string(q.Mode))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(q.Text) == "" {
		return []Match{}, nil
	}

	start := time.Now()
	c := newCollector(q.IgnoreIDs)

	switch mode {
	case ModeDetailed:
		err = e.detailed(ctx, q, c)
	default:
		err = e.fast(ctx, q, c)
	}
	if err != nil {
		return nil, fmt.Errorf("%s search failed: %w", mode, err)
	}

	e.logger.Debug("search_complete",
		slog.String("mode", string(mode)),
		slog.String("type", q.Type),
		slog.Int("matches", len(c.matches)),
		slog.Duration("duration", time.Since(start)))

	return c.matches, nil
}

// detailed scans every fragment of the type for a case-insensitive substring.
func (e *Engine) detailed(ctx context.Context, q Query, c *collector) error {
	needle := fold(q.Text)
	return e.store.Scan(ctx, q.Type, func(f urlindex.Fragment) bool {
		if strings.Contains(fold(f.Value), needle) {
			c.add(f)
		}
		return true
	})
}

// fast walks the sorted index, jumping over every key range that cannot
// start with a casing of the query.
func (e *Engine) fast(ctx context.Context, q Query, c *collector) error {
	cs := newCasing(q.Text)
	cur := e.store.Cursor(q.Type)

	f, ok, err := cur.Seek(ctx, string(cs.lo))
	for ok && err == nil {
		key := []rune(f.Value)
		lowerKey := lowerRunes(key)

		if cs.matches(lowerKey) {
			c.add(f)
			f, ok, err = cur.Next(ctx)
			continue
		}

		next, found := cs.next(key, lowerKey)
		if !found {
			return nil
		}
		if next <= f.Value {
			f, ok, err = cur.Next(ctx)
		} else {
			f, ok, err = cur.Seek(ctx, next)
		}
	}
	return err
}

// fold lower-cases s rune by rune, the same mapping the casing traversal uses.
func fold(s string) string {
	return strings.Map(unicode.ToLower, s)
}

type collector struct {
	ignore  map[string]struct{}
	seen    map[string]struct{}
	matches []Match
}

func newCollector(ignoreIDs []string) *collector {
	c := &collector{
		ignore:  make(map[string]struct{}, len(ignoreIDs)),
		seen:    make(map[string]struct{}),
		matches: []Match{},
	}
	for _, id := range ignoreIDs {
		c.ignore[id] = struct{}{}
	}
	return c
}

func (c *collector) add(f urlindex.Fragment) {
	if _, skip := c.ignore[f.RequestID]; skip {
		return
	}
	if _, dup := c.seen[f.RequestID]; dup {
		return
	}
	c.seen[f.RequestID] = struct{}{}
	c.matches = append(c.matches, Match{RequestID: f.RequestID, Type: f.Type})
}
