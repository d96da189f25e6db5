package worker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
	"github.com/Aman-CERP/reqfind/internal/search"
	"github.com/Aman-CERP/reqfind/internal/store"
	"github.com/Aman-CERP/reqfind/internal/urlindex"
)

// DefaultQueryCacheSize is the default number of query results kept in memory.
const DefaultQueryCacheSize = 256

// State is the coordinator lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	// StatePoisoned is terminal: the store could not be opened or cleared and
	// every later task is rejected without being attempted.
	StatePoisoned State = "poisoned"
	StateClosed   State = "closed"
)

// Opener opens the index store. It is called once, by the first task.
type Opener func(ctx context.Context) (store.IndexStore, error)

// Config configures a Coordinator.
type Config struct {
	// QueryCacheSize bounds the query result cache. Negative disables it.
	QueryCacheSize int
	Logger         *slog.Logger
}

// Snapshot is a point-in-time view of the coordinator.
type Snapshot struct {
	State       State  `json:"state"`
	QueueDepth  int    `json:"queue_depth"`
	CurrentTask string `json:"current_task,omitempty"`
	StoreOpen   bool   `json:"store_open"`
	Processed   int64  `json:"processed"`
	Failed      int64  `json:"failed"`
	Canceled    int64  `json:"canceled"`
	PoisonCause string `json:"poison_cause,omitempty"`
}

type pending struct {
	task Task
	resp chan Response
}

// Coordinator runs tasks one at a time, in submission order.
// It is the only writer of its index store.
type Coordinator struct {
	open     Opener
	logger   *slog.Logger
	validate *validator.Validate
	cache    *lru.Cache[string, []search.Match]

	mu      sync.Mutex
	queue   []*pending
	state   State
	current string
	poison  error
	closed  bool
	stats   Snapshot // counters only

	// Owned by the run goroutine.
	store  store.IndexStore
	engine *search.Engine

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New starts a coordinator. The store is opened lazily by the first task.
func New(open Opener, cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		open:     open,
		logger:   logger,
		validate: validator.New(),
		state:    StateIdle,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	size := cfg.QueryCacheSize
	if size == 0 {
		size = DefaultQueryCacheSize
	}
	if size > 0 {
		c.cache, _ = lru.New[string, []search.Match](size)
	}

	go c.run()
	return c
}

// Submit enqueues a task and returns the channel that will receive its single
// terminal response. It never blocks. A task without an id gets a generated one.
func (c *Coordinator) Submit(task Task) <-chan Response {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	p := &pending{task: task, resp: make(chan Response, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		p.resp <- canceled(task, reqerrors.ErrCodeWorkerClosed, "worker is closed")
		return p.resp
	}
	c.queue = append(c.queue, p)
	queueDepth.Set(float64(len(c.queue)))
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return p.resp
}

// Do submits a task and waits for its response.
// If ctx ends while the task is still queued, the task is canceled and ctx.Err()
// is returned with the Canceled response. A task already running always completes.
func (c *Coordinator) Do(ctx context.Context, task Task) (Response, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	ch := c.Submit(task)

	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		if c.Cancel(task.ID) {
			return <-ch, ctx.Err()
		}
		return <-ch, nil
	}
}

// Cancel removes a task that has not started yet. The task still receives one
// Canceled response. Returns false if the task is running, done, or unknown.
func (c *Coordinator) Cancel(taskID string) bool {
	c.mu.Lock()
	var found *pending
	for i, p := range c.queue {
		if p.task.ID == taskID {
			found = p
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			break
		}
	}
	if found != nil {
		c.stats.Canceled++
		queueDepth.Set(float64(len(c.queue)))
	}
	c.mu.Unlock()

	if found == nil {
		return false
	}
	r := canceled(found.task, reqerrors.ErrCodeTaskCanceled, "task "+taskID+" canceled before it started")
	recordTask(found.task.Kind, r.Outcome(), 0)
	found.resp <- r
	return true
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the state, queue depth and counters.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.State = c.state
	s.QueueDepth = len(c.queue)
	s.CurrentTask = c.current
	if c.poison != nil {
		s.PoisonCause = c.poison.Error()
	}
	return s
}

// Close waits for the in-flight task, rejects every queued task and closes the store.
func (c *Coordinator) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		rejected := c.queue
		c.queue = nil
		c.stats.Canceled += int64(len(rejected))
		queueDepth.Set(0)
		c.mu.Unlock()

		for _, p := range rejected {
			p.resp <- canceled(p.task, reqerrors.ErrCodeWorkerClosed, "worker closed before task started")
		}

		close(c.quit)
		<-c.done

		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()

		if c.store != nil {
			err = c.store.Close()
		}
	})
	return err
}

func (c *Coordinator) run() {
	defer close(c.done)
	for {
		p, ok := c.dequeue()
		if !ok {
			select {
			case <-c.wake:
				continue
			case <-c.quit:
				return
			}
		}
		c.process(p)
	}
}

// dequeue pops the next task and moves to Processing, or to Idle when empty.
func (c *Coordinator) dequeue() (*pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(c.queue) == 0 {
		c.current = ""
		if c.state == StateProcessing {
			c.state = StateIdle
		}
		return nil, false
	}

	p := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	queueDepth.Set(float64(len(c.queue)))

	c.current = p.task.ID
	if c.state == StateIdle {
		c.state = StateProcessing
	}
	return p, true
}

func (c *Coordinator) process(p *pending) {
	start := time.Now()
	r := c.execute(context.Background(), p.task)
	elapsed := time.Since(start)

	outcome := r.Outcome()
	recordTask(p.task.Kind, outcome, elapsed.Seconds())

	c.mu.Lock()
	c.stats.Processed++
	if r.Err != nil {
		c.stats.Failed++
	}
	c.current = ""
	if len(c.queue) == 0 && c.state == StateProcessing {
		c.state = StateIdle
	}
	c.mu.Unlock()

	c.logger.Debug("task_complete",
		slog.String("task_id", p.task.ID),
		slog.String("kind", string(p.task.Kind)),
		slog.String("outcome", outcome),
		slog.Duration("duration", elapsed))
	if r.Err != nil && outcome != "canceled" {
		c.logger.Warn("task_failed",
			slog.String("task_id", p.task.ID),
			slog.String("kind", string(p.task.Kind)),
			reqerrors.LogAttr(r.Err))
	}

	p.resp <- r
}

func (c *Coordinator) execute(ctx context.Context, task Task) Response {
	r := Response{TaskID: task.ID, Kind: task.Kind}

	if err := c.poisoned(); err != nil {
		r.Err = reqerrors.StoreFatalError(reqerrors.ErrCodeWorkerPoisoned,
			"worker is poisoned, task rejected", err)
		return r
	}

	switch task.Kind {
	case KindIndex, KindDelete, KindQuery, KindClear:
	default:
		r.Err = reqerrors.ProtocolError(reqerrors.ErrCodeUnknownKind,
			fmt.Sprintf("unknown task kind %q", task.Kind), nil)
		return r
	}

	if err := c.ensureStore(ctx); err != nil {
		r.Err = err
		return r
	}

	if task.Kind.Mutates() && c.cache != nil {
		defer c.cache.Purge()
	}

	switch task.Kind {
	case KindIndex:
		r.Items = make([]ItemResult, 0, len(task.Refs))
		for _, ref := range task.Refs {
			r.Items = append(r.Items, c.indexOne(ctx, ref))
		}
	case KindDelete:
		r.Items = make([]ItemResult, 0, len(task.RequestIDs))
		for _, id := range task.RequestIDs {
			r.Items = append(r.Items, c.deleteOne(ctx, id))
		}
	case KindQuery:
		r.Matches, r.Err = c.query(ctx, task.Query)
	case KindClear:
		if err := c.store.Clear(ctx); err != nil {
			c.setPoison(err)
			r.Err = err
		}
	}
	return r
}

func (c *Coordinator) ensureStore(ctx context.Context) error {
	if c.store != nil {
		return nil
	}
	if c.open == nil {
		err := reqerrors.StoreFatalError(reqerrors.ErrCodeStoreOpen, "no index store configured", nil)
		c.setPoison(err)
		return err
	}

	s, err := c.open(ctx)
	if err != nil {
		if !reqerrors.IsFatal(err) {
			err = reqerrors.StoreFatalError(reqerrors.ErrCodeStoreOpen, "failed to open index store", err)
		}
		c.setPoison(err)
		return err
	}

	engine, err := search.NewEngine(s, search.WithLogger(c.logger))
	if err != nil {
		_ = s.Close()
		err = reqerrors.StoreFatalError(reqerrors.ErrCodeStoreOpen, "failed to start search engine", err)
		c.setPoison(err)
		return err
	}

	c.store, c.engine = s, engine
	c.mu.Lock()
	c.stats.StoreOpen = true
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) poisoned() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poison
}

func (c *Coordinator) setPoison(err error) {
	c.mu.Lock()
	c.poison = err
	c.state = StatePoisoned
	c.mu.Unlock()

	c.logger.Error("worker_poisoned", reqerrors.LogAttr(err))
}

// indexOne brings the stored fragments of one request in line with its URL.
func (c *Coordinator) indexOne(ctx context.Context, ref urlindex.RequestRef) ItemResult {
	item := ItemResult{ID: ref.ID}

	if err := c.validate.Struct(ref); err != nil {
		item.Error = reqerrors.ToInfo(reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload,
			"invalid request ref: "+err.Error(), err))
		return item
	}

	d := urlindex.Build(ref)
	if len(d.Fragments) == 0 {
		item.Error = reqerrors.ToInfo(d.Err)
		return item
	}

	stored, err := c.store.RangeByRequestID(ctx, ref.ID)
	if err != nil {
		item.Error = reqerrors.ToInfo(err)
		return item
	}

	delta := urlindex.Diff(d.Fragments, stored)

	keys := make([]urlindex.FragmentKey, len(delta.ToRemove))
	for i, f := range delta.ToRemove {
		keys[i] = f.Key()
	}
	var firstErr error
	for _, res := range c.store.BulkDelete(ctx, keys) {
		if res.OK() {
			item.Removed++
		} else if firstErr == nil {
			firstErr = res.Err
		}
	}
	for _, res := range c.store.BulkPut(ctx, delta.ToInsert) {
		if res.OK() {
			item.Inserted++
		} else if firstErr == nil {
			firstErr = res.Err
		}
	}
	recordFragments(item.Inserted, item.Removed)

	switch {
	case firstErr != nil:
		item.Error = reqerrors.ToInfo(firstErr)
	case d.Err != nil:
		item.OK = true
		item.Error = reqerrors.ToInfo(d.Err)
	default:
		item.OK = true
	}
	return item
}

// deleteOne removes every fragment of one request.
func (c *Coordinator) deleteOne(ctx context.Context, requestID string) ItemResult {
	item := ItemResult{ID: requestID}
	if requestID == "" {
		item.Error = reqerrors.ToInfo(reqerrors.ProtocolError(reqerrors.ErrCodeInvalidPayload,
			"empty request id", nil))
		return item
	}

	stored, err := c.store.RangeByRequestID(ctx, requestID)
	if err != nil {
		item.Error = reqerrors.ToInfo(err)
		return item
	}

	keys := make([]urlindex.FragmentKey, len(stored))
	for i, f := range stored {
		keys[i] = f.Key()
	}
	var firstErr error
	for _, res := range c.store.BulkDelete(ctx, keys) {
		if res.OK() {
			item.Removed++
		} else if firstErr == nil {
			firstErr = res.Err
		}
	}
	recordFragments(0, item.Removed)

	if firstErr != nil {
		item.Error = reqerrors.ToInfo(firstErr)
		return item
	}
	item.OK = true
	return item
}

func (c *Coordinator) query(ctx context.Context, q search.Query) ([]search.Match, error) {
	mode, err := search.ParseMode(string(q.Mode))
	if err != nil {
		return nil, err
	}
	q.Mode = mode

	key := q.CacheKey()
	if c.cache != nil {
		if m, ok := c.cache.Get(key); ok {
			queryCacheLookups.WithLabelValues("hit").Inc()
			return slices.Clone(m), nil
		}
		queryCacheLookups.WithLabelValues("miss").Inc()
	}

	matches, err := c.engine.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		// Callers own the slice they get back; the cache keeps its own copy.
		c.cache.Add(key, slices.Clone(matches))
	}
	return matches, nil
}

func canceled(task Task, code, msg string) Response {
	return Response{
		TaskID: task.ID,
		Kind:   task.Kind,
		Err:    reqerrors.New(code, msg, nil),
	}
}
