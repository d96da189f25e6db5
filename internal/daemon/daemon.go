package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/reqfind/internal/dispatch"
	"github.com/Aman-CERP/reqfind/internal/docstore"
	"github.com/Aman-CERP/reqfind/internal/model"
	"github.com/Aman-CERP/reqfind/internal/store"
	"github.com/Aman-CERP/reqfind/internal/worker"
)

// Daemon owns the long-lived pieces of the service: the worker coordinator,
// the document store with its models, the dispatch chain and the socket server.
type Daemon struct {
	cfg    Config
	logger *slog.Logger

	worker *worker.Coordinator
	docs   *docstore.DB
	models *model.Models
	chain  *dispatch.Chain
	server *Server
	pid    *PIDFile

	closeOnce sync.Once
	closeErr  error
}

type options struct {
	logger         *slog.Logger
	opener         worker.Opener
	docstore       *docstore.Config
	storeConfig    store.IndexStoreConfig
	queryCacheSize int
}

// Option configures a Daemon.
type Option func(*options)

// WithLogger sets the daemon logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithOpener replaces the index store opener. The default opens the locked
// SQLite store under the data dir.
func WithOpener(open worker.Opener) Option {
	return func(o *options) { o.opener = open }
}

// WithDocstore replaces the document store configuration.
func WithDocstore(cfg docstore.Config) Option {
	return func(o *options) { o.docstore = &cfg }
}

// WithIndexStoreConfig sets the configuration of the default index store.
func WithIndexStoreConfig(cfg store.IndexStoreConfig) Option {
	return func(o *options) { o.storeConfig = cfg }
}

// WithQueryCacheSize bounds the worker query cache. Negative disables it.
func WithQueryCacheSize(n int) Option {
	return func(o *options) { o.queryCacheSize = n }
}

// NewDaemon wires the daemon components. The index store itself is opened by
// the first task.
func NewDaemon(cfg Config, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon config: %w", err)
	}
	if err := cfg.EnsureDir(); err != nil {
		return nil, err
	}

	o := options{storeConfig: store.DefaultIndexStoreConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.opener == nil {
		dataDir, storeCfg := cfg.DataDir, o.storeConfig
		o.opener = func(ctx context.Context) (store.IndexStore, error) {
			s, err := store.OpenLocked(dataDir, storeCfg)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}
	docCfg := docstore.DefaultConfig(filepath.Join(cfg.DataDir, "docs"))
	if o.docstore != nil {
		docCfg = *o.docstore
	}
	if docCfg.Logger == nil {
		docCfg.Logger = o.logger
	}

	docs, err := docstore.Open(docCfg)
	if err != nil {
		return nil, err
	}

	w := worker.New(o.opener, worker.Config{QueryCacheSize: o.queryCacheSize, Logger: o.logger})

	srv, err := NewServer(cfg.SocketPath, w)
	if err != nil {
		_ = w.Close()
		_ = docs.Close()
		return nil, err
	}
	srv.SetLogger(o.logger)
	srv.SetMaxMessageSize(cfg.MaxMessageSize)

	d := &Daemon{
		cfg:    cfg,
		logger: o.logger,
		worker: w,
		docs:   docs,
		models: model.NewModels(docs, w, o.logger),
		chain:  dispatch.NewChain(o.logger),
		server: srv,
		pid:    NewPIDFile(cfg.PIDPath),
	}
	model.RegisterHandlers(d.chain, d.models)
	srv.SetDispatcher(d.chain)
	return d, nil
}

// Worker returns the coordinator. Other surfaces (MCP) submit through it.
func (d *Daemon) Worker() *worker.Coordinator {
	return d.worker
}

// Requests returns the request model.
func (d *Daemon) Requests() *model.RequestModel {
	return d.models.Requests
}

// Models returns every collection model.
func (d *Daemon) Models() *model.Models {
	return d.models
}

// Chain returns the dispatch chain so callers can register extra handlers.
func (d *Daemon) Chain() *dispatch.Chain {
	return d.chain
}

// Start claims the PID file and serves until ctx is cancelled, then closes
// every component.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.pid.Acquire(); err != nil {
		_ = d.Close()
		return err
	}
	defer func() {
		if err := d.pid.Remove(); err != nil {
			d.logger.Warn("pid_remove_failed", slog.String("error", err.Error()))
		}
	}()

	d.logger.Info("daemon_started",
		slog.String("socket", d.cfg.SocketPath),
		slog.String("data_dir", d.cfg.DataDir))

	err := d.server.ListenAndServe(ctx)
	if cerr := d.Close(); cerr != nil {
		d.logger.Warn("daemon_close_failed", slog.String("error", cerr.Error()))
	}
	d.logger.Info("daemon_stopped")
	return err
}

// Close stops the worker (waiting at most the grace period for the in-flight
// task) and closes the document store.
func (d *Daemon) Close() error {
	d.closeOnce.Do(func() {
		_ = d.server.Close()

		done := make(chan error, 1)
		go func() { done <- d.worker.Close() }()
		select {
		case err := <-done:
			if err != nil {
				d.closeErr = fmt.Errorf("close worker: %w", err)
			}
		case <-time.After(d.cfg.ShutdownGracePeriod):
			d.logger.Warn("worker_close_timeout", slog.Duration("grace", d.cfg.ShutdownGracePeriod))
		}

		if err := d.docs.Close(); err != nil && d.closeErr == nil {
			d.closeErr = fmt.Errorf("close docstore: %w", err)
		}
	})
	return d.closeErr
}
