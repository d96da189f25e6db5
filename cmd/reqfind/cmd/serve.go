package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/reqfind/internal/config"
	"github.com/Aman-CERP/reqfind/internal/daemon"
	"github.com/Aman-CERP/reqfind/internal/docstore"
	"github.com/Aman-CERP/reqfind/internal/logging"
	"github.com/Aman-CERP/reqfind/internal/mcp"
	"github.com/Aman-CERP/reqfind/internal/output"
	"github.com/Aman-CERP/reqfind/internal/search"
	"github.com/Aman-CERP/reqfind/internal/store"
)

func newServeCmd(a *app) *cobra.Command {
	var background bool
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reqfind daemon",
		Long: `Run the daemon that owns the URL index and the request store.

The daemon listens on a Unix socket for index, delete, query and clear
tasks and for request/history events. With --transport stdio it also
serves MCP over stdin/stdout; nothing else is written to stdout then.

When metrics.addr is set, Prometheus metrics are served on /metrics.

Examples:
  reqfind serve                    # Run in foreground
  reqfind serve --background       # Detach and return once the socket answers
  reqfind serve --transport stdio  # Also serve MCP on stdio`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if transport != "" {
				cfg.Server.Transport = transport
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			if background {
				return a.runServeBackground(cmd, cfg)
			}
			return a.runServe(cmd, cfg)
		},
	}

	cmd.Flags().BoolVarP(&background, "background", "b", false, "Detach from the terminal")
	cmd.Flags().StringVar(&transport, "transport", "", "Extra surface: none or stdio (overrides server.transport)")
	return cmd
}

func (a *app) serveLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	level := cfg.Server.LogLevel
	if a.debug {
		level = "debug"
	}
	logCfg := logging.DefaultConfig()
	if cfg.Server.Transport == "stdio" {
		logCfg = logging.StdioConfig(level)
	}
	logCfg.Level = level
	return logging.Setup(logCfg)
}

func (a *app) runServe(cmd *cobra.Command, cfg *config.Config) error {
	// serve owns logging for its whole lifetime
	a.stopLogging()
	logger, cleanup, err := a.serveLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(cfg, logger)
	if err != nil {
		logger.Error("daemon_create_failed", slog.String("error", err.Error()))
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := d.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if cfg.Server.Transport == "stdio" {
		srv, err := mcp.NewServer(d.Worker(), mcp.Options{
			DefaultType: cfg.Index.DefaultType,
			DefaultMode: search.Mode(cfg.Index.DefaultMode),
			Logger:      logger,
		})
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			// The MCP client closing stdin ends the daemon too.
			defer cancel()
			err := srv.Serve(gctx, "stdio")
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if cfg.Metrics.Addr != "" {
		runMetricsServer(gctx, g, cfg.Metrics.Addr, logger)
	}

	if cfg.Server.Transport != "stdio" {
		out := output.New(cmd.OutOrStdout())
		out.Status("", "Daemon running")
		out.Field("socket", cfg.Server.SocketPath)
		out.Field("data", cfg.Paths.DataDir)
		out.Field("logs", logging.DefaultLogPath())
		if cfg.Metrics.Addr != "" {
			out.Field("metrics", "http://"+cfg.Metrics.Addr+"/metrics")
		}
		out.Dim("Press Ctrl+C to stop")
	}

	return g.Wait()
}

// newDaemon builds the daemon from cfg.
func newDaemon(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	return daemon.NewDaemon(daemonConfig(cfg),
		daemon.WithLogger(logger),
		daemon.WithQueryCacheSize(cfg.Worker.QueryCacheSize),
		daemon.WithIndexStoreConfig(store.IndexStoreConfig{BatchSize: cfg.Index.BatchSize}),
		daemon.WithDocstore(docstore.Config{
			Path:           filepath.Join(cfg.Paths.DataDir, "docs"),
			InMemory:       cfg.Docstore.InMemory,
			SyncWrites:     cfg.Docstore.SyncWrites,
			Logger:         logger,
			GCInterval:     cfg.DocstoreGCInterval(),
			GCDiscardRatio: 0.5,
		}),
	)
}

// metricsHandler serves the default Prometheus registry on /metrics.
func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func runMetricsServer(ctx context.Context, g *errgroup.Group, addr string, logger *slog.Logger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("metrics_listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func (a *app) runServeBackground(cmd *cobra.Command, cfg *config.Config) error {
	out := output.New(cmd.OutOrStdout())
	client := daemon.NewClient(daemonConfig(cfg))
	if client.IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	args := []string{"serve", "--config-dir", a.configDir, "--transport", "none"}
	if a.debug {
		args = append(args, "--debug")
	}
	bgCmd := exec.Command(execPath, args...)
	bgCmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := bgCmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- bgCmd.Wait() }()

	for i := 0; i < 30; i++ {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("daemon process exited unexpectedly: %w", err)
			}
			return fmt.Errorf("daemon process exited unexpectedly with code 0")
		case <-time.After(100 * time.Millisecond):
		}
		if client.IsRunning() {
			out.Successf("Daemon started (pid: %d)", bgCmd.Process.Pid)
			return nil
		}
	}
	return fmt.Errorf("daemon failed to start within timeout")
}
