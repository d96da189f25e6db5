// Package cmd provides the CLI commands for reqfind.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/reqfind/internal/config"
	"github.com/Aman-CERP/reqfind/internal/daemon"
	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
	"github.com/Aman-CERP/reqfind/internal/logging"
	"github.com/Aman-CERP/reqfind/internal/profiling"
	"github.com/Aman-CERP/reqfind/pkg/version"
)

// shutdownGracePeriod bounds how long serve waits for the in-flight task.
const shutdownGracePeriod = 10 * time.Second

// app is the state shared by every subcommand of one invocation.
type app struct {
	configDir      string
	debug          bool
	cfg            *config.Config
	loggingCleanup func()

	profile  profiling.Options
	profiler *profiling.Session
}

// NewRootCmd creates the root command for the reqfind CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "reqfind",
		Short: "Find previously issued HTTP requests by URL fragment",
		Long: `reqfind keeps an index of the URLs of saved and history requests and
answers fragment searches over it.

A daemon owns the index. Start it with 'reqfind serve', then use
'reqfind index', 'reqfind search' and friends to talk to it.`,
		Version:            version.Version,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.before,
		PersistentPostRunE: a.after,
	}

	cmd.SetVersionTemplate("reqfind version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging to ~/.reqfind/logs/")
	cmd.PersistentFlags().StringVar(&a.configDir, "config-dir", ".", "Directory holding .reqfind.yaml and .env")
	cmd.PersistentFlags().StringVar(&a.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&a.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&a.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newStopCmd(a))
	cmd.AddCommand(newStatusCmd(a))
	cmd.AddCommand(newIndexCmd(a))
	cmd.AddCommand(newDeleteCmd(a))
	cmd.AddCommand(newClearCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newRequestsCmd(a))
	cmd.AddCommand(newHistoryCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints a failure to stderr.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err == nil {
		return nil
	}
	var re *reqerrors.ReqError
	if errors.As(err, &re) {
		_, _ = fmt.Fprint(root.ErrOrStderr(), reqerrors.FormatForCLI(re))
	} else {
		_, _ = fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}

// before starts debug logging and profiling when requested.
func (a *app) before(_ *cobra.Command, _ []string) error {
	if err := a.setupLogging(); err != nil {
		return err
	}
	if a.profile.Enabled() {
		p, err := profiling.Start(a.profile)
		if err != nil {
			return err
		}
		a.profiler = p
	}
	return nil
}

// after stops profiling, writing the heap profile, and closes the log file.
func (a *app) after(_ *cobra.Command, _ []string) error {
	var err error
	if a.profiler != nil {
		err = a.profiler.Stop()
		a.profiler = nil
	}
	a.stopLogging()
	return err
}

func (a *app) setupLogging() error {
	if !a.debug {
		return nil
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = "debug"
	logCfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	a.loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("Debug logging enabled", slog.String("log_file", logCfg.FilePath))
	return nil
}

func (a *app) stopLogging() {
	if a.loggingCleanup != nil {
		a.loggingCleanup()
		a.loggingCleanup = nil
	}
}

// config loads the configuration once per invocation.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(a.configDir)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// daemonConfig maps the loaded configuration onto the daemon's.
func daemonConfig(cfg *config.Config) daemon.Config {
	dc := daemon.DefaultConfig()
	dc.SocketPath = cfg.Server.SocketPath
	dc.PIDPath = cfg.Server.PIDPath
	dc.DataDir = cfg.Paths.DataDir
	dc.Timeout = cfg.ServerTimeout()
	dc.ShutdownGracePeriod = shutdownGracePeriod
	return dc
}

// client returns a daemon client for the loaded configuration.
func (a *app) client() (*daemon.Client, *config.Config, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, nil, err
	}
	return daemon.NewClient(daemonConfig(cfg)), cfg, nil
}
