package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/reqfind/internal/daemon"
	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
	"github.com/Aman-CERP/reqfind/internal/output"
)

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long: `Stop the running daemon.

Sends SIGTERM for a graceful shutdown and falls back to SIGKILL when the
process does not exit within five seconds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			return runStop(cmd, daemon.NewPIDFile(cfg.Server.PIDPath))
		},
	}
}

func runStop(cmd *cobra.Command, pidFile *daemon.PIDFile) error {
	out := output.New(cmd.OutOrStdout())

	if !pidFile.IsRunning() {
		out.Status("", "Daemon is not running")
		return nil
	}

	pid, err := pidFile.Read()
	if err != nil {
		return fmt.Errorf("failed to read PID: %w", err)
	}
	if err := pidFile.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !pidFile.IsRunning() {
			out.Successf("Daemon stopped (was pid: %d)", pid)
			return nil
		}
	}

	out.Warning("Daemon not responding, sending SIGKILL...")
	if err := pidFile.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}
	out.Success("Daemon killed")
	return nil
}

func newStatusCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and worker status",
		Long: `Show whether the daemon is running, its uptime and connection count,
and the state of the worker: queue depth, the task in flight and the
task counters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}

			if !client.IsRunning() {
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), daemon.StatusResult{Running: false})
				}
				out := output.New(cmd.OutOrStdout())
				out.Status("", "Daemon is not running")
				out.Dim("Run 'reqfind serve' to start it")
				return nil
			}

			status, err := client.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), status)
			}
			printStatus(output.New(cmd.OutOrStdout()), status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printStatus(out *output.Writer, status *daemon.StatusResult) {
	out.Header("Daemon")
	out.Field("pid", status.PID)
	out.Field("uptime", status.Uptime)
	out.Field("connections", status.Connections)
	out.Newline()

	w := status.Worker
	out.Header("Worker")
	out.Field("state", w.State)
	out.Field("store open", w.StoreOpen)
	out.Field("queue depth", w.QueueDepth)
	if w.CurrentTask != "" {
		out.Field("current task", w.CurrentTask)
	}
	out.Field("processed", w.Processed)
	out.Field("failed", w.Failed)
	out.Field("canceled", w.Canceled)
	if w.PoisonCause != "" {
		out.Errorf("Store unavailable: %s", w.PoisonCause)
	}
}

// jsonFailure writes err to stdout in its JSON form so --json callers always
// get a JSON document, then returns err for the exit status.
func jsonFailure(cmd *cobra.Command, err error) error {
	if data, ferr := reqerrors.FormatJSON(err); ferr == nil {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
