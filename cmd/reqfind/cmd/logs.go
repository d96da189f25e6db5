package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/reqfind/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var (
		follow  bool
		lines   int
		level   string
		filter  string
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View daemon logs",
		Long: `Show the last lines of the daemon log (~/.reqfind/logs/server.log).
Use -f to follow new entries like 'tail -f'.`,
		Example: `  reqfind logs                 # Last 50 lines
  reqfind logs -f              # Follow
  reqfind logs --level error   # Errors only
  reqfind logs --filter query  # Lines matching a regex`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := logging.FindLogFile(logFile)
			if err != nil {
				return err
			}

			f := logging.Filter{Level: level}
			if filter != "" {
				if f.Pattern, err = regexp.Compile(filter); err != nil {
					return fmt.Errorf("invalid filter pattern: %w", err)
				}
			}

			entries, err := logging.Tail(path, lines, f)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, e := range entries {
				if _, err := fmt.Fprintln(w, e.Format()); err != nil {
					return err
				}
			}

			if !follow {
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return logging.Follow(ctx, path, f, w)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&filter, "filter", "", "Filter by pattern (regex)")
	cmd.Flags().StringVar(&logFile, "file", "", "Custom log file path")
	return cmd
}
