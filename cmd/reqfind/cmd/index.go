package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/reqfind/internal/output"
	"github.com/Aman-CERP/reqfind/internal/urlindex"
	"github.com/Aman-CERP/reqfind/internal/worker"
)

func newIndexCmd(a *app) *cobra.Command {
	var typ string
	var file string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "index [id url]",
		Short: "Index the URL of one or more requests",
		Long: `Submit an index task to the daemon.

Pass one request as "id url", or a JSON array of {"id","url","type"}
objects with --file ("-" reads stdin). Re-indexing an id replaces the
fragments of its previous URL.

Examples:
  reqfind index r1 'https://api.example.com/users?page=2'
  reqfind index r9 'https://example.com' --type history
  reqfind index --file refs.json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			if typ == "" {
				typ = cfg.Index.DefaultType
			}

			var refs []urlindex.RequestRef
			if file != "" {
				if refs, err = readRefs(cmd, file, typ); err != nil {
					return err
				}
			} else {
				refs = []urlindex.RequestRef{{ID: args[0], URL: args[1], Type: typ}}
			}

			items, err := client.Index(cmd.Context(), refs...)
			if err != nil {
				return err
			}
			return printItems(cmd, items, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "", "Request type (default: index.default_type)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read a JSON array of refs from file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output item results as JSON")
	return cmd
}

// readRefs decodes a JSON array of refs; refs without a type get typ.
func readRefs(cmd *cobra.Command, file, typ string) ([]urlindex.RequestRef, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}

	var refs []urlindex.RequestRef
	if err := json.Unmarshal(data, &refs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", file, err)
	}
	for i := range refs {
		if refs[i].Type == "" {
			refs[i].Type = typ
		}
	}
	return refs, nil
}

func newDeleteCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Remove requests from the index",
		Long: `Submit a delete task. Every fragment owned by the given request ids is
removed. Unknown ids succeed with nothing removed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			items, err := client.Delete(cmd.Context(), args...)
			if err != nil {
				return err
			}
			return printItems(cmd, items, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output item results as JSON")
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every entry from the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			if err := client.Clear(cmd.Context()); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Success("Index cleared")
			return nil
		},
	}
}

// printItems renders per-item results. A task with failed items still
// returns an error so scripts see a non-zero exit.
func printItems(cmd *cobra.Command, items []worker.ItemResult, jsonOutput bool) error {
	failed := 0
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		status, msg := "ok", ""
		if !it.OK {
			failed++
			status = "failed"
			if it.Error != nil {
				msg = it.Error.Message
			}
		}
		rows = append(rows, []string{it.ID, status,
			strconv.Itoa(it.Inserted), strconv.Itoa(it.Removed), msg})
	}

	if jsonOutput {
		if err := writeJSON(cmd.OutOrStdout(), items); err != nil {
			return err
		}
	} else {
		out := output.New(cmd.OutOrStdout())
		out.Table([]string{"ID", "STATUS", "INSERTED", "REMOVED", "ERROR"}, rows)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d items failed", failed, len(items))
	}
	return nil
}
