package cmd

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/reqfind/internal/model"
	"github.com/Aman-CERP/reqfind/internal/output"
)

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Record and search recently used URLs",
		Long: `The URL history counts how often each URL was used. Lookups ignore
case and return the most used URLs first.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "store <url>",
		Short: "Record one use of a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			var entry model.URLEntry
			if err := client.Event(cmd.Context(), model.EventHistoryStore, map[string]string{"url": args[0]}, &entry); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("%s (used %d times)", entry.URL, entry.Count)
			return nil
		},
	})

	var jsonOutput bool
	query := &cobra.Command{
		Use:   "query <text>",
		Short: "List stored URLs containing text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			var entries []*model.URLEntry
			if err := client.Event(cmd.Context(), model.EventHistoryQuery, map[string]string{"q": args[0]}, &entries); err != nil {
				if jsonOutput {
					return jsonFailure(cmd, err)
				}
				return err
			}
			if jsonOutput {
				if entries == nil {
					entries = []*model.URLEntry{}
				}
				return writeJSON(cmd.OutOrStdout(), entries)
			}

			out := output.New(cmd.OutOrStdout())
			if len(entries) == 0 {
				out.Status("", "No URLs")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{strconv.Itoa(e.Count),
					time.UnixMilli(e.Time).Format(time.DateTime), e.URL})
			}
			out.Table([]string{"USED", "LAST", "URL"}, rows)
			return nil
		},
	}
	query.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.AddCommand(query)

	return cmd
}
