package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/reqfind/internal/model"
	"github.com/Aman-CERP/reqfind/internal/output"
	"github.com/Aman-CERP/reqfind/internal/search"
)

// allTypes on --type searches every request type.
const allTypes = "all"

func newSearchCmd(a *app) *cobra.Command {
	var (
		typ        string
		mode       string
		ignore     []string
		jsonOutput bool
		requests   bool
	)

	cmd := &cobra.Command{
		Use:   "search <fragment>",
		Short: "Find requests by a fragment of their URL",
		Long: `Search the URL index.

Fast mode (the default) matches the start of a stored fragment: the full
URL, scheme://host, path with query, query string or a single key=value
parameter. Detailed mode matches anywhere inside those fragments.

Examples:
  reqfind search https://api.example.com
  reqfind search page=2 --type all
  reqfind search users --mode detailed --ignore r1,r2
  reqfind search /users --requests      # print the stored requests`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := a.client()
			if err != nil {
				return err
			}
			if strings.TrimSpace(args[0]) == "" {
				return fmt.Errorf("search fragment cannot be empty")
			}

			if mode == "" {
				mode = cfg.Index.DefaultMode
			}
			m, err := search.ParseMode(mode)
			if err != nil {
				return err
			}
			switch typ {
			case "":
				typ = cfg.Index.DefaultType
			case allTypes:
				typ = ""
			}

			q := search.Query{Text: args[0], Type: typ, IgnoreIDs: ignore, Mode: m}

			if requests {
				var rows []*model.Request
				if err := client.Event(cmd.Context(), model.EventRequestQuery, q, &rows); err != nil {
					if jsonOutput {
						return jsonFailure(cmd, err)
					}
					return err
				}
				return printRequests(cmd, rows, jsonOutput)
			}

			matches, err := client.Query(cmd.Context(), q)
			if err != nil {
				if jsonOutput {
					return jsonFailure(cmd, err)
				}
				return err
			}
			if matches == nil {
				matches = []search.Match{}
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), matches)
			}

			out := output.New(cmd.OutOrStdout())
			if len(matches) == 0 {
				out.Status("", fmt.Sprintf("No requests match %q", args[0]))
				if m == search.ModeFast {
					out.Dim("Fast mode matches fragment prefixes; try --mode detailed")
				}
				return nil
			}
			rows := make([][]string, 0, len(matches))
			for _, match := range matches {
				rows = append(rows, []string{match.RequestID, match.Type})
			}
			out.Table([]string{"ID", "TYPE"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "", "Request type to search, or \"all\" (default: index.default_type)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Search mode: fast or detailed (default: index.default_mode)")
	cmd.Flags().StringSliceVar(&ignore, "ignore", nil, "Request ids to leave out of the results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&requests, "requests", false, "Load the matching requests from the store")
	return cmd
}
