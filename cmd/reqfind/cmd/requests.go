package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/reqfind/internal/model"
	"github.com/Aman-CERP/reqfind/internal/output"
	"github.com/Aman-CERP/reqfind/internal/urlindex"
)

// request event payloads, as the daemon's model handlers decode them
type (
	requestRef struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	requestPut struct {
		Type    string         `json:"type"`
		Request *model.Request `json:"request"`
	}
	requestRemove struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Rev  string `json:"rev"`
	}
	requestList struct {
		Type       string `json:"type"`
		Limit      int    `json:"limit"`
		StartAfter string `json:"startAfter,omitempty"`
	}
	requestReindex struct {
		Type string `json:"type,omitempty"`
	}
)

func newRequestsCmd(a *app) *cobra.Command {
	var typ string

	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Manage stored requests",
		Long: `Read and write the saved and history request collections kept by the
daemon. Writes keep the URL index in step with the stored requests.`,
	}
	cmd.PersistentFlags().StringVarP(&typ, "type", "t", "", "Request type (default: index.default_type)")

	resolveType := func() (string, error) {
		if typ != "" {
			return typ, nil
		}
		cfg, err := a.config()
		if err != nil {
			return "", err
		}
		return cfg.Index.DefaultType, nil
	}

	cmd.AddCommand(newRequestsPutCmd(a, resolveType))
	cmd.AddCommand(newRequestsGetCmd(a, resolveType))
	cmd.AddCommand(newRequestsListCmd(a, resolveType))
	cmd.AddCommand(newRequestsRemoveCmd(a, resolveType))
	cmd.AddCommand(newRequestsReindexCmd(a, &typ))
	return cmd
}

func newRequestsPutCmd(a *app, resolveType func() (string, error)) *cobra.Command {
	var req model.Request

	cmd := &cobra.Command{
		Use:   "put <id> <url>",
		Short: "Create or update a request",
		Long: `Store a request and index its URL. Updating an existing request needs
its current revision (--rev).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := resolveType()
			if err != nil {
				return err
			}
			client, _, err := a.client()
			if err != nil {
				return err
			}
			req.ID, req.URL = args[0], args[1]

			var saved model.Request
			if err := client.Event(cmd.Context(), model.EventRequestPut, requestPut{Type: typ, Request: &req}, &saved); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Stored %s (rev %s)", saved.ID, saved.Rev)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Rev, "rev", "", "Current revision, required to update")
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&req.Method, "method", "", "HTTP method")
	cmd.Flags().StringSliceVar(&req.Projects, "project", nil, "Owning project ids")
	return cmd
}

func newRequestsGetCmd(a *app, resolveType func() (string, error)) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a stored request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := resolveType()
			if err != nil {
				return err
			}
			client, _, err := a.client()
			if err != nil {
				return err
			}
			var req model.Request
			if err := client.Event(cmd.Context(), model.EventRequestGet, requestRef{Type: typ, ID: args[0]}, &req); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), req)
			}

			out := output.New(cmd.OutOrStdout())
			out.Header(req.ID)
			out.Field("rev", req.Rev)
			out.Field("url", req.URL)
			if req.Name != "" {
				out.Field("name", req.Name)
			}
			if req.Method != "" {
				out.Field("method", req.Method)
			}
			if len(req.Projects) > 0 {
				out.Field("projects", req.Projects)
			}
			if req.Updated > 0 {
				out.Field("updated", time.UnixMilli(req.Updated).Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRequestsListCmd(a *app, resolveType func() (string, error)) *cobra.Command {
	var (
		limit      int
		startAfter string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored requests in id order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			typ, err := resolveType()
			if err != nil {
				return err
			}
			client, _, err := a.client()
			if err != nil {
				return err
			}
			var page model.ListResult
			payload := requestList{Type: typ, Limit: limit, StartAfter: startAfter}
			if err := client.Event(cmd.Context(), model.EventRequestList, payload, &page); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), page)
			}
			if err := printRequests(cmd, page.Rows, false); err != nil {
				return err
			}
			if page.Next != "" {
				output.New(cmd.OutOrStdout()).Dim(fmt.Sprintf("More: --start-after %s", page.Next))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Page size (0 lists everything)")
	cmd.Flags().StringVar(&startAfter, "start-after", "", "Continue after this id")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRequestsRemoveCmd(a *app, resolveType func() (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id> <rev>",
		Short: "Remove a stored request and its index entries",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := resolveType()
			if err != nil {
				return err
			}
			client, _, err := a.client()
			if err != nil {
				return err
			}
			payload := requestRemove{Type: typ, ID: args[0], Rev: args[1]}
			if err := client.Event(cmd.Context(), model.EventRequestRemove, payload, nil); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Removed %s", args[0])
			return nil
		},
	}
}

func newRequestsReindexCmd(a *app, typ *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Re-submit every stored request to the index",
		Long: `Rebuild the URL index from the request store. Without --type both
collections are reindexed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, _, err := a.client()
			if err != nil {
				return err
			}
			var res model.ReindexResult
			if err := client.Event(cmd.Context(), model.EventRequestReindex, requestReindex{Type: *typ}, &res); err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			for _, t := range []string{urlindex.TypeSaved, urlindex.TypeHistory} {
				if n, ok := res[t]; ok {
					out.Successf("Reindexed %d %s requests", n, t)
				}
			}
			return nil
		},
	}
}

func printRequests(cmd *cobra.Command, rows []*model.Request, jsonOutput bool) error {
	if rows == nil {
		rows = []*model.Request{}
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), rows)
	}
	out := output.New(cmd.OutOrStdout())
	if len(rows) == 0 {
		out.Status("", "No requests")
		return nil
	}
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, []string{r.ID, r.Method, r.URL, r.Name})
	}
	out.Table([]string{"ID", "METHOD", "URL", "NAME"}, table)
	return nil
}
