package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/reqfind/internal/search"
	"github.com/Aman-CERP/reqfind/internal/worker"
	"github.com/Aman-CERP/reqfind/pkg/version"
)

// TaskRunner runs tasks on the worker coordinator.
type TaskRunner interface {
	Do(ctx context.Context, task worker.Task) (worker.Response, error)
	Snapshot() worker.Snapshot
}

// Options configures tool defaults.
type Options struct {
	// DefaultType is searched when search_urls names no type.
	DefaultType string
	// DefaultMode is used when search_urls names no mode.
	DefaultMode search.Mode
	Logger      *slog.Logger
}

// Server is the MCP server for reqfind.
type Server struct {
	mcp    *mcp.Server
	tasks  TaskRunner
	opts   Options
	logger *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name: ToolSearchURLs,
		Description: "Find previously issued HTTP requests by a fragment of their URL. " +
			"Matches the full URL, the scheme://host, the path with query, the query string, or a single key=value parameter. " +
			"Returns request ids and their type.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report whether the URL index is available, the worker state and the task counters.",
	},
}

// NewServer creates a new MCP server over tasks.
func NewServer(tasks TaskRunner, opts Options) (*Server, error) {
	if tasks == nil {
		return nil, errors.New("task runner is required")
	}
	if opts.DefaultMode == "" {
		opts.DefaultMode = search.ModeFast
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		tasks:  tasks,
		opts:   opts,
		logger: opts.Logger,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "reqfind", Version: version.Version}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name and returns its markdown rendering.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case ToolSearchURLs:
		input, err := searchInputFromArgs(args)
		if err != nil {
			return "", err
		}
		out, err := s.searchURLs(ctx, input)
		if err != nil {
			return "", MapError(err)
		}
		return FormatMatches(out.Query, search.Mode(out.Mode), out.Matches), nil
	case ToolIndexStatus:
		return FormatStatus(s.indexStatus()), nil
	default:
		return "", NewMethodNotFoundError(name)
	}
}

func searchInputFromArgs(args map[string]any) (SearchURLsInput, error) {
	var in SearchURLsInput
	q, ok := args["query"].(string)
	if !ok {
		return in, NewInvalidParamsError("query parameter is required and must be a string")
	}
	in.Query = q
	in.Type, _ = args["type"].(string)
	in.Mode, _ = args["mode"].(string)
	if ids, ok := args["ignore_ids"].([]any); ok {
		for _, id := range ids {
			if s, ok := id.(string); ok {
				in.IgnoreIDs = append(in.IgnoreIDs, s)
			}
		}
	}
	return in, nil
}

// searchURLs validates input and runs a query task.
func (s *Server) searchURLs(ctx context.Context, in SearchURLsInput) (*SearchURLsOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	mode := s.opts.DefaultMode
	if in.Mode != "" {
		m, err := search.ParseMode(in.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}

	typ := in.Type
	switch typ {
	case "":
		typ = s.opts.DefaultType
	case AllTypes:
		typ = ""
	}

	task := worker.Task{
		ID:   uuid.NewString(),
		Kind: worker.KindQuery,
		Query: search.Query{
			Text:      in.Query,
			Type:      typ,
			IgnoreIDs: in.IgnoreIDs,
			Mode:      mode,
		},
	}

	start := time.Now()
	s.logger.Info("search_urls started",
		slog.String("task_id", task.ID),
		slog.String("query", in.Query),
		slog.String("mode", string(mode)))

	resp, err := s.tasks.Do(ctx, task)
	if err == nil {
		err = resp.Err
	}
	if err != nil {
		s.logger.Error("search_urls failed",
			slog.String("task_id", task.ID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, err
	}

	s.logger.Info("search_urls completed",
		slog.String("task_id", task.ID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("matches", len(resp.Matches)))

	matches := resp.Matches
	if matches == nil {
		matches = []search.Match{}
	}
	return &SearchURLsOutput{Query: in.Query, Mode: string(mode), Matches: matches}, nil
}

func (s *Server) indexStatus() *IndexStatusOutput {
	snap := s.tasks.Snapshot()
	return &IndexStatusOutput{
		Ready:  snap.State != worker.StatePoisoned && snap.State != worker.StateClosed,
		Worker: snap,
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchURLsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpIndexStatusHandler)
	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

// mcpSearchURLsHandler is the MCP SDK handler for the search_urls tool.
func (s *Server) mcpSearchURLsHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchURLsInput) (
	*mcp.CallToolResult,
	*SearchURLsOutput,
	error,
) {
	out, err := s.searchURLs(ctx, input)
	if err != nil {
		return nil, nil, MapError(err)
	}
	text := FormatMatches(out.Query, search.Mode(out.Mode), out.Matches)
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, out, nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out := s.indexStatus()
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: FormatStatus(out)}}}, out, nil
}

// Serve runs the server on the named transport until ctx ends.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
