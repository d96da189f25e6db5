package mcp

import (
	"github.com/Aman-CERP/reqfind/internal/search"
	"github.com/Aman-CERP/reqfind/internal/worker"
)

// Tool names.
const (
	ToolSearchURLs  = "search_urls"
	ToolIndexStatus = "index_status"
)

// AllTypes as a search type searches every request type.
const AllTypes = "all"

// SearchURLsInput defines the input schema for the search_urls tool.
type SearchURLsInput struct {
	Query     string   `json:"query" jsonschema:"URL fragment to look for, e.g. https://api.example.com/users or token="`
	Type      string   `json:"type,omitempty" jsonschema:"request type to search (saved or history); all searches every type"`
	Mode      string   `json:"mode,omitempty" jsonschema:"fast (prefix of a URL fragment, default) or detailed (substring anywhere)"`
	IgnoreIDs []string `json:"ignore_ids,omitempty" jsonschema:"request ids to leave out of the result"`
}

// SearchURLsOutput defines the output schema for the search_urls tool.
type SearchURLsOutput struct {
	Query   string         `json:"query"`
	Mode    string         `json:"mode"`
	Matches []search.Match `json:"matches" jsonschema:"matching requests in discovery order"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Ready  bool            `json:"ready" jsonschema:"false once the index store failed to open"`
	Worker worker.Snapshot `json:"worker"`
}
