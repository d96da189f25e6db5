package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/reqfind/internal/search"
)

// FormatMatches formats search_urls results as markdown.
func FormatMatches(query string, mode search.Mode, matches []search.Match) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No requests found for \"%s\" (%s mode)", query, mode)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Requests matching \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d request", len(matches))
	if len(matches) != 1 {
		sb.WriteString("s")
	}
	fmt.Fprintf(&sb, " (%s mode)\n\n", mode)

	sb.WriteString("| # | Request | Type |\n|---|---|---|\n")
	for i, m := range matches {
		fmt.Fprintf(&sb, "| %d | `%s` | %s |\n", i+1, m.RequestID, m.Type)
	}
	if mode == search.ModeFast {
		sb.WriteString("\nFast mode matches the start of a URL, host, path or parameter. Use mode=detailed to match anywhere.\n")
	}
	return sb.String()
}

// FormatStatus formats index_status as markdown.
func FormatStatus(out *IndexStatusOutput) string {
	var sb strings.Builder
	sb.WriteString("## Index Status\n\n")
	fmt.Fprintf(&sb, "- **State:** %s\n", out.Worker.State)
	fmt.Fprintf(&sb, "- **Store open:** %t\n", out.Worker.StoreOpen)
	fmt.Fprintf(&sb, "- **Queue depth:** %d\n", out.Worker.QueueDepth)
	fmt.Fprintf(&sb, "- **Tasks:** %d processed, %d failed, %d canceled\n",
		out.Worker.Processed, out.Worker.Failed, out.Worker.Canceled)
	if out.Worker.PoisonCause != "" {
		fmt.Fprintf(&sb, "\n**Index unavailable:** %s\n", out.Worker.PoisonCause)
	}
	return sb.String()
}
