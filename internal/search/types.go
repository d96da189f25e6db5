// Package search answers URL fragment queries against the index store.
//
// Two strategies are available:
//   - detailed: exhaustive scan, case-insensitive substring match
//   - fast: casing traversal over the sorted index, case-insensitive
//     prefix match anchored at the start of a fragment
//
// fast does not find matches that start in the middle of a fragment.
package search

import (
	"strings"

	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
)

// Mode selects the search strategy.
type Mode string

const (
	// ModeFast walks the sorted index with casing traversal.
	ModeFast Mode = "fast"
	// ModeDetailed scans every fragment of the type.
	ModeDetailed Mode = "detailed"
)

// ParseMode validates a mode name. The empty string selects ModeFast.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFast:
		return ModeFast, nil
	case ModeDetailed:
		return ModeDetailed, nil
	default:
		return "", reqerrors.ProtocolError(reqerrors.ErrCodeInvalidMode,
			"unknown search mode "+s+" (use fast or detailed)", nil)
	}
}

// Query is a search request.
type Query struct {
	Text      string   `json:"queryString"`
	Type      string   `json:"type,omitempty"` // "" searches all types
	IgnoreIDs []string `json:"ignoreIds,omitempty"`
	Mode      Mode     `json:"mode,omitempty"`
}

// CacheKey identifies the query for result caching.
func (q Query) CacheKey() string {
	var sb strings.Builder
	sb.WriteString(string(q.Mode))
	sb.WriteByte(0)
	sb.WriteString(q.Type)
	sb.WriteByte(0)
	sb.WriteString(q.Text)
	for _, id := range q.IgnoreIDs {
		sb.WriteByte(0)
		sb.WriteString(id)
	}
	return sb.String()
}

// Match is one matching request.
type Match struct {
	RequestID string `json:"requestId"`
	Type      string `json:"type"`
}
