// Package urlindex decomposes request URLs into searchable fragments and
// reconciles freshly built fragments against the ones already stored.
//
// Everything in this package is pure: it never touches a store.
package urlindex

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Request types shipped with reqfind. Any non-empty type is accepted.
const (
	TypeSaved   = "saved"
	TypeHistory = "history"
)

// RequestRef describes one request to index.
type RequestRef struct {
	ID   string `json:"id" validate:"required"`
	URL  string `json:"url"`
	Type string `json:"type" validate:"required"`
}

// FragmentKind identifies the decomposition step that produced a fragment.
type FragmentKind string

const (
	KindURL       FragmentKind = "url"
	KindAuthority FragmentKind = "authority"
	KindPath      FragmentKind = "path"
	KindQuery     FragmentKind = "query"
	KindParam     FragmentKind = "param"
	// KindRaw is the single fallback fragment of an unparseable URL.
	KindRaw FragmentKind = "raw"
)

// Fragment is one searchable piece of a request URL.
type Fragment struct {
	ID        string       `json:"id"`        // FragmentID(Value, Type)
	RequestID string       `json:"requestId"` // Owning request
	Type      string       `json:"type"`      // Request collection
	Value     string       `json:"value"`     // Literal fragment text
	Kind      FragmentKind `json:"kind"`
}

// Key returns the store key of the fragment.
func (f Fragment) Key() FragmentKey {
	return FragmentKey{RequestID: f.RequestID, ID: f.ID}
}

// FragmentKey addresses one stored fragment.
// Fragment ids are unique per request, not globally: two requests of the same
// type with the same URL each own a copy.
type FragmentKey struct {
	RequestID string `json:"requestId"`
	ID        string `json:"id"`
}

// FragmentID derives the identity of a fragment from its value and request type.
// The value is case-folded first, so re-deriving a fragment always yields the same id.
func FragmentID(value, typ string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(value) + "\x00" + typ))
	return hex.EncodeToString(sum[:])
}
