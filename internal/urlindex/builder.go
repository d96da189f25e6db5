package urlindex

import (
	"net/url"
	"strings"

	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
)

// Decomposition is the result of building the fragments of one request.
type Decomposition struct {
	Ref       RequestRef
	Fragments []Fragment

	// Err is set when the URL could not be decomposed structurally.
	// Fragments then holds the single raw fallback, or nothing for an empty URL.
	Err error
}

// Build decomposes the request URL into candidate fragments, in order:
// full URL, authority, path with query, query string, then one entry per
// query parameter. Empty components are skipped and the result is free of
// duplicate (kind, value) pairs.
//
// A URL without scheme or host degrades to a single raw fragment; Build never fails.
func Build(ref RequestRef) Decomposition {
	d := Decomposition{Ref: ref}
	raw := strings.TrimSpace(ref.URL)
	if raw == "" {
		d.Err = reqerrors.New(reqerrors.ErrCodeEmptyURL, "request "+ref.ID+" has an empty url", nil)
		return d
	}

	b := builder{ref: ref, seen: make(map[string]struct{})}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		b.add(KindRaw, raw)
		d.Fragments = b.out
		d.Err = reqerrors.ParseError("url of request "+ref.ID+" is not a structural url", err).
			WithDetail("url", raw)
		return d
	}

	b.add(KindURL, raw)
	b.add(KindAuthority, authority(u))
	b.add(KindPath, pathWithQuery(raw))
	b.add(KindQuery, u.RawQuery)
	for _, p := range queryParams(u.RawQuery) {
		b.add(KindParam, p)
	}

	d.Fragments = b.out
	return d
}

type builder struct {
	ref  RequestRef
	seen map[string]struct{}
	out  []Fragment
}

func (b *builder) add(kind FragmentKind, value string) {
	if value == "" {
		return
	}
	key := string(kind) + "\x00" + value
	if _, ok := b.seen[key]; ok {
		return
	}
	b.seen[key] = struct{}{}
	b.out = append(b.out, Fragment{
		ID:        FragmentID(value, b.ref.Type),
		RequestID: b.ref.ID,
		Type:      b.ref.Type,
		Value:     value,
		Kind:      kind,
	})
}

// authority returns scheme://[userinfo@]host[:port].
func authority(u *url.URL) string {
	var sb strings.Builder
	sb.WriteString(u.Scheme)
	sb.WriteString("://")
	if u.User != nil {
		sb.WriteString(u.User.String())
		sb.WriteByte('@')
	}
	sb.WriteString(u.Host)
	return sb.String()
}

// pathWithQuery returns the text after the authority up to any #fragment,
// exactly as written. Parsing would percent-encode non-ASCII path runes.
func pathWithQuery(raw string) string {
	_, rest, ok := strings.Cut(raw, "//")
	if !ok {
		return ""
	}
	i := strings.IndexAny(rest, "/?#")
	if i < 0 {
		return ""
	}
	p, _, _ := strings.Cut(rest[i:], "#")
	return p
}

// queryParams splits a raw query into key=value pairs in order of appearance.
// Keys and values are percent-decoded when valid; a bare key becomes "key=".
func queryParams(rawQuery string) []string {
	if rawQuery == "" {
		return nil
	}
	var params []string
	for _, piece := range strings.Split(rawQuery, "&") {
		if piece == "" {
			continue
		}
		key, value, _ := strings.Cut(piece, "=")
		params = append(params, unescape(key)+"="+unescape(value))
	}
	return params
}

func unescape(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}
