package urlindex

// Delta is the set of store mutations needed to bring one request's
// fragments in line with its current URL.
type Delta struct {
	ToInsert []Fragment
	ToRemove []Fragment
}

// Empty reports whether the delta requires no mutation.
func (d Delta) Empty() bool {
	return len(d.ToInsert) == 0 && len(d.ToRemove) == 0
}

// Diff compares candidate fragments against the fragments currently stored for
// the same request, by fragment id. Fragments present in both are left alone,
// stored-only fragments are removed and candidate-only fragments are inserted.
// Candidates sharing an id collapse into the first one.
func Diff(candidates, stored []Fragment) Delta {
	storedIDs := make(map[string]struct{}, len(stored))
	for _, f := range stored {
		storedIDs[f.ID] = struct{}{}
	}

	var d Delta
	wanted := make(map[string]struct{}, len(candidates))
	for _, f := range candidates {
		if _, dup := wanted[f.ID]; dup {
			continue
		}
		wanted[f.ID] = struct{}{}
		if _, ok := storedIDs[f.ID]; !ok {
			d.ToInsert = append(d.ToInsert, f)
		}
	}

	removed := make(map[string]struct{})
	for _, f := range stored {
		if _, ok := wanted[f.ID]; ok {
			continue
		}
		if _, dup := removed[f.ID]; dup {
			continue
		}
		removed[f.ID] = struct{}{}
		d.ToRemove = append(d.ToRemove, f)
	}
	return d
}

// IDs returns the distinct fragment ids of the given fragments, in order.
func IDs(fragments []Fragment) []string {
	seen := make(map[string]struct{}, len(fragments))
	ids := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if _, ok := seen[f.ID]; ok {
			continue
		}
		seen[f.ID] = struct{}{}
		ids = append(ids, f.ID)
	}
	return ids
}
