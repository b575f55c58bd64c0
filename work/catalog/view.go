package catalog

import "kptv-browser/work/types"

// View is one derived, immutable ordering of the catalog or the favorites set.
// It indexes its refs once so position lookups never rescan the entries.
type View struct {
	Group  string
	Order  types.SortOrder
	Search string

	entries []types.Entry
	pos     map[types.Ref]int
}

// NewView builds a view over entries, which it takes ownership of.
func NewView(entries []types.Entry) *View {
	v := &View{
		Order:   types.SortDefault,
		entries: entries,
		pos:     make(map[types.Ref]int, len(entries)),
	}
	for i, e := range entries {
		if _, dup := v.pos[e.Ref]; !dup {
			v.pos[e.Ref] = i
		}
	}
	return v
}

// Len is the number of entries in the view; a nil view is empty.
func (v *View) Len() int {
	if v == nil {
		return 0
	}
	return len(v.entries)
}

// At returns the entry at position i.
func (v *View) At(i int) types.Entry {
	return v.entries[i]
}

// Slice returns a copy of the entries in [lo, hi), clamped to the view.
func (v *View) Slice(lo, hi int) []types.Entry {
	n := v.Len()
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	if lo >= hi {
		return nil
	}
	out := make([]types.Entry, hi-lo)
	copy(out, v.entries[lo:hi])
	return out
}

// Entries returns a copy of every entry.
func (v *View) Entries() []types.Entry {
	return v.Slice(0, v.Len())
}

// Position returns where ref sits in the view.
func (v *View) Position(ref types.Ref) (int, bool) {
	if v == nil {
		return 0, false
	}
	i, ok := v.pos[ref]
	return i, ok
}

// Next returns the entry after ref, wrapping to the start. There is no next
// entry when the view holds fewer than two entries or ref is not in it.
func (v *View) Next(ref types.Ref) (types.Entry, bool) {
	n := v.Len()
	if n < 2 {
		return types.Entry{}, false
	}
	i, ok := v.Position(ref)
	if !ok {
		return types.Entry{}, false
	}
	return v.entries[(i+1)%n], true
}
