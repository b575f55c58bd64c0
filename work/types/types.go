package types

import (
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// DefaultGroup is assigned to channels whose metadata line carries no group-title.
const DefaultGroup = "Others"

// DefaultName is assigned to channels whose metadata line carries no display name.
const DefaultName = "Unnamed"

// FavoritesGroup is the synthetic pseudo-group that selects the favorites set
// instead of the catalog as the base of a filtered view.
const FavoritesGroup = "Favorites"

// AutoLevel selects automatic rendition switching on an adaptive stream.
const AutoLevel = -1

// Channel is a single playable entry parsed from a playlist. Channels are values
// and are never mutated once created; the favorites slot stores them by value.
type Channel struct {
	Name      string `json:"name"`  // display name taken from the text after the last comma
	LogoURL   string `json:"logo"`  // tvg-logo attribute, may be empty
	Group     string `json:"group"` // group-title attribute, "Others" when absent
	StreamURL string `json:"url"`   // stream URL from the line following the metadata line
}

// Identity is the (name, stream URL) pair used for deduplication and favorites.
type Identity struct {
	Name      string
	StreamURL string
}

// Identity returns the identity key of the channel.
func (c Channel) Identity() Identity {
	return Identity{Name: c.Name, StreamURL: c.StreamURL}
}

// Ref is a stable position reference handed to the presentation layer with every
// rendered entry. It is derived from the channel identity, so a favorite and its
// catalog twin share a ref and refs survive reloads of unchanged playlists.
type Ref string

// RefFor builds the ref for the occurrence-th appearance (0-based) of an identity.
// Repeated occurrences only happen when load-time deduplication is disabled.
func RefFor(id Identity, occurrence int) Ref {
	sum := blake2b.Sum256([]byte(id.Name + "\x00" + id.StreamURL))
	ref := hex.EncodeToString(sum[:8])
	if occurrence > 0 {
		ref += "-" + strconv.Itoa(occurrence)
	}
	return Ref(ref)
}

// Entry pairs a channel with its ref.
type Entry struct {
	Ref     Ref     `json:"ref"`
	Channel Channel `json:"channel"`
}

// SortOrder selects how a filtered view is ordered.
type SortOrder string

const (
	SortDefault SortOrder = "default" // catalog order
	SortNewest  SortOrder = "newest"  // reversed catalog order
	SortAZ      SortOrder = "az"      // by name, ascending
	SortZA      SortOrder = "za"      // by name, descending
)

// ParseSortOrder maps a control value to a SortOrder, falling back to SortDefault.
func ParseSortOrder(s string) SortOrder {
	switch SortOrder(s) {
	case SortNewest, SortAZ, SortZA:
		return SortOrder(s)
	default:
		return SortDefault
	}
}

// EmptyState is the kind of empty-list message the presentation layer shows.
type EmptyState string

const (
	EmptyNone      EmptyState = ""
	EmptyLoading   EmptyState = "loading"
	EmptyNoResults EmptyState = "no-results"
	EmptyLoadError EmptyState = "load-error"
)

// ViewMode is the persisted list/grid presentation preference.
type ViewMode string

const (
	ViewList ViewMode = "list"
	ViewGrid ViewMode = "grid"
)

// ParseViewMode maps a stored token to a ViewMode; anything but "grid" is a list.
func ParseViewMode(s string) ViewMode {
	if ViewMode(s) == ViewGrid {
		return ViewGrid
	}
	return ViewList
}

// StreamFormat is how the active stream is fed to the output sink.
type StreamFormat string

const (
	FormatNone     StreamFormat = ""
	FormatAdaptive StreamFormat = "adaptive"
	FormatDirect   StreamFormat = "direct"
)

// QualityLevel is one rendition of an adaptive stream.
type QualityLevel struct {
	Index     int    `json:"index"`
	Label     string `json:"label"`
	Bandwidth uint32 `json:"bandwidth"`
	Height    int    `json:"height"`
	URI       string `json:"uri"`
}

// QualityOption is one entry of the quality-level menu. Level is AutoLevel for
// the automatic option, otherwise the rendition index.
type QualityOption struct {
	Level int    `json:"level"`
	Label string `json:"label"`
}
