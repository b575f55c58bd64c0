package catalog

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"kptv-browser/work/fetcher"
	"kptv-browser/work/filter"
	"kptv-browser/work/logger"
	"kptv-browser/work/metrics"
	"kptv-browser/work/parser"
	"kptv-browser/work/types"
)

// ErrCatalogUnavailable is returned by Load when no source could be fetched.
var ErrCatalogUnavailable = errors.New("catalog unavailable: every playlist source failed")

// Status is the load state of the catalog.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "loading"
	}
}

// FavoritesStore persists the favorites slot. It is read on every favorites
// query and written on every toggle.
type FavoritesStore interface {
	LoadFavorites() ([]types.Channel, error)
	SaveFavorites([]types.Channel) error
}

// Options tune how playlists become a catalog.
type Options struct {
	Dedupe  bool                  // drop repeated (name, url) pairs after concatenation
	Locale  string                // collation locale for az / za
	Filters *filter.FilterManager // per-source include/exclude rules, may be nil
}

// Store owns the catalog and the favorites set and derives filtered views.
type Store struct {
	opts      Options
	favorites FavoritesStore
	lang      language.Tag

	mu      sync.RWMutex
	entries []types.Entry
	byRef   map[types.Ref]int
	groups  []string
	status  Status
}

// NewStore creates an empty store in the loading state.
func NewStore(favorites FavoritesStore, opts Options) *Store {
	if opts.Filters == nil {
		opts.Filters = filter.NewFilterManager()
	}
	lang, err := language.Parse(opts.Locale)
	if err != nil {
		lang = language.English
	}
	return &Store{
		opts:      opts,
		favorites: favorites,
		lang:      lang,
		byRef:     map[types.Ref]int{},
		status:    StatusLoading,
	}
}

// Load replaces the catalog with the channels of every successfully fetched
// source, in source order. Failed sources contribute nothing. When no source
// succeeded the catalog is emptied, the store becomes unavailable and
// ErrCatalogUnavailable is returned.
func (s *Store) Load(results []fetcher.Result) error {
	var channels []types.Channel
	loaded := 0

	for i := range results {
		r := &results[i]
		if !r.OK() {
			logger.Warn("{catalog - Load} source %s contributes no channels: %v", r.Source.Name, r.Err)
			continue
		}
		loaded++
		parsed := parser.Parse(r.Text)
		parsed = filter.FilterChannels(parsed, &r.Source, s.opts.Filters)
		logger.Debug("{catalog - Load} source %s: %d channels", r.Source.Name, len(parsed))
		channels = append(channels, parsed...)
	}

	if loaded == 0 {
		s.replace(nil, StatusUnavailable)
		logger.Error("{catalog - Load} all %d playlist sources failed", len(results))
		return ErrCatalogUnavailable
	}

	before := len(channels)
	if s.opts.Dedupe {
		channels = parser.Dedupe(channels)
	}
	s.replace(channels, StatusReady)

	logger.Info("{catalog - Load} catalog ready: %d channels from %d/%d sources (%d duplicates dropped)",
		len(channels), loaded, len(results), before-len(channels))
	return nil
}

// LoadTexts loads already retrieved playlist texts, each treated as a
// successfully fetched source.
func (s *Store) LoadTexts(texts ...string) error {
	results := make([]fetcher.Result, len(texts))
	for i, text := range texts {
		results[i].Source.Name = fmt.Sprintf("text_%d", i+1)
		results[i].Text = text
	}
	return s.Load(results)
}

func (s *Store) replace(channels []types.Channel, status Status) {
	entries := make([]types.Entry, len(channels))
	byRef := make(map[types.Ref]int, len(channels))
	occurrences := make(map[types.Identity]int)
	seenGroups := make(map[string]struct{})
	var groups []string

	for i, ch := range channels {
		id := ch.Identity()
		ref := types.RefFor(id, occurrences[id])
		occurrences[id]++
		entries[i] = types.Entry{Ref: ref, Channel: ch}
		byRef[ref] = i

		if _, ok := seenGroups[ch.Group]; !ok {
			seenGroups[ch.Group] = struct{}{}
			groups = append(groups, ch.Group)
		}
	}

	s.mu.Lock()
	s.entries = entries
	s.byRef = byRef
	s.groups = groups
	s.status = status
	s.mu.Unlock()

	metrics.CatalogChannels.Set(float64(len(entries)))
	metrics.CatalogLoads.WithLabelValues(status.String()).Inc()
}

// Status returns the load state of the catalog.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Len is the number of channels in the catalog.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Groups lists the Favorites pseudo-group followed by every catalog group in
// order of first appearance.
func (s *Store) Groups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groups := make([]string, 0, len(s.groups)+1)
	groups = append(groups, types.FavoritesGroup)
	for _, g := range s.groups {
		if g != types.FavoritesGroup {
			groups = append(groups, g)
		}
	}
	return groups
}

// Derive computes a filtered view: pick the favorites (group "Favorites") or
// the catalog restricted to group (empty group means all), sort a working
// copy, then keep names containing search, case-insensitively.
func (s *Store) Derive(group string, order types.SortOrder, search string) *View {
	var working []types.Entry

	if group == types.FavoritesGroup {
		working = s.favoriteEntries()
	} else {
		s.mu.RLock()
		working = make([]types.Entry, 0, len(s.entries))
		for _, e := range s.entries {
			if group == "" || e.Channel.Group == group {
				working = append(working, e)
			}
		}
		s.mu.RUnlock()
	}

	s.sortEntries(working, order)

	if search != "" {
		needle := strings.ToLower(search)
		matched := working[:0]
		for _, e := range working {
			if strings.Contains(strings.ToLower(e.Channel.Name), needle) {
				matched = append(matched, e)
			}
		}
		working = matched
	}

	view := NewView(working)
	view.Group = group
	view.Order = order
	view.Search = search
	return view
}

func (s *Store) sortEntries(entries []types.Entry, order types.SortOrder) {
	switch order {
	case types.SortNewest:
		slices.Reverse(entries)
	case types.SortAZ, types.SortZA:
		coll := collate.New(s.lang)
		sort.SliceStable(entries, func(i, j int) bool {
			return coll.CompareString(entries[i].Channel.Name, entries[j].Channel.Name) < 0
		})
		// za is the exact mirror of az, ties included
		if order == types.SortZA {
			slices.Reverse(entries)
		}
	}
}

// Lookup resolves a ref handed out with a rendered entry. Refs of favorites that
// are no longer in the catalog resolve through the favorites slot.
func (s *Store) Lookup(ref types.Ref) (types.Entry, bool) {
	s.mu.RLock()
	i, ok := s.byRef[ref]
	var e types.Entry
	if ok {
		e = s.entries[i]
	}
	s.mu.RUnlock()
	if ok {
		return e, true
	}

	for _, fav := range s.favoriteEntries() {
		if fav.Ref == ref {
			return fav, true
		}
	}
	return types.Entry{}, false
}

// IsFavorite reports whether ch's identity is in the favorites slot.
func (s *Store) IsFavorite(ch types.Channel) bool {
	favorites, err := s.loadFavorites()
	if err != nil {
		return false
	}
	return indexOf(favorites, ch.Identity()) >= 0
}

// ToggleFavorite adds ch to the favorites when absent and removes it when
// present, persists the slot and returns the new favorited state. Callers
// re-derive any view that depends on favorites.
func (s *Store) ToggleFavorite(ch types.Channel) (bool, error) {
	favorites, err := s.loadFavorites()
	if err != nil {
		return false, err
	}

	favorited := false
	if i := indexOf(favorites, ch.Identity()); i >= 0 {
		favorites = slices.Delete(favorites, i, i+1)
	} else {
		favorites = append(favorites, ch)
		favorited = true
	}

	if err := s.favorites.SaveFavorites(favorites); err != nil {
		return !favorited, fmt.Errorf("failed to save favorites: %w", err)
	}

	action := "removed"
	if favorited {
		action = "added"
	}
	metrics.FavoriteToggles.WithLabelValues(action).Inc()
	logger.Debug("{catalog - ToggleFavorite} %s %q, %d favorites", action, ch.Name, len(favorites))

	return favorited, nil
}

// Favorites returns the favorites slot in stored order.
func (s *Store) Favorites() ([]types.Channel, error) {
	return s.loadFavorites()
}

func (s *Store) loadFavorites() ([]types.Channel, error) {
	if s.favorites == nil {
		return nil, errors.New("no favorites store configured")
	}
	favorites, err := s.favorites.LoadFavorites()
	if err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	return favorites, nil
}

// favoriteEntries pairs every favorite with its ref. An unreadable slot is
// logged and yields no favorites.
func (s *Store) favoriteEntries() []types.Entry {
	favorites, err := s.loadFavorites()
	if err != nil {
		logger.Warn("{catalog - favoriteEntries} %v", err)
		return nil
	}
	entries := make([]types.Entry, len(favorites))
	for i, ch := range favorites {
		entries[i] = types.Entry{Ref: types.RefFor(ch.Identity(), 0), Channel: ch}
	}
	return entries
}

func indexOf(channels []types.Channel, id types.Identity) int {
	return slices.IndexFunc(channels, func(c types.Channel) bool {
		return c.Identity() == id
	})
}
