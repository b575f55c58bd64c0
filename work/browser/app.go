package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kptv-browser/work/catalog"
	"kptv-browser/work/config"
	"kptv-browser/work/fetcher"
	"kptv-browser/work/logger"
	"kptv-browser/work/pager"
	"kptv-browser/work/session"
	"kptv-browser/work/types"
)

// ErrUnknownRef is returned when a selected ref resolves to no channel.
var ErrUnknownRef = errors.New("unknown channel ref")

// Controls are the search, group and sort inputs that shape the filtered view.
// An empty Group selects every group.
type Controls struct {
	Group  string          `json:"group"`
	Sort   types.SortOrder `json:"sort"`
	Search string          `json:"search"`
}

// Fetcher retrieves the configured playlist sources.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []config.SourceConfig) []fetcher.Result
}

// Preferences persists the list/grid view preference.
type Preferences interface {
	LoadViewMode() (types.ViewMode, bool, error)
	SaveViewMode(mode types.ViewMode) error
}

// Presenter is the presentation surface the app drives beyond what the cursor
// and session drive themselves.
type Presenter interface {
	pager.Renderer
	Notify(message string)
	SetViewMode(mode types.ViewMode)
}

// Status summarises the app for diagnostics.
type Status struct {
	Catalog  string         `json:"catalog"`
	Channels int            `json:"channels"`
	Controls Controls       `json:"controls"`
	Rendered int            `json:"rendered"`
	Visible  int            `json:"visible"`
	Session  session.State  `json:"session"`
	ViewMode types.ViewMode `json:"viewMode"`
}

// App translates presentation signals into catalog, cursor and session
// operations. Every signal except ScrollNearEnd runs to completion under one
// event lock; ScrollNearEnd relies on the cursor's busy flag instead, so a
// duplicate arriving mid-render is dropped rather than queued.
type App struct {
	cfg       *config.Config
	store     *catalog.Store
	fetch     Fetcher
	cursor    *pager.Cursor
	session   *session.Session
	presenter Presenter
	prefs     Preferences

	reloadMu sync.Mutex
	mu       sync.Mutex
	controls Controls
	viewMode types.ViewMode
}

// New wires an app. The cursor must render into presenter and the session must
// navigate through cursor.
func New(cfg *config.Config, store *catalog.Store, fetch Fetcher, cursor *pager.Cursor, sess *session.Session, presenter Presenter, prefs Preferences) *App {
	return &App{
		cfg:       cfg,
		store:     store,
		fetch:     fetch,
		cursor:    cursor,
		session:   sess,
		presenter: presenter,
		prefs:     prefs,
		controls:  Controls{Sort: types.SortDefault},
		viewMode:  types.ParseViewMode(cfg.DefaultView),
	}
}

// Start restores the view preference, shows the loading state and performs the
// initial load.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.prefs != nil {
		mode, ok, err := a.prefs.LoadViewMode()
		switch {
		case err != nil:
			logger.Warn("{browser - Start} failed to read view preference: %v", err)
		case ok:
			a.viewMode = mode
		}
	}
	a.presenter.SetViewMode(a.viewMode)
	a.cursor.Park()
	a.presenter.ShowEmptyState(types.EmptyLoading)
	a.mu.Unlock()

	return a.Reload(ctx)
}

// Reload fetches every source and swaps the catalog in. Other signals keep
// being served while the fetch is in flight. Concurrent reloads run one after
// the other.
func (a *App) Reload(ctx context.Context) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	sources := a.cfg.GetSourcesByOrder()
	logger.Info("{browser - Reload} loading %d playlist sources", len(sources))
	results := a.fetch.FetchAll(ctx, sources)

	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.store.Load(results)
	a.rederiveLocked()
	return err
}

// rederiveLocked recomputes the filtered view and renders its first page.
func (a *App) rederiveLocked() {
	c := a.controls

	if c.Group != types.FavoritesGroup {
		switch a.store.Status() {
		case catalog.StatusUnavailable:
			a.cursor.Park()
			a.presenter.ShowEmptyState(types.EmptyLoadError)
			return
		case catalog.StatusLoading:
			a.cursor.Park()
			a.presenter.ShowEmptyState(types.EmptyLoading)
			return
		}
	}

	view := a.store.Derive(c.Group, c.Sort, c.Search)
	if _, err := a.cursor.Restart(view); err != nil && !errors.Is(err, pager.ErrNoResults) {
		logger.Error("{browser - rederive} failed to render first page: %v", err)
	}
	logger.Debug("{browser - rederive} view has %d entries", view.Len())
}

// ApplyControls re-derives the view for new search, group and sort inputs.
func (a *App) ApplyControls(c Controls) {
	c.Sort = types.ParseSortOrder(string(c.Sort))

	a.mu.Lock()
	defer a.mu.Unlock()
	a.controls = c
	a.rederiveLocked()
}

// Controls returns the active control values.
func (a *App) Controls() Controls {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.controls
}

// Select handles a selection of a rendered entry. Holding for at least the
// long-press threshold toggles the favorite; a shorter selection plays it.
func (a *App) Select(ref types.Ref, held time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.store.Lookup(ref)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRef, ref)
	}

	if held < a.cfg.LongPressThreshold {
		a.session.Play(entry)
		return nil
	}

	favorited, err := a.store.ToggleFavorite(entry.Channel)
	if err != nil {
		logger.Error("{browser - Select} failed to toggle favorite %q: %v", entry.Channel.Name, err)
		return err
	}

	if favorited {
		a.presenter.Notify(fmt.Sprintf("'%s' added to Favorites!", entry.Channel.Name))
	} else {
		a.presenter.Notify(fmt.Sprintf("'%s' removed from Favorites", entry.Channel.Name))
	}

	if a.controls.Group == types.FavoritesGroup {
		a.rederiveLocked()
	}
	return nil
}

// ScrollNearEnd reveals the next page. A call arriving while a page is still
// rendering returns pager.ErrBusy and does nothing.
func (a *App) ScrollNearEnd() ([]types.Entry, error) {
	slice, err := a.cursor.NextSlice()
	if errors.Is(err, pager.ErrBusy) {
		logger.Debug("{browser - ScrollNearEnd} dropped duplicate load")
	}
	return slice, err
}

// StreamEnded advances autoplay to the next entry of the current view.
func (a *App) StreamEnded() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session.OnStreamEnded()
}

// SelectQuality pins or releases a rendition of the active adaptive stream.
func (a *App) SelectQuality(level int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.SelectQuality(level)
}

// Stop ends playback.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session.Stop()
}

// SetViewMode switches and persists the list/grid preference.
func (a *App) SetViewMode(mode types.ViewMode) error {
	mode = types.ParseViewMode(string(mode))

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.prefs != nil {
		if err := a.prefs.SaveViewMode(mode); err != nil {
			return fmt.Errorf("failed to save view preference: %w", err)
		}
	}
	a.viewMode = mode
	a.presenter.SetViewMode(mode)
	return nil
}

// ViewMode returns the current list/grid preference.
func (a *App) ViewMode() types.ViewMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewMode
}

// Groups lists the Favorites pseudo-group and every catalog group.
func (a *App) Groups() []string {
	return a.store.Groups()
}

// Status reports the catalog, view and session state.
func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		Catalog:  a.store.Status().String(),
		Channels: a.store.Len(),
		Controls: a.controls,
		Rendered: a.cursor.RenderedCount(),
		Visible:  a.cursor.View().Len(),
		Session:  a.session.State(),
		ViewMode: a.viewMode,
	}
}
