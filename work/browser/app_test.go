package browser

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kptv-browser/work/catalog"
	"kptv-browser/work/config"
	"kptv-browser/work/fetcher"
	"kptv-browser/work/hls"
	"kptv-browser/work/pager"
	"kptv-browser/work/presenter"
	"kptv-browser/work/session"
	"kptv-browser/work/types"
)

const playlist = `#EXTM3U
#EXTINF:-1 group-title="News",Alpha
http://x/alpha.ts
#EXTINF:-1 group-title="Sports",Bravo
http://x/bravo.mp4
#EXTINF:-1 group-title="News",Charlie
http://x/charlie.ts
#EXTINF:-1 tvg-logo="http://logo/d.png",Delta
http://x/delta.ts
#EXTINF:-1 group-title="Sports",Echo
http://x/echo.m3u8
`

type stubFetcher struct {
	text string
	err  error

	// when gate is set FetchAll signals entered and waits for gate to close
	gate    chan struct{}
	entered chan struct{}
}

func (f *stubFetcher) FetchAll(ctx context.Context, sources []config.SourceConfig) []fetcher.Result {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	results := make([]fetcher.Result, len(sources))
	for i, src := range sources {
		results[i] = fetcher.Result{Source: src, Text: f.text, Err: f.err}
	}
	return results
}

type memState struct {
	favorites []types.Channel
	view      types.ViewMode
	hasView   bool
}

func (m *memState) LoadFavorites() ([]types.Channel, error) {
	return slices.Clone(m.favorites), nil
}

func (m *memState) SaveFavorites(c []types.Channel) error {
	m.favorites = slices.Clone(c)
	return nil
}

func (m *memState) LoadViewMode() (types.ViewMode, bool, error) {
	return m.view, m.hasView, nil
}

func (m *memState) SaveViewMode(mode types.ViewMode) error {
	m.view, m.hasView = mode, true
	return nil
}

type harness struct {
	app   *App
	pres  *presenter.Presenter
	state *memState
	fetch *stubFetcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := &config.Config{
		PageSize:           2,
		LongPressThreshold: 1500 * time.Millisecond,
		Dedupe:             true,
		Locale:             "en",
		DefaultView:        "list",
		Sources:            []config.SourceConfig{{Name: "one", URL: "http://src/one.m3u"}},
	}
	state := &memState{}
	pres := presenter.New("http://placeholder/50")
	store := catalog.NewStore(state, catalog.Options{Dedupe: cfg.Dedupe, Locale: cfg.Locale})
	cursor := pager.New(cfg.PageSize, pres)
	sess := session.New(session.FromHLS(hls.NewFactory(cfg, nil, nil)), pres, pres, cursor)
	fetch := &stubFetcher{text: playlist}

	return &harness{
		app:   New(cfg, store, fetch, cursor, sess, pres, state),
		pres:  pres,
		state: state,
		fetch: fetch,
	}
}

func itemNames(s presenter.Snapshot) []string {
	var out []string
	for _, it := range s.Items {
		out = append(out, it.Name)
	}
	return out
}

func refOf(t *testing.T, s presenter.Snapshot, name string) types.Ref {
	t.Helper()
	for _, it := range s.Items {
		if it.Name == name {
			return it.Ref
		}
	}
	t.Fatalf("%s not rendered", name)
	return ""
}

func TestStartRendersFirstPage(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Start(context.Background()))

	snap := h.pres.Snapshot()
	assert.Equal(t, []string{"Alpha", "Bravo"}, itemNames(snap))
	assert.Equal(t, types.EmptyNone, snap.EmptyState)
	assert.Equal(t, types.ViewList, snap.ViewMode)
	assert.Equal(t, []string{types.FavoritesGroup, "News", "Sports", types.DefaultGroup}, h.app.Groups())

	_, err := h.app.ScrollNearEnd()
	require.NoError(t, err)
	_, err = h.app.ScrollNearEnd()
	require.NoError(t, err)
	slice, err := h.app.ScrollNearEnd()
	require.NoError(t, err)
	assert.Nil(t, slice)

	snap = h.pres.Snapshot()
	assert.Len(t, snap.Items, 5)
	assert.Equal(t, "http://placeholder/50", snap.Items[0].Logo)
	assert.Equal(t, "http://logo/d.png", snap.Items[3].Logo)
}

func TestStartWithEverySourceFailing(t *testing.T) {
	h := newHarness(t)
	h.fetch.err = errors.New("connection refused")

	err := h.app.Start(context.Background())
	assert.ErrorIs(t, err, catalog.ErrCatalogUnavailable)
	assert.Equal(t, types.EmptyLoadError, h.pres.Snapshot().EmptyState)

	// an empty list keeps firing scroll signals; they must not turn the
	// load error into "no results"
	slice, err := h.app.ScrollNearEnd()
	require.NoError(t, err)
	assert.Nil(t, slice)
	assert.Equal(t, types.EmptyLoadError, h.pres.Snapshot().EmptyState)

	// favorites stay browsable without a catalog
	h.state.favorites = []types.Channel{{Name: "Saved", StreamURL: "http://x/saved.ts", Group: "News"}}
	h.app.ApplyControls(Controls{Group: types.FavoritesGroup})
	assert.Equal(t, []string{"Saved"}, itemNames(h.pres.Snapshot()))

	// recovering on reload
	h.fetch.err = nil
	h.app.ApplyControls(Controls{})
	require.NoError(t, h.app.Reload(context.Background()))
	assert.Equal(t, "ready", h.app.Status().Catalog)
	assert.Len(t, h.pres.Snapshot().Items, 2)
}

func TestScrollWhileLoadingKeepsLoadingState(t *testing.T) {
	h := newHarness(t)
	h.fetch.gate = make(chan struct{})
	h.fetch.entered = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() { done <- h.app.Start(context.Background()) }()

	select {
	case <-h.fetch.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}
	assert.Equal(t, types.EmptyLoading, h.pres.Snapshot().EmptyState)

	_, err := h.app.ScrollNearEnd()
	require.NoError(t, err)
	assert.Equal(t, types.EmptyLoading, h.pres.Snapshot().EmptyState)

	h.app.ApplyControls(Controls{Search: "a"})
	_, err = h.app.ScrollNearEnd()
	require.NoError(t, err)
	assert.Equal(t, types.EmptyLoading, h.pres.Snapshot().EmptyState)

	close(h.fetch.gate)
	require.NoError(t, <-done)
	snap := h.pres.Snapshot()
	assert.Equal(t, types.EmptyNone, snap.EmptyState)
	assert.NotEmpty(t, snap.Items)
}

func TestApplyControls(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Start(context.Background()))

	h.app.ApplyControls(Controls{Group: "News", Sort: types.SortZA})
	assert.Equal(t, []string{"Charlie", "Alpha"}, itemNames(h.pres.Snapshot()))

	h.app.ApplyControls(Controls{Search: "zzz", Sort: "bogus"})
	snap := h.pres.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Equal(t, types.EmptyNoResults, snap.EmptyState)
	assert.Equal(t, types.SortDefault, h.app.Controls().Sort)
}

func TestSelectPlaysShortPress(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Start(context.Background()))
	ref := refOf(t, h.pres.Snapshot(), "Bravo")

	require.NoError(t, h.app.Select(ref, 200*time.Millisecond))
	snap := h.pres.Snapshot()
	assert.Equal(t, ref, snap.ActiveRef)
	assert.Equal(t, types.FormatDirect, snap.NowPlaying.Format)
	assert.Equal(t, "http://x/bravo.mp4", snap.NowPlaying.URL)
	assert.True(t, snap.Items[1].Active)

	assert.ErrorIs(t, h.app.Select("nope", 0), ErrUnknownRef)

	h.app.Stop()
	assert.Equal(t, types.FormatNone, h.pres.Snapshot().NowPlaying.Format)
}

func TestSelectAdaptiveUnsupportedDoesNotPlay(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Start(context.Background()))
	h.app.ApplyControls(Controls{Search: "echo"})
	ref := refOf(t, h.pres.Snapshot(), "Echo")

	require.NoError(t, h.app.Select(ref, 0))
	assert.Equal(t, types.FormatNone, h.pres.Snapshot().NowPlaying.Format)
	assert.False(t, h.app.Status().Session.Active)
	assert.ErrorIs(t, h.app.SelectQuality(types.AutoLevel), session.ErrNoAdaptiveHandle)
}

func TestLongPressTogglesFavorite(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Start(context.Background()))
	ref := refOf(t, h.pres.Snapshot(), "Alpha")

	require.NoError(t, h.app.Select(ref, 2*time.Second))
	snap := h.pres.Snapshot()
	require.NotNil(t, snap.Toast)
	assert.Equal(t, "'Alpha' added to Favorites!", snap.Toast.Message)
	assert.Len(t, h.state.favorites, 1)
	assert.Empty(t, snap.NowPlaying.Format)

	h.app.ApplyControls(Controls{Group: types.FavoritesGroup})
	assert.Equal(t, []string{"Alpha"}, itemNames(h.pres.Snapshot()))

	// unfavoriting inside Favorites re-derives the view
	require.NoError(t, h.app.Select(ref, 1500*time.Millisecond))
	snap = h.pres.Snapshot()
	assert.Equal(t, "'Alpha' removed from Favorites", snap.Toast.Message)
	assert.Empty(t, snap.Items)
	assert.Equal(t, types.EmptyNoResults, snap.EmptyState)
	assert.Empty(t, h.state.favorites)
}

func TestStreamEndedAutoplaysWithinView(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.Start(context.Background()))
	h.app.ApplyControls(Controls{Sort: types.SortAZ})
	snap := h.pres.Snapshot()
	require.Equal(t, []string{"Alpha", "Bravo"}, itemNames(snap))

	require.NoError(t, h.app.Select(refOf(t, snap, "Bravo"), 0))
	h.app.StreamEnded()

	// Charlie lies on the second page and gets rendered before it plays
	snap = h.pres.Snapshot()
	assert.Equal(t, []string{"Alpha", "Bravo", "Charlie", "Delta"}, itemNames(snap))
	assert.Equal(t, refOf(t, snap, "Charlie"), snap.ActiveRef)
	assert.Equal(t, "http://x/charlie.ts", snap.NowPlaying.URL)
}

func TestViewModePreference(t *testing.T) {
	h := newHarness(t)
	h.state.view, h.state.hasView = types.ViewGrid, true
	require.NoError(t, h.app.Start(context.Background()))
	assert.Equal(t, types.ViewGrid, h.app.ViewMode())
	assert.Equal(t, types.ViewGrid, h.pres.Snapshot().ViewMode)

	require.NoError(t, h.app.SetViewMode(types.ViewList))
	assert.Equal(t, types.ViewList, h.state.view)
	assert.Equal(t, types.ViewList, h.pres.Snapshot().ViewMode)
}
