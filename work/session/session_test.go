package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kptv-browser/work/catalog"
	"kptv-browser/work/client"
	"kptv-browser/work/config"
	"kptv-browser/work/hls"
	"kptv-browser/work/pager"
	"kptv-browser/work/types"
)

// events records every side effect in order so tests can assert sequencing.
type events struct {
	log []string
}

func (e *events) add(format string, args ...any) {
	e.log = append(e.log, fmt.Sprintf(format, args...))
}

type fakeHandle struct {
	id        string
	ev        *events
	onParsed  func([]types.QualityLevel)
	destroyed int
	startErr  error
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Start(url string, sink hls.Sink, onParsed func([]types.QualityLevel)) error {
	if h.startErr != nil {
		return h.startErr
	}
	h.ev.add("start %s", h.id)
	sink.AttachAdaptive(h.id, url)
	h.onParsed = onParsed
	return nil
}

func (h *fakeHandle) SetLevel(level int) error {
	h.ev.add("level %s %d", h.id, level)
	return nil
}

func (h *fakeHandle) Destroy() {
	h.destroyed++
	h.ev.add("destroy %s", h.id)
}

type fakeFactory struct {
	ev         *events
	supported  bool
	acquireErr error
	startErr   error
	handles    []*fakeHandle
}

func (f *fakeFactory) Supported() bool { return f.supported }

func (f *fakeFactory) Acquire() (AdaptiveHandle, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	h := &fakeHandle{id: fmt.Sprintf("h%d", len(f.handles)+1), ev: f.ev, startErr: f.startErr}
	f.handles = append(f.handles, h)
	f.ev.add("acquire %s", h.id)
	return h, nil
}

type fakeOutput struct {
	ev        *events
	highlight types.Ref
	menu      []types.QualityOption
	slices    int
}

func (o *fakeOutput) AttachAdaptive(id, url string)           { o.ev.add("attach %s", url) }
func (o *fakeOutput) PlayDirect(url string)                   { o.ev.add("direct %s", url) }
func (o *fakeOutput) SelectLevel(level int)                   { o.ev.add("sink level %d", level) }
func (o *fakeOutput) Detach()                                 { o.ev.add("detach") }
func (o *fakeOutput) HighlightActive(ref types.Ref)           { o.highlight = ref }
func (o *fakeOutput) ShowQualityMenu(m []types.QualityOption) { o.menu = m }
func (o *fakeOutput) ClearList()                              {}
func (o *fakeOutput) RenderSlice(entries []types.Entry)       { o.slices++ }
func (o *fakeOutput) ShowEmptyState(types.EmptyState)         {}

func entry(i int, url string) types.Entry {
	return types.Entry{
		Ref:     types.Ref(fmt.Sprintf("r%d", i)),
		Channel: types.Channel{Name: fmt.Sprintf("ch%d", i), StreamURL: url},
	}
}

type fixture struct {
	ev      *events
	factory *fakeFactory
	out     *fakeOutput
	cursor  *pager.Cursor
	s       *Session
}

func newFixture(entries ...types.Entry) *fixture {
	ev := &events{}
	fx := &fixture{
		ev:      ev,
		factory: &fakeFactory{ev: ev, supported: true},
		out:     &fakeOutput{ev: ev},
	}
	fx.cursor = pager.New(2, fx.out)
	fx.cursor.Reset(catalog.NewView(entries))
	fx.s = New(fx.factory, fx.out, fx.out, fx.cursor)
	return fx
}

var levels = []types.QualityLevel{
	{Index: 0, Label: "360p", Height: 360},
	{Index: 1, Label: "720p", Height: 720},
}

func TestPlayDirect(t *testing.T) {
	fx := newFixture()
	e := entry(1, "http://x/movie.mp4")
	fx.out.menu = []types.QualityOption{{Level: -1, Label: "stale"}}

	fx.s.Play(e)

	assert.Equal(t, []string{"direct http://x/movie.mp4"}, fx.ev.log)
	assert.Empty(t, fx.out.menu)
	assert.Equal(t, e.Ref, fx.out.highlight)

	st := fx.s.State()
	assert.True(t, st.Active)
	assert.Equal(t, types.FormatDirect, st.Format)
	assert.ErrorIs(t, fx.s.SelectQuality(types.AutoLevel), ErrNoAdaptiveHandle)
}

func TestPlayAdaptivePopulatesMenu(t *testing.T) {
	fx := newFixture()
	fx.s.Play(entry(1, "http://x/live/INDEX.M3U8?token=abc"))

	require.Len(t, fx.factory.handles, 1)
	h := fx.factory.handles[0]
	assert.Empty(t, fx.out.menu)

	h.onParsed(levels)
	assert.Equal(t, []types.QualityOption{
		{Level: types.AutoLevel, Label: "Auto"},
		{Level: 0, Label: "360p"},
		{Level: 1, Label: "720p"},
	}, fx.out.menu)

	require.NoError(t, fx.s.SelectQuality(1))
	require.NoError(t, fx.s.SelectQuality(types.AutoLevel))
	assert.ErrorIs(t, fx.s.SelectQuality(5), ErrUnknownLevel)

	st := fx.s.State()
	assert.Equal(t, types.FormatAdaptive, st.Format)
	assert.Equal(t, "h1", st.HandleID)
	assert.Len(t, st.Levels, 2)
}

func TestReplaceReleasesHandleOnceBeforeAcquire(t *testing.T) {
	fx := newFixture()
	fx.s.Play(entry(1, "http://x/a.m3u8"))
	fx.s.Play(entry(2, "http://x/b.m3u8"))

	assert.Equal(t, []string{
		"acquire h1", "start h1", "attach http://x/a.m3u8",
		"destroy h1",
		"acquire h2", "start h2", "attach http://x/b.m3u8",
	}, fx.ev.log)
	assert.Equal(t, 1, fx.factory.handles[0].destroyed)
	assert.Zero(t, fx.factory.handles[1].destroyed)

	// late levels from the first handle are ignored
	fx.factory.handles[0].onParsed(levels)
	assert.Empty(t, fx.out.menu)
}

func TestAdaptiveToDirectClearsMenu(t *testing.T) {
	fx := newFixture()
	fx.s.Play(entry(1, "http://x/a.m3u8"))
	fx.factory.handles[0].onParsed(levels)
	require.NotEmpty(t, fx.out.menu)

	fx.s.Play(entry(2, "http://x/b.ts"))
	assert.Empty(t, fx.out.menu)
	assert.Equal(t, 1, fx.factory.handles[0].destroyed)
	assert.Equal(t, "direct http://x/b.ts", fx.ev.log[len(fx.ev.log)-1])
}

func TestAdaptiveUnsupported(t *testing.T) {
	fx := newFixture()
	fx.factory.supported = false

	fx.s.Play(entry(1, "http://x/a.m3u8"))
	assert.Empty(t, fx.factory.handles)
	_, active := fx.s.Active()
	assert.False(t, active)

	fx.factory.supported = true
	fx.factory.acquireErr = errors.New("no MSE")
	fx.s.Play(entry(1, "http://x/a.m3u8"))
	_, active = fx.s.Active()
	assert.False(t, active)
}

func TestAdaptiveStartFailureReleasesHandle(t *testing.T) {
	fx := newFixture()
	fx.factory.startErr = errors.New("pool closed")

	fx.s.Play(entry(1, "http://x/a.m3u8"))
	require.Len(t, fx.factory.handles, 1)
	assert.Equal(t, 1, fx.factory.handles[0].destroyed)
	_, active := fx.s.Active()
	assert.False(t, active)
	assert.Equal(t, types.Ref(""), fx.out.highlight)
}

func TestPlayAdaptiveWithSaturatedPoolDoesNotBlock(t *testing.T) {
	pool, err := ants.NewPool(1, ants.WithNonblocking(true))
	require.NoError(t, err)
	defer pool.Release()

	// a long playlist fetch holds the only worker
	busy := make(chan struct{})
	defer close(busy)
	require.NoError(t, pool.Submit(func() { <-busy }))

	fx := newFixture()
	factory := hls.NewFactory(&config.Config{AdaptiveEnabled: true}, client.NewHeaderSettingClient(), pool)
	s := New(FromHLS(factory), fx.out, fx.out, fx.cursor)

	played := make(chan struct{})
	go func() {
		s.Play(entry(1, "http://x/live.m3u8"))
		close(played)
	}()

	select {
	case <-played:
	case <-time.After(2 * time.Second):
		t.Fatal("Play blocked on a saturated pool")
	}

	st := s.State()
	assert.False(t, st.Active)
	assert.Empty(t, st.HandleID)
	assert.Equal(t, "detach", fx.ev.log[len(fx.ev.log)-1])
}

func TestMediaPlaylistLeavesMenuEmpty(t *testing.T) {
	fx := newFixture()
	fx.s.Play(entry(1, "http://x/live.m3u8"))
	require.Len(t, fx.factory.handles, 1)

	fx.factory.handles[0].onParsed(nil)
	assert.Empty(t, fx.out.menu)
	assert.ErrorIs(t, fx.s.SelectQuality(types.AutoLevel), ErrUnknownLevel)
}

func TestStop(t *testing.T) {
	fx := newFixture()
	fx.s.Play(entry(1, "http://x/a.m3u8"))
	fx.s.Stop()
	fx.s.Stop()

	assert.Equal(t, 1, fx.factory.handles[0].destroyed)
	_, active := fx.s.Active()
	assert.False(t, active)
	assert.Equal(t, types.Ref(""), fx.out.highlight)
	assert.Equal(t, "detach", fx.ev.log[len(fx.ev.log)-1])
}

func TestOnStreamEndedAdvancesAndRenders(t *testing.T) {
	entries := []types.Entry{
		entry(0, "http://x/0.ts"), entry(1, "http://x/1.ts"), entry(2, "http://x/2.ts"),
	}
	fx := newFixture(entries...)
	_, err := fx.cursor.NextSlice()
	require.NoError(t, err)

	fx.s.Play(entries[1])
	fx.s.OnStreamEnded()

	active, ok := fx.s.Active()
	require.True(t, ok)
	assert.Equal(t, entries[2].Ref, active.Ref)
	assert.True(t, fx.cursor.Rendered(entries[2].Ref))
	assert.Equal(t, 2, fx.out.slices)

	fx.s.OnStreamEnded()
	active, _ = fx.s.Active()
	assert.Equal(t, entries[0].Ref, active.Ref)
}

func TestOnStreamEndedSingleEntryIsNoop(t *testing.T) {
	only := entry(0, "http://x/0.ts")
	fx := newFixture(only)
	fx.s.Play(only)
	before := len(fx.ev.log)

	fx.s.OnStreamEnded()
	assert.Len(t, fx.ev.log, before)
	active, _ := fx.s.Active()
	assert.Equal(t, only.Ref, active.Ref)
}

func TestOnStreamEndedWhenIdle(t *testing.T) {
	fx := newFixture(entry(0, "http://x/0.ts"), entry(1, "http://x/1.ts"))
	fx.s.OnStreamEnded()
	assert.Empty(t, fx.ev.log)
}
