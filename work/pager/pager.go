package pager

import (
	"errors"
	"sync"
	"sync/atomic"

	"kptv-browser/work/catalog"
	"kptv-browser/work/logger"
	"kptv-browser/work/metrics"
	"kptv-browser/work/types"
)

var (
	// ErrNoResults is returned by the first NextSlice over an empty view.
	ErrNoResults = errors.New("filtered view has no results")

	// ErrBusy is returned when NextSlice is invoked while another call is still
	// rendering. The call is dropped, not queued.
	ErrBusy = errors.New("a page is already being rendered")
)

// Renderer receives the slices revealed by the cursor.
type Renderer interface {
	ClearList()
	RenderSlice(entries []types.Entry)
	ShowEmptyState(kind types.EmptyState)
}

// Cursor reveals a filtered view page by page. The items rendered so far are
// always the prefix [0, (nextPage-1)*pageSize) of the view, so a slice is
// never skipped or rendered twice.
type Cursor struct {
	pageSize int
	renderer Renderer

	// busy drops re-entrant scroll-driven loads, mu serializes every advance
	busy atomic.Bool
	mu   sync.Mutex

	view     *catalog.View
	nextPage int
}

// New creates a cursor over an empty view. A non-positive pageSize falls back to 20.
func New(pageSize int, renderer Renderer) *Cursor {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Cursor{
		pageSize: pageSize,
		renderer: renderer,
		view:     catalog.NewView(nil),
		nextPage: 1,
	}
}

// PageSize returns the fixed page size.
func (c *Cursor) PageSize() int {
	return c.pageSize
}

// Reset points the cursor at page 1 of view and clears the rendered list.
func (c *Cursor) Reset(view *catalog.View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked(view)
}

// Park clears the list and leaves the cursor exhausted over an empty view.
// NextSlice then renders nothing and shows no empty state, so a loading or
// load-error message stays up until the next Reset or Restart.
func (c *Cursor) Park() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked(nil)
	c.nextPage = 2
}

func (c *Cursor) resetLocked(view *catalog.View) {
	if view == nil {
		view = catalog.NewView(nil)
	}
	c.view = view
	c.nextPage = 1
	c.renderer.ClearList()

	logger.Debug("{pager - Reset} cursor reset over %d entries (group=%q order=%s search=%q)",
		view.Len(), view.Group, view.Order, view.Search)
}

// Restart resets the cursor onto view and renders its first page in one step.
// It waits for an in-flight load instead of being dropped.
func (c *Cursor) Restart(view *catalog.View) ([]types.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked(view)
	return c.advance()
}

// NextSlice renders and returns the next page of the view. It returns nil with
// a nil error once the view is exhausted, ErrNoResults on the first call over
// an empty view and ErrBusy while another NextSlice is in flight.
func (c *Cursor) NextSlice() ([]types.Entry, error) {
	if !c.busy.CompareAndSwap(false, true) {
		logger.Debug("{pager - NextSlice} load already in flight, dropping")
		return nil, ErrBusy
	}
	defer c.busy.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advance()
}

func (c *Cursor) advance() ([]types.Entry, error) {
	n := c.view.Len()
	if n == 0 {
		if c.nextPage == 1 {
			c.nextPage++
			c.renderer.ShowEmptyState(types.EmptyNoResults)
			return nil, ErrNoResults
		}
		return nil, nil
	}

	lo := (c.nextPage - 1) * c.pageSize
	if lo >= n {
		return nil, nil
	}

	slice := c.view.Slice(lo, lo+c.pageSize)
	c.renderer.RenderSlice(slice)
	c.nextPage++
	metrics.PagesRendered.Inc()

	return slice, nil
}

func (c *Cursor) rendered() int {
	return min((c.nextPage-1)*c.pageSize, c.view.Len())
}

// RenderedCount is how many entries of the view have been revealed.
func (c *Cursor) RenderedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rendered()
}

// Rendered reports whether ref lies inside the revealed prefix of the view.
func (c *Cursor) Rendered(ref types.Ref) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.view.Position(ref)
	return ok && pos < c.rendered()
}

// EnsureRendered advances page by page until ref is revealed or the view is
// exhausted, and reports whether ref ended up rendered. Unlike NextSlice it
// waits for an in-flight load instead of being dropped.
func (c *Cursor) EnsureRendered(ref types.Ref) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, ok := c.view.Position(ref)
	if !ok {
		return false
	}
	for c.rendered() <= pos {
		slice, err := c.advance()
		if err != nil || len(slice) == 0 {
			break
		}
	}
	return pos < c.rendered()
}

// Next returns the entry after ref in the current view, wrapping around.
func (c *Cursor) Next(ref types.Ref) (types.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.Next(ref)
}

// View returns the view the cursor currently pages through.
func (c *Cursor) View() *catalog.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}
