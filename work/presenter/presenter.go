package presenter

import (
	"slices"
	"sync"
	"time"

	"kptv-browser/work/logger"
	"kptv-browser/work/types"
)

// Item is one rendered row of the channel list.
type Item struct {
	Ref    types.Ref `json:"ref"`
	Name   string    `json:"name"`
	Logo   string    `json:"logo"`
	Group  string    `json:"group"`
	Active bool      `json:"active"`
}

// NowPlaying describes what the output sink is bound to.
type NowPlaying struct {
	Format   types.StreamFormat `json:"format"`
	URL      string             `json:"url,omitempty"`
	HandleID string             `json:"handleId,omitempty"`
	Level    int                `json:"level"`
}

// Toast is the last notification shown to the user.
type Toast struct {
	Seq     uint64    `json:"seq"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Snapshot is the full presentation state served to the frontend. Version
// increases on every change so pollers can skip identical snapshots.
type Snapshot struct {
	Version     uint64                `json:"version"`
	Items       []Item                `json:"items"`
	ActiveRef   types.Ref             `json:"activeRef,omitempty"`
	EmptyState  types.EmptyState      `json:"emptyState,omitempty"`
	QualityMenu []types.QualityOption `json:"qualityMenu"`
	NowPlaying  NowPlaying            `json:"nowPlaying"`
	Toast       *Toast                `json:"toast,omitempty"`
	ViewMode    types.ViewMode        `json:"viewMode"`
}

// Presenter records every presentation callback and output-sink command as
// snapshot state. It holds no catalog or playback logic.
type Presenter struct {
	placeholderLogo string

	mu       sync.RWMutex
	version  uint64
	items    []Item
	active   types.Ref
	empty    types.EmptyState
	menu     []types.QualityOption
	playing  NowPlaying
	toast    *Toast
	toastSeq uint64
	viewMode types.ViewMode
}

// New creates a presenter. Entries without a logo are shown with placeholderLogo.
func New(placeholderLogo string) *Presenter {
	return &Presenter{
		placeholderLogo: placeholderLogo,
		playing:         NowPlaying{Level: types.AutoLevel},
		viewMode:        types.ViewList,
	}
}

func (p *Presenter) changed() {
	p.version++
}

// ClearList drops every rendered row and any empty-state message.
func (p *Presenter) ClearList() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = p.items[:0]
	p.empty = types.EmptyNone
	p.changed()
}

// RenderSlice appends a page of entries to the list.
func (p *Presenter) RenderSlice(entries []types.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		logo := e.Channel.LogoURL
		if logo == "" {
			logo = p.placeholderLogo
		}
		p.items = append(p.items, Item{
			Ref:   e.Ref,
			Name:  e.Channel.Name,
			Logo:  logo,
			Group: e.Channel.Group,
		})
	}
	p.empty = types.EmptyNone
	p.changed()
}

// ShowEmptyState replaces the list body with an empty-state message.
func (p *Presenter) ShowEmptyState(kind types.EmptyState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.empty = kind
	p.changed()
}

// HighlightActive marks ref as the playing row; an empty ref clears it.
func (p *Presenter) HighlightActive(ref types.Ref) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = ref
	p.changed()
}

// ShowQualityMenu replaces the quality menu; nil hides it.
func (p *Presenter) ShowQualityMenu(options []types.QualityOption) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.menu = slices.Clone(options)
	p.changed()
}

// Notify shows a toast.
func (p *Presenter) Notify(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toastSeq++
	p.toast = &Toast{Seq: p.toastSeq, Message: message, At: time.Now()}
	p.changed()
	logger.Debug("{presenter - Notify} %s", message)
}

// SetViewMode switches between list and grid presentation.
func (p *Presenter) SetViewMode(mode types.ViewMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.viewMode = types.ParseViewMode(string(mode))
	p.changed()
}

// AttachAdaptive binds the player to an adaptive stream handle.
func (p *Presenter) AttachAdaptive(handleID, manifestURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = NowPlaying{
		Format:   types.FormatAdaptive,
		URL:      manifestURL,
		HandleID: handleID,
		Level:    types.AutoLevel,
	}
	p.changed()
}

// PlayDirect binds the player straight to a media URL.
func (p *Presenter) PlayDirect(streamURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = NowPlaying{Format: types.FormatDirect, URL: streamURL, Level: types.AutoLevel}
	p.changed()
}

// SelectLevel records the rendition the player should use.
func (p *Presenter) SelectLevel(level int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing.Level = level
	p.changed()
}

// Detach unbinds the player.
func (p *Presenter) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = NowPlaying{Level: types.AutoLevel}
	p.changed()
}

// Snapshot returns a copy of the current presentation state.
func (p *Presenter) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	items := make([]Item, len(p.items))
	for i, it := range p.items {
		it.Active = p.active != "" && it.Ref == p.active
		items[i] = it
	}

	var toast *Toast
	if p.toast != nil {
		t := *p.toast
		toast = &t
	}

	menu := slices.Clone(p.menu)
	if menu == nil {
		menu = []types.QualityOption{}
	}

	return Snapshot{
		Version:     p.version,
		Items:       items,
		ActiveRef:   p.active,
		EmptyState:  p.empty,
		QualityMenu: menu,
		NowPlaying:  p.playing,
		Toast:       toast,
		ViewMode:    p.viewMode,
	}
}
