package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"kptv-browser/work/hls"
	"kptv-browser/work/logger"
	"kptv-browser/work/metrics"
	"kptv-browser/work/types"
	"kptv-browser/work/utils"
)

var (
	ErrNoAdaptiveHandle = errors.New("no adaptive stream is playing")
	ErrUnknownLevel     = errors.New("quality level not offered")
)

// OutputSink is the media output the session binds streams to.
type OutputSink interface {
	hls.Sink
	PlayDirect(streamURL string)
	Detach()
}

// AdaptiveHandle is an owned adaptive-bitrate stream resource.
type AdaptiveHandle interface {
	ID() string
	Start(manifestURL string, sink hls.Sink, onParsed func([]types.QualityLevel)) error
	SetLevel(level int) error
	Destroy()
}

// HandleFactory acquires adaptive handles.
type HandleFactory interface {
	Supported() bool
	Acquire() (AdaptiveHandle, error)
}

// Display is the part of the presentation the session drives directly.
type Display interface {
	HighlightActive(ref types.Ref)
	ShowQualityMenu(options []types.QualityOption)
}

// Navigator resolves autoplay targets in the current filtered view and makes
// sure they are rendered before they play.
type Navigator interface {
	Next(ref types.Ref) (types.Entry, bool)
	EnsureRendered(ref types.Ref) bool
}

// State is a snapshot of the session.
type State struct {
	Active   bool                  `json:"active"`
	Entry    types.Entry           `json:"entry"`
	Format   types.StreamFormat    `json:"format"`
	HandleID string                `json:"handleId,omitempty"`
	Levels   []types.QualityLevel  `json:"levels,omitempty"`
	Menu     []types.QualityOption `json:"menu,omitempty"`
}

// Session owns the single active stream. Every transition goes through Play,
// which releases the current adaptive handle before acquiring the next, so at
// most one handle is ever alive.
type Session struct {
	factory   HandleFactory
	sink      OutputSink
	display   Display
	navigator Navigator

	mu     sync.Mutex
	active bool
	entry  types.Entry
	format types.StreamFormat
	handle AdaptiveHandle
	levels []types.QualityLevel
	menu   []types.QualityOption
}

// New creates an idle session.
func New(factory HandleFactory, sink OutputSink, display Display, navigator Navigator) *Session {
	return &Session{
		factory:   factory,
		sink:      sink,
		display:   display,
		navigator: navigator,
	}
}

// Play makes entry the active stream. A URL whose path ends in .m3u8 is
// played through a new adaptive handle and gets a quality menu once its
// manifest is parsed; anything else plays directly with no menu. When adaptive
// playback is unavailable nothing plays and the session stays idle.
func (s *Session) Play(entry types.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked()

	streamURL := entry.Channel.StreamURL
	if utils.URLPathHasSuffix(streamURL, ".m3u8") {
		s.playAdaptiveLocked(entry)
		return
	}

	s.sink.PlayDirect(streamURL)
	s.activateLocked(entry, types.FormatDirect, nil)
	s.setMenuLocked(nil)
	logger.Info("{session - Play} playing %q directly", entry.Channel.Name)
}

func (s *Session) playAdaptiveLocked(entry types.Entry) {
	streamURL := entry.Channel.StreamURL

	if s.factory == nil || !s.factory.Supported() {
		s.unsupportedLocked(entry, errors.New("adaptive playback disabled"))
		return
	}

	handle, err := s.factory.Acquire()
	if err != nil {
		s.unsupportedLocked(entry, err)
		return
	}

	s.activateLocked(entry, types.FormatAdaptive, handle)
	s.setMenuLocked(nil)

	if err := handle.Start(streamURL, s.sink, func(levels []types.QualityLevel) {
		s.onLevelsParsed(handle, levels)
	}); err != nil {
		logger.Error("{session - Play} failed to start adaptive stream %q: %v", entry.Channel.Name, err)
		s.releaseLocked()
		s.deactivateLocked()
		s.sink.Detach()
		return
	}

	logger.Info("{session - Play} playing %q adaptively (handle %s)", entry.Channel.Name, handle.ID())
}

func (s *Session) unsupportedLocked(entry types.Entry, err error) {
	metrics.PlaybackUnsupported.Inc()
	logger.Warn("{session - Play} adaptive playback unsupported, %q not started: %v", entry.Channel.Name, err)
	s.deactivateLocked()
	s.sink.Detach()
	s.setMenuLocked(nil)
}

func (s *Session) activateLocked(entry types.Entry, format types.StreamFormat, handle AdaptiveHandle) {
	s.active = true
	s.entry = entry
	s.format = format
	s.handle = handle
	s.levels = nil
	metrics.PlaybackStarts.WithLabelValues(string(format)).Inc()
	s.display.HighlightActive(entry.Ref)
}

func (s *Session) deactivateLocked() {
	if s.active {
		s.display.HighlightActive("")
	}
	s.active = false
	s.entry = types.Entry{}
	s.format = types.FormatNone
	s.levels = nil
}

// onLevelsParsed runs on the manifest loader. Levels of a handle that is no
// longer current are dropped.
func (s *Session) onLevelsParsed(handle AdaptiveHandle, levels []types.QualityLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil || s.handle.ID() != handle.ID() {
		logger.Debug("{session - onLevelsParsed} dropping levels of stale handle %s", handle.ID())
		return
	}

	s.levels = slices.Clone(levels)
	if len(levels) == 0 {
		// a media playlist offers no renditions to choose from
		s.setMenuLocked(nil)
		return
	}
	menu := make([]types.QualityOption, 0, len(levels)+1)
	menu = append(menu, types.QualityOption{Level: types.AutoLevel, Label: "Auto"})
	for _, l := range levels {
		menu = append(menu, types.QualityOption{Level: l.Index, Label: l.Label})
	}
	s.setMenuLocked(menu)
}

func (s *Session) setMenuLocked(menu []types.QualityOption) {
	s.menu = menu
	s.display.ShowQualityMenu(slices.Clone(menu))
}

// releaseLocked destroys the owned adaptive handle, if any.
func (s *Session) releaseLocked() {
	if s.handle == nil {
		return
	}
	logger.Debug("{session - release} releasing handle %s", s.handle.ID())
	s.handle.Destroy()
	s.handle = nil
}

// OnStreamEnded plays the entry after the active one in the current view,
// wrapping to the start. It does nothing when idle, when the view holds fewer
// than two entries or when the active entry is no longer in the view.
func (s *Session) OnStreamEnded() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	current := s.entry.Ref
	s.mu.Unlock()

	next, ok := s.navigator.Next(current)
	if !ok {
		logger.Debug("{session - OnStreamEnded} no next entry after %s", current)
		return
	}

	if !s.navigator.EnsureRendered(next.Ref) {
		logger.Debug("{session - OnStreamEnded} next entry %s could not be rendered", next.Ref)
	}
	s.Play(next)
}

// Stop releases any adaptive handle, detaches the sink and returns to idle.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasActive := s.active
	s.releaseLocked()
	s.deactivateLocked()
	s.sink.Detach()
	s.setMenuLocked(nil)

	if wasActive {
		logger.Info("{session - Stop} playback stopped")
	}
}

// SelectQuality pins a rendition of the active adaptive stream, or returns to
// automatic selection with types.AutoLevel.
func (s *Session) SelectQuality(level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return ErrNoAdaptiveHandle
	}
	if !slices.ContainsFunc(s.menu, func(o types.QualityOption) bool { return o.Level == level }) {
		return fmt.Errorf("%w: %d", ErrUnknownLevel, level)
	}
	return s.handle.SetLevel(level)
}

// Active returns the playing entry, if any.
func (s *Session) Active() (types.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry, s.active
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Active: s.active,
		Entry:  s.entry,
		Format: s.format,
		Levels: slices.Clone(s.levels),
		Menu:   slices.Clone(s.menu),
	}
	if s.handle != nil {
		st.HandleID = s.handle.ID()
	}
	return st
}
