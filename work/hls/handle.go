package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"kptv-browser/work/client"
	"kptv-browser/work/config"
	"kptv-browser/work/logger"
	"kptv-browser/work/metrics"
	"kptv-browser/work/types"
	"kptv-browser/work/utils"
)

// maxManifestBytes bounds how much of a manifest response is read.
const maxManifestBytes = 4 << 20

var (
	ErrUnsupported     = errors.New("adaptive playback is not supported")
	ErrDestroyed       = errors.New("adaptive handle already destroyed")
	ErrLevelOutOfRange = errors.New("quality level out of range")
	ErrAlreadyStarted  = errors.New("adaptive handle already started")
)

// Sink is the output an adaptive handle drives.
type Sink interface {
	AttachAdaptive(handleID, manifestURL string)
	SelectLevel(level int)
}

// Factory acquires adaptive handles. Manifest loads run on pool, which must be
// created with ants.WithNonblocking: Start is called under the session lock and
// must never wait for a free worker.
type Factory struct {
	cfg        *config.Config
	httpClient *client.HeaderSettingClient
	pool       *ants.Pool
}

// NewFactory creates a handle factory. Adaptive playback is supported when the
// config enables it and an HTTP client is available.
func NewFactory(cfg *config.Config, httpClient *client.HeaderSettingClient, pool *ants.Pool) *Factory {
	return &Factory{cfg: cfg, httpClient: httpClient, pool: pool}
}

// Supported reports whether adaptive handles can be acquired.
func (f *Factory) Supported() bool {
	return f != nil && f.cfg != nil && f.cfg.AdaptiveEnabled && f.httpClient != nil
}

// New acquires a fresh handle.
func (f *Factory) New() (*Handle, error) {
	if !f.Supported() {
		return nil, ErrUnsupported
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		id:      uuid.NewString(),
		factory: f,
		ctx:     ctx,
		cancel:  cancel,
	}
	metrics.AdaptiveHandles.Inc()
	logger.Debug("{hls - New} acquired handle %s", h.id)
	return h, nil
}

// Handle owns one adaptive stream: its manifest load, its rendition list and
// its binding to the sink. Destroying it cancels the load and unbinds the sink.
type Handle struct {
	id      string
	factory *Factory
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	sink      Sink
	levels    []types.QualityLevel
	started   bool
	destroyed bool
}

// ID returns the handle's unique id.
func (h *Handle) ID() string {
	return h.id
}

// Start binds the handle to sink and loads manifestURL in the background.
// onParsed receives the quality levels once the manifest is parsed; it is not
// called when loading fails or the handle is destroyed first. A saturated pool
// fails the start with ants.ErrPoolOverload.
func (h *Handle) Start(manifestURL string, sink Sink, onParsed func([]types.QualityLevel)) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return ErrDestroyed
	}
	if h.started {
		h.mu.Unlock()
		return ErrAlreadyStarted
	}
	h.started = true
	h.sink = sink
	h.mu.Unlock()

	sink.AttachAdaptive(h.id, manifestURL)

	load := func() { h.load(manifestURL, onParsed) }
	if h.factory.pool == nil {
		go load()
		return nil
	}
	if err := h.factory.pool.Submit(load); err != nil {
		return fmt.Errorf("failed to schedule manifest load: %w", err)
	}
	return nil
}

func (h *Handle) load(manifestURL string, onParsed func([]types.QualityLevel)) {
	cfg := h.factory.cfg

	levels, err := h.fetchManifest(manifestURL)
	if err != nil {
		if h.ctx.Err() == nil {
			logger.Warn("{hls - load} handle %s: manifest %s: %v", h.id, utils.LogURL(cfg, manifestURL), err)
		}
		return
	}

	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		logger.Debug("{hls - load} handle %s destroyed before manifest parsed", h.id)
		return
	}
	h.levels = levels
	h.mu.Unlock()

	logger.Debug("{hls - load} handle %s: %d quality levels", h.id, len(levels))
	if onParsed != nil {
		onParsed(levels)
	}
}

func (h *Handle) fetchManifest(manifestURL string) ([]types.QualityLevel, error) {
	req, err := http.NewRequestWithContext(h.ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.factory.httpClient.Do(req, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return ParseManifest(io.LimitReader(resp.Body, maxManifestBytes), manifestURL)
}

// SetLevel pins rendition level, or returns to automatic switching with
// types.AutoLevel, and forwards the choice to the sink.
func (h *Handle) SetLevel(level int) error {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return ErrDestroyed
	}
	if level < types.AutoLevel || level >= len(h.levels) {
		h.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrLevelOutOfRange, level, len(h.levels))
	}
	sink := h.sink
	h.mu.Unlock()

	if sink != nil {
		sink.SelectLevel(level)
	}
	return nil
}

// Destroy cancels any manifest load in flight and releases the handle.
// Destroying twice is harmless.
func (h *Handle) Destroy() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.destroyed = true
	h.sink = nil
	h.mu.Unlock()

	h.cancel()
	metrics.AdaptiveHandles.Dec()
	logger.Debug("{hls - Destroy} released handle %s", h.id)
}
