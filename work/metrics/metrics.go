package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PlaylistFetches counts playlist source fetches. The "result" label is one of
// ok, cached or failed.
var PlaylistFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kptv_browser_playlist_fetches_total",
	Help: "Playlist source fetches by result",
}, []string{"source", "result"})

// CatalogChannels is the size of the current catalog after deduplication.
var CatalogChannels = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "kptv_browser_catalog_channels",
	Help: "Channels in the current catalog",
})

// CatalogLoads counts catalog loads; "status" is ready or unavailable.
var CatalogLoads = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kptv_browser_catalog_loads_total",
	Help: "Catalog loads by resulting status",
}, []string{"status"})

// PlaybackStarts counts play requests by stream format (adaptive or direct).
var PlaybackStarts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kptv_browser_playback_starts_total",
	Help: "Playback starts by stream format",
}, []string{"format"})

// PlaybackUnsupported counts adaptive streams that could not start because
// adaptive playback is unavailable.
var PlaybackUnsupported = promauto.NewCounter(prometheus.CounterOpts{
	Name: "kptv_browser_playback_unsupported_total",
	Help: "Adaptive playback attempts without adaptive support",
})

// AdaptiveHandles is the number of live adaptive handles. It never exceeds one.
var AdaptiveHandles = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "kptv_browser_adaptive_handles",
	Help: "Adaptive stream handles currently alive",
})

// FavoriteToggles counts favorite toggles; "action" is added or removed.
var FavoriteToggles = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kptv_browser_favorite_toggles_total",
	Help: "Favorite toggles by action",
}, []string{"action"})

// PagesRendered counts slices handed to the presentation layer.
var PagesRendered = promauto.NewCounter(prometheus.CounterOpts{
	Name: "kptv_browser_pages_rendered_total",
	Help: "Pages of the filtered view rendered",
})
