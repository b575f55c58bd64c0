package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"

	"kptv-browser/work/browser"
	"kptv-browser/work/cache"
	"kptv-browser/work/catalog"
	"kptv-browser/work/client"
	"kptv-browser/work/config"
	"kptv-browser/work/database"
	"kptv-browser/work/fetcher"
	"kptv-browser/work/filter"
	"kptv-browser/work/handlers"
	"kptv-browser/work/hls"
	"kptv-browser/work/logger"
	"kptv-browser/work/pager"
	"kptv-browser/work/presenter"
	"kptv-browser/work/session"
)

var (
	Version = "v0.1.0" // default version
)

// our main app worker
func main() {

	// load our config
	cfg := config.LoadConfig()
	if cfg.Debug {
		logger.SetLogLevel("DEBUG")
	} else {
		logger.SetLogLevel(cfg.LogLevel)
	}

	// favorites and the view preference live here
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("{main} failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize worker pool
	workerPool, err := ants.NewPool(cfg.WorkerThreads, ants.WithPreAlloc(true))
	if err != nil {
		logger.Error("{main} failed to create worker pool: %v", err)
		os.Exit(1)
	}
	defer workerPool.Release()

	// manifest loads get their own pool so playlist fetches never starve playback
	manifestPool, err := ants.NewPool(cfg.WorkerThreads, ants.WithNonblocking(true))
	if err != nil {
		logger.Error("{main} failed to create manifest pool: %v", err)
		os.Exit(1)
	}
	defer manifestPool.Release()

	httpClient := client.NewHeaderSettingClient()
	playlistCache := cache.NewPlaylistCache(cfg.CacheEnabled, cfg.CacheDuration)
	playlistFetcher := fetcher.New(cfg, httpClient, workerPool, playlistCache)

	filters := filter.NewFilterManager()
	store := catalog.NewStore(db, catalog.Options{
		Dedupe:  cfg.Dedupe,
		Locale:  cfg.Locale,
		Filters: filters,
	})

	view := presenter.New(cfg.PlaceholderLogo)
	cursor := pager.New(cfg.PageSize, view)
	adaptive := hls.NewFactory(cfg, httpClient, manifestPool)
	sess := session.New(session.FromHLS(adaptive), view, view, cursor)
	app := browser.New(cfg, store, playlistFetcher, cursor, sess, view, db)

	// Initial load
	go func() {
		if err := app.Start(context.Background()); err != nil {
			logger.Warn("{main} initial load: %v", err)
		}
	}()

	// Setup HTTP routes
	router := mux.NewRouter()
	handlers.SetupRoutes(router, app, view, playlistFetcher)

	// show info
	logger.Info("Starting KPTV Browser %s", Version)
	logger.Info("Server configuration:")
	logger.Info("  - Listen Address: %s", cfg.ListenAddr)
	logger.Info("  - Worker Threads: %d", cfg.WorkerThreads)
	logger.Info("  - Sources: %d", len(cfg.Sources))
	logger.Info("  - Page Size: %d", cfg.PageSize)
	logger.Info("  - Long Press: %s", cfg.LongPressThreshold)
	logger.Info("  - Dedupe: %v", cfg.Dedupe)
	logger.Info("  - Locale: %s", cfg.Locale)
	logger.Info("  - Adaptive Playback: %v", adaptive.Supported())
	logger.Info("  - Cache Enabled: %v", cfg.CacheEnabled)
	logger.Info("  - Cache Duration: %s", cfg.CacheDuration)
	logger.Info("  - Log Level: %s", logger.GetLogLevel())
	logger.Info("  - URL Obfuscation: %v", cfg.ObfuscateUrls)

	// SIGHUP drops cached playlists and compiled filters, then reloads every source
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			logger.Info("{main} reload requested")
			playlistFetcher.ClearCache()
			filters.ClearFilters()
			if err := app.Reload(context.Background()); err != nil {
				logger.Warn("{main} reload: %v", err)
				continue
			}
			logger.Info("{main} reload completed - %d channels", app.Status().Channels)
		}
	}()

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("{main} shutting down")
		app.Stop()
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("{main} shutdown: %v", err)
		}
	}()

	// fire us up
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("{main} server failed to start: %v", err)
		os.Exit(1)
	}
}
