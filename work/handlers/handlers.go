package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kptv-browser/work/browser"
	"kptv-browser/work/catalog"
	"kptv-browser/work/fetcher"
	"kptv-browser/work/logger"
	"kptv-browser/work/middleware"
	"kptv-browser/work/pager"
	"kptv-browser/work/presenter"
	"kptv-browser/work/session"
	"kptv-browser/work/types"
)

// SourceLister reports the last fetch outcome of every playlist source.
type SourceLister interface {
	Statuses() []fetcher.Status
}

// StateResponse is the polled presentation state plus diagnostics.
type StateResponse struct {
	Status browser.Status     `json:"status"`
	View   presenter.Snapshot `json:"view"`
}

// SetupRoutes registers the presentation API on router.
func SetupRoutes(router *mux.Router, app *browser.App, view *presenter.Presenter, sources SourceLister) {
	cors := middleware.CORS
	gz := middleware.GzipMiddleware

	router.HandleFunc("/api/state", cors(gz(HandleState(app, view)))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/groups", cors(gz(HandleGroups(app)))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/controls", cors(HandleControls(app))).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/more", cors(HandleMore(app))).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/channels/{ref}/select", cors(HandleSelect(app))).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/ended", cors(HandleEnded(app))).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/quality/{level}", cors(HandleQuality(app))).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/stop", cors(HandleStop(app))).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/view", cors(HandleGetView(app))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/view", cors(HandleSetView(app))).Methods("PUT", "OPTIONS")
	router.HandleFunc("/api/reload", cors(HandleReload(app))).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/sources", cors(gz(HandleSources(sources)))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/logs", cors(gz(HandleGetLogs))).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/logs", cors(HandleClearLogs)).Methods("DELETE", "OPTIONS")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("{handlers - writeJSON} failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HandleState serves the presentation snapshot. With ?since=<version> it
// answers 304 when nothing changed after that version. Only the presenter's
// version is compared, so every catalog, cursor and session transition must
// reach the presenter through one of its callbacks.
func HandleState(app *browser.App, view *presenter.Presenter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := view.Snapshot()

		if since := r.URL.Query().Get("since"); since != "" {
			v, err := strconv.ParseUint(since, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid since")
				return
			}
			if v >= snap.Version {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}

		writeJSON(w, http.StatusOK, StateResponse{Status: app.Status(), View: snap})
	}
}

func HandleGroups(app *browser.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, app.Groups())
	}
}

// HandleControls applies new search, group and sort inputs.
func HandleControls(app *browser.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c browser.Controls
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		app.ApplyControls(c)
		writeJSON(w, http.StatusOK, app.Controls())
	}
}

// HandleMore is the scroll-proximity signal. A duplicate arriving while a page
// is rendering gets 409 and is dropped.
func HandleMore(app *browser.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slice, err := app.ScrollNearEnd()
		switch {
		case errors.Is(err, pager.ErrBusy):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, pager.ErrNoResults):
			writeJSON(w, http.StatusOK, map[string]any{"rendered": 0, "noResults": true})
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, map[string]any{"rendered": len(slice), "exhausted": len(slice) == 0})
		}
	}
}

// HandleSelect selects a rendered entry. heldMs is how long the selection
// was held; a long hold toggles the favorite instead of playing.
func HandleSelect(app *browser.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ref := types.Ref(mux.Vars(r)["ref"])

		var held time.Duration
		if raw := r.URL.Query().Get("heldMs"); raw != "" {
			ms, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || ms < 0 {
				writeError(w, http.StatusBadRequest, "invalid heldMs")
				return
			}
			held = time.Duration(ms) * time.Millisecond
		}

		err := app.Select(ref, held)
		switch {
		case errors.Is(err, browser.ErrUnknownRef):
			writeError(w, http.StatusNotFound, "channel not found")
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
		}
	}
}

func HandleEnded(app *browser.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app.StreamEnded()
		writeJSON(w, http.StatusOK, app.Status().Session)
	}
}

// HandleQuality pins a rendition; level -1 returns to automatic selection.
func HandleQuality(app *browser.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level, err := strconv.Atoi(mux.Vars(r)["level"])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid level")
			return
		}

		err = app.SelectQuality(level)
		switch {
		case errors.Is(err, session.ErrNoAdaptiveHandle):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, session.ErrUnknownLevel):
			writeError(w, http.StatusBadRequest, err.Error())
		case err != nil:
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, map[string]int{"level": level})
		}
	}
}

func HandleStop(app *browser.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app.Stop()
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func HandleGetView(app *browser.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]types.ViewMode{"mode": app.ViewMode()})
	}
}

// HandleSetView stores the list/grid preference.
func HandleSetView(app *browser.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		if request.Mode != string(types.ViewList) && request.Mode != string(types.ViewGrid) {
			writeError(w, http.StatusBadRequest, "mode must be list or grid")
			return
		}

		if err := app.SetViewMode(types.ViewMode(request.Mode)); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]types.ViewMode{"mode": app.ViewMode()})
	}
}

// HandleReload starts a reload of every source in the background.
func HandleReload(app *browser.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		go func() {
			if err := app.Reload(context.Background()); err != nil && !errors.Is(err, catalog.ErrCatalogUnavailable) {
				logger.Error("{handlers - HandleReload} reload failed: %v", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "reload_started"})
	}
}

func HandleSources(sources SourceLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sources.Statuses())
	}
}

// HandleGetLogs serves the recently captured log lines.
func HandleGetLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, logger.Recent())
}

// HandleClearLogs drops the captured log lines.
func HandleClearLogs(w http.ResponseWriter, r *http.Request) {
	logger.ClearRecent()
	logger.Info("{handlers - HandleClearLogs} log entries cleared")
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
