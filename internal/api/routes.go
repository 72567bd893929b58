package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/studiolapse/studiolapse-agent/internal/export"
	"github.com/studiolapse/studiolapse-agent/internal/project"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.KV, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/projects", listProjectsHandler(cfg))
		r.Post("/projects", createProjectHandler(cfg))
		r.Get("/projects/{id}", getProjectHandler(cfg))
		r.Patch("/projects/{id}", renameProjectHandler(cfg))
		r.Delete("/projects/{id}", deleteProjectHandler(cfg))
		r.Post("/projects/{id}/move", moveProjectHandler(cfg))
		r.Get("/projects/{id}/clips", listClipsHandler(cfg))
		r.Post("/projects/{id}/clips", addClipHandler(cfg))
		r.Delete("/projects/{id}/clips", deleteClipHandler(cfg))

		r.Get("/selection", getSelectionHandler(cfg))
		r.Put("/selection", setSelectionHandler(cfg))
		r.Delete("/selection", clearSelectionHandler(cfg))

		r.Post("/exports", prepareExportHandler(cfg))
		r.Get("/exports/pending", getPendingExportHandler(cfg))
		r.Delete("/exports/pending", dismissExportHandler(cfg))
		r.Post("/exports/run", runExportHandler(cfg))
		r.Get("/exports/last", lastExportHandler(cfg))
		r.Get("/exports/runs", listRunsHandler(cfg))

		r.Group(func(r chi.Router) {
			r.Use(LoopbackGuard())
			r.Get("/playback/clip", playbackClipHandler(cfg))
			r.Head("/playback/clip", playbackClipHandler(cfg))
			r.Get("/playback/export/{runID}", playbackExportHandler(cfg))
			r.Head("/playback/export/{runID}", playbackExportHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		projects, _ := cfg.Projects.List(ctx)
		resp := StatusResponse{
			State:         string(export.StateIdle),
			ProjectsCount: len(projects),
		}

		if cfg.Selection != nil {
			resp.SelectedProjectID, _ = cfg.Selection.Reconcile(ctx)
		}
		if cfg.Pending != nil {
			_, resp.PendingExport, _ = cfg.Pending.Load(ctx)
		}
		if cfg.Executor != nil {
			state, report := cfg.Executor.Current()
			resp.State = string(state)
			if state.Busy() {
				resp.ActiveRunID = report.RunID
			}
			if state == export.StateFailed {
				resp.LastError = report.Diagnostic
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

// writeDomainError maps service and export errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, project.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, project.ErrClipNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, export.ErrNoPendingJob):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, project.ErrEmptyURI),
		errors.Is(err, export.ErrNoClips),
		errors.Is(err, export.ErrInvalidDuration):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.Is(err, project.ErrDuplicateClip):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case errors.Is(err, export.ErrBusy):
		WriteError(w, http.StatusConflict, err.Error(), "BUSY")
	case errors.Is(err, export.ErrPermissionDenied):
		WriteError(w, http.StatusForbidden, err.Error(), "PERMISSION_DENIED")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func idParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "project id required", "BAD_REQUEST")
		return "", false
	}
	return id, true
}
