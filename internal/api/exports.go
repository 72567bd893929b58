package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/studiolapse/studiolapse-agent/internal/export"
	"github.com/studiolapse/studiolapse-agent/internal/project"
)

// prepareExportHandler snapshots a project into the pending slot. Without a
// project_id the selected project is used.
func prepareExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req PrepareExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		projectID := req.ProjectID
		if projectID == "" && cfg.Selection != nil {
			selected, err := cfg.Selection.Reconcile(ctx)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
				return
			}
			projectID = selected
		}
		if projectID == "" {
			WriteError(w, http.StatusBadRequest, "no project selected", "BAD_REQUEST")
			return
		}

		p, err := cfg.Projects.Get(ctx, projectID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		job, err := cfg.Executor.Prepare(ctx, p, req.TargetDurationSec)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, JobToResponse(job))
	}
}

func getPendingExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, found, err := cfg.Pending.Load(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if !found {
			writeDomainError(w, export.ErrNoPendingJob)
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func dismissExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Executor.Dismiss(r.Context()); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// runExportHandler starts the pending job in the background and answers
// immediately. Progress is read from /status and /exports/last.
func runExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, found, _ := cfg.Pending.Load(r.Context()); !found {
			writeDomainError(w, export.ErrNoPendingJob)
			return
		}

		report, err := cfg.Executor.Start(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, RunExportResponse{RunID: report.RunID, State: string(report.State)})
	}
}

func lastExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := cfg.Executor.LastReport(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if report == nil {
			WriteError(w, http.StatusNotFound, "no export has run yet", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, report)
	}
}

func listRunsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		runs, err := cfg.Runs.ListRuns(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
			return
		}

		resp := RunsResponse{Runs: make([]RunResponse, len(runs))}
		for i, run := range runs {
			resp.Runs[i] = RunToResponse(run)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// playbackClipHandler streams a clip that belongs to the given project.
// Arbitrary paths are never served.
func playbackClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.URL.Query().Get("project")
		uri := r.URL.Query().Get("uri")
		if projectID == "" || uri == "" {
			WriteError(w, http.StatusBadRequest, "project and uri are required", "BAD_REQUEST")
			return
		}

		p, err := cfg.Projects.Get(r.Context(), projectID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		member := false
		for _, c := range p.Clips {
			if c.URI == uri {
				member = true
				break
			}
		}
		if !member {
			writeDomainError(w, project.ErrClipNotFound)
			return
		}

		if err := cfg.Playback.ServeFile(w, r, export.LocalPath(uri)); err != nil {
			cfg.Logger.Error("playback error", "error", err, "project_id", projectID)
		}
	}
}

func playbackExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID := chi.URLParam(r, "runID")

		run, err := cfg.Runs.GetRun(r.Context(), runID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if run == nil {
			WriteError(w, http.StatusNotFound, "run not found", "NOT_FOUND")
			return
		}
		if run.Status != export.StateSucceeded || run.OutputPath == "" {
			WriteError(w, http.StatusNotFound, "run has no output", "NOT_FOUND")
			return
		}

		if err := cfg.Playback.ServeFile(w, r, run.OutputPath); err != nil {
			cfg.Logger.Error("playback error", "error", err, "run_id", runID)
		}
	}
}
