package api

import (
	"time"

	"github.com/studiolapse/studiolapse-agent/internal/export"
	"github.com/studiolapse/studiolapse-agent/internal/project"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State             string `json:"state"`
	LastError         string `json:"last_error,omitempty"`
	ProjectsCount     int    `json:"projects_count"`
	SelectedProjectID string `json:"selected_project_id,omitempty"`
	PendingExport     bool   `json:"pending_export"`
	ActiveRunID       string `json:"active_run_id,omitempty"`
}

type CreateProjectRequest struct {
	Name string `json:"name"`
}

type RenameProjectRequest struct {
	Name string `json:"name"`
}

type MoveProjectRequest struct {
	Position int `json:"position"`
}

type ClipResponse struct {
	URI       string `json:"uri"`
	CreatedAt string `json:"created_at"`
}

type ProjectResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	CreatedAt string         `json:"created_at"`
	ClipCount int            `json:"clip_count"`
	Clips     []ClipResponse `json:"clips,omitempty"`
}

type ProjectsResponse struct {
	Projects []ProjectResponse `json:"projects"`
}

type ClipsResponse struct {
	Clips []ClipResponse `json:"clips"`
}

type AddClipRequest struct {
	URI string `json:"uri"`
}

type SelectionRequest struct {
	ProjectID string `json:"project_id"`
}

type SelectionResponse struct {
	ProjectID string `json:"project_id"`
}

type PrepareExportRequest struct {
	ProjectID         string `json:"project_id"`
	TargetDurationSec int    `json:"target_duration_sec"`
}

type PendingExportResponse struct {
	ProjectID         string   `json:"project_id"`
	ProjectName       string   `json:"project_name"`
	TargetDurationSec int      `json:"target_duration_sec"`
	ClipURIs          []string `json:"clip_uris"`
	CreatedAt         string   `json:"created_at"`
}

type RunExportResponse struct {
	RunID string `json:"run_id"`
	State string `json:"state"`
}

type RunResponse struct {
	ID                string  `json:"id"`
	ProjectID         string  `json:"project_id"`
	ProjectName       string  `json:"project_name"`
	TargetDurationSec int     `json:"target_duration_sec"`
	ClipCount         int     `json:"clip_count"`
	SpeedFactor       float64 `json:"speed_factor"`
	Status            string  `json:"status"`
	OutputPath        string  `json:"output_path,omitempty"`
	Error             string  `json:"error,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

type RunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func ProjectToResponse(p *project.Project, withClips bool) ProjectResponse {
	resp := ProjectResponse{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
		ClipCount: len(p.Clips),
	}
	if withClips {
		resp.Clips = ClipsToResponse(p.Clips)
	}
	return resp
}

func ClipsToResponse(clips []project.Clip) []ClipResponse {
	resp := make([]ClipResponse, len(clips))
	for i, c := range clips {
		resp[i] = ClipResponse{URI: c.URI, CreatedAt: c.CreatedAt.Format(time.RFC3339)}
	}
	return resp
}

func JobToResponse(j *export.Job) PendingExportResponse {
	return PendingExportResponse{
		ProjectID:         j.ProjectID,
		ProjectName:       j.ProjectName,
		TargetDurationSec: j.TargetDurationSec,
		ClipURIs:          j.ClipURIs,
		CreatedAt:         j.CreatedAt.Format(time.RFC3339),
	}
}

func RunToResponse(r *export.RunRecord) RunResponse {
	return RunResponse{
		ID:                r.ID,
		ProjectID:         r.ProjectID,
		ProjectName:       r.ProjectName,
		TargetDurationSec: r.TargetDurationSec,
		ClipCount:         r.ClipCount,
		SpeedFactor:       r.SpeedFactor,
		Status:            string(r.Status),
		OutputPath:        r.OutputPath,
		Error:             r.Error,
		CreatedAt:         r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         r.UpdatedAt.Format(time.RFC3339),
	}
}
