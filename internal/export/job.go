// Package export turns a project's clips into a single sped-up, watermarked
// timelapse by driving the external media tool.
package export

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slices"

	"github.com/studiolapse/studiolapse-agent/internal/medialib"
	"github.com/studiolapse/studiolapse-agent/internal/project"
)

// AllowedDurations is the menu of target output lengths in seconds.
var AllowedDurations = []int{20, 30, 45, 60}

var (
	ErrNoClips          = errors.New("project has no clips to export")
	ErrInvalidDuration  = errors.New("target duration is not an allowed value")
	ErrNoPendingJob     = errors.New("no pending export")
	ErrBusy             = errors.New("an export is already running")
	ErrPermissionDenied = medialib.ErrPermissionDenied
)

// Job is a snapshot of a project taken when export is requested. ClipURIs
// are oldest-first, the order they are concatenated in.
type Job struct {
	ProjectID         string    `json:"projectId"`
	ProjectName       string    `json:"projectName"`
	TargetDurationSec int       `json:"targetDurationSec"`
	ClipURIs          []string  `json:"clipUris"`
	CreatedAt         time.Time `json:"createdAt"`
}

func NewJob(p *project.Project, targetSec int) (Job, error) {
	if !slices.Contains(AllowedDurations, targetSec) {
		return Job{}, fmt.Errorf("%w: %d (allowed %v)", ErrInvalidDuration, targetSec, AllowedDurations)
	}
	if p == nil || len(p.Clips) == 0 {
		return Job{}, ErrNoClips
	}

	clips := p.ChronologicalClips()
	uris := make([]string, 0, len(clips))
	for _, c := range clips {
		uris = append(uris, c.URI)
	}

	return Job{
		ProjectID:         p.ID,
		ProjectName:       p.Name,
		TargetDurationSec: targetSec,
		ClipURIs:          uris,
		CreatedAt:         time.Now(),
	}, nil
}

func (j Job) validate() error {
	if len(j.ClipURIs) == 0 {
		return ErrNoClips
	}
	if !slices.Contains(AllowedDurations, j.TargetDurationSec) {
		return fmt.Errorf("%w: %d", ErrInvalidDuration, j.TargetDurationSec)
	}
	return nil
}
