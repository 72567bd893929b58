// Package project manages StudioLapse projects and their recorded clips.
// The full project list is persisted as a single JSON blob in the device
// key-value store.
package project

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/exp/slices"
)

const DefaultName = "Untitled"

var (
	ErrNotFound      = errors.New("project not found")
	ErrClipNotFound  = errors.New("clip not found")
	ErrEmptyURI      = errors.New("clip uri is required")
	ErrDuplicateClip = errors.New("clip already belongs to project")
)

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Clips     []Clip    `json:"clips"`
}

// Clip is one recorded video segment. URI is an opaque file reference
// produced by the capture device and is never rewritten.
type Clip struct {
	URI       string    `json:"uri"`
	CreatedAt time.Time `json:"createdAt"`
}

// DisplayClips returns the clips newest-first regardless of storage order.
func (p *Project) DisplayClips() []Clip {
	out := slices.Clone(p.Clips)
	slices.SortStableFunc(out, func(a, b Clip) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// ChronologicalClips returns the clips oldest-first, the order used for
// concatenation.
func (p *Project) ChronologicalClips() []Clip {
	out := slices.Clone(p.Clips)
	slices.SortStableFunc(out, func(a, b Clip) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

func (p *Project) clipIndex(uri string) int {
	return slices.IndexFunc(p.Clips, func(c Clip) bool { return c.URI == uri })
}

func normalizeName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return DefaultName
	}
	return trimmed
}
