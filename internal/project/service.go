package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

type ProjectService interface {
	Create(ctx context.Context, name string) (*Project, error)
	List(ctx context.Context) ([]Project, error)
	Get(ctx context.Context, id string) (*Project, error)
	Rename(ctx context.Context, id, name string) (*Project, error)
	Delete(ctx context.Context, id string) error
	Move(ctx context.Context, id string, position int) ([]Project, error)
	AddClip(ctx context.Context, id, uri string) (*Clip, error)
	DeleteClip(ctx context.Context, id, uri string) error
}

// Service serializes every read-modify-write of the project list so
// concurrent API and CLI callers never lose an update.
type Service struct {
	mu        sync.Mutex
	store     Store
	selection *Selection
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(store Store, selection *Selection, logger *slog.Logger) *Service {
	return &Service{store: store, selection: selection, logger: logger, now: time.Now}
}

func (s *Service) Create(ctx context.Context, name string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}

	now := s.now()
	p := Project{
		ID:        nextID(projects, now),
		Name:      normalizeName(name),
		CreatedAt: now,
		Clips:     []Clip{},
	}
	projects = slices.Insert(projects, 0, p)

	if err := s.store.Save(ctx, projects); err != nil {
		return nil, fmt.Errorf("save projects: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("project created", "project_id", p.ID, "name", p.Name)
	}
	return &p, nil
}

func (s *Service) List(ctx context.Context) ([]Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects, err := s.store.Load(ctx)
	if err != nil {
		// Read-only callers see an empty list rather than an error.
		if s.logger != nil {
			s.logger.Error("failed to load projects", "error", err)
		}
		return []Project{}, nil
	}
	if projects == nil {
		projects = []Project{}
	}
	return projects, nil
}

// Get returns the project with its clips in display order (newest first).
func (s *Service) Get(ctx context.Context, id string) (*Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	i := indexOf(projects, id)
	if i < 0 {
		return nil, ErrNotFound
	}
	p := projects[i]
	p.Clips = p.DisplayClips()
	return &p, nil
}

func (s *Service) Rename(ctx context.Context, id, name string) (*Project, error) {
	var renamed Project
	err := s.update(ctx, func(projects []Project) ([]Project, error) {
		i := indexOf(projects, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		projects[i].Name = normalizeName(name)
		renamed = projects[i]
		return projects, nil
	})
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("project renamed", "project_id", id, "name", renamed.Name)
	}
	return &renamed, nil
}

// Delete removes the project and clears the selection if it pointed at it.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.update(ctx, func(projects []Project) ([]Project, error) {
		i := indexOf(projects, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		return slices.Delete(projects, i, i+1), nil
	})
	if err != nil {
		return err
	}

	if s.selection != nil {
		current, err := s.selection.Current(ctx)
		if err != nil {
			return err
		}
		if current == id {
			if err := s.selection.Set(ctx, ""); err != nil {
				return err
			}
		}
	}

	if s.logger != nil {
		s.logger.Info("project deleted", "project_id", id)
	}
	return nil
}

// Move places the project at position in the list, clamped to its bounds.
// Clip order inside projects is untouched.
func (s *Service) Move(ctx context.Context, id string, position int) ([]Project, error) {
	var reordered []Project
	err := s.update(ctx, func(projects []Project) ([]Project, error) {
		i := indexOf(projects, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		p := projects[i]
		projects = slices.Delete(projects, i, i+1)
		if position < 0 {
			position = 0
		}
		if position > len(projects) {
			position = len(projects)
		}
		projects = slices.Insert(projects, position, p)
		reordered = projects
		return projects, nil
	})
	if err != nil {
		return nil, err
	}
	return reordered, nil
}

func (s *Service) AddClip(ctx context.Context, id, uri string) (*Clip, error) {
	if uri == "" {
		return nil, ErrEmptyURI
	}

	clip := Clip{URI: uri, CreatedAt: s.now()}
	err := s.update(ctx, func(projects []Project) ([]Project, error) {
		i := indexOf(projects, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		if projects[i].clipIndex(uri) >= 0 {
			return nil, ErrDuplicateClip
		}
		projects[i].Clips = slices.Insert(projects[i].Clips, 0, clip)
		return projects, nil
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("clip added", "project_id", id)
	}
	return &clip, nil
}

func (s *Service) DeleteClip(ctx context.Context, id, uri string) error {
	err := s.update(ctx, func(projects []Project) ([]Project, error) {
		i := indexOf(projects, id)
		if i < 0 {
			return nil, ErrNotFound
		}
		j := projects[i].clipIndex(uri)
		if j < 0 {
			return nil, ErrClipNotFound
		}
		projects[i].Clips = slices.Delete(projects[i].Clips, j, j+1)
		return projects, nil
	})
	if err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("clip deleted", "project_id", id)
	}
	return nil
}

// Exists reports whether a project with id is stored.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) update(ctx context.Context, fn func([]Project) ([]Project, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	projects, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load projects: %w", err)
	}
	projects, err = fn(projects)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, projects); err != nil {
		return fmt.Errorf("save projects: %w", err)
	}
	return nil
}

func indexOf(projects []Project, id string) int {
	return slices.IndexFunc(projects, func(p Project) bool { return p.ID == id })
}

// nextID derives the id from the creation time in unix milliseconds,
// bumped past any existing id so two creations in the same millisecond
// still get distinct, increasing ids.
func nextID(projects []Project, now time.Time) string {
	id := now.UnixMilli()
	for _, p := range projects {
		if n, err := strconv.ParseInt(p.ID, 10, 64); err == nil && n >= id {
			id = n + 1
		}
	}
	return strconv.FormatInt(id, 10)
}
