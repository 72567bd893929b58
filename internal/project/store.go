package project

import (
	"context"

	"github.com/studiolapse/studiolapse-agent/internal/kvstore"
)

// Store loads and saves the ordered project list.
type Store interface {
	Load(ctx context.Context) ([]Project, error)
	Save(ctx context.Context, projects []Project) error
}

type KVStore struct {
	kv kvstore.Store
}

func NewKVStore(kv kvstore.Store) *KVStore {
	return &KVStore{kv: kv}
}

func (s *KVStore) Load(ctx context.Context) ([]Project, error) {
	var projects []Project
	if _, err := kvstore.GetJSON(ctx, s.kv, kvstore.KeyProjects, &projects); err != nil {
		return nil, err
	}
	for i := range projects {
		if projects[i].Clips == nil {
			projects[i].Clips = []Clip{}
		}
	}
	return projects, nil
}

func (s *KVStore) Save(ctx context.Context, projects []Project) error {
	if projects == nil {
		projects = []Project{}
	}
	return kvstore.SetJSON(ctx, s.kv, kvstore.KeyProjects, projects)
}
