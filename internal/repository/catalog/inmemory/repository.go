package inmemory

import (
	"context"
	"fmt"
	"slices"

	"github.com/watch2earn/cinema-server/internal/repository/catalog"
)

type repo struct {
	entries map[string]catalog.Entry
	order   []string
}

func NewRepo(entries []catalog.Entry) (*repo, error) {
	r := &repo{
		entries: make(map[string]catalog.Entry, len(entries)),
		order:   make([]string, 0, len(entries)),
	}

	for _, e := range entries {
		if _, ok := r.entries[e.Id]; ok {
			return nil, fmt.Errorf("duplicate catalog entry %q", e.Id)
		}

		if len(e.SceneOptions) == 0 {
			e.SceneOptions = slices.Clone(catalog.DefaultSceneOptions)
		}

		r.entries[e.Id] = e
		r.order = append(r.order, e.Id)
	}

	return r, nil
}

func (r *repo) GetEntry(_ context.Context, id string) (catalog.Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return catalog.Entry{}, catalog.ErrEntryNotFound
	}

	e.SceneOptions = slices.Clone(e.SceneOptions)
	return e, nil
}

func (r *repo) ListEntries(_ context.Context) ([]catalog.Entry, error) {
	entries := make([]catalog.Entry, 0, len(r.order))
	for _, id := range r.order {
		e := r.entries[id]
		e.SceneOptions = slices.Clone(e.SceneOptions)
		entries = append(entries, e)
	}

	return entries, nil
}
