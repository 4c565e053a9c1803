package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tbuseth/maquette/internal/core/domain"
)

// DioramaRepo implements ports.DioramaRepository in process memory.
// Dioramas are working state, not records: they die with the process, so
// a map behind a lock is the whole persistence story.
type DioramaRepo struct {
	mu    sync.RWMutex
	items map[string]domain.Diorama
}

func NewDioramaRepo() *DioramaRepo {
	return &DioramaRepo{items: make(map[string]domain.Diorama)}
}

func (r *DioramaRepo) Create(ctx context.Context, d *domain.Diorama) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[d.ID]; exists {
		return fmt.Errorf("diorama %s already exists", d.ID)
	}
	r.items[d.ID] = *d
	return nil
}

func (r *DioramaRepo) GetByID(ctx context.Context, id string) (*domain.Diorama, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *DioramaRepo) List(ctx context.Context) ([]domain.Diorama, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Diorama, 0, len(r.items))
	for _, d := range r.items {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *DioramaRepo) Update(ctx context.Context, d *domain.Diorama) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[d.ID]; !ok {
		return fmt.Errorf("diorama %s not found", d.ID)
	}
	r.items[d.ID] = *d
	return nil
}

func (r *DioramaRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}
