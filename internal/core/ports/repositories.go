package ports

import (
	"context"

	"github.com/tbuseth/maquette/internal/core/domain"
)

// DioramaRepository holds the descriptive state of dioramas. The engine
// keeps this in process memory; the port exists so handlers and services
// stay testable and a durable backend could be swapped in behind it.
// Lookups return (nil, nil) when the ID is unknown.
type DioramaRepository interface {
	Create(ctx context.Context, d *domain.Diorama) error
	GetByID(ctx context.Context, id string) (*domain.Diorama, error)
	List(ctx context.Context) ([]domain.Diorama, error)
	Update(ctx context.Context, d *domain.Diorama) error
	Delete(ctx context.Context, id string) error
}
