package capture

import (
	"context"

	"github.com/google/uuid"
)

// Store is durable local storage for captured items, keyed by race.
type Store interface {
	Save(ctx context.Context, item Item) error
	List(ctx context.Context, raceID uuid.UUID) ([]Item, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
