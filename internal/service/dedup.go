package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"recipe-extraction-service/internal/repository/postgresql"
)

// Port to the collaborator recipe store, narrowed to the one lookup the
// detector needs.
type RecipeFinder interface {
	FindBySourceKey(ctx context.Context, sourceKey string) (uuid.UUID, error)
}

// DuplicateDetector short-circuits extraction when the canonical source key
// was already successfully processed. Plain equality lookup: the caller has
// already normalized the key, and a conservative key means a miss costs a
// redundant extraction while a hit is always safe to link.
type DuplicateDetector struct {
	recipes RecipeFinder
}

func NewDuplicateDetector(recipes RecipeFinder) *DuplicateDetector {
	return &DuplicateDetector{recipes: recipes}
}

// FindDuplicate returns the prior recipe id for the key, if any.
func (d *DuplicateDetector) FindDuplicate(ctx context.Context, sourceKey string) (uuid.UUID, bool, error) {
	if sourceKey == "" {
		return uuid.Nil, false, nil
	}
	id, err := d.recipes.FindBySourceKey(ctx, sourceKey)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	return id, true, nil
}
