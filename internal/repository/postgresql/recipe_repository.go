package postgresql

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecipeRepository is the thin slice of the collaborator recipe store this
// core touches: creating the extracted recipe row and looking one up by its
// canonical source key.
type RecipeRepository struct {
	pool *pgxpool.Pool
}

func NewRecipeRepository(pool *pgxpool.Pool) *RecipeRepository {
	return &RecipeRepository{pool: pool}
}

func (r *RecipeRepository) CreateRecipe(ctx context.Context, sourceKey, title string, content []byte) (uuid.UUID, error) {
	const q = `
INSERT INTO recipes (id, source_key, title, content)
VALUES ($1, $2, $3, $4)
ON CONFLICT (source_key) DO UPDATE SET source_key = EXCLUDED.source_key
RETURNING id;
`
	// The ON CONFLICT no-op update makes RETURNING yield the existing row's
	// id when two jobs for the same source race to completion.
	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, q, uuid.New(), sourceKey, title, content).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *RecipeRepository) FindBySourceKey(ctx context.Context, sourceKey string) (uuid.UUID, error) {
	const q = `SELECT id FROM recipes WHERE source_key = $1;`

	var id uuid.UUID
	if err := r.pool.QueryRow(ctx, q, sourceKey).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}
