package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"recipe-extraction-service/internal/entity"
)

type PlatformRepository struct {
	pool *pgxpool.Pool
}

func NewPlatformRepository(pool *pgxpool.Pool) *PlatformRepository {
	return &PlatformRepository{pool: pool}
}

func (r *PlatformRepository) Get(ctx context.Context, domain string) (*entity.PlatformStatus, error) {
	const q = `
SELECT platform_domain, requires_client_download, failure_count,
       failure_reason, last_failure_at, last_success_at
FROM platform_status
WHERE platform_domain = $1;
`
	ps, err := scanPlatform(r.pool.QueryRow(ctx, q, domain))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ps, nil
}

// Update runs fn against the domain's record under a row lock, creating the
// record lazily on first touch. The SELECT ... FOR UPDATE serializes
// concurrent writers for the same domain, so read-modify-write of
// failure_count cannot lose updates.
func (r *PlatformRepository) Update(ctx context.Context, domain string, fn func(*entity.PlatformStatus)) (*entity.PlatformStatus, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const ensure = `
INSERT INTO platform_status (platform_domain)
VALUES ($1)
ON CONFLICT (platform_domain) DO NOTHING;
`
	if _, err := tx.Exec(ctx, ensure, domain); err != nil {
		return nil, err
	}

	const sel = `
SELECT platform_domain, requires_client_download, failure_count,
       failure_reason, last_failure_at, last_success_at
FROM platform_status
WHERE platform_domain = $1
FOR UPDATE;
`
	ps, err := scanPlatform(tx.QueryRow(ctx, sel, domain))
	if err != nil {
		return nil, err
	}

	fn(ps)

	const upd = `
UPDATE platform_status
SET requires_client_download=$2, failure_count=$3, failure_reason=$4,
    last_failure_at=$5, last_success_at=$6
WHERE platform_domain=$1;
`
	var reasonText *string
	if ps.FailureReason != nil {
		s := string(*ps.FailureReason)
		reasonText = &s
	}
	if _, err := tx.Exec(ctx, upd,
		ps.PlatformDomain,
		ps.RequiresClientDownload,
		ps.FailureCount,
		reasonText,
		ps.LastFailureAt,
		ps.LastSuccessAt,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ps, nil
}

func scanPlatform(row pgx.Row) (*entity.PlatformStatus, error) {
	var (
		ps     entity.PlatformStatus
		reason *string
	)
	if err := row.Scan(
		&ps.PlatformDomain,
		&ps.RequiresClientDownload,
		&ps.FailureCount,
		&reason,
		&ps.LastFailureAt,
		&ps.LastSuccessAt,
	); err != nil {
		return nil, err
	}
	if reason != nil {
		fr := entity.FailureReason(*reason)
		ps.FailureReason = &fr
	}
	return &ps, nil
}
