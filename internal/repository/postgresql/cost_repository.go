package postgresql

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"recipe-extraction-service/internal/entity"
)

type CostRepository struct {
	pool *pgxpool.Pool
}

func NewCostRepository(pool *pgxpool.Pool) *CostRepository {
	return &CostRepository{pool: pool}
}

// Append inserts one cost entry. Rows are never updated or deleted here;
// a correction is a new compensating entry.
func (r *CostRepository) Append(ctx context.Context, e *entity.ExtractionCostEntry) error {
	const q = `
INSERT INTO extraction_costs
  (id, job_id, service_provider, service_type, model_name,
   input_tokens, output_tokens, audio_seconds, images_processed,
   estimated_cost_usd, processing_time_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`
	_, err := r.pool.Exec(ctx, q,
		e.ID, e.JobID, e.ServiceProvider, string(e.ServiceType), e.ModelName,
		e.InputTokens, e.OutputTokens, e.AudioSeconds, e.ImagesProcessed,
		e.EstimatedCost, e.ProcessingMs)
	return err
}

func (r *CostRepository) TotalCost(ctx context.Context, jobID uuid.UUID) (decimal.Decimal, error) {
	const q = `
SELECT COALESCE(SUM(estimated_cost_usd), 0)
FROM extraction_costs
WHERE job_id = $1;
`
	var total decimal.Decimal
	if err := r.pool.QueryRow(ctx, q, jobID).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *CostRepository) CostByService(ctx context.Context, jobID uuid.UUID) ([]entity.ServiceCost, error) {
	const q = `
SELECT service_type, COUNT(*), COALESCE(SUM(estimated_cost_usd), 0)
FROM extraction_costs
WHERE job_id = $1
GROUP BY service_type
ORDER BY service_type;
`
	rows, err := r.pool.Query(ctx, q, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.ServiceCost
	for rows.Next() {
		var (
			sc  entity.ServiceCost
			typ string
		)
		if err := rows.Scan(&typ, &sc.Calls, &sc.CostUSD); err != nil {
			return nil, err
		}
		sc.ServiceType = entity.ServiceType(typ)
		out = append(out, sc)
	}
	return out, rows.Err()
}
