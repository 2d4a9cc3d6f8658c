package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"recipe-extraction-service/internal/entity"
)

var (
	// ErrInvalidEntry rejects cost entries with negative usage or cost.
	ErrInvalidEntry = errors.New("invalid cost entry")

	// ErrJobCancelled rejects regular appends once the owning job has been
	// cancelled.
	ErrJobCancelled = errors.New("job cancelled")
)

type CostRepository interface {
	Append(ctx context.Context, e *entity.ExtractionCostEntry) error
	TotalCost(ctx context.Context, jobID uuid.UUID) (decimal.Decimal, error)
	CostByService(ctx context.Context, jobID uuid.UUID) ([]entity.ServiceCost, error)
}

// Narrow job read port, used only to check the owning job's status.
type JobReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error)
}

// CostLedger is the append-only accumulator of AI service spend. Entries
// are recorded verbatim (the cost formula lives with the caller) and are
// never mutated; a correction is a compensating entry.
type CostLedger struct {
	costs CostRepository
	jobs  JobReader
}

func NewCostLedger(costs CostRepository, jobs JobReader) *CostLedger {
	return &CostLedger{costs: costs, jobs: jobs}
}

func validateEntry(e *entity.ExtractionCostEntry) error {
	if e.JobID == uuid.Nil {
		return fmt.Errorf("%w: missing job id", ErrInvalidEntry)
	}
	if e.InputTokens < 0 || e.OutputTokens < 0 || e.AudioSeconds < 0 || e.ImagesProcessed < 0 {
		return fmt.Errorf("%w: negative usage", ErrInvalidEntry)
	}
	if e.ProcessingMs < 0 {
		return fmt.Errorf("%w: negative processing time", ErrInvalidEntry)
	}
	if e.EstimatedCost.IsNegative() {
		return fmt.Errorf("%w: negative cost", ErrInvalidEntry)
	}
	return nil
}

// Append validates and records one entry. Appends for a cancelled job fail
// with ErrJobCancelled; the worker uses that as its cancellation signal
// between pipeline stages.
func (l *CostLedger) Append(ctx context.Context, e *entity.ExtractionCostEntry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	job, err := l.jobs.GetByID(ctx, e.JobID)
	if err != nil {
		return err
	}
	if job.Status == entity.StatusCancelled {
		return ErrJobCancelled
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return l.costs.Append(ctx, e)
}

// AppendAudit records usage for an AI call whose result arrived after the
// job was cancelled. The spend happened, so it is kept for accounting; the
// job's terminal status is never touched by this path.
func (l *CostLedger) AppendAudit(ctx context.Context, e *entity.ExtractionCostEntry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return l.costs.Append(ctx, e)
}

type CostSummary struct {
	TotalCostUSD decimal.Decimal      `json:"total_cost_usd"`
	PerService   []entity.ServiceCost `json:"per_service"`
}

// Summary totals the spend for a job. Used for benchmarking, not billing.
func (l *CostLedger) Summary(ctx context.Context, jobID uuid.UUID) (*CostSummary, error) {
	if _, err := l.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}
	total, err := l.costs.TotalCost(ctx, jobID)
	if err != nil {
		return nil, err
	}
	perService, err := l.costs.CostByService(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &CostSummary{TotalCostUSD: total, PerService: perService}, nil
}
