package postgresql

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"recipe-extraction-service/internal/entity"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition means the job exists but its current status does
	// not permit the requested change. The job row is left untouched.
	ErrInvalidTransition = errors.New("invalid status transition")
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.ExtractionJob) error {
	const q = `
INSERT INTO extraction_jobs (id, source_type, source_urls, paste_text, media_ref, status)
VALUES ($1, $2, $3, $4, $5, 'pending');
`
	_, err := r.pool.Exec(ctx, q,
		job.ID, string(job.SourceType), job.SourceURLs, job.PasteText, job.MediaRef)
	return err
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error) {
	const q = `
SELECT id, source_type, source_urls, paste_text, media_ref,
       content_type, extraction_method, status, failure_reason,
       existing_recipe_id, created_at, updated_at
FROM extraction_jobs
WHERE id = $1;
`
	var (
		job        entity.ExtractionJob
		sourceType string
		status     string
		ctText     *string
		emText     *string
		frText     *string
	)

	if err := r.pool.QueryRow(ctx, q, id).Scan(
		&job.ID,
		&sourceType,
		&job.SourceURLs,
		&job.PasteText,
		&job.MediaRef,
		&ctText,
		&emText,
		&status,
		&frText,
		&job.ExistingRecipeID,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	job.SourceType = entity.SourceType(sourceType)
	job.Status = entity.JobStatus(status)
	if ctText != nil {
		ct := entity.ContentType(*ctText)
		job.ContentType = &ct
	}
	if emText != nil {
		em := entity.ExtractionMethod(*emText)
		job.ExtractionMethod = &em
	}
	if frText != nil {
		fr := entity.FailureReason(*frText)
		job.FailureReason = &fr
	}
	return &job, nil
}

// transition applies a guarded status change. The WHERE clause is the
// linearization point: the row update is atomic, so of two concurrent
// writers exactly one sees a matching source status and wins.
func (r *JobRepository) transition(ctx context.Context, id uuid.UUID, to entity.JobStatus, set string, args ...any) error {
	from := entity.TransitionSources(to)
	fromText := make([]string, len(from))
	for i, s := range from {
		fromText[i] = string(s)
	}

	q := `UPDATE extraction_jobs SET status=$2, updated_at=now()` + set +
		` WHERE id=$1 AND status = ANY($3);`

	allArgs := append([]any{id, string(to), fromText}, args...)
	tag, err := r.pool.Exec(ctx, q, allArgs...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Lost to a concurrent transition, already terminal, or missing.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrInvalidTransition
	}
	return nil
}

func (r *JobRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, entity.StatusProcessing, "")
}

// SetRouting records the classified content type and the committed
// extraction method. Only legal while the job is still processing.
func (r *JobRepository) SetRouting(ctx context.Context, id uuid.UUID, ct entity.ContentType, method entity.ExtractionMethod) error {
	const q = `
UPDATE extraction_jobs
SET content_type=$2, extraction_method=$3, updated_at=now()
WHERE id=$1 AND status='processing';
`
	tag, err := r.pool.Exec(ctx, q, id, string(ct), string(method))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrInvalidTransition
	}
	return nil
}

func (r *JobRepository) Complete(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, entity.StatusCompleted, "")
}

// CompleteDuplicate is the duplicate short-circuit: the job jumps straight
// to completed with a reference to the previously extracted recipe.
func (r *JobRepository) CompleteDuplicate(ctx context.Context, id, recipeID uuid.UUID) error {
	return r.transition(ctx, id, entity.StatusCompleted, ", existing_recipe_id=$4", recipeID)
}

// Fail moves the job to one of the failure terminals (failed,
// website_blocked, not_a_recipe) with an optional classified reason.
func (r *JobRepository) Fail(ctx context.Context, id uuid.UUID, to entity.JobStatus, reason *entity.FailureReason) error {
	if to != entity.StatusFailed && to != entity.StatusWebsiteBlocked && to != entity.StatusNotARecipe {
		return ErrInvalidTransition
	}
	var reasonText *string
	if reason != nil {
		s := string(*reason)
		reasonText = &s
	}
	return r.transition(ctx, id, to, ", failure_reason=$4", reasonText)
}

func (r *JobRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, entity.StatusCancelled, "")
}
