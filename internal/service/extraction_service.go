package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"recipe-extraction-service/internal/entity"
)

var (
	// ErrTooManySources is returned when a submission carries more than
	// entity.MaxSourceURLs URLs. No job is created.
	ErrTooManySources = errors.New("too many source urls")

	// ErrInvalidSource is returned when the submitted source shape does not
	// match its declared source type.
	ErrInvalidSource = errors.New("invalid source")
)

// Port to the job row store (implementation: postgresql.JobRepository).
type JobRepository interface {
	Create(ctx context.Context, job *entity.ExtractionJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error)
	Cancel(ctx context.Context, id uuid.UUID) error
}

// Small queue port for handing accepted jobs to the worker process.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string, priority int) error
}

type ExtractionService struct {
	repo  JobRepository
	queue JobQueue
	log   zerolog.Logger
}

func NewExtractionService(repo JobRepository, queue JobQueue, log zerolog.Logger) *ExtractionService {
	return &ExtractionService{repo: repo, queue: queue, log: log}
}

type SubmitRequest struct {
	SourceType entity.SourceType
	SourceURLs []string
	PasteText  *string
	MediaRef   *string
}

func (r SubmitRequest) validate() error {
	if !r.SourceType.Valid() {
		return fmt.Errorf("%w: unknown source type %q", ErrInvalidSource, r.SourceType)
	}
	if len(r.SourceURLs) > entity.MaxSourceURLs {
		return ErrTooManySources
	}
	if r.SourceType.IsURLBased() {
		if len(r.SourceURLs) == 0 {
			return fmt.Errorf("%w: %s source needs at least one url", ErrInvalidSource, r.SourceType)
		}
		return nil
	}
	// Non-URL sources never carry URLs.
	if len(r.SourceURLs) > 0 {
		return fmt.Errorf("%w: %s source must not carry urls", ErrInvalidSource, r.SourceType)
	}
	switch r.SourceType {
	case entity.SourcePaste:
		if r.PasteText == nil || *r.PasteText == "" {
			return fmt.Errorf("%w: paste source needs text", ErrInvalidSource)
		}
	case entity.SourcePhoto, entity.SourceVoice:
		if r.MediaRef == nil || *r.MediaRef == "" {
			return fmt.Errorf("%w: %s source needs a media reference", ErrInvalidSource, r.SourceType)
		}
	}
	return nil
}

// lane maps a source type to a queue priority. Photo and voice submissions
// come from an interactive capture flow, so they jump the line.
func lane(st entity.SourceType) int {
	switch st {
	case entity.SourcePhoto, entity.SourceVoice:
		return 2
	case entity.SourcePaste:
		return 0
	default:
		return 1
	}
}

// SubmitJob validates the source, persists a pending job and enqueues it.
// Validation failures reject the submission before any row is written.
func (s *ExtractionService) SubmitJob(ctx context.Context, req SubmitRequest) (uuid.UUID, error) {
	if err := req.validate(); err != nil {
		return uuid.Nil, err
	}

	job := &entity.ExtractionJob{
		ID:         uuid.New(),
		SourceType: req.SourceType,
		SourceURLs: req.SourceURLs,
		PasteText:  req.PasteText,
		MediaRef:   req.MediaRef,
		Status:     entity.StatusPending,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return uuid.Nil, err
	}

	if err := s.queue.Enqueue(ctx, job.ID.String(), lane(req.SourceType)); err != nil {
		return uuid.Nil, err
	}

	s.log.Info().
		Str("job_id", job.ID.String()).
		Str("source_type", string(req.SourceType)).
		Int("source_urls", len(req.SourceURLs)).
		Msg("job submitted")
	return job.ID, nil
}

func (s *ExtractionService) GetJob(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error) {
	return s.repo.GetByID(ctx, id)
}

// CancelJob is user-initiated and legal from pending or processing only.
// Cancelling an already-terminal job fails with the repository's
// ErrInvalidTransition and leaves the job untouched.
func (s *ExtractionService) CancelJob(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Cancel(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("job_id", id.String()).Msg("job cancelled")
	return nil
}
