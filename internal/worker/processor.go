package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"recipe-extraction-service/internal/entity"
	"recipe-extraction-service/internal/repository/postgresql"
	"recipe-extraction-service/internal/service"
	"recipe-extraction-service/internal/sourceurl"
)

type JobRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	SetRouting(ctx context.Context, id uuid.UUID, ct entity.ContentType, method entity.ExtractionMethod) error
	Complete(ctx context.Context, id uuid.UUID) error
	CompleteDuplicate(ctx context.Context, id, recipeID uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, to entity.JobStatus, reason *entity.FailureReason) error
}

type RecipeStore interface {
	CreateRecipe(ctx context.Context, sourceKey, title string, content []byte) (uuid.UUID, error)
}

type Deduplicator interface {
	FindDuplicate(ctx context.Context, sourceKey string) (uuid.UUID, bool, error)
}

type ReliabilityTracker interface {
	RecordOutcome(ctx context.Context, domain string, success bool, reason entity.FailureReason) error
	ShouldRequireClientDownload(ctx context.Context, domain string) (bool, error)
}

type Ledger interface {
	Append(ctx context.Context, e *entity.ExtractionCostEntry) error
	AppendAudit(ctx context.Context, e *entity.ExtractionCostEntry) error
}

// CompletionHook runs after a successful completed transition for a newly
// extracted recipe (slug generation and other side data at the collaborator).
// An explicit post-commit call, not a database trigger, so causality stays
// visible.
type CompletionHook func(ctx context.Context, jobID, recipeID uuid.UUID)

// socialPlatforms are the domains whose reliability record is consulted
// before a server-side fetch is attempted.
var socialPlatforms = map[string]bool{
	"youtube.com":   true,
	"tiktok.com":    true,
	"instagram.com": true,
	"facebook.com":  true,
}

// Processor drives one claimed job through the extraction pipeline:
// duplicate short-circuit, platform-policy routing, the AI call, cost
// accounting and the terminal transition.
type Processor struct {
	jobs    JobRepo
	recipes RecipeStore
	dedup   Deduplicator
	tracker ReliabilityTracker
	ledger  Ledger
	gateway AIGateway
	hook    CompletionHook
	log     zerolog.Logger
}

func NewProcessor(
	jobs JobRepo,
	recipes RecipeStore,
	dedup Deduplicator,
	tracker ReliabilityTracker,
	ledger Ledger,
	gateway AIGateway,
	log zerolog.Logger,
) *Processor {
	return &Processor{
		jobs:    jobs,
		recipes: recipes,
		dedup:   dedup,
		tracker: tracker,
		ledger:  ledger,
		gateway: gateway,
		log:     log,
	}
}

// SetCompletionHook registers the post-commit hook. Optional.
func (p *Processor) SetCompletionHook(h CompletionHook) { p.hook = h }

// Process runs the pipeline for one claimed job id. A nil return means the
// claim may be acked: the job reached a terminal state or was already
// handled elsewhere.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	id, err := uuid.Parse(jobID)
	if err != nil {
		p.log.Error().Str("job_id", jobID).Err(err).Msg("unparseable job id claimed")
		return err
	}
	log := p.log.With().Str("job_id", id.String()).Logger()

	job, err := p.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != entity.StatusPending {
		// Cancelled before claim, or a stale requeue of a finished job.
		log.Debug().Str("status", string(job.Status)).Msg("skipping non-pending job")
		return nil
	}

	var domain, sourceKey string
	if job.SourceType.IsURLBased() {
		domain, sourceKey, err = sourceurl.Normalize(job.PrimarySourceURL())
		if err != nil {
			reason := entity.ReasonUnknown
			_ = p.jobs.Fail(ctx, id, entity.StatusFailed, &reason)
			log.Warn().Str("url", job.PrimarySourceURL()).Msg("malformed source url")
			return nil
		}

		// Duplicate short-circuit: checked before processing and before any
		// platform-policy routing, so a hit costs no AI call at all.
		if recipeID, ok, derr := p.dedup.FindDuplicate(ctx, sourceKey); derr != nil {
			return derr
		} else if ok {
			if cerr := p.jobs.CompleteDuplicate(ctx, id, recipeID); cerr != nil {
				if errors.Is(cerr, postgresql.ErrInvalidTransition) {
					return nil // cancelled underneath us
				}
				return cerr
			}
			log.Info().Str("recipe_id", recipeID.String()).Msg("duplicate source, short-circuited")
			return nil
		}
	}

	if err := p.jobs.MarkProcessing(ctx, id); err != nil {
		if errors.Is(err, postgresql.ErrInvalidTransition) {
			return nil // cancelled between claim and start
		}
		return err
	}

	result, extractErr := p.extract(ctx, log, job, id, domain)
	if extractErr != nil {
		var stop *shortCircuit
		if errors.As(extractErr, &stop) {
			return nil
		}
		p.finishFailure(ctx, log, id, domain, extractErr)
		return nil
	}

	p.recordCost(ctx, log, id, result)

	if !result.IsRecipe {
		// A legitimate terminal outcome, not an error: the platform served
		// the content fine, it just was not a recipe.
		_ = p.jobs.Fail(ctx, id, entity.StatusNotARecipe, nil)
		p.recordPlatform(ctx, log, domain, true, "")
		log.Info().Msg("content classified as not a recipe")
		return nil
	}

	if sourceKey == "" {
		// Non-URL sources have no canonical identity to deduplicate on;
		// key the recipe to the job instead.
		sourceKey = fmt.Sprintf("%s:%s", job.SourceType, id)
	}
	recipeID, err := p.recipes.CreateRecipe(ctx, sourceKey, result.Title, result.Content)
	if err != nil {
		reason := entity.ReasonUnknown
		_ = p.jobs.Fail(ctx, id, entity.StatusFailed, &reason)
		log.Error().Err(err).Msg("recipe create failed")
		return err
	}

	if err := p.jobs.Complete(ctx, id); err != nil {
		if errors.Is(err, postgresql.ErrInvalidTransition) {
			// Cancelled while the AI call was in flight: the recipe row and
			// the audit cost entry stay, the terminal status stays cancelled.
			log.Info().Msg("job cancelled before completion could commit")
			return nil
		}
		return err
	}

	p.recordPlatform(ctx, log, domain, true, "")
	if p.hook != nil {
		p.hook(ctx, id, recipeID)
	}
	log.Info().Str("recipe_id", recipeID.String()).Msg("extraction completed")
	return nil
}

// shortCircuit marks pipeline exits that already moved the job to a
// terminal state (e.g. website_blocked routing).
type shortCircuit struct{ status entity.JobStatus }

func (s *shortCircuit) Error() string { return "short-circuited to " + string(s.status) }

// extract classifies the content, commits a routing decision and performs
// the single AI call for it.
func (p *Processor) extract(ctx context.Context, log zerolog.Logger, job *entity.ExtractionJob, id uuid.UUID, domain string) (*ExtractionResult, error) {
	switch job.SourceType {
	case entity.SourceVoice:
		return p.gateway.TranscribeAudio(ctx, *job.MediaRef)
	case entity.SourcePaste:
		return p.gateway.ParseText(ctx, *job.PasteText)
	case entity.SourcePhoto:
		if err := p.jobs.SetRouting(ctx, id, entity.ContentImagePost, entity.MethodOCR); err != nil {
			return nil, err
		}
		return p.gateway.RunOCR(ctx, *job.MediaRef)
	}

	// URL-based: classify, consult platform policy, route.
	ct := classifyContent(job, domain)
	source := job.PrimarySourceURL()

	if socialPlatforms[domain] {
		required, err := p.tracker.ShouldRequireClientDownload(ctx, domain)
		if err != nil {
			return nil, err
		}
		if required {
			if job.MediaRef == nil {
				// No client path available: do not even attempt the fetch.
				reason := entity.ReasonBlocked
				_ = p.jobs.Fail(ctx, id, entity.StatusWebsiteBlocked, &reason)
				log.Info().Str("domain", domain).Msg("platform requires client download, no client media")
				return nil, &shortCircuit{status: entity.StatusWebsiteBlocked}
			}
			// Client already uploaded the media; extract from that instead
			// of a server-side fetch.
			source = *job.MediaRef
			log.Debug().Str("domain", domain).Msg("routing to client-provided media")
		}
	}

	method := methodFor(ct)
	if err := p.jobs.SetRouting(ctx, id, ct, method); err != nil {
		return nil, err
	}

	switch method {
	case entity.MethodVideoExtractor:
		return p.gateway.TranscribeVideo(ctx, source)
	case entity.MethodSlideshowExtractor:
		return p.gateway.ExtractSlideshow(ctx, job.SourceURLs)
	case entity.MethodVisionAPI:
		return p.gateway.AnalyzeImage(ctx, source)
	case entity.MethodOCR:
		return p.gateway.RunOCR(ctx, source)
	default:
		return p.gateway.ScrapeWebpage(ctx, source)
	}
}

// classifyContent is a deterministic heuristic over the source shape.
func classifyContent(job *entity.ExtractionJob, domain string) entity.ContentType {
	if job.SourceType == entity.SourceVideo {
		return entity.ContentVideo
	}
	if socialPlatforms[domain] {
		if len(job.SourceURLs) > 1 {
			return entity.ContentSlideshow
		}
		// Instagram photo posts carry /p/ in the path; everything else on
		// a social platform is assumed to be video.
		if domain == "instagram.com" && strings.Contains(job.PrimarySourceURL(), "/p/") {
			return entity.ContentImagePost
		}
		return entity.ContentVideo
	}
	if domain != "" {
		return entity.ContentWebpage
	}
	return entity.ContentUnknown
}

func methodFor(ct entity.ContentType) entity.ExtractionMethod {
	switch ct {
	case entity.ContentVideo:
		return entity.MethodVideoExtractor
	case entity.ContentSlideshow:
		return entity.MethodSlideshowExtractor
	case entity.ContentImagePost:
		return entity.MethodVisionAPI
	default:
		return entity.MethodWebpageScrape
	}
}

// finishFailure classifies the extraction error, feeds the platform tracker
// and moves the job to its failure terminal.
func (p *Processor) finishFailure(ctx context.Context, log zerolog.Logger, id uuid.UUID, domain string, extractErr error) {
	reason := ClassifyFailure(extractErr)
	p.recordPlatform(ctx, log, domain, false, reason)

	terminal := entity.StatusFailed
	if reason == entity.ReasonBlocked || reason == entity.ReasonAuthRequired {
		terminal = entity.StatusWebsiteBlocked
	}
	_ = p.jobs.Fail(ctx, id, terminal, &reason)

	log.Warn().
		Str("reason", string(reason)).
		Str("terminal", string(terminal)).
		Err(extractErr).
		Msg("extraction failed")
}

// recordCost appends the AI call's usage to the ledger. If the job was
// cancelled while the call was in flight, the spend is still kept on the
// audit path; the cancellation itself is untouched.
func (p *Processor) recordCost(ctx context.Context, log zerolog.Logger, id uuid.UUID, r *ExtractionResult) {
	entry := &entity.ExtractionCostEntry{
		JobID:           id,
		ServiceProvider: r.Provider,
		ServiceType:     r.ServiceType,
		ModelName:       r.Model,
		InputTokens:     r.Usage.InputTokens,
		OutputTokens:    r.Usage.OutputTokens,
		AudioSeconds:    r.Usage.AudioSeconds,
		ImagesProcessed: r.Usage.ImagesProcessed,
		EstimatedCost:   r.CostUSD,
		ProcessingMs:    r.LatencyMs,
	}
	err := p.ledger.Append(ctx, entry)
	if err == nil {
		return
	}
	if errors.Is(err, service.ErrJobCancelled) {
		if auditErr := p.ledger.AppendAudit(ctx, entry); auditErr != nil {
			log.Error().Err(auditErr).Msg("audit cost entry failed")
		}
		return
	}
	log.Error().Err(err).Msg("cost entry failed")
}

func (p *Processor) recordPlatform(ctx context.Context, log zerolog.Logger, domain string, success bool, reason entity.FailureReason) {
	if domain == "" {
		return
	}
	if err := p.tracker.RecordOutcome(ctx, domain, success, reason); err != nil {
		log.Error().Str("domain", domain).Err(err).Msg("platform outcome not recorded")
	}
}
