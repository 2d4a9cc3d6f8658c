package worker_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-extraction-service/internal/entity"
	"recipe-extraction-service/internal/repository/postgresql"
	"recipe-extraction-service/internal/service"
	"recipe-extraction-service/internal/worker"
)

// ---- fakes ----

type fakeJobs struct {
	jobs map[uuid.UUID]*entity.ExtractionJob
}

func newFakeJobs(job *entity.ExtractionJob) *fakeJobs {
	return &fakeJobs{jobs: map[uuid.UUID]*entity.ExtractionJob{job.ID: job}}
}

func (f *fakeJobs) GetByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) move(id uuid.UUID, to entity.JobStatus) error {
	j, ok := f.jobs[id]
	if !ok {
		return postgresql.ErrNotFound
	}
	if !entity.CanTransition(j.Status, to) {
		return postgresql.ErrInvalidTransition
	}
	j.Status = to
	return nil
}

func (f *fakeJobs) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return f.move(id, entity.StatusProcessing)
}

func (f *fakeJobs) SetRouting(ctx context.Context, id uuid.UUID, ct entity.ContentType, method entity.ExtractionMethod) error {
	j := f.jobs[id]
	if j.Status != entity.StatusProcessing {
		return postgresql.ErrInvalidTransition
	}
	j.ContentType = &ct
	j.ExtractionMethod = &method
	return nil
}

func (f *fakeJobs) Complete(ctx context.Context, id uuid.UUID) error {
	return f.move(id, entity.StatusCompleted)
}

func (f *fakeJobs) CompleteDuplicate(ctx context.Context, id, recipeID uuid.UUID) error {
	if err := f.move(id, entity.StatusCompleted); err != nil {
		return err
	}
	f.jobs[id].ExistingRecipeID = &recipeID
	return nil
}

func (f *fakeJobs) Fail(ctx context.Context, id uuid.UUID, to entity.JobStatus, reason *entity.FailureReason) error {
	if err := f.move(id, to); err != nil {
		return err
	}
	f.jobs[id].FailureReason = reason
	return nil
}

type fakeRecipes struct {
	createdKeys []string
	nextID      uuid.UUID
}

func (f *fakeRecipes) CreateRecipe(ctx context.Context, sourceKey, title string, content []byte) (uuid.UUID, error) {
	f.createdKeys = append(f.createdKeys, sourceKey)
	if f.nextID == uuid.Nil {
		f.nextID = uuid.New()
	}
	return f.nextID, nil
}

type fakeDedup struct {
	byKey map[string]uuid.UUID
}

func (f *fakeDedup) FindDuplicate(ctx context.Context, key string) (uuid.UUID, bool, error) {
	id, ok := f.byKey[key]
	return id, ok, nil
}

type outcome struct {
	domain  string
	success bool
	reason  entity.FailureReason
}

type fakeTracker struct {
	requires  map[string]bool
	consulted []string
	outcomes  []outcome
}

func (f *fakeTracker) RecordOutcome(ctx context.Context, domain string, success bool, reason entity.FailureReason) error {
	f.outcomes = append(f.outcomes, outcome{domain, success, reason})
	return nil
}

func (f *fakeTracker) ShouldRequireClientDownload(ctx context.Context, domain string) (bool, error) {
	f.consulted = append(f.consulted, domain)
	return f.requires[domain], nil
}

// fakeLedger mirrors the real ledger's cancellation behavior by consulting
// the job store on every regular append.
type fakeLedger struct {
	jobs    *fakeJobs
	entries []*entity.ExtractionCostEntry
	audited []*entity.ExtractionCostEntry
}

func (f *fakeLedger) Append(ctx context.Context, e *entity.ExtractionCostEntry) error {
	if f.jobs.jobs[e.JobID].Status == entity.StatusCancelled {
		return service.ErrJobCancelled
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeLedger) AppendAudit(ctx context.Context, e *entity.ExtractionCostEntry) error {
	f.audited = append(f.audited, e)
	return nil
}

type call struct {
	method string
	source string
}

type fakeGateway struct {
	calls  []call
	result *worker.ExtractionResult
	err    error
	// onCall runs before returning, e.g. to cancel the job mid-flight
	onCall func()
}

func (f *fakeGateway) respond(method, source string) (*worker.ExtractionResult, error) {
	f.calls = append(f.calls, call{method, source})
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return recipeResult(), nil
}

func (f *fakeGateway) TranscribeVideo(ctx context.Context, source string) (*worker.ExtractionResult, error) {
	return f.respond("video", source)
}

func (f *fakeGateway) ExtractSlideshow(ctx context.Context, urls []string) (*worker.ExtractionResult, error) {
	return f.respond("slideshow", urls[0])
}

func (f *fakeGateway) AnalyzeImage(ctx context.Context, source string) (*worker.ExtractionResult, error) {
	return f.respond("vision", source)
}

func (f *fakeGateway) RunOCR(ctx context.Context, source string) (*worker.ExtractionResult, error) {
	return f.respond("ocr", source)
}

func (f *fakeGateway) ScrapeWebpage(ctx context.Context, url string) (*worker.ExtractionResult, error) {
	return f.respond("scrape", url)
}

func (f *fakeGateway) TranscribeAudio(ctx context.Context, mediaRef string) (*worker.ExtractionResult, error) {
	return f.respond("audio", mediaRef)
}

func (f *fakeGateway) ParseText(ctx context.Context, text string) (*worker.ExtractionResult, error) {
	return f.respond("text", text)
}

func recipeResult() *worker.ExtractionResult {
	return &worker.ExtractionResult{
		IsRecipe:    true,
		Title:       "Weeknight Carbonara",
		Content:     json.RawMessage(`{"ingredients":["eggs","guanciale"]}`),
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		ServiceType: entity.ServiceTextExtraction,
		Usage:       worker.Usage{InputTokens: 900, OutputTokens: 300},
		CostUSD:     decimal.RequireFromString("0.004"),
		LatencyMs:   2100,
	}
}

type harness struct {
	jobs    *fakeJobs
	recipes *fakeRecipes
	dedup   *fakeDedup
	tracker *fakeTracker
	ledger  *fakeLedger
	gateway *fakeGateway
	proc    *worker.Processor
}

func newHarness(job *entity.ExtractionJob) *harness {
	h := &harness{
		jobs:    newFakeJobs(job),
		recipes: &fakeRecipes{},
		dedup:   &fakeDedup{byKey: map[string]uuid.UUID{}},
		tracker: &fakeTracker{requires: map[string]bool{}},
		gateway: &fakeGateway{},
	}
	h.ledger = &fakeLedger{jobs: h.jobs}
	h.proc = worker.NewProcessor(h.jobs, h.recipes, h.dedup, h.tracker, h.ledger, h.gateway, zerolog.Nop())
	return h
}

func linkJob(urls ...string) *entity.ExtractionJob {
	return &entity.ExtractionJob{
		ID:         uuid.New(),
		SourceType: entity.SourceLink,
		SourceURLs: urls,
		Status:     entity.StatusPending,
	}
}

// ---- tests ----

func TestProcess_WebpageSuccess(t *testing.T) {
	job := linkJob("https://example.com/recipes/pasta")
	h := newHarness(job)
	var hookJob, hookRecipe uuid.UUID
	h.proc.SetCompletionHook(func(ctx context.Context, jobID, recipeID uuid.UUID) {
		hookJob, hookRecipe = jobID, recipeID
	})

	require.NoError(t, h.proc.Process(context.Background(), job.ID.String()))

	got := h.jobs.jobs[job.ID]
	assert.Equal(t, entity.StatusCompleted, got.Status)
	require.NotNil(t, got.ContentType)
	assert.Equal(t, entity.ContentWebpage, *got.ContentType)
	require.NotNil(t, got.ExtractionMethod)
	assert.Equal(t, entity.MethodWebpageScrape, *got.ExtractionMethod)

	require.Len(t, h.gateway.calls, 1)
	assert.Equal(t, "scrape", h.gateway.calls[0].method)

	require.Len(t, h.ledger.entries, 1)
	assert.Equal(t, job.ID, h.ledger.entries[0].JobID)
	assert.Equal(t, int64(900), h.ledger.entries[0].InputTokens)

	assert.Equal(t, []outcome{{"example.com", true, ""}}, h.tracker.outcomes)
	assert.Equal(t, []string{"example.com/recipes/pasta"}, h.recipes.createdKeys)
	assert.Equal(t, job.ID, hookJob)
	assert.Equal(t, h.recipes.nextID, hookRecipe)
}

func TestProcess_DuplicateShortCircuit(t *testing.T) {
	job := linkJob("https://youtu.be/abc123")
	h := newHarness(job)
	prior := uuid.New()
	h.dedup.byKey["youtube.com/watch?v=abc123"] = prior

	require.NoError(t, h.proc.Process(context.Background(), job.ID.String()))

	got := h.jobs.jobs[job.ID]
	assert.Equal(t, entity.StatusCompleted, got.Status)
	require.NotNil(t, got.ExistingRecipeID)
	assert.Equal(t, prior, *got.ExistingRecipeID)

	assert.Empty(t, h.gateway.calls, "no AI service call on a duplicate hit")
	assert.Empty(t, h.ledger.entries, "zero cost entries for the duplicate job")
	assert.Empty(t, h.tracker.consulted, "dedup is checked before platform-policy routing")
	assert.Empty(t, h.recipes.createdKeys)
}

func TestProcess_ClientDownloadPolicyRoutesToClientMedia(t *testing.T) {
	// instagram.com pre-seeded requires_client_download=true; the client
	// already uploaded the media, so extraction runs on that upload.
	media := "uploads/ig-abc.mp4"
	job := linkJob("https://instagram.com/p/abc")
	job.MediaRef = &media
	h := newHarness(job)
	h.tracker.requires["instagram.com"] = true

	require.NoError(t, h.proc.Process(context.Background(), job.ID.String()))

	got := h.jobs.jobs[job.ID]
	assert.Equal(t, entity.StatusCompleted, got.Status)
	require.Len(t, h.gateway.calls, 1)
	assert.Equal(t, "vision", h.gateway.calls[0].method)
	assert.Equal(t, media, h.gateway.calls[0].source, "server-side fetch must be bypassed")
}

func TestProcess_ClientDownloadPolicyWithoutClientPathBlocks(t *testing.T) {
	job := linkJob("https://instagram.com/p/abc")
	h := newHarness(job)
	h.tracker.requires["instagram.com"] = true

	require.NoError(t, h.proc.Process(context.Background(), job.ID.String()))

	got := h.jobs.jobs[job.ID]
	assert.Equal(t, entity.StatusWebsiteBlocked, got.Status)
	assert.Empty(t, h.gateway.calls, "no server-side fetch against a known-blocked platform")
	assert.Empty(t, h.tracker.outcomes, "a routing short-circuit is not a new platform signal")
}

func TestProcess_FailureClassificationFeedsTracker(t *testing.T) {
	cases := []struct {
		name         string
		err          error
		wantTerminal entity.JobStatus
		wantReason   entity.FailureReason
	}{
		{"blocked", worker.ErrBlocked, entity.StatusWebsiteBlocked, entity.ReasonBlocked},
		{"auth wall", worker.ErrAuthRequired, entity.StatusWebsiteBlocked, entity.ReasonAuthRequired},
		{"rate limited", worker.ErrRateLimited, entity.StatusFailed, entity.ReasonRateLimited},
		{"unclassified", assert.AnError, entity.StatusFailed, entity.ReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := linkJob("https://example.com/r/1")
			h := newHarness(job)
			h.gateway.err = tc.err

			require.NoError(t, h.proc.Process(context.Background(), job.ID.String()))

			got := h.jobs.jobs[job.ID]
			assert.Equal(t, tc.wantTerminal, got.Status)
			require.NotNil(t, got.FailureReason)
			assert.Equal(t, tc.wantReason, *got.FailureReason)
			assert.Equal(t, []outcome{{"example.com", false, tc.wantReason}}, h.tracker.outcomes)
			assert.Empty(t, h.ledger.entries)
		})
	}
}

func TestProcess_NotARecipe(t *testing.T) {
	job := linkJob("https://example.com/blog/my-dog")
	h := newHarness(job)
	res := recipeResult()
	res.IsRecipe = false
	h.gateway.result = res

	require.NoError(t, h.proc.Process(context.Background(), job.ID.String()))

	got := h.jobs.jobs[job.ID]
	assert.Equal(t, entity.StatusNotARecipe, got.Status)
	assert.Empty(t, h.recipes.createdKeys, "no recipe row for a non-recipe")
	require.Len(t, h.ledger.entries, 1, "the AI call still cost money")
	assert.Equal(t, []outcome{{"example.com", true, ""}}, h.tracker.outcomes,
		"the platform served content fine; that is a success signal")
}

func TestProcess_CancelledWhileCallInFlight(t *testing.T) {
	job := linkJob("https://example.com/recipes/soup")
	h := newHarness(job)
	hookCalled := false
	h.proc.SetCompletionHook(func(ctx context.Context, jobID, recipeID uuid.UUID) {
		hookCalled = true
	})
	// the user cancels while the gateway call is running
	h.gateway.onCall = func() {
		h.jobs.jobs[job.ID].Status = entity.StatusCancelled
	}

	require.NoError(t, h.proc.Process(context.Background(), job.ID.String()))

	got := h.jobs.jobs[job.ID]
	assert.Equal(t, entity.StatusCancelled, got.Status, "cancellation wins over the late result")
	assert.Empty(t, h.ledger.entries, "no regular entry after cancellation observed")
	require.Len(t, h.ledger.audited, 1, "the in-flight call's spend is kept for audit")
	assert.False(t, hookCalled)
}

func TestProcess_SkipsNonPendingJob(t *testing.T) {
	job := linkJob("https://example.com/r")
	job.Status = entity.StatusCancelled
	h := newHarness(job)

	require.NoError(t, h.proc.Process(context.Background(), job.ID.String()))
	assert.Empty(t, h.gateway.calls)
	assert.Equal(t, entity.StatusCancelled, h.jobs.jobs[job.ID].Status)
}

func TestProcess_SlideshowRouting(t *testing.T) {
	job := linkJob("https://tiktok.com/@cook/photo/1", "https://tiktok.com/@cook/photo/2")
	h := newHarness(job)

	require.NoError(t, h.proc.Process(context.Background(), job.ID.String()))

	got := h.jobs.jobs[job.ID]
	require.NotNil(t, got.ContentType)
	assert.Equal(t, entity.ContentSlideshow, *got.ContentType)
	require.NotNil(t, got.ExtractionMethod)
	assert.Equal(t, entity.MethodSlideshowExtractor, *got.ExtractionMethod)
	require.Len(t, h.gateway.calls, 1)
	assert.Equal(t, "slideshow", h.gateway.calls[0].method)
}

func TestProcess_PhotoSourceRunsOCR(t *testing.T) {
	media := "uploads/recipe-card.jpg"
	job := &entity.ExtractionJob{
		ID:         uuid.New(),
		SourceType: entity.SourcePhoto,
		MediaRef:   &media,
		Status:     entity.StatusPending,
	}
	h := newHarness(job)

	require.NoError(t, h.proc.Process(context.Background(), job.ID.String()))

	got := h.jobs.jobs[job.ID]
	assert.Equal(t, entity.StatusCompleted, got.Status)
	require.Len(t, h.gateway.calls, 1)
	assert.Equal(t, "ocr", h.gateway.calls[0].method)
	assert.Equal(t, media, h.gateway.calls[0].source)
	assert.Empty(t, h.tracker.outcomes, "no platform domain to learn from")
	// non-URL sources get a job-scoped recipe key
	require.Len(t, h.recipes.createdKeys, 1)
	assert.Contains(t, h.recipes.createdKeys[0], job.ID.String())
}
