package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"

	"recipe-extraction-service/internal/entity"
)

// Failure sentinels the AI gateway wraps its errors with. The processor
// classifies on these to decide the terminal status and what the platform
// tracker learns.
var (
	ErrAuthRequired = errors.New("authentication required")
	ErrRateLimited  = errors.New("rate limited")
	ErrBlocked      = errors.New("access blocked")
)

// ClassifyFailure maps an extraction error to a failure reason class.
func ClassifyFailure(err error) entity.FailureReason {
	switch {
	case errors.Is(err, ErrAuthRequired):
		return entity.ReasonAuthRequired
	case errors.Is(err, ErrRateLimited):
		return entity.ReasonRateLimited
	case errors.Is(err, ErrBlocked):
		return entity.ReasonBlocked
	default:
		return entity.ReasonUnknown
	}
}

type Usage struct {
	InputTokens     int64
	OutputTokens    int64
	AudioSeconds    int64
	ImagesProcessed int64
}

// ExtractionResult is what one AI service call yields: the extracted
// content plus the accounted usage the Cost Ledger records verbatim.
type ExtractionResult struct {
	IsRecipe bool
	Title    string
	Content  json.RawMessage

	Provider    string
	Model       string
	ServiceType entity.ServiceType
	Usage       Usage
	CostUSD     decimal.Decimal
	LatencyMs   int64
}

// AIGateway is the port to the AI service clients. This core never performs
// the calls itself; it routes to one of these and accounts the usage.
type AIGateway interface {
	// TranscribeVideo drives the video extractor; source is a platform URL
	// or, on the client-download path, an uploaded media reference.
	TranscribeVideo(ctx context.Context, source string) (*ExtractionResult, error)
	ExtractSlideshow(ctx context.Context, urls []string) (*ExtractionResult, error)
	AnalyzeImage(ctx context.Context, source string) (*ExtractionResult, error)
	RunOCR(ctx context.Context, source string) (*ExtractionResult, error)
	ScrapeWebpage(ctx context.Context, url string) (*ExtractionResult, error)
	TranscribeAudio(ctx context.Context, mediaRef string) (*ExtractionResult, error)
	ParseText(ctx context.Context, text string) (*ExtractionResult, error)
}
