// Package aiservice is the HTTP adapter to the extraction AI backend. It
// implements worker.AIGateway: one POST per call type, and the backend
// reports its own accounted usage and cost, which this core records
// verbatim.
package aiservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"recipe-extraction-service/internal/entity"
	"recipe-extraction-service/internal/worker"
)

type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			// transcription of long videos is the slowest call type
			Timeout: 5 * time.Minute,
		},
	}
}

type callRequest struct {
	Source  string   `json:"source,omitempty"`
	Sources []string `json:"sources,omitempty"`
	Text    string   `json:"text,omitempty"`
}

type callResponse struct {
	IsRecipe bool            `json:"is_recipe"`
	Title    string          `json:"title"`
	Content  json.RawMessage `json:"content"`
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Usage    struct {
		InputTokens     int64 `json:"input_tokens"`
		OutputTokens    int64 `json:"output_tokens"`
		AudioSeconds    int64 `json:"audio_seconds"`
		ImagesProcessed int64 `json:"images_processed"`
	} `json:"usage"`
	CostUSD   decimal.Decimal `json:"cost_usd"`
	LatencyMs int64           `json:"latency_ms"`
}

func (c *Client) TranscribeVideo(ctx context.Context, source string) (*worker.ExtractionResult, error) {
	return c.call(ctx, "/v1/extract/video", entity.ServiceTranscription, callRequest{Source: source})
}

func (c *Client) ExtractSlideshow(ctx context.Context, urls []string) (*worker.ExtractionResult, error) {
	return c.call(ctx, "/v1/extract/slideshow", entity.ServiceVision, callRequest{Sources: urls})
}

func (c *Client) AnalyzeImage(ctx context.Context, source string) (*worker.ExtractionResult, error) {
	return c.call(ctx, "/v1/extract/image", entity.ServiceVision, callRequest{Source: source})
}

func (c *Client) RunOCR(ctx context.Context, source string) (*worker.ExtractionResult, error) {
	return c.call(ctx, "/v1/extract/ocr", entity.ServiceOCR, callRequest{Source: source})
}

func (c *Client) ScrapeWebpage(ctx context.Context, url string) (*worker.ExtractionResult, error) {
	return c.call(ctx, "/v1/extract/webpage", entity.ServiceTextExtraction, callRequest{Source: url})
}

func (c *Client) TranscribeAudio(ctx context.Context, mediaRef string) (*worker.ExtractionResult, error) {
	return c.call(ctx, "/v1/extract/audio", entity.ServiceTranscription, callRequest{Source: mediaRef})
}

func (c *Client) ParseText(ctx context.Context, text string) (*worker.ExtractionResult, error) {
	return c.call(ctx, "/v1/extract/text", entity.ServiceTextExtraction, callRequest{Text: text})
}

func (c *Client) call(ctx context.Context, path string, svc entity.ServiceType, reqBody callRequest) (*worker.ExtractionResult, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// The backend relays the upstream platform's refusal statuses so the
	// processor can classify them.
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusPaymentRequired:
		return nil, fmt.Errorf("%s: %w", path, worker.ErrAuthRequired)
	case http.StatusForbidden:
		return nil, fmt.Errorf("%s: %w", path, worker.ErrBlocked)
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", path, worker.ErrRateLimited)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, msg)
	}

	var out callResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", path, err)
	}

	return &worker.ExtractionResult{
		IsRecipe:    out.IsRecipe,
		Title:       out.Title,
		Content:     out.Content,
		Provider:    out.Provider,
		Model:       out.Model,
		ServiceType: svc,
		Usage: worker.Usage{
			InputTokens:     out.Usage.InputTokens,
			OutputTokens:    out.Usage.OutputTokens,
			AudioSeconds:    out.Usage.AudioSeconds,
			ImagesProcessed: out.Usage.ImagesProcessed,
		},
		CostUSD:   out.CostUSD,
		LatencyMs: out.LatencyMs,
	}, nil
}
