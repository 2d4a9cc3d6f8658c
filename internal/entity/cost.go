package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ServiceType string

const (
	ServiceTranscription  ServiceType = "transcription"
	ServiceVision         ServiceType = "vision"
	ServiceOCR            ServiceType = "ocr"
	ServiceTextExtraction ServiceType = "text_extraction"
)

// ServiceCost is one row of a job's per-service spend breakdown.
type ServiceCost struct {
	ServiceType ServiceType     `json:"service_type"`
	Calls       int64           `json:"calls"`
	CostUSD     decimal.Decimal `json:"cost_usd"`
}

// ExtractionCostEntry records the accounted usage of a single AI service
// call made on behalf of a job. Append-only: corrections are compensating
// entries, never updates.
type ExtractionCostEntry struct {
	ID              uuid.UUID       `json:"id"`
	JobID           uuid.UUID       `json:"job_id"`
	ServiceProvider string          `json:"service_provider"`
	ServiceType     ServiceType     `json:"service_type"`
	ModelName       string          `json:"model_name"`
	InputTokens     int64           `json:"input_tokens,omitempty"`
	OutputTokens    int64           `json:"output_tokens,omitempty"`
	AudioSeconds    int64           `json:"audio_seconds,omitempty"`
	ImagesProcessed int64           `json:"images_processed,omitempty"`
	EstimatedCost   decimal.Decimal `json:"estimated_cost_usd"`
	ProcessingMs    int64           `json:"processing_time_ms"`
	CreatedAt       time.Time       `json:"created_at"`
}
