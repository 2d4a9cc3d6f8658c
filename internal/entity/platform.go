package entity

import "time"

type FailureReason string

const (
	ReasonAuthRequired FailureReason = "auth_required"
	ReasonRateLimited  FailureReason = "rate_limited"
	ReasonBlocked      FailureReason = "blocked"
	ReasonUnknown      FailureReason = "unknown"
)

// PlatformStatus is the per-domain rolling reliability record. One row per
// registrable domain, created lazily on the first observed outcome.
type PlatformStatus struct {
	PlatformDomain         string         `json:"platform_domain"`
	RequiresClientDownload bool           `json:"requires_client_download"`
	FailureCount           int            `json:"failure_count"`
	FailureReason          *FailureReason `json:"failure_reason,omitempty"`
	LastFailureAt          *time.Time     `json:"last_failure_at,omitempty"`
	LastSuccessAt          *time.Time     `json:"last_success_at,omitempty"`
}
