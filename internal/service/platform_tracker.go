package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"recipe-extraction-service/internal/entity"
	"recipe-extraction-service/internal/repository/postgresql"
)

// Port to the per-domain reliability store (implementation:
// postgresql.PlatformRepository). Update must serialize concurrent callers
// for the same domain.
type PlatformRepository interface {
	Get(ctx context.Context, domain string) (*entity.PlatformStatus, error)
	Update(ctx context.Context, domain string, fn func(*entity.PlatformStatus)) (*entity.PlatformStatus, error)
}

// TrackerConfig is injected rather than hardcoded: the right threshold and
// the set of reason classes that count as structural are deployment policy.
type TrackerConfig struct {
	FailureThreshold  int
	PersistentReasons []entity.FailureReason
}

// PlatformTracker keeps the rolling per-domain failure record and derives
// the single policy bit the router consumes: requires_client_download.
type PlatformTracker struct {
	repo       PlatformRepository
	threshold  int
	persistent map[entity.FailureReason]bool
	log        zerolog.Logger
}

func NewPlatformTracker(repo PlatformRepository, cfg TrackerConfig, log zerolog.Logger) *PlatformTracker {
	persistent := make(map[entity.FailureReason]bool, len(cfg.PersistentReasons))
	for _, r := range cfg.PersistentReasons {
		persistent[r] = true
	}
	return &PlatformTracker{
		repo:       repo,
		threshold:  cfg.FailureThreshold,
		persistent: persistent,
		log:        log,
	}
}

// RecordOutcome folds one job outcome into the domain's record.
//
// A success resets failure_count but never clears requires_client_download:
// an auth wall is structural, one lucky fetch does not mean it is gone. The
// flag flips on once failure_count reaches the threshold with a persistent
// reason and stays on until an explicit override.
func (t *PlatformTracker) RecordOutcome(ctx context.Context, domain string, success bool, reason entity.FailureReason) error {
	if domain == "" {
		return nil
	}

	now := time.Now().UTC()
	ps, err := t.repo.Update(ctx, domain, func(ps *entity.PlatformStatus) {
		if success {
			ps.FailureCount = 0
			ps.LastSuccessAt = &now
			return
		}
		ps.FailureCount++
		ps.LastFailureAt = &now
		r := reason
		if r == "" {
			r = entity.ReasonUnknown
		}
		ps.FailureReason = &r
		if ps.FailureCount >= t.threshold && t.persistent[r] {
			ps.RequiresClientDownload = true
		}
	})
	if err != nil {
		return err
	}

	if !success {
		t.log.Warn().
			Str("domain", domain).
			Str("reason", string(reason)).
			Int("failure_count", ps.FailureCount).
			Bool("requires_client_download", ps.RequiresClientDownload).
			Msg("platform failure recorded")
	}
	return nil
}

// ShouldRequireClientDownload is a pure read of the policy flag. Unknown
// domains default to false.
func (t *PlatformTracker) ShouldRequireClientDownload(ctx context.Context, domain string) (bool, error) {
	ps, err := t.repo.Get(ctx, domain)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return ps.RequiresClientDownload, nil
}

// GetStatus returns the full record for the policy endpoint. Unknown
// domains yield a zero-value record rather than an error.
func (t *PlatformTracker) GetStatus(ctx context.Context, domain string) (*entity.PlatformStatus, error) {
	ps, err := t.repo.Get(ctx, domain)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			return &entity.PlatformStatus{PlatformDomain: domain}, nil
		}
		return nil, err
	}
	return ps, nil
}

// SetRequireClientDownload is the administrative override, the only path
// that may clear the flag.
func (t *PlatformTracker) SetRequireClientDownload(ctx context.Context, domain string, required bool) error {
	_, err := t.repo.Update(ctx, domain, func(ps *entity.PlatformStatus) {
		ps.RequiresClientDownload = required
		if !required {
			ps.FailureCount = 0
		}
	})
	if err != nil {
		return err
	}
	t.log.Info().
		Str("domain", domain).
		Bool("requires_client_download", required).
		Msg("platform policy override")
	return nil
}
