package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue hands accepted jobs from the API process to the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, jobID string, priority int) error
	ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error)
	Ack(ctx context.Context, jobID string) error
	RequeueStale(ctx context.Context, maxPerLane int64) (int64, error)
}

type Lane struct {
	QueueKey      string
	ProcessingKey string
}

// Lanes derives the three priority lanes from the configured base keys.
func Lanes(baseQueue, baseProcessing string) (low, normal, high Lane) {
	low = Lane{QueueKey: baseQueue + ":low", ProcessingKey: baseProcessing + ":low"}
	normal = Lane{QueueKey: baseQueue + ":normal", ProcessingKey: baseProcessing + ":normal"}
	high = Lane{QueueKey: baseQueue + ":high", ProcessingKey: baseProcessing + ":high"}
	return low, normal, high
}

// redisExtractionQueue is a reliable priority queue over Redis lists.
// Lanes: high (photo/voice capture flow), normal (link/video), low (paste).
// Claim: BRPOPLPUSH lane.queue -> lane.processing
// Ack:   LREM from the right processing list (tracked in processingMapKey)
// A claimed-but-never-acked job sits in the processing list until the
// reaper (RequeueStale) pushes it back: at-least-once delivery.
type redisExtractionQueue struct {
	rdb              *redis.Client
	processingMapKey string

	low    Lane
	normal Lane
	high   Lane
}

func NewRedisExtractionQueue(rdb *redis.Client, processingMapKey string, low, normal, high Lane) Queue {
	return &redisExtractionQueue{
		rdb:              rdb,
		processingMapKey: processingMapKey,
		low:              low,
		normal:           normal,
		high:             high,
	}
}

func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > 2 {
		return 2
	}
	return p
}

func (q *redisExtractionQueue) laneByPriority(p int) Lane {
	switch clampPriority(p) {
	case 2:
		return q.high
	case 1:
		return q.normal
	default:
		return q.low
	}
}

func (q *redisExtractionQueue) Enqueue(ctx context.Context, jobID string, priority int) error {
	ln := q.laneByPriority(priority)
	return q.rdb.LPush(ctx, ln.QueueKey, jobID).Err()
}

// ClaimBlocking polls high->normal->low with short blocking slots, so it is
// mostly blocking but still respects priority across lanes.
func (q *redisExtractionQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	// timeout <= 0 means loop forever, worker-daemon style
	forever := timeout <= 0
	deadline := time.Now().Add(timeout)

	slot := 1 * time.Second
	if !forever && timeout < slot {
		slot = timeout
	}

	for {
		if !forever && time.Now().After(deadline) {
			return "", redis.Nil
		}

		for _, ln := range []Lane{q.high, q.normal, q.low} {
			wait := slot
			if !forever {
				remain := time.Until(deadline)
				if remain <= 0 {
					return "", redis.Nil
				}
				if remain < wait {
					wait = remain
				}
			}

			id, err := q.rdb.BRPopLPush(ctx, ln.QueueKey, ln.ProcessingKey, wait).Result()
			if err == nil {
				// remember which processing list holds this id, for Ack
				if hErr := q.rdb.HSet(ctx, q.processingMapKey, id, ln.ProcessingKey).Err(); hErr != nil {
					return "", hErr
				}
				return id, nil
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return "", err
		}
	}
}

func (q *redisExtractionQueue) Ack(ctx context.Context, jobID string) error {
	processingKey, err := q.rdb.HGet(ctx, q.processingMapKey, jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// mapping missing (reaped or manual cleanup): sweep all lanes
			_ = q.rdb.LRem(ctx, q.high.ProcessingKey, 1, jobID).Err()
			_ = q.rdb.LRem(ctx, q.normal.ProcessingKey, 1, jobID).Err()
			_ = q.rdb.LRem(ctx, q.low.ProcessingKey, 1, jobID).Err()
			return nil
		}
		return err
	}

	if err := q.rdb.LRem(ctx, processingKey, 1, jobID).Err(); err != nil {
		return err
	}
	_ = q.rdb.HDel(ctx, q.processingMapKey, jobID).Err()
	return nil
}

// RequeueStale moves claimed-but-unacked ids back onto their queue lane.
func (q *redisExtractionQueue) RequeueStale(ctx context.Context, maxPerLane int64) (int64, error) {
	var moved int64

	for _, ln := range []Lane{q.high, q.normal, q.low} {
		for i := int64(0); i < maxPerLane; i++ {
			id, err := q.rdb.RPopLPush(ctx, ln.ProcessingKey, ln.QueueKey).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					break
				}
				return moved, err
			}
			if id != "" {
				moved++
				_ = q.rdb.HDel(ctx, q.processingMapKey, id).Err()
			}
		}
	}
	return moved, nil
}
