package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"recipe-extraction-service/internal/service"
)

// Pool fans claimed job ids out to N processor goroutines. Jobs are acked
// after Process returns regardless of outcome: the job row already reached
// a terminal state (or Process failed early, in which case the reaper
// requeues the id).
type Pool struct {
	queue      service.Queue
	processor  *Processor
	workers    int
	claimDelay time.Duration
	log        zerolog.Logger
}

func NewPool(queue service.Queue, processor *Processor, workers int, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{
		queue:      queue,
		processor:  processor,
		workers:    workers,
		claimDelay: 5 * time.Second,
		log:        log,
	}
}

func (p *Pool) Run(ctx context.Context) {
	p.log.Info().Int("workers", p.workers).Msg("worker pool started")

	jobCh := make(chan string)

	for i := 0; i < p.workers; i++ {
		go func(n int) {
			for jobID := range jobCh {
				if err := p.processor.Process(ctx, jobID); err != nil {
					p.log.Error().Int("worker", n).Str("job_id", jobID).Err(err).Msg("process error")
				}
				if ackErr := p.queue.Ack(ctx, jobID); ackErr != nil {
					p.log.Error().Int("worker", n).Str("job_id", jobID).Err(ackErr).Msg("ack error")
				}
			}
		}(i + 1)
	}

	// Listener: atomically claim from queue -> processing.
	for {
		select {
		case <-ctx.Done():
			close(jobCh)
			p.log.Info().Msg("worker pool stopped")
			return
		default:
			jobID, err := p.queue.ClaimBlocking(ctx, p.claimDelay)
			if err != nil {
				// timeout / redis.Nil / ctx cancel, not fatal
				continue
			}
			select {
			case jobCh <- jobID:
			case <-ctx.Done():
				close(jobCh)
				return
			}
		}
	}
}
