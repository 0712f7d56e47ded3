package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultWorkers is the default consumer concurrency.
const DefaultWorkers = 3

// Pool runs a fixed set of workers over a partitioned source. Worker w owns
// every partition p where p % workers == w, and drains its partitions
// strictly sequentially, so events for one partition are never processed
// concurrently and per-key ordering survives.
type Pool struct {
	source     Source
	processor  *Processor
	partitions int
	workers    int
	idleWait   time.Duration
	logger     *slog.Logger
}

// NewPool creates a worker pool. Non-positive workers falls back to
// DefaultWorkers; workers is capped at the partition count since extra
// workers would own nothing.
func NewPool(source Source, processor *Processor, partitions, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > partitions {
		workers = partitions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		source:     source,
		processor:  processor,
		partitions: partitions,
		workers:    workers,
		idleWait:   250 * time.Millisecond,
		logger:     logger,
	}
}

// Run starts the workers and blocks until the context is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("starting pipeline workers",
		slog.Int("workers", p.workers),
		slog.Int("partitions", p.partitions))

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.runWorker(ctx, worker)
		}(w)
	}
	wg.Wait()
	p.logger.Info("pipeline workers stopped")
	return ctx.Err()
}

// runWorker loops over the worker's owned partitions in order. An idle full
// sweep backs off briefly to avoid spinning on empty partitions.
func (p *Pool) runWorker(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		busy := false
		for partition := worker; partition < p.partitions; partition += p.workers {
			if ctx.Err() != nil {
				return
			}
			if p.drainOne(ctx, partition) {
				busy = true
			}
		}
		if !busy {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.idleWait):
			}
		}
	}
}

// drainOne processes at most one message from the partition. Returns true
// when a message was handled.
func (p *Pool) drainOne(ctx context.Context, partition int) bool {
	delivery, err := p.source.Next(ctx, partition)
	if errors.Is(err, ErrNoMessage) {
		return false
	}
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("failed to fetch from partition",
				slog.Int("partition", partition),
				slog.String("error", err.Error()))
		}
		return false
	}

	res := p.processor.Handle(ctx, delivery.Msg)
	switch res.Disposition {
	case DispositionRedeliver:
		if err := delivery.Redeliver(res.Backoff); err != nil {
			p.logger.Warn("failed to schedule redelivery",
				slog.Int("partition", partition),
				slog.String("event_id", res.EventID),
				slog.String("error", err.Error()))
		}
	default:
		if err := delivery.Ack(); err != nil {
			p.logger.Warn("failed to ack message",
				slog.Int("partition", partition),
				slog.String("event_id", res.EventID),
				slog.String("error", err.Error()))
		}
	}
	return true
}
