package worker

import (
	"context"
	"time"

	"quotes-service/internal/application"
	"quotes-service/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var _ application.Worker = (*PollWorker)(nil)

// PollWorker claims queued updates on a ticker and processes each batch with
// bounded concurrency.
type PollWorker struct {
	Processor application.UpdateProcessor

	PollEvery   time.Duration
	BatchLimit  int
	Concurrency int
	Log         *zap.Logger
}

type pollSettings struct {
	every       time.Duration
	batch       int
	concurrency int
}

// settings resolves defaults without writing them back into w.
func (w *PollWorker) settings() pollSettings {
	ps := pollSettings{every: w.PollEvery, batch: w.BatchLimit, concurrency: w.Concurrency}
	if ps.every <= 0 {
		ps.every = 250 * time.Millisecond
	}
	if ps.batch <= 0 {
		ps.batch = 10
	}
	if ps.concurrency <= 0 {
		ps.concurrency = 1
	}
	return ps
}

func (w *PollWorker) Start(ctx context.Context) {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	ps := w.settings()

	t := time.NewTicker(ps.every)
	defer t.Stop()

	log.Info("poll_worker_started",
		zap.Duration("poll_every", ps.every),
		zap.Int("batch_limit", ps.batch),
		zap.Int("concurrency", ps.concurrency),
	)
	for {
		select {
		case <-ctx.Done():
			log.Info("poll_worker_stopped")
			return
		case <-t.C:
			// a full batch means more work is likely waiting
			for {
				if n := w.tick(ctx, log, ps); n < ps.batch || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// tick processes one claimed batch and returns its size. Claimed updates are
// finished even if ctx is canceled meanwhile; each provider call is bounded
// by the service fetch timeout.
func (w *PollWorker) tick(ctx context.Context, log *zap.Logger, ps pollSettings) int {
	jobs, err := w.Processor.ClaimQueued(ctx, ps.batch)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("claim_failed", zap.Error(err))
		}
		return 0
	}
	if len(jobs) == 0 {
		return 0
	}

	runCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(ps.concurrency)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			w.processOne(runCtx, log, j)
			return nil
		})
	}
	_ = g.Wait()
	return len(jobs)
}

func (w *PollWorker) processOne(ctx context.Context, log *zap.Logger, u domain.QuoteUpdate) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("process_panic", zap.String("id", u.ID), zap.Any("panic", r))
		}
	}()
	if err := w.Processor.ProcessUpdate(ctx, u); err != nil {
		log.Warn("process_failed", zap.String("id", u.ID), zap.String("pair", string(u.Pair)), zap.Error(err))
	}
}
