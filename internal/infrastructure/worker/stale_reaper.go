package worker

import (
	"context"
	"sync"
	"time"

	"quotes-service/internal/application"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StaleReaper periodically requeues updates left in processing by a worker
// that died mid-batch.
type StaleReaper struct {
	processor  application.UpdateProcessor
	every      time.Duration
	staleAfter time.Duration
	log        *zap.Logger

	mu    sync.Mutex
	sched gocron.Scheduler
}

func NewStaleReaper(p application.UpdateProcessor, every, staleAfter time.Duration, log *zap.Logger) *StaleReaper {
	if every <= 0 {
		every = 10 * time.Second
	}
	if staleAfter <= 0 {
		staleAfter = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StaleReaper{processor: p, every: every, staleAfter: staleAfter, log: log}
}

// RunOnce requeues stale updates and returns how many were moved.
func (r *StaleReaper) RunOnce(ctx context.Context) (int, error) {
	n, err := r.processor.RequeueStale(ctx, r.staleAfter)
	if err != nil {
		r.log.Error("requeue_stale_failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		r.log.Info("requeued_stale", zap.Int("count", n))
	}
	return n, nil
}

// Start schedules the reaper and stops it when ctx is canceled.
func (r *StaleReaper) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(r.every),
		gocron.NewTask(func(jobCtx context.Context) { _, _ = r.RunOnce(jobCtx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return err
	}

	r.mu.Lock()
	r.sched = scheduler
	r.mu.Unlock()
	scheduler.Start()

	go func() {
		<-ctx.Done()
		if sdErr := r.Shutdown(); sdErr != nil {
			r.log.Error("reaper_shutdown_failed", zap.Error(sdErr))
		}
	}()
	return nil
}

func (r *StaleReaper) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sched == nil {
		return nil
	}
	err := r.sched.Shutdown()
	r.sched = nil
	return err
}
