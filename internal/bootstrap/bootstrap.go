package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"quotes-service/internal/application"
	"quotes-service/internal/config"
	httpserver "quotes-service/internal/infrastructure/http"
	"quotes-service/internal/infrastructure/worker"

	"go.uber.org/zap"
)

// cleanups runs registered functions in reverse order.
type cleanups []func()

func (c *cleanups) add(fn func()) { *c = append(*c, fn) }

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

type core struct {
	svc    *application.QuoteService
	ready  []readyCheck
	worker *worker.PollWorker
	reaper *worker.StaleReaper
}

func initCore(ctx context.Context, cfg config.Config, log *zap.Logger) (*core, func(), error) {
	var cl cleanups
	fail := func(err error) (*core, func(), error) {
		cl.run()
		return nil, func() {}, err
	}

	st, closeStorage, err := ProvideStorage(ctx, log, cfg)
	cl.add(closeStorage)
	if err != nil {
		return fail(fmt.Errorf("storage: %w", err))
	}
	idem, idemReady, closeIdem, err := ProvideIdempotency(cfg, st)
	cl.add(closeIdem)
	if err != nil {
		return fail(fmt.Errorf("idempotency: %w", err))
	}
	rp, err := ProvideRateProvider(cfg, log)
	if err != nil {
		return fail(fmt.Errorf("rate provider: %w", err))
	}
	c, closeCache, err := ProvideCache(cfg)
	cl.add(closeCache)
	if err != nil {
		return fail(fmt.Errorf("cache: %w", err))
	}

	svc := ProvideQuoteService(st, idem, rp, c, log, cfg)
	out := &core{
		svc:    svc,
		worker: ProvideWorker(svc, log, cfg),
		reaper: ProvideReaper(svc, log, cfg),
	}
	if st.DB != nil {
		out.ready = append(out.ready, st.DB.Ping)
	}
	if idemReady != nil {
		out.ready = append(out.ready, idemReady)
	}
	return out, cl.run, nil
}

// API is the HTTP process, optionally running the worker in the background.
type API struct {
	Handler http.Handler
	Service *application.QuoteService
	Worker  *worker.PollWorker
	Reaper  *worker.StaleReaper
}

func InitAPI(ctx context.Context, cfg config.Config, log *zap.Logger) (*API, func(), error) {
	c, cleanup, err := initCore(ctx, cfg, log)
	if err != nil {
		return nil, cleanup, err
	}
	srv := httpserver.NewServer(c.svc)
	checks := c.ready
	srv.SetReadyCheck(func(ctx context.Context) error {
		var errs []error
		for _, check := range checks {
			errs = append(errs, check(ctx))
		}
		return errors.Join(errs...)
	})
	api := &API{Handler: httpserver.NewRouter(srv), Service: c.svc}
	if cfg.WorkerEmbedded {
		api.Worker, api.Reaper = c.worker, c.reaper
	}
	return api, cleanup, nil
}

// WorkerApp runs the poll worker and the stale reaper until ctx is canceled.
type WorkerApp struct {
	Worker *worker.PollWorker
	Reaper *worker.StaleReaper
}

func (a *WorkerApp) Run(ctx context.Context) error {
	if err := a.Reaper.Start(ctx); err != nil {
		return fmt.Errorf("start reaper: %w", err)
	}
	a.Worker.Start(ctx)
	return a.Reaper.Shutdown()
}

// InitWorker builds a standalone worker. It needs shared storage, so only
// STORAGE=pg is accepted.
func InitWorker(ctx context.Context, cfg config.Config, log *zap.Logger) (*WorkerApp, func(), error) {
	if cfg.Storage != "pg" {
		return nil, func() {}, fmt.Errorf("standalone worker needs STORAGE=pg, got %q", cfg.Storage)
	}
	c, cleanup, err := initCore(ctx, cfg, log)
	if err != nil {
		return nil, cleanup, err
	}
	return &WorkerApp{Worker: c.worker, Reaper: c.reaper}, cleanup, nil
}
