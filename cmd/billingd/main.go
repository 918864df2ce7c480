// Command billingd runs the subscription lifecycle engine's background
// processes: the billing task worker, the pending activation sweep and the
// operations HTTP endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/billingkit/pkg/config"
	"github.com/dmitrymomot/billingkit/pkg/environment"
	"github.com/dmitrymomot/billingkit/pkg/httpserver"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/queue"
	"github.com/dmitrymomot/billingkit/pkg/queue/pgstorage"
	"github.com/dmitrymomot/billingkit/pkg/redis"
	"github.com/dmitrymomot/billingkit/svc/billing"
	billingpg "github.com/dmitrymomot/billingkit/svc/billing/pgstore"
	"github.com/dmitrymomot/billingkit/svc/subscription"
	"github.com/dmitrymomot/billingkit/svc/subscription/pgstore"
)

type appConfig struct {
	Env                string `env:"APP_ENV" envDefault:"development"`
	Name               string `env:"APP_NAME" envDefault:"billingd"`
	LogLevel           string `env:"LOG_LEVEL"` // overrides the APP_ENV preset
	PlansFile          string `env:"PLANS_FILE,required"`
	Storage            string `env:"STORAGE_BACKEND" envDefault:"postgres"` // postgres or memory
	LockBackend        string `env:"LOCK_BACKEND" envDefault:"memory"`      // memory or redis
	ActivationSchedule string `env:"ACTIVATION_SCHEDULE" envDefault:"@every 1m"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(environment.Parse(cfg.Env), cfg.Name),
		logger.WithLevelName(cfg.LogLevel),
	)
	slog.SetDefault(log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	catalog, err := subscription.NewCatalog(ctx, subscription.NewYAMLFileSource(cfg.PlansFile))
	if err != nil {
		return err
	}

	deps, cleanup, err := openBackends(ctx, cfg, log)
	defer cleanup()
	if err != nil {
		return err
	}

	var qcfg queue.Config
	if err := config.Load(&qcfg); err != nil {
		return err
	}
	enqueuer, err := queue.NewEnqueuer(deps.tasks,
		queue.WithDefaultQueue(qcfg.Queue),
		queue.WithDefaultMaxRetries(qcfg.MaxRetries))
	if err != nil {
		return err
	}

	lifecycle := subscription.NewService(deps.store, catalog,
		subscription.WithLocker(deps.locker),
		subscription.WithBillingTrigger(billing.NewTrigger(enqueuer)),
		subscription.WithMetrics(subscription.NewMetrics(registry)),
		subscription.WithLogger(log))

	biller := billing.NewService(deps.store, catalog, deps.usage, deps.fees,
		billing.WithMetrics(billing.NewMetrics(registry)),
		billing.WithLogger(log))

	worker, err := queue.NewWorker(deps.tasks, queue.WithConfig(qcfg), queue.WithWorkerLogger(log))
	if err != nil {
		return err
	}
	worker.RegisterHandlers(biller.Handler())

	sweep, err := newActivationSweep(ctx, cfg.ActivationSchedule, lifecycle, log)
	if err != nil {
		return err
	}

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}
	ops := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(worker.Run(ctx))
	g.Go(func() error {
		sweep.Start()
		<-ctx.Done()
		<-sweep.Stop().Done()
		return nil
	})
	g.Go(func() error {
		return ops.Run(ctx, httpserver.Routes(registry, log, deps.checks...))
	})

	log.InfoContext(ctx, "billingd started",
		slog.String("storage", cfg.Storage),
		slog.String("lock_backend", cfg.LockBackend),
		slog.Int("plans", catalog.Len()))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type taskStorage interface {
	queue.EnqueuerRepository
	queue.WorkerRepository
}

// backends are the storage-dependent collaborators.
type backends struct {
	store  subscription.Store
	tasks  taskStorage
	usage  billing.UsageSource
	fees   billing.FeeSink
	locker subscription.Locker
	checks []httpserver.Check
}

func openBackends(ctx context.Context, cfg appConfig, log *slog.Logger) (*backends, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	b := &backends{locker: subscription.NewKeyedLocker()}

	switch cfg.Storage {
	case "memory":
		ledger := billing.NewMemoryLedger()
		tasks := queue.NewMemoryStorage()
		closers = append(closers, func() { _ = tasks.Close() })
		b.store, b.tasks, b.usage, b.fees = subscription.NewMemoryStore(), tasks, ledger, ledger

	case "postgres":
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return nil, cleanup, err
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, pool.Close)

		if err := migrate(ctx, pool, pgCfg, log); err != nil {
			return nil, cleanup, err
		}

		fees := billingpg.New(pool)
		b.store, b.tasks, b.usage, b.fees = pgstore.New(pool), pgstorage.New(pool), fees, fees
		b.checks = append(b.checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})

	default:
		return nil, cleanup, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.Storage)
	}

	switch cfg.LockBackend {
	case "memory":
	case "redis":
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return nil, cleanup, err
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { _ = client.Close() })
		b.locker = redis.NewLockerFromConfig(client, redisCfg, redis.WithLockLogger(log))
		b.checks = append(b.checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	default:
		return nil, cleanup, fmt.Errorf("unknown LOCK_BACKEND %q", cfg.LockBackend)
	}

	return b, cleanup, nil
}
