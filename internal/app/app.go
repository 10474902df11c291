// Package app assembles stores, services and background workers from
// configuration. Both the HTTP server and the operator CLI build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dupeshandler "rmr/internal/duplicates/handler"
	dupesmetrics "rmr/internal/duplicates/metrics"
	dupesservice "rmr/internal/duplicates/service"
	dupesstore "rmr/internal/duplicates/store"
	identityhandler "rmr/internal/identity/handler"
	identitymetrics "rmr/internal/identity/metrics"
	"rmr/internal/identity/resolver"
	identityservice "rmr/internal/identity/service"
	"rmr/internal/identity/store/client"
	"rmr/internal/identity/store/conflict"
	ledgerhandler "rmr/internal/ledger/handler"
	ledgermetrics "rmr/internal/ledger/metrics"
	ledgerservice "rmr/internal/ledger/service"
	ledgerstore "rmr/internal/ledger/store"
	"rmr/internal/membership/events"
	membershiphandler "rmr/internal/membership/handler"
	"rmr/internal/membership/lock"
	membershipmetrics "rmr/internal/membership/metrics"
	membershipservice "rmr/internal/membership/service"
	membershipstore "rmr/internal/membership/store"
	"rmr/internal/platform/config"
	"rmr/internal/platform/kafka"
	httpmetrics "rmr/internal/platform/metrics"
	"rmr/internal/platform/middleware"
	"rmr/internal/platform/postgres"
	"rmr/internal/platform/redis"
	"rmr/pkg/platform/httputil"
	"rmr/pkg/platform/middleware/metadata"
	"rmr/pkg/platform/middleware/requesttime"
	"rmr/pkg/platform/tx"
)

// conflictStore both records and lists identity conflicts.
type conflictStore interface {
	resolver.ConflictRecorder
	identityservice.ConflictStore
}

// App holds the wired services. Close releases the connections it opened.
type App struct {
	Config     config.Config
	Logger     *slog.Logger
	Identity   *identityservice.Service
	Resolver   *resolver.Resolver
	Ledger     *ledgerservice.Service
	Reconciler *membershipservice.Reconciler
	Duplicates *dupesservice.Service

	db       *sql.DB
	redis    *redis.Client
	producer *kafka.Producer

	// background loops the server runs alongside HTTP
	workers []func(ctx context.Context) error
}

// Build connects to whatever backends are configured and falls back to
// in-memory implementations for the rest.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.db = db
	if db != nil && cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
	}

	if a.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		a.Close()
		return nil, err
	}
	if a.producer, err = kafka.NewProducer(ctx, cfg.Kafka, logger); err != nil {
		a.Close()
		return nil, err
	}
	if a.producer != nil {
		if err := a.producer.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure status topic: %w", err)
		}
	}

	a.wire()
	return a, nil
}

func (a *App) wire() {
	var (
		clients    identityservice.ClientStore
		conflicts  conflictStore
		records    ledgerservice.Store
		statuses   membershipservice.StatusStore
		candidates dupesservice.Store
		transactor membershipservice.Transactor = tx.Noop{}
	)
	if a.db != nil {
		clients = client.NewPostgres(a.db)
		conflicts = conflict.NewPostgres(a.db)
		records = ledgerstore.NewPostgres(a.db)
		statuses = membershipstore.NewPostgres(a.db)
		candidates = dupesstore.NewPostgres(a.db)
		transactor = tx.NewRunner(a.db)
	} else {
		clients = client.NewInMemory()
		conflicts = conflict.NewInMemory()
		records = ledgerstore.NewInMemory()
		statuses = membershipstore.NewInMemory()
		candidates = dupesstore.NewInMemory()
	}

	a.Resolver = resolver.New(clients,
		resolver.WithLogger(a.Logger),
		resolver.WithMetrics(identitymetrics.New()),
		resolver.WithConflictRecorder(conflicts),
		resolver.WithLoadTimeout(a.Config.Identity.LoadTimeout),
	)
	a.Ledger = ledgerservice.New(records, a.Resolver,
		ledgerservice.WithLogger(a.Logger),
		ledgerservice.WithMetrics(ledgermetrics.New()),
	)

	mm := membershipmetrics.New()
	var locker membershipservice.Locker = lock.NewInMemory()
	if a.redis != nil {
		locker = lock.NewRedis(a.redis.Client,
			lock.WithTTL(a.Config.Redis.LockTTL),
			lock.WithLogger(a.Logger),
		)
	}
	a.Reconciler = membershipservice.New(clients, a.Ledger, statuses,
		membershipservice.WithLogger(a.Logger),
		membershipservice.WithMetrics(mm),
		membershipservice.WithPublisher(a.publisher(mm)),
		membershipservice.WithTransactor(transactor),
		membershipservice.WithLocker(locker),
		membershipservice.WithWorkers(a.Config.Reconcile.Workers),
		membershipservice.WithClientTimeout(a.Config.Reconcile.ClientTimeout),
	)
	if a.Config.Reconcile.Interval > 0 {
		a.workers = append(a.workers,
			membershipservice.NewScheduler(a.Reconciler, a.Config.Reconcile.Interval, a.Logger).Run)
	}

	a.Identity = identityservice.New(clients, a.Resolver,
		identityservice.WithLogger(a.Logger),
		identityservice.WithConflictStore(conflicts),
		identityservice.WithLedger(a.Ledger),
		identityservice.WithStatus(a.Reconciler),
	)
	a.Duplicates = dupesservice.New(clients, candidates,
		dupesservice.WithLogger(a.Logger),
		dupesservice.WithMetrics(dupesmetrics.New()),
	)
}

// publisher picks the StatusChanged path. With Postgres, events go through
// the outbox in the status transaction and a relay drains it to Kafka. Without
// Postgres they are queued in process and handed to Kafka, falling back to
// the log when Kafka is absent or its breaker is open.
func (a *App) publisher(m *membershipmetrics.Metrics) membershipservice.Publisher {
	logSink := events.NewLogSink(a.Logger)

	if a.db != nil {
		var sink events.Sink = logSink
		if a.producer != nil {
			sink = events.NewKafkaSink(a.producer,
				events.WithSinkLogger(a.Logger),
				events.WithSinkMetrics(m),
			)
		}
		relay := events.NewRelay(a.db, sink,
			events.WithBatch(a.Config.Reconcile.RelayBatch),
			events.WithInterval(a.Config.Reconcile.RelayInterval),
			events.WithRelayLogger(a.Logger),
			events.WithRelayMetrics(m),
		)
		a.workers = append(a.workers, relay.Run)
		return events.NewOutboxPublisher(a.db)
	}

	var sink events.Sink = logSink
	if a.producer != nil {
		sink = events.NewKafkaSink(a.producer,
			events.WithFallback(logSink),
			events.WithSinkLogger(a.Logger),
			events.WithSinkMetrics(m),
		)
	}
	queue := events.NewChannelPublisher(256)
	a.workers = append(a.workers, events.NewWorker(sink, queue.Inbox(), a.Logger, m).Run)
	return queue
}

// Workers returns the background loops: the reconcile scheduler and the
// event delivery loop.
func (a *App) Workers() []func(ctx context.Context) error {
	return a.workers
}

// Router mounts every module's endpoints plus health and metrics.
func (a *App) Router() http.Handler {
	m := httpmetrics.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(a.Logger))
	r.Use(middleware.Logger(a.Logger, m))
	r.Use(requesttime.Middleware)
	r.Use(metadata.Operator)
	if a.Config.Server.RequestTimeout > 0 {
		r.Use(chimw.Timeout(a.Config.Server.RequestTimeout))
	}

	identityhandler.New(a.Identity, a.Resolver, a.Logger).Register(r)
	ledgerhandler.New(a.Ledger, a.Logger).Register(r)
	membershiphandler.New(a.Reconciler, a.Logger).Register(r)
	dupeshandler.New(a.Duplicates, a.Logger).Register(r)

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true
	check := func(name string, fn func(context.Context) error) {
		if err := fn(r.Context()); err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}
	check("postgres", postgres.Health{DB: a.db}.Check)
	check("redis", a.redis.Check)
	if a.producer != nil {
		check("kafka", a.producer.Check)
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
}

// Close releases the backends in reverse order of opening.
func (a *App) Close() {
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
