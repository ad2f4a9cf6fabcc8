package main

import (
	"context"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/clinicflow/libs/config"
	"github.com/md-rashed-zaman/clinicflow/libs/db"
	"github.com/md-rashed-zaman/clinicflow/libs/httpx"
	"github.com/md-rashed-zaman/clinicflow/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicflow/libs/otel"
	"github.com/md-rashed-zaman/clinicflow/libs/runtime"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/composer"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/encounter"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/inflight"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/notify"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/revisit"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/statemachine"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/stores"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := loadSettings()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	appointments, err := stores.NewAppointmentClient(stores.ClientConfig{BaseURL: cfg.AppointmentsURL, Timeout: cfg.StoreTimeout})
	if err != nil {
		panic(err)
	}
	prescriptions, err := stores.NewPrescriptionClient(stores.ClientConfig{BaseURL: cfg.PrescriptionsURL, Timeout: cfg.StoreTimeout})
	if err != nil {
		panic(err)
	}
	catalog, err := stores.NewCatalogClient(stores.ClientConfig{BaseURL: cfg.CatalogURL, Timeout: cfg.StoreTimeout})
	if err != nil {
		panic(err)
	}

	hub := notify.NewHub(logger)
	sinks := notify.Multi{notify.Observed("hub", hub, m)}
	var checks []runtime.ReadyCheck

	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := outbox.Migrate(ctx, pool); err != nil {
			logger.Error("outbox migration failed", "err", err)
			os.Exit(1)
		}
		repo := outbox.NewRepository()
		sinks = append(sinks, notify.Observed("outbox", notify.NewOutboxNotifier(pool, repo), m))
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		publisher := outbox.NewPublisher(pool, repo, logger, m, outbox.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go publisher.Run(ctx)
		if brokers := kafkax.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		}
	} else {
		logger.Warn("DATABASE_URL not set; patient notifications stay on the portal stream")
	}

	var guard inflight.Guard = inflight.NewMemoryGuard()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		guard = inflight.NewRedisGuard(rdb, inflight.RedisOptions{TTL: cfg.InflightTTL, Logger: logger})
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: inflight.ReadyCheck(rdb)})
	}

	machine := statemachine.New(appointments, guard, m, logger)
	api := handlers.NewEncounterHandler(handlers.Deps{
		Machine:       machine,
		Saga:          encounter.NewSaga(machine, prescriptions, sinks, m, logger),
		Revisits:      revisit.NewScheduler(machine, appointments, sinks, m, logger, cfg.Revisit),
		Cancellations: cancellation.NewWorkflow(machine, prescriptions, sinks, logger, cfg.Cancellation),
		Composer:      composer.New(catalog),
		Logger:        logger,
	})

	apiMux := http.NewServeMux()
	api.Register(apiMux)

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/v1/", httpx.Chain(apiMux,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(cfg.RequestTimeout),
	))
	mux.Handle("GET /api/v1/notifications/ws", hub)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger, "/healthz", "/readyz", "/metrics"),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "encounter")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := runtime.ServeUntilDone(ctx, srv, logger, 10*time.Second); err != nil {
		os.Exit(1)
	}
}
