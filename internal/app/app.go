package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/warungtech/pos-register/internal/backend"
	"github.com/warungtech/pos-register/internal/cache"
	"github.com/warungtech/pos-register/internal/events"
	"github.com/warungtech/pos-register/internal/httpapi"
	"github.com/warungtech/pos-register/internal/register"
	"github.com/warungtech/pos-register/internal/storage/postgres"
	"github.com/warungtech/pos-register/pkg/health"
	"github.com/warungtech/pos-register/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("platform_url", cfg.PlatformURL))

	// Platform client with an instrumented transport.
	platform := backend.New(cfg.PlatformURL,
		backend.WithAPIKey(cfg.PlatformAPIKey),
		backend.WithHTTPClient(&http.Client{
			Timeout: 30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
		}),
	)

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Optional sales journal.
	var journal *postgres.Journal
	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		journal = postgres.NewJournal(pool)
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
	}

	// Optional lot search cache.
	var (
		lots     httpapi.LotSearcher = platform
		lotCache *cache.LotSearch
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()

		lotCache = cache.NewLotSearch(platform, rdb, lg.Named("cache"))
		lots = lotCache
		healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	// Optional sale event publishing.
	var (
		sink    register.EventSink = register.NopSink{}
		pubDone chan struct{}
	)
	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Buffer, lg.Named("events"))
		sink = pub
		pubDone = make(chan struct{})
		go func() {
			defer close(pubDone)
			if err := pub.Run(ctx); err != nil {
				lg.Error("event publisher stopped", zap.Error(err))
			}
		}()
	}

	// A completed sale changes on-hand stock; drop cached searches with it.
	if lotCache != nil {
		sink = cache.NewSaleSink(sink, lotCache, lg.Named("cache"))
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	salesCounter, err := m.MeterProvider().
		Meter("pos-register").
		Int64Counter("pos.sales.completed")
	if err != nil {
		return errors.Wrap(err, "create sales counter")
	}

	// One register session per terminal.
	sessions := httpapi.NewManager(func() *register.Session {
		opts := []register.Option{
			register.WithLogger(lg.Named("session")),
			register.WithEvents(sink),
			register.WithSalesCounter(salesCounter),
			register.WithPollInterval(cfg.PollInterval),
		}
		if journal != nil {
			opts = append(opts, register.WithJournal(journal))
		}
		return register.NewSession(platform, opts...)
	}, lg.Named("sessions"))
	defer sessions.CloseAll()

	var reader httpapi.SaleReader
	if journal != nil {
		reader = journal
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	httpapi.NewHandler(sessions, lots, reader).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "X-Terminal-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	if pubDone != nil {
		<-pubDone
	}
	return nil
}
