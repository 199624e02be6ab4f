package app

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/morita/pos/internal/domain/inventory"
	"github.com/morita/pos/internal/domain/sale"
	"github.com/morita/pos/internal/domain/session"
	"github.com/morita/pos/internal/domain/voice"
	"github.com/morita/pos/internal/groq"
	"github.com/morita/pos/internal/handler"
	"github.com/morita/pos/internal/storage/file"
	"github.com/morita/pos/internal/storage/postgres"
	"github.com/morita/pos/internal/storage/redis"
	"github.com/morita/pos/pkg/health"
	"github.com/morita/pos/pkg/httpmiddleware"
)

const meterName = "github.com/morita/pos"

// Telemetry provides the tracer and meter providers. *app.Telemetry of
// go-faster/sdk implements it.
type Telemetry = httpmiddleware.Telemetry

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("inventory_driver", cfg.Inventory.Driver),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Inventory store.
	var repo inventory.Repository
	switch cfg.Inventory.Driver {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Inventory.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
		repo = postgres.NewInventoryRepository(pool)
	default:
		fileRepo := file.NewRepository(cfg.Inventory.Path)
		healthSvc.AddReadinessCheck("inventory_dir", time.Second,
			health.WritableDirCheck(filepath.Dir(fileRepo.Path())),
		)
		repo = fileRepo
	}

	// Session store.
	var sessionStore session.Store = session.NewMemoryStore()
	if cfg.Session.RedisURL != "" {
		client, err := redis.NewClient(ctx, cfg.Session.RedisURL)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = client.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		sessionStore = redis.NewSessionStore(client, cfg.Session.TTL)
	}

	// Domain services.
	meter := m.MeterProvider().Meter(meterName)

	inventorySvc := inventory.NewService(repo, lg.Named("inventory"))
	inventorySvc.Load(ctx)

	saleSvc, err := sale.NewService(inventorySvc, cfg.StoreName, lg.Named("sale"), meter)
	if err != nil {
		return errors.Wrap(err, "create sale service")
	}

	groqClient, err := groq.NewClient(groq.Options{
		APIKey:             cfg.Groq.APIKey,
		BaseURL:            cfg.Groq.BaseURL,
		TranscriptionModel: cfg.Groq.TranscriptionModel,
		ChatModel:          cfg.Groq.ChatModel,
		Language:           cfg.Groq.Language,
		Temperature:        cfg.Groq.Temperature,
		StoreName:          cfg.StoreName,
		Timeout:            cfg.Groq.Timeout,
		TracerProvider:     m.TracerProvider(),
		Logger:             lg.Named("groq"),
	})
	if err != nil {
		return errors.Wrap(err, "create groq client")
	}

	pipeline, err := voice.NewPipeline(groqClient, groqClient, inventorySvc, lg.Named("voice"), meter)
	if err != nil {
		return errors.Wrap(err, "create voice pipeline")
	}

	// HTTP handlers.
	h := handler.New(handler.Config{
		MaxAudioBytes:  cfg.Limits.MaxAudioBytes,
		MaxUploadBytes: cfg.Limits.MaxUploadBytes,
		SecureCookie:   cfg.Session.SecureCookie,
		SessionTTL:     cfg.Session.TTL,
	}, inventorySvc, saleSvc, pipeline, session.NewManager(sessionStore))

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	// Voice calls spend paid model time, so they are limited per till.
	voiceLimiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:     cfg.RateLimit.Max,
		Window:  cfg.RateLimit.Window,
		KeyFunc: httpmiddleware.CookieOrIP(handler.SessionCookie),
		Match:   httpmiddleware.PathPrefix("/api/voice"),
	})

	// Dictation waits on two model calls, hence the long write timeout.
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		// Requests outlive ctx during the drain, and the base logger reaches
		// middleware that runs before InjectLogger.
		BaseContext: func(net.Listener) context.Context {
			return zctx.Base(context.WithoutCancel(ctx), lg)
		},
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			voiceLimiter.Middleware(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument("pos-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		voiceLimiter.RunEviction(gctx)
		return nil
	})
	// Graceful shutdown: wait for context cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		defer healthSvc.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
