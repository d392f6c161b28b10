package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/gatekeeper"
	"github.com/MrEthical07/gatekeeper/api"
	"github.com/MrEthical07/gatekeeper/internal/config"
	"github.com/MrEthical07/gatekeeper/internal/limiters"
	"github.com/MrEthical07/gatekeeper/internal/logging"
	otelexport "github.com/MrEthical07/gatekeeper/metrics/export/otel"
	promexport "github.com/MrEthical07/gatekeeper/metrics/export/prometheus"
	"github.com/MrEthical07/gatekeeper/notify/kafkasink"
	"github.com/MrEthical07/gatekeeper/session"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.TOTPSecret == "" {
		return printEnrollment(logger, cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("shutdown close failed", zap.Error(err))
			}
		}
	}()

	var rdb redis.UniversalClient
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		client := redis.NewClient(opts)
		closers = append(closers, client.Close)
		rdb = client
	}

	registry, err := openRegistry(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	closers = append(closers, registry.Close)

	limiter, err := openLimiter(cfg, rdb)
	if err != nil {
		return err
	}

	sinks := gatekeeper.MultiSink{gatekeeper.NewLogSink(logger.Named("notify"))}
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		ks, err := kafkasink.New(kafkasink.Config{Brokers: brokers, Topic: cfg.NotifyKafkaTopic}, logger.Named("kafka"))
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		closers = append(closers, ks.Close)
		sinks = append(sinks, ks)
	}

	engine, err := gatekeeper.New().
		WithConfig(cfg.Engine()).
		WithRegistry(registry).
		WithLimiter(limiter).
		WithNotificationSink(sinks).
		WithLogger(logger.Named("engine")).
		Build()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	// Runs before the sinks and stores close, so queued events drain first.
	closers = append(closers, func() error { engine.Close(); return nil })

	opts := api.Options{
		TrustProxy:   cfg.TrustProxy,
		CookieSecure: cfg.CookieSecure,
		TOTPIssuer:   cfg.TOTPIssuer,
	}
	if cfg.MetricsEnabled {
		opts.Metrics = promexport.NewExporter(engine).Handler()

		oe, err := otelexport.NewExporter(otel.GetMeterProvider().Meter("github.com/MrEthical07/gatekeeper"), engine)
		if err != nil {
			return fmt.Errorf("otel exporter: %w", err)
		}
		closers = append(closers, oe.Close)
	}
	if cfg.GoogleEnabled() {
		opts.Google = &api.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			AllowedEmail: cfg.AllowedEmail,
		}
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.NewRouter(engine, opts, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server started",
			zap.String("environment", cfg.Env),
			zap.String("address", server.Addr),
			zap.String("session_backend", cfg.SessionBackend),
			zap.String("limiter_backend", cfg.LimiterBackend),
			zap.Bool("google_login", opts.Google != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openRegistry(ctx context.Context, cfg *config.Config, rdb redis.UniversalClient) (session.Registry, error) {
	if cfg.SessionBackend == config.BackendRedis {
		return session.NewRedisStore(rdb, "gk"), nil
	}

	openCtx, cancel := context.WithTimeout(ctx, 5*cfg.StoreTimeout)
	defer cancel()
	store, err := session.OpenSQL(openCtx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	return store, nil
}

func openLimiter(cfg *config.Config, rdb redis.UniversalClient) (gatekeeper.IPLimiter, error) {
	lc := limiters.Config{
		MaxAttempts:     cfg.MaxAttempts,
		LockoutDuration: cfg.LockoutDuration,
	}
	if cfg.LimiterBackend == config.BackendRedis {
		return limiters.NewRedisLimiter(rdb, "gk", lc)
	}
	return limiters.NewMemoryLimiter(lc)
}

// printEnrollment logs a fresh secret for first-time setup. The server does
// not start until TOTP_SECRET is set.
func printEnrollment(logger *zap.Logger, cfg *config.Config) error {
	secret, uri, err := gatekeeper.GenerateTOTPSecret(cfg.TOTPIssuer, "admin")
	if err != nil {
		return fmt.Errorf("generate totp secret: %w", err)
	}
	logger.Warn("TOTP_SECRET is not set; add the generated secret to the environment and restart",
		zap.String("secret", secret),
		zap.String("otpauth_url", uri),
	)
	return errors.New("config: TOTP_SECRET must be set")
}
