package gatekeeper

import (
	"errors"
	"time"

	"github.com/MrEthical07/gatekeeper/internal/limiters"
	"github.com/MrEthical07/gatekeeper/jwt"
	"github.com/MrEthical07/gatekeeper/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an Engine. Configure it once, call Build once.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	registry session.Registry
	limiter  IPLimiter
	sink     NotificationSink
	logger   *zap.Logger
	now      func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies a Redis client. Without an explicit registry or
// limiter, Build backs both with it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRegistry sets the session registry (for example a session.SQLStore).
func (b *Builder) WithRegistry(registry session.Registry) *Builder {
	b.registry = registry
	return b
}

// WithLimiter sets the per-address limiter.
func (b *Builder) WithLimiter(limiter IPLimiter) *Builder {
	b.limiter = limiter
	return b
}

// WithNotificationSink sets where login notifications go.
func (b *Builder) WithNotificationSink(sink NotificationSink) *Builder {
	b.sink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for token expiry, TOTP windows and lockouts.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
//
// The registry is the one set with WithRegistry, else a session.RedisStore
// on the WithRedis client. The limiter is the one set with WithLimiter,
// else a Redis limiter when a client is present, else an in-memory one.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- SESSION REGISTRY --------
	registry := b.registry
	if registry == nil {
		if b.redis == nil {
			return nil, configError("a session registry or redis client is required")
		}
		registry = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}

	// -------- LIMITER --------
	limiterCfg := limiters.Config{
		MaxAttempts:     cfg.Lockout.MaxAttempts,
		LockoutDuration: cfg.Lockout.Duration,
	}
	limiter := b.limiter
	if limiter == nil {
		var err error
		if b.redis != nil {
			limiter, err = limiters.NewRedisLimiter(b.redis, cfg.Lockout.RedisPrefix, limiterCfg)
		} else {
			limiter, err = limiters.NewMemoryLimiter(limiterCfg)
		}
		if err != nil {
			return nil, configError(err.Error())
		}
	}

	// -------- TOKEN CODEC --------
	jm, err := jwt.NewManager(jwt.Config{
		Secret: cloneBytes(cfg.JWT.Secret),
		TTL:    cfg.Session.TTL,
		Issuer:       cfg.JWT.Issuer,
		AcceptLegacy: cfg.Session.AllowLegacyTokens,
		Now:          now,
	})
	if err != nil {
		return nil, configError(err.Error())
	}

	engine := &Engine{
		config:     cfg,
		registry:   registry,
		limiter:    limiter,
		jwtManager: jm,
		logger:     logger,
		now:        now,
		newID:      uuid.NewString,
	}
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.notify = newNotifyDispatcher(cfg.Notify, b.sink, engine.metrics, logger)
	engine.flows = engine.buildFlowDeps()

	b.built = true

	return engine, nil
}
