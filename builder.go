package hubauth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/serverhub/hubauth/internal/audit"
	"github.com/serverhub/hubauth/internal/rate"
	"github.com/serverhub/hubauth/password"
	"github.com/serverhub/hubauth/session"
	"github.com/serverhub/hubauth/store"
)

// Builder assembles an Engine. A Builder can be used for one Build call.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  store.Store

	revoker     ResourceRevoker
	auditSink   AuditSink
	auditReader AuditReader
	logger      *slog.Logger
	now         func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder seeded with DefaultConfig. It performs no I/O.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client used for sessions and throttling. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the relational store holding roles, identities and bans.
// Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithResourceRevoker sets the hook called after an address ban commits.
func (b *Builder) WithResourceRevoker(r ResourceRevoker) *Builder {
	b.revoker = r
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink sets where audit events are delivered. If the sink also
// implements AuditReader it backs Engine.AuditLog unless WithAuditReader
// overrides it.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithAuditReader sets the source for Engine.AuditLog.
func (b *Builder) WithAuditReader(r AuditReader) *Builder {
	b.auditReader = r
	return b
}

// WithLogger sets the operational logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for sessions, ban expiry and audit
// timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled toggles Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles Config.Metrics.EnableLatencyHistograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, checks that required dependencies are
// present, and starts the audit dispatcher. It does not touch storage; call
// Engine.Bootstrap to create base roles and the owner.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinPasswordBytes: cfg.Password.MinLength,
		MaxPasswordBytes: cfg.Password.MaxLength,
	})
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	sessions, err := session.NewStore(b.redis, session.Options{
		Prefix:   cfg.Session.RedisPrefix,
		TTL:      cfg.Session.TTL,
		HashCost: cfg.Session.SecretHashCost,
		Now:      now,
	})
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.Security.EnableLoginThrottle || cfg.Security.MaxRegistrationsPerAddress > 0 {
		limiter = rate.New(b.redis, rate.Config{
			Prefix:                     cfg.Security.RateLimitPrefix,
			MaxLoginAttempts:           throttleAttempts(cfg.Security),
			LoginWindow:                cfg.Security.LoginCooldownDuration,
			EnableAddressThrottle:      cfg.Security.EnableAddressThrottle,
			MaxRegistrationsPerAddress: cfg.Security.MaxRegistrationsPerAddress,
			RegistrationWindow:         cfg.Security.RegistrationWindow,
		})
	}

	revoker := b.revoker
	if revoker == nil {
		revoker = noopRevoker{}
	}

	reader := b.auditReader
	if reader == nil {
		reader, _ = b.auditSink.(AuditReader)
	}

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		sessions:  sessions,
		limiter:   limiter,
		passwords: hasher,
		revoker:   revoker,
		auditLog:  reader,
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
		now:       now,
	}

	if cfg.Audit.Enabled {
		engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:      cfg.Audit.Enabled,
			BufferSize:   cfg.Audit.BufferSize,
			DropIfFull:   cfg.Audit.DropIfFull,
			BlockTimeout: cfg.Audit.BlockTimeout,
		}, b.auditSink)
	}

	b.built = true
	return engine, nil
}

// throttleAttempts returns 0 (unlimited) when login throttling is off.
func throttleAttempts(cfg SecurityConfig) int {
	if !cfg.EnableLoginThrottle {
		return 0
	}
	return cfg.MaxLoginAttempts
}
