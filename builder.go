package jsonfas

import (
	"errors"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/jsonfas/csrf"
	internalaudit "github.com/MrEthical07/jsonfas/internal/audit"
	"github.com/MrEthical07/jsonfas/internal/rate"
	"github.com/MrEthical07/jsonfas/password"
)

// Builder assembles a [Provider]. Configure it during initialization, call
// [Builder.Build] once, and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	service   AccountService
	passwords PasswordValidator
	auditSink AuditSink
	log       logr.Logger

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		log:    logr.Discard(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAccountService sets the account service client. It is required.
func (b *Builder) WithAccountService(service AccountService) *Builder {
	b.service = service
	return b
}

// WithRedis sets the Redis client backing the login throttle. It is required
// when Config.Throttle.Enabled is true.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(log logr.Logger) *Builder {
	b.log = log
	return b
}

// WithPasswordValidator replaces the stored-hash comparison used by
// [Provider.ValidatePassword], for example to check an external directory.
func (b *Builder) WithPasswordValidator(v PasswordValidator) *Builder {
	b.passwords = v
	return b
}

// WithAuditSink sets where audit events go. Events are only emitted when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the retrieve latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns the provider. A builder can
// only be built once.
func (b *Builder) Build() (*Provider, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.service == nil {
		return nil, errors.New("account service required")
	}
	if cfg.Throttle.Enabled && b.redis == nil {
		return nil, errors.New("login throttle requires redis client")
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinPasswordBytes: cfg.Password.MinPasswordBytes,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	p := &Provider{
		config:    cfg,
		service:   b.service,
		csrf:      csrf.New(cfg.CSRF.Secret),
		passwords: b.passwords,
		hasher:    hasher,
		metrics:   NewMetrics(cfg.Metrics),
		log:       b.log.WithName("jsonfas"),
	}

	if cfg.Throttle.Enabled {
		p.rateLimiter = rate.New(b.redis, rate.Config{
			Prefix:           cfg.Throttle.RedisPrefix,
			EnableIPThrottle: cfg.Throttle.EnableIPThrottle,
			MaxLoginAttempts: cfg.Throttle.MaxAttempts,
			LoginCooldown:    cfg.Throttle.Cooldown,
		})
	}

	p.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     p.log.WithName("audit"),
	}, b.auditSink)

	if cfg.Debug {
		p.log.V(1).Info("identity provider built",
			"service", cfg.Service.URL,
			"ssl", cfg.SSL.Enabled,
			"throttle", cfg.Throttle.Enabled,
			"keyed_csrf", cfg.CSRF.Secret != "",
		)
		for _, w := range cfg.Lint() {
			p.log.V(1).Info("config finding", "code", w.Code, "severity", w.Severity.String(), "detail", w.Message)
		}
	}

	b.built = true
	return p, nil
}
