package goAttend

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goAttend/cache"
	"github.com/MrEthical07/goAttend/internal/logging"
	"github.com/MrEthical07/goAttend/internal/rate"
	"github.com/MrEthical07/goAttend/jwt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  Store

	logger     *slog.Logger
	auditSink  AuditSink
	registerer prometheus.Registerer
	clock      func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the cache backend client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the durable store.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithLogger sets the logger. The default discards output.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination. It has no effect unless Audit.Enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRegisterer sets where Prometheus collectors are registered.
func (b *Builder) WithRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// WithMetricsEnabled toggles Prometheus instrumentation.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithClock overrides the time source used for deadlines and token windows.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build validates the configuration and returns the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	cfg.QR.SigningMethod = strings.ToLower(cfg.QR.SigningMethod)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("durable store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- TOKEN ISSUER --------
	qr, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.QR.SigningMethod),
		PrivateKey:    cloneBytes(cfg.QR.PrivateKey),
		PublicKey:     cloneBytes(cfg.QR.PublicKey),
		Issuer:        cfg.QR.Issuer,
		KeyID:         cfg.QR.KeyID,
	})
	if err != nil {
		return nil, fmt.Errorf("qr signer: %w", err)
	}

	// -------- CACHE --------
	c := cache.NewRedis(b.redis)

	metrics, err := NewMetrics(cfg.Metrics, b.registerer)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	logger := b.logger
	if logger == nil {
		logger = logging.NewNop()
	}

	engine := &Engine{
		config: cloneConfig(cfg),
		store:  b.store,
		cache:  c,
		state:  cache.NewState(c, cfg.Cache.RedisPrefix),
		limiter: rate.New(b.redis, cfg.Cache.RedisPrefix, rate.Config{
			EnableScanThrottle: cfg.Scan.EnableThrottle,
			MaxScanAttempts:    cfg.Scan.MaxAttempts,
			ScanWindow:         cfg.Scan.Window,
		}),
		qr:      qr,
		metrics: metrics,
		logger:  logger,
		clock:   b.clock,
	}
	engine.audit = newAuditQueue(cfg.Audit, b.auditSink, func() { metrics.Inc(MetricAuditDropped) })

	b.built = true

	return engine, nil
}
