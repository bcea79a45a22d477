package goAttend

import (
	"errors"
	"strings"
	"time"
)

// Config is the engine configuration. Obtain a populated value from
// [DefaultConfig] and override fields as needed.
type Config struct {
	Session SessionConfig
	QR      QRConfig
	Cache   CacheConfig
	Sweeper SweeperConfig
	Scan    ScanConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig bounds session durations.
type SessionConfig struct {
	// DefaultDuration applies when Start is called with zero minutes.
	DefaultDuration time.Duration
	MaxDuration     time.Duration
	// CacheGrace is added to the cache entry lifetime beyond the deadline.
	CacheGrace time.Duration
	MaxClasses int
}

/*
====================================
QR CONFIG
====================================
*/

// QRConfig controls rotating token issuance.
type QRConfig struct {
	Validity time.Duration
	// SkewBuffer keeps the nonce record alive past Validity.
	SkewBuffer    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	KeyID         string
	// ImageSize is the PNG edge in pixels. Zero disables image rendering.
	ImageSize int
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig controls the Redis key namespace.
type CacheConfig struct {
	RedisPrefix string
}

/*
====================================
SWEEPER CONFIG
====================================
*/

// SweeperConfig controls expiry reconciliation.
type SweeperConfig struct {
	Interval time.Duration
	// BeforeRequests runs a sweep inline ahead of lifecycle-affecting calls.
	BeforeRequests bool
}

/*
====================================
SCAN CONFIG
====================================
*/

// ScanConfig throttles student scans per fixed window.
type ScanConfig struct {
	EnableThrottle bool
	MaxAttempts    int
	Window         time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit queue.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults: 3 minute sessions with 20 seconds
// of cache grace and 5 second QR tokens whose nonces live 7 seconds.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			DefaultDuration: 3 * time.Minute,
			MaxDuration:     3 * time.Hour,
			CacheGrace:      20 * time.Second,
			MaxClasses:      32,
		},
		QR: QRConfig{
			Validity:      5 * time.Second,
			SkewBuffer:    2 * time.Second,
			SigningMethod: "hs256",
			ImageSize:     256,
		},
		Sweeper: SweeperConfig{
			Interval:       30 * time.Second,
			BeforeRequests: true,
		},
		Scan: ScanConfig{
			EnableThrottle: true,
			MaxAttempts:    10,
			Window:         time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "goattend",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.QR.PrivateKey = cloneBytes(cfg.QR.PrivateKey)
	out.QR.PublicKey = cloneBytes(cfg.QR.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// Session
	if c.Session.DefaultDuration <= 0 {
		return errors.New("Session DefaultDuration must be > 0")
	}
	if c.Session.DefaultDuration%time.Minute != 0 {
		return errors.New("Session DefaultDuration must be whole minutes")
	}
	if c.Session.MaxDuration < c.Session.DefaultDuration {
		return errors.New("Session MaxDuration must be >= DefaultDuration")
	}
	if c.Session.CacheGrace < 0 {
		return errors.New("Session CacheGrace must be >= 0")
	}
	if c.Session.MaxClasses <= 0 || c.Session.MaxClasses > 255 {
		return errors.New("Session MaxClasses must be in 1..255")
	}

	// QR
	if c.QR.Validity < time.Second {
		return errors.New("QR Validity must be >= 1s")
	}
	if c.QR.Validity%time.Second != 0 {
		return errors.New("QR Validity must be whole seconds")
	}
	if c.QR.SkewBuffer < 0 {
		return errors.New("QR SkewBuffer must be >= 0")
	}
	switch strings.ToLower(c.QR.SigningMethod) {
	case "hs256":
		if len(c.QR.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.QR.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.QR.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported QR signing method")
	}
	if c.QR.ImageSize < 0 || c.QR.ImageSize > 2048 {
		return errors.New("QR ImageSize must be in 0..2048")
	}

	// Cache
	if strings.ContainsAny(c.Cache.RedisPrefix, " \t\r\n") {
		return errors.New("Cache RedisPrefix must not contain whitespace")
	}

	// Sweeper
	if c.Sweeper.Interval <= 0 {
		return errors.New("Sweeper Interval must be > 0")
	}

	// Scan
	if c.Scan.EnableThrottle {
		if c.Scan.MaxAttempts <= 0 {
			return errors.New("Scan MaxAttempts must be > 0 when throttling")
		}
		if c.Scan.Window <= 0 {
			return errors.New("Scan Window must be > 0 when throttling")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
