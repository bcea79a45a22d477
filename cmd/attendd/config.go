package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goAttend "github.com/MrEthical07/goAttend"
	"github.com/MrEthical07/goAttend/store/gormstore"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk service configuration. Secrets and addresses may be
// supplied through the environment instead.
type fileConfig struct {
	Server   serverConfig   `yaml:"server"`
	Redis    redisConfig    `yaml:"redis"`
	Database databaseConfig `yaml:"database"`
	Identity identityConfig `yaml:"identity"`
	Session  sessionConfig  `yaml:"session"`
	QR       qrConfig       `yaml:"qr"`
	Sweeper  sweeperConfig  `yaml:"sweeper"`
	Scan     scanConfig     `yaml:"scan"`
	Audit    auditConfig    `yaml:"audit"`
}

type serverConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type redisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type databaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	LogLevel        string        `yaml:"log_level"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type identityConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

type sessionConfig struct {
	DefaultDuration time.Duration `yaml:"default_duration"`
	MaxDuration     time.Duration `yaml:"max_duration"`
	CacheGrace      time.Duration `yaml:"cache_grace"`
}

type qrConfig struct {
	Secret    string `yaml:"secret"`
	Issuer    string `yaml:"issuer"`
	ImageSize int    `yaml:"image_size"`
}

type sweeperConfig struct {
	Interval       time.Duration `yaml:"interval"`
	BeforeRequests *bool         `yaml:"before_requests"`
}

type scanConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

type auditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
}

func defaultFileConfig() *fileConfig {
	return &fileConfig{
		Server: serverConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Redis: redisConfig{
			Addr: "localhost:6379",
		},
		Database: databaseConfig{
			Driver: gormstore.DriverSQLite,
			DSN:    "file:attendd.db?_busy_timeout=5000",
		},
		Identity: identityConfig{
			Issuer: "goattend",
		},
	}
}

// loadConfig reads path, when set, over the defaults and then applies the
// environment through getenv.
func loadConfig(path string, getenv func(string) string) (*fileConfig, error) {
	cfg := defaultFileConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	overlay := map[string]*string{
		"QR_JWT_SECRET":       &cfg.QR.Secret,
		"IDENTITY_JWT_SECRET": &cfg.Identity.Secret,
		"REDIS_ADDR":          &cfg.Redis.Addr,
		"REDIS_PASSWORD":      &cfg.Redis.Password,
		"DATABASE_DRIVER":     &cfg.Database.Driver,
		"DATABASE_DSN":        &cfg.Database.DSN,
		"HTTP_ADDR":           &cfg.Server.Addr,
	}
	for key, dst := range overlay {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	if v := strings.TrimSpace(getenv("CORS_ORIGINS")); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// engineConfig layers the file settings over [goAttend.DefaultConfig].
func (c *fileConfig) engineConfig() (goAttend.Config, error) {
	cfg := goAttend.DefaultConfig()
	if c.QR.Secret == "" {
		return cfg, errors.New("QR_JWT_SECRET is required")
	}
	cfg.QR.PrivateKey = []byte(c.QR.Secret)
	if c.QR.Issuer != "" {
		cfg.QR.Issuer = c.QR.Issuer
	}
	if c.QR.ImageSize != 0 {
		cfg.QR.ImageSize = c.QR.ImageSize
	}
	if c.Redis.Prefix != "" {
		cfg.Cache.RedisPrefix = c.Redis.Prefix
	}

	if c.Session.DefaultDuration > 0 {
		cfg.Session.DefaultDuration = c.Session.DefaultDuration
	}
	if c.Session.MaxDuration > 0 {
		cfg.Session.MaxDuration = c.Session.MaxDuration
	}
	if c.Session.CacheGrace > 0 {
		cfg.Session.CacheGrace = c.Session.CacheGrace
	}

	if c.Sweeper.Interval > 0 {
		cfg.Sweeper.Interval = c.Sweeper.Interval
	}
	if c.Sweeper.BeforeRequests != nil {
		cfg.Sweeper.BeforeRequests = *c.Sweeper.BeforeRequests
	}

	if c.Scan.MaxAttempts > 0 {
		cfg.Scan.MaxAttempts = c.Scan.MaxAttempts
	}
	if c.Scan.Window > 0 {
		cfg.Scan.Window = c.Scan.Window
	}

	cfg.Audit.Enabled = c.Audit.Enabled
	if c.Audit.BufferSize > 0 {
		cfg.Audit.BufferSize = c.Audit.BufferSize
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *fileConfig) storeConfig() gormstore.Config {
	return gormstore.Config{
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		LogLevel:        c.Database.LogLevel,
	}
}
