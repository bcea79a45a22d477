package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	goAttend "github.com/MrEthical07/goAttend"
	"github.com/MrEthical07/goAttend/internal/logging"
	"github.com/MrEthical07/goAttend/store/gormstore"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "attendd",
	Short:         "attendd runs QR attendance sessions",
	Long:          `attendd serves the attendance API, reconciles expired sessions and manages the durable schema.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if envFile == "" {
			return nil
		}
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("env-file", "", "Load environment variables from this file first")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
}

// runtimeDeps is everything a command needs to reach the engine.
type runtimeDeps struct {
	cfg      *fileConfig
	logger   *slog.Logger
	store    *gormstore.Store
	redis    redis.UniversalClient
	registry *prometheus.Registry
	engine   *goAttend.Engine
}

func (d *runtimeDeps) Close() {
	if d.engine != nil {
		d.engine.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

func commandLogger(cmd *cobra.Command) (*slog.Logger, error) {
	levelName, _ := cmd.Flags().GetString("log-level")
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	return logging.New(level), nil
}

func commandConfig(cmd *cobra.Command) (*fileConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	return loadConfig(path, os.Getenv)
}

func openStore(ctx context.Context, cfg *fileConfig, migrate bool) (*gormstore.Store, error) {
	store, err := gormstore.Open(cfg.Database.Driver, cfg.Database.DSN, cfg.storeConfig())
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

// buildRuntime wires the store, Redis and the engine. A non-nil rdb replaces the
// configured Redis address.
func buildRuntime(cmd *cobra.Command, rdb redis.UniversalClient) (*runtimeDeps, error) {
	logger, err := commandLogger(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := commandConfig(cmd)
	if err != nil {
		return nil, err
	}
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return nil, err
	}

	deps := &runtimeDeps{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	deps.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps.store, err = openStore(cmd.Context(), cfg, true)
	if err != nil {
		return nil, err
	}

	if rdb == nil {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	deps.redis = rdb

	builder := goAttend.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithStore(deps.store).
		WithLogger(logger).
		WithRegisterer(deps.registry)
	if engineCfg.Audit.Enabled {
		builder = builder.WithAuditSink(goAttend.NewSlogSink(logger.With("component", "audit")))
	}
	deps.engine, err = builder.Build()
	if err != nil {
		deps.Close()
		return nil, err
	}
	return deps, nil
}
