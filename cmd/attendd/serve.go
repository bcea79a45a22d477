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

	"github.com/MrEthical07/goAttend/httpapi"
	"github.com/MrEthical07/goAttend/jwt"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance HTTP server",
	Long:  `Starts the attendance API together with the background sweeper that closes expired sessions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		embedded, _ := cmd.Flags().GetBool("embedded-redis")

		var rdb redis.UniversalClient
		if embedded {
			mr, err := miniredis.Run()
			if err != nil {
				return fmt.Errorf("start embedded redis: %w", err)
			}
			defer mr.Close()
			rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		}

		deps, err := buildRuntime(cmd, rdb)
		if err != nil {
			return err
		}
		defer deps.Close()
		logger := deps.logger
		if embedded {
			logger.Warn("using embedded redis, cache state is lost on exit")
		}

		identity, err := identityManager(deps.cfg)
		if err != nil {
			return err
		}

		addr := deps.cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}
		srv := &http.Server{
			Addr: addr,
			Handler: httpapi.NewHandler(deps.engine, identity, httpapi.Options{
				AllowedOrigins: deps.cfg.Server.AllowedOrigins,
				Gatherer:       deps.registry,
				Logger:         logger,
				RequestTimeout: deps.cfg.Server.RequestTimeout,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		sweepCtx, stopSweeper := context.WithCancel(cmd.Context())
		defer stopSweeper()
		sweeperDone := make(chan struct{})
		go func() {
			defer close(sweeperDone)
			_ = deps.engine.NewSweeper().Run(sweepCtx)
		}()

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("attendd listening", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		var runErr error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				runErr = fmt.Errorf("server error: %w", err)
			}

		case sig := <-shutdown:
			logger.Info("shutdown started", "signal", sig.String())

			timeout := deps.cfg.Server.ShutdownTimeout
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown did not complete", "timeout", timeout, "error", err)
				if err := srv.Close(); err != nil {
					logger.Error("server close failed", "error", err)
				}
			}
		}

		stopSweeper()
		<-sweeperDone
		logger.Info("attendd stopped")
		return runErr
	},
}

func identityManager(cfg *fileConfig) (*jwt.Manager, error) {
	if cfg.Identity.Secret == "" {
		return nil, errors.New("IDENTITY_JWT_SECRET is required")
	}
	return jwt.NewManager(jwt.Config{
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(cfg.Identity.Secret),
		Issuer:        cfg.Identity.Issuer,
	})
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Listen address, overrides server.addr")
	serveCmd.Flags().Bool("embedded-redis", false, "Run an in-process Redis for local development")
}
