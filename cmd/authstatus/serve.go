package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authstatus/internal/rate"
	"github.com/MrEthical07/authstatus/internal/server"
	"github.com/MrEthical07/authstatus/password"
	"github.com/MrEthical07/authstatus/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		addr      string
		redisAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo session API",
		Long: `Run the demo API. Without --redis-addr or REDIS_ADDR an embedded
miniredis is used, which only in-process watchers can reach.

Settings come from AUTHSTATUS_* variables; AUTHSTATUS_JWT_SECRET is required.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := flags.logger()
			if err != nil {
				return err
			}
			cfg, err := server.LoadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			client, cleanup, err := openRedis(redisAddr, true, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			tokens, err := newTokenManager(cfg)
			if err != nil {
				return err
			}
			hasher, err := password.NewHasher(password.DefaultConfig())
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(cfg.DemoPass)
			if err != nil {
				return err
			}
			users := server.NewDirectory()
			users.Put(server.User{ID: "user-1", Email: cfg.DemoEmail, PasswordHash: hash})

			store := session.NewStore(client, cfg.RedisPrefix, cfg.SessionTTL)
			var opts []server.Option
			if cfg.LoginMaxAttempts > 0 {
				limiter, err := rate.New(client, rate.Config{
					Prefix:      cfg.RedisPrefix + ":login",
					MaxAttempts: cfg.LoginMaxAttempts,
					Window:      cfg.LoginWindow,
				})
				if err != nil {
					return err
				}
				opts = append(opts, server.WithLoginLimiter(limiter))
			}
			srv := server.New(store, tokens, users, hasher, logger, opts...)

			httpServer := &http.Server{
				Addr:              cfg.Addr,
				Handler:           srv.Routes(promhttp.Handler()),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", cfg.Addr, "demo_user", cfg.DemoEmail)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info("shutting down")
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default AUTHSTATUS_SERVER_ADDR or :8080)")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "redis address (default REDIS_ADDR, else embedded miniredis)")
	return cmd
}
