package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authstatus"
	"github.com/MrEthical07/authstatus/internal/server"
	promexport "github.com/MrEthical07/authstatus/metrics/export/prometheus"
	"github.com/MrEthical07/authstatus/session"
	"github.com/spf13/cobra"
)

func watchCmd(flags *globalFlags) *cobra.Command {
	var (
		clientID    string
		baseURL     string
		configPath  string
		redisAddr   string
		metricsAddr string
		auditLog    bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow one client's session and print every state change",
		Long: `Run a controller for --client-id against a running serve instance.
The watcher must share Redis and AUTHSTATUS_JWT_SECRET with the server.

Controller settings come from --config (YAML) or AUTHSTATUS_* variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := flags.logger()
			if err != nil {
				return err
			}
			if clientID == "" {
				return errors.New("--client-id is required")
			}

			cfg, err := loadControllerConfig(configPath)
			if err != nil {
				return err
			}
			if baseURL != "" {
				cfg.BaseURL = baseURL
			}
			for _, w := range cfg.Lint() {
				logger.Warn("config lint", "code", w.Code, "message", w.Message)
			}

			srvCfg, err := server.LoadConfig()
			if err != nil {
				return err
			}
			tokens, err := newTokenManager(srvCfg)
			if err != nil {
				return err
			}
			client, cleanup, err := openRedis(redisAddr, false, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			store := session.NewStore(client, srvCfg.RedisPrefix, srvCfg.SessionTTL)
			out := cmd.OutOrStdout()

			builder := authstatus.New().
				WithConfig(cfg).
				WithSessionProvider(session.NewProvider(store, tokens, clientID, session.WithLogger(logger))).
				WithNavigator(authstatus.NavigatorFunc(func(path string) {
					fmt.Fprintf(out, "-> navigate %s\n", path)
				})).
				WithHTTPClient(&http.Client{Timeout: 30 * time.Second}).
				WithLogger(logger.With("component", "authstatus"))
			if auditLog {
				builder = builder.WithAuditSink(authstatus.NewJSONWriterSink(cmd.ErrOrStderr()))
			}
			controller, err := builder.Build()
			if err != nil {
				return err
			}
			defer controller.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if metricsAddr != "" {
				stopMetrics := serveMetrics(metricsAddr, promexport.NewCollector(controller).Handler(), logger)
				defer stopMetrics()
			}

			states, cancel := controller.Watch()
			defer cancel()

			if err := controller.Start(ctx); err != nil {
				return err
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case state, ok := <-states:
					if !ok {
						return nil
					}
					printState(out, state)
				}
			}
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "client id to follow")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "server base url, e.g. http://localhost:8080")
	cmd.Flags().StringVar(&configPath, "config", "", "YAML controller config (default: AUTHSTATUS_* variables)")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "redis address (default REDIS_ADDR)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve controller metrics on this address")
	cmd.Flags().BoolVar(&auditLog, "audit", false, "write audit events as JSON lines to stderr")
	return cmd
}

func loadControllerConfig(path string) (authstatus.Config, error) {
	if path != "" {
		return authstatus.LoadConfigFile(path)
	}
	return authstatus.LoadConfigFromEnv()
}

func printState(w io.Writer, s authstatus.State) {
	switch {
	case s.Loading:
		fmt.Fprintln(w, "loading")
	case !s.Authenticated():
		fmt.Fprintln(w, "signed out")
	case s.FetchError != "":
		fmt.Fprintf(w, "user=%s error=%q payload=%s\n", s.Session.UserID(), s.FetchError, s.Payload)
	case s.Payload == nil:
		fmt.Fprintf(w, "user=%s fetching\n", s.Session.UserID())
	default:
		fmt.Fprintf(w, "user=%s payload=%s\n", s.Session.UserID(), s.Payload)
	}
}

func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
