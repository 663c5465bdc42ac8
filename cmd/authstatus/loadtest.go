package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authstatus"
	"github.com/MrEthical07/authstatus/internal/server"
	"github.com/MrEthical07/authstatus/jwt"
	"github.com/MrEthical07/authstatus/password"
	"github.com/MrEthical07/authstatus/session"
	"github.com/spf13/cobra"
)

func loadtestCmd(flags *globalFlags) *cobra.Command {
	var (
		clients   int
		rounds    int
		redisAddr string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure sign-in to payload and sign-out to navigation latency",
		Long: `Start an in-process API, run one controller per client and repeatedly
sign every client in and out, timing how long each controller takes to show
the protected payload and to return to the signed-out state.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := flags.logger()
			if err != nil {
				return err
			}
			if clients <= 0 || rounds <= 0 {
				return fmt.Errorf("clients and rounds must be > 0")
			}

			client, cleanup, err := openRedis(redisAddr, true, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			tokens, err := jwt.NewManager(jwt.Config{
				AccessTTL:     time.Minute,
				SigningMethod: jwt.MethodHS256,
				PrivateKey:    []byte("loadtest-secret-0123456789abcdef0123"),
				Issuer:        "authstatus-loadtest",
			})
			if err != nil {
				return err
			}
			hasher, err := password.NewHasher(password.DefaultConfig())
			if err != nil {
				return err
			}

			quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
			store := session.NewStore(client, "loadtest", time.Hour)
			api := server.New(store, tokens, server.NewDirectory(), hasher, quiet)

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return err
			}
			httpServer := &http.Server{Handler: api.Routes(nil), ReadHeaderTimeout: 5 * time.Second}
			go func() { _ = httpServer.Serve(ln) }()
			defer httpServer.Close()

			baseURL := "http://" + ln.Addr().String()
			fmt.Fprintf(cmd.OutOrStdout(), "running %d clients x %d rounds against %s\n", clients, rounds, baseURL)

			signIn, signOut := runLoadtest(cmd.Context(), store, tokens, baseURL, clients, rounds, timeout, quiet)

			fmt.Fprintln(cmd.OutOrStdout(), "---- results ----")
			printStats(cmd.OutOrStdout(), "sign-in->payload", signIn)
			printStats(cmd.OutOrStdout(), "sign-out->navigate", signOut)
			return nil
		},
	}

	cmd.Flags().IntVar(&clients, "clients", 50, "number of concurrent controllers")
	cmd.Flags().IntVar(&rounds, "rounds", 20, "sign-in/sign-out cycles per client")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "", "redis address (default REDIS_ADDR, else embedded miniredis)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-transition timeout")
	return cmd
}

func runLoadtest(ctx context.Context, store *session.Store, tokens *jwt.Manager, baseURL string, clients, rounds int, timeout time.Duration, logger *slog.Logger) (phaseStats, phaseStats) {
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		inSamples   = make([]time.Duration, 0, clients*rounds)
		outSamples  = make([]time.Duration, 0, clients*rounds)
		inFailures  int64
		outFailures int64
	)
	httpClient := &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: clients}}

	start := time.Now()
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			clientID := fmt.Sprintf("client-%d", worker)

			navigations := make(chan struct{}, rounds+1)
			cfg := authstatus.DefaultConfig()
			cfg.BaseURL = baseURL
			cfg.RequestTimeout = timeout
			controller, err := authstatus.New().
				WithConfig(cfg).
				WithSessionProvider(session.NewProvider(store, tokens, clientID, session.WithLogger(logger))).
				WithNavigator(authstatus.NavigatorFunc(func(string) {
					select {
					case navigations <- struct{}{}:
					default:
					}
				})).
				WithHTTPClient(httpClient).
				WithLogger(logger).
				Build()
			if err != nil {
				atomic.AddInt64(&inFailures, int64(rounds))
				return
			}
			defer controller.Close()

			states, cancel := controller.Watch()
			defer cancel()
			if err := controller.Start(ctx); err != nil {
				atomic.AddInt64(&inFailures, int64(rounds))
				return
			}
			// initial signed-out observation
			<-navigations

			for r := 0; r < rounds; r++ {
				t0 := time.Now()
				if _, err := store.SignIn(ctx, clientID, fmt.Sprintf("user-%d", worker), ""); err != nil {
					atomic.AddInt64(&inFailures, 1)
					continue
				}
				if waitState(states, timeout, func(s authstatus.State) bool { return s.Payload != nil }) {
					mu.Lock()
					inSamples = append(inSamples, time.Since(t0))
					mu.Unlock()
				} else {
					atomic.AddInt64(&inFailures, 1)
				}

				t1 := time.Now()
				if err := store.SignOut(ctx, clientID); err != nil {
					atomic.AddInt64(&outFailures, 1)
					continue
				}
				select {
				case <-navigations:
					mu.Lock()
					outSamples = append(outSamples, time.Since(t1))
					mu.Unlock()
				case <-time.After(timeout):
					atomic.AddInt64(&outFailures, 1)
				}
			}
		}(i)
	}
	wg.Wait()
	total := time.Since(start)

	return computeStats(total, inSamples, inFailures), computeStats(total, outSamples, outFailures)
}

func waitState(states <-chan authstatus.State, timeout time.Duration, cond func(authstatus.State) bool) bool {
	deadline := time.After(timeout)
	for {
		select {
		case s, ok := <-states:
			if !ok {
				return false
			}
			if cond(s) {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
