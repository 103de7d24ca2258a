package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/MrEthical07/credcore"
	credotel "github.com/MrEthical07/credcore/metrics/otel"
	"github.com/MrEthical07/credcore/password"
	"github.com/MrEthical07/credcore/store/redisstore"
)

const loadtestPassword = "Load-test-1!"

type loadtestOptions struct {
	accounts    int
	concurrency int
	ops         int
	redisAddr   string
}

func (c *cli) loadtestCmd() *cobra.Command {
	var o loadtestOptions
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure Authenticate and failed-login latency against a Redis account store",
		Long: "Seeds accounts into Redis (an embedded miniredis unless --redis-addr is set),\n" +
			"then runs two phases: token authentication and wrong-password logins,\n" +
			"which exercise the optimistic lockout update path. The engine's counters are\n" +
			"read back through the OpenTelemetry exporter and printed at the end.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.accounts <= 0 || o.concurrency <= 0 || o.ops <= 0 {
				return errors.New("accounts, concurrency and ops must be > 0")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}
	// Uses its own throwaway engine; no settings file needed.
	cmd.Annotations = map[string]string{"config": "skip"}
	cmd.Flags().IntVar(&o.accounts, "accounts", 1000, "accounts to seed")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 64, "concurrent workers")
	cmd.Flags().IntVar(&o.ops, "ops", 20000, "operations per phase")
	cmd.Flags().StringVar(&o.redisAddr, "redis-addr", "", "redis address; empty starts miniredis")
	return cmd
}

type seeded struct {
	email string
	token string
}

func runLoadtest(ctx context.Context, out io.Writer, o loadtestOptions) error {
	addr := o.redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	store, err := redisstore.New(client, redisstore.Options{Prefix: "loadtest:"})
	if err != nil {
		return err
	}

	cfg := credcore.DefaultConfig()
	// Cheap hashing and no failure delay so the phases measure the store.
	cfg.Password.Hash = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	cfg.Lockout.FailureDelay = 0
	cfg.Lockout.Threshold = 1 << 30
	cfg.Tokens.SigningMethod = "hs256"
	cfg.Tokens.PrivateKey = []byte("loadtest-only-hmac-key-0123456789")
	engine, err := credcore.New().WithConfig(cfg).WithStore(store).WithLogger(zap.NewNop()).Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.WithoutCancel(ctx))
	exporter, err := credotel.NewExporter(provider.Meter("credcore-loadtest"), engine)
	if err != nil {
		return err
	}
	defer exporter.Close()

	accounts := make([]seeded, o.accounts)
	fmt.Fprintf(out, "seeding %d accounts...\n", o.accounts)
	startSeed := time.Now()
	for i := range accounts {
		email := fmt.Sprintf("user%d@loadtest.invalid", i)
		res, err := engine.Register(ctx, "Load Test", email, loadtestPassword)
		if err != nil {
			return fmt.Errorf("register %s: %w", email, err)
		}
		accounts[i] = seeded{email: email, token: res.Token}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runPhase(o.ops, o.concurrency, func(r *rand.Rand) error {
		_, err := engine.Authenticate(ctx, accounts[r.IntN(len(accounts))].token)
		return err
	})
	failStats := runPhase(o.ops, o.concurrency, func(r *rand.Rand) error {
		_, err := engine.Login(ctx, accounts[r.IntN(len(accounts))].email, "wrong-password")
		if errors.Is(err, credcore.ErrInvalidCredentials) {
			return nil
		}
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "authenticate", authStats)
	printStats(out, "failed-login", failStats)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("collect engine counters: %w", err)
	}
	fmt.Fprintln(out, "---- engine counters ----")
	for _, line := range counterLines(rm) {
		fmt.Fprintln(out, line)
	}
	return nil
}

// counterLines renders every non-zero sum data point as name{k=v,...} n,
// sorted.
func counterLines(rm metricdata.ResourceMetrics) []string {
	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if dp.Value == 0 {
					continue
				}
				attrs := make([]string, 0, dp.Attributes.Len())
				for _, kv := range dp.Attributes.ToSlice() {
					attrs = append(attrs, string(kv.Key)+"="+kv.Value.Emit())
				}
				lines = append(lines, fmt.Sprintf("%s{%s} %d", m.Name, strings.Join(attrs, ","), dp.Value))
			}
		}
	}
	slices.Sort(lines)
	return lines
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    atomic.Int64
		failures  atomic.Int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(worker)*7919))
			for {
				if int(cursor.Add(1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					failures.Add(1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures.Load())
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
		return phaseStats{total: total}
	}
	slices.Sort(samples)
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
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
