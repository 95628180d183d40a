// Command goverify-loadtest measures verification throughput against Redis.
//
// It enrolls --users users in TOTP and backup codes, then runs two phases:
// TOTP verification with valid codes, and backup code redemption where
// workers race for the same codes. In the second phase every code can be
// redeemed once, so "reused" counts the compare-and-swap losers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goVerify "github.com/MrEthical07/goVerify"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type userState struct {
	id     string
	secret string
	codes  []string
}

func main() {
	var (
		users       = flag.Int("users", 1000, "number of users to enroll")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations in the totp phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	cfg := goVerify.DefaultConfig()
	// Valid codes are reused across operations; attempt limits would only
	// measure the lockout path.
	cfg.TOTP.EnforceReplayProtection = false
	cfg.TOTP.MaxAttempts = 1 << 20
	cfg.BackupCodes.MaxAttempts = 1 << 20
	cfg.Dispatcher.Enabled = false

	engine, err := goVerify.New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]userState, *users)
	fmt.Printf("enrolling %d users...\n", *users)
	startSeed := time.Now()
	for i := range states {
		id := fmt.Sprintf("user-%d", i)
		totpRes, err := engine.Factors().Enable(ctx, id, goVerify.MethodTOTP)
		if err != nil {
			fmt.Fprintf(os.Stderr, "enable totp: %v\n", err)
			os.Exit(1)
		}
		backupRes, err := engine.Factors().Enable(ctx, id, goVerify.MethodBackupCodes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "enable backup codes: %v\n", err)
			os.Exit(1)
		}
		states[i] = userState{id: id, secret: totpRes.Secret, codes: backupRes.BackupCodes}
	}
	fmt.Printf("enrolled in %s\n", time.Since(startSeed).Round(time.Millisecond))

	totpStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		s := states[r.Intn(len(states))]
		code, err := engine.Factors().Engine().Code(s.secret, time.Now())
		if err != nil {
			return err
		}
		return engine.Factors().Verify(ctx, s.id, goVerify.MethodTOTP, code)
	})

	// Twice as many redemptions as codes: at least half must lose.
	backupOps := 0
	for _, s := range states {
		backupOps += 2 * len(s.codes)
	}
	backupStats := runPhase(backupOps, *concurrency, func(r *rand.Rand, _ int) error {
		s := states[r.Intn(len(states))]
		return engine.Factors().Verify(ctx, s.id, goVerify.MethodBackupCodes, s.codes[r.Intn(len(s.codes))])
	})

	fmt.Println("---- results ----")
	printStats("totp", totpStats)
	printStats("backup", backupStats)
	fmt.Printf("events dropped: %d\n", engine.EventsDropped())
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		reused    int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				switch {
				case err == nil:
				case errors.Is(err, goVerify.ErrBackupCodeInvalid):
					atomic.AddInt64(&reused, 1)
				default:
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	s := computeStats(time.Since(start), latencies)
	s.failures = failures
	s.reused = reused
	return s
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	reused   int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:   total,
		ops:     len(samples),
		p50:     percentile(samples, 50),
		p95:     percentile(samples, 95),
		p99:     percentile(samples, 99),
		opsPerS: float64(len(samples)) / total.Seconds(),
	}
}

func percentile(sorted []time.Duration, p int) time.Duration {
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	return sorted[(len(sorted)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d reused=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.reused,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
