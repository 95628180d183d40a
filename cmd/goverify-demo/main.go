// Command goverify-demo walks one user through every factor against a real
// engine and prints the resulting metrics.
//
// Vault values live in Redis (REDIS_ADDR, --redis-addr, or an embedded
// miniredis) unless --sqlite names a database file. Configuration comes from
// GOVERIFY_* environment variables and the optional --env file.
//
//	go run ./cmd/goverify-demo --env ./goverify.env
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	goVerify "github.com/MrEthical07/goVerify"
	"github.com/MrEthical07/goVerify/metrics/export/prometheus"
	"github.com/MrEthical07/goVerify/sms"
	"github.com/MrEthical07/goVerify/vault/sqlvault"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type directory struct {
	phones map[string]string
}

func (d directory) VerifiedPhone(_ context.Context, userID string) (string, error) {
	return d.phones[userID], nil
}

func (d directory) HasPassword(context.Context, string) (bool, error) { return true, nil }

// outbox keeps the last message per number so the walkthrough can answer
// its own SMS challenge.
type outbox struct {
	mu   sync.Mutex
	last map[string]string
	log  sms.LogSender
}

func (o *outbox) Send(ctx context.Context, phone, message string) error {
	o.mu.Lock()
	o.last[phone] = message
	o.mu.Unlock()
	return o.log.Send(ctx, phone, message)
}

func (o *outbox) code(phone string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	fields := strings.Fields(o.last[phone])
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func main() {
	var (
		envFile   = flag.String("env", "", "optional .env file with GOVERIFY settings")
		redisAddr = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		sqlite    = flag.String("sqlite", "", "store vault values in this SQLite file instead of redis")
		userID    = flag.String("user", "demo-user", "user id to enroll")
		phone     = flag.String("phone", "+15550100", "verified phone number of the user")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := goVerify.LoadConfig(*envFile)
	if err != nil {
		logger.Error("load config", slog.Any("err", err))
		os.Exit(2)
	}
	cfg.Logger = logger

	client, cleanup, err := redisClient(*redisAddr, logger)
	if err != nil {
		logger.Error("start redis", slog.Any("err", err))
		os.Exit(1)
	}
	defer cleanup()

	box := &outbox{last: map[string]string{}, log: sms.LogSender{Logger: logger}}
	builder := goVerify.New().
		WithConfig(cfg).
		WithRedis(client).
		WithSMSChannel(sms.NewLocalChannel(box, sms.DefaultLocalConfig())).
		WithAccountDirectory(directory{phones: map[string]string{*userID: *phone}}).
		WithSink(goVerify.NewSlogSink(logger))

	if *sqlite != "" {
		v, err := sqlvault.Open(*sqlite)
		if err != nil {
			logger.Error("open sqlite vault", slog.Any("err", err))
			os.Exit(1)
		}
		defer v.Close()
		builder = builder.WithVault(v)
	}

	engine, err := builder.Build()
	if err != nil {
		logger.Error("build engine", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := walkthrough(ctx, engine, box, *userID, *phone); err != nil {
		logger.Error("walkthrough failed", slog.Any("err", err))
		engine.Close()
		os.Exit(1)
	}

	engine.Close()
	fmt.Print(prometheus.NewPrometheusExporter(engine).Render())
}

func redisClient(addr string, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		logger.Info("using redis", slog.String("addr", addr))
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	logger.Info("using miniredis", slog.String("addr", mr.Addr()))
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func walkthrough(ctx context.Context, engine *goVerify.Engine, box *outbox, userID, phone string) error {
	fm := engine.Factors()

	totpRes, err := fm.Enable(ctx, userID, goVerify.MethodTOTP)
	if err != nil {
		return fmt.Errorf("enable totp: %w", err)
	}
	fmt.Printf("totp provisioning uri: %s\n", totpRes.ProvisioningURI)
	code, err := fm.Engine().Code(totpRes.Secret, time.Now())
	if err != nil {
		return err
	}
	if err := fm.Verify(ctx, userID, goVerify.MethodTOTP, code); err != nil {
		return fmt.Errorf("verify totp: %w", err)
	}

	backupRes, err := fm.Enable(ctx, userID, goVerify.MethodBackupCodes)
	if err != nil {
		return fmt.Errorf("enable backup codes: %w", err)
	}
	fmt.Printf("backup codes: %s\n", strings.Join(backupRes.BackupCodes, " "))
	if err := fm.Verify(ctx, userID, goVerify.MethodBackupCodes, backupRes.BackupCodes[0]); err != nil {
		return fmt.Errorf("verify backup code: %w", err)
	}

	if _, err := fm.Enable(ctx, userID, goVerify.MethodSMS); err != nil {
		return fmt.Errorf("enable sms: %w", err)
	}
	if err := fm.Verify(ctx, userID, goVerify.MethodSMS, box.code(phone)); err != nil {
		return fmt.Errorf("verify sms: %w", err)
	}

	enrollments, err := fm.Enrollments(ctx, userID)
	if err != nil {
		return err
	}
	for _, e := range enrollments {
		fmt.Printf("%-12s %s\n", e.Method, e.Status)
	}
	return nil
}
