package main

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"backend-parklookup/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var errListen = errors.New("listen failed")

func testConfig() config.Config {
	return config.Config{
		ServerPort:    ":0",
		JWTSecret:     "secret",
		BackupBackend: "memory",
		RemoteAPIURL:  "http://localhost:0",
	}
}

func TestRunHandlesSignal(t *testing.T) {
	signals := make(chan os.Signal, 1)

	listenCalled := false
	listen := func(_ *fiber.App, _ string) error {
		listenCalled = true
		return nil
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		signals <- syscall.SIGINT
	}()

	if err := Run(context.Background(), testConfig(), nil, nil, signals, listen); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !listenCalled {
		t.Fatalf("expected listen to be called")
	}
}

func TestRunContextCancel(t *testing.T) {
	signals := make(chan os.Signal, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Run(ctx, testConfig(), nil, nil, signals, func(_ *fiber.App, _ string) error { return nil }); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestRunListenError(t *testing.T) {
	signals := make(chan os.Signal, 1)

	err := Run(context.Background(), testConfig(), nil, nil, signals, func(_ *fiber.App, _ string) error {
		return errListen
	})
	if err == nil {
		t.Fatalf("expected listen error")
	}
}

func TestRunBadBackend(t *testing.T) {
	cfg := testConfig()
	cfg.BackupBackend = "bogus"
	err := Run(context.Background(), cfg, nil, nil, nil, func(_ *fiber.App, _ string) error { return nil })
	if err == nil {
		t.Fatalf("expected configuration error")
	}
}

func TestRealMainUsesDeps(t *testing.T) {
	ranWith := config.Config{}
	deps := mainDeps{
		loadConfig: testConfig,
		connectPostgres: func(context.Context, config.Config) (*pgxpool.Pool, error) {
			return nil, errors.New("no database in test")
		},
		connectRedis: func(config.Config) *redis.Client { return nil },
		notify:       func(chan<- os.Signal, ...os.Signal) {},
		run: func(_ context.Context, cfg config.Config, _ *pgxpool.Pool, _ *redis.Client, _ <-chan os.Signal, _ ListenFunc) error {
			ranWith = cfg
			return nil
		},
	}

	realMain(deps)
	if ranWith.BackupBackend != "memory" {
		t.Fatalf("expected run to receive loaded config")
	}
}
