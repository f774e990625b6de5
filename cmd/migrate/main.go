package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/mailtrack/internal/config"
	"github.com/ignite/mailtrack/internal/pkg/distlock"
	"github.com/ignite/mailtrack/internal/pkg/logger"
	"github.com/ignite/mailtrack/internal/repository/postgres"
)

const (
	lockKey = "migrate"
	lockTTL = time.Minute
)

func main() {
	configFile := flag.String("config", "config/config.yaml", "path to config file")
	dirFlag := flag.String("dir", "", "migrations directory (overrides config)")
	wait := flag.Duration("wait", 2*time.Minute, "how long to wait for another migrator to finish")
	flag.Parse()

	if err := run(*configFile, *dirFlag, *wait); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}
}

func run(configFile, dir string, wait time.Duration) error {
	cfg, err := config.LoadFromEnv(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if dir == "" {
		dir = cfg.Database.MigrationsDir
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	lock := distlock.NewLock(rdb, db, lockKey, lockTTL)
	if err := distlock.AcquireWait(ctx, lock, time.Second, wait); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("release migration lock", "error", err)
		}
	}()

	stop := distlock.KeepAlive(ctx, lock, lockTTL/3, lockTTL)
	applied, err := postgres.Migrate(ctx, db, dir)
	stop()
	for _, name := range applied {
		logger.Info("migration applied", "file", name)
	}
	if err != nil {
		return err
	}
	logger.Info("migrations complete", "applied", len(applied), "dir", dir)
	return nil
}
