// Command industrymatch runs one classification pass: it pulls
// unclassified news items from the datastore, asks Gemini to assign
// industries, and writes results back under the persisted rate limits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/industrymatch"
	"github.com/ineyio/industrymatch/meter"
	"github.com/ineyio/industrymatch/provider/gemini"
	pgstore "github.com/ineyio/industrymatch/store/postgres"
	redisstore "github.com/ineyio/industrymatch/store/redis"
	sqlitestore "github.com/ineyio/industrymatch/store/sqlite"
)

func main() {
	var (
		limitFlag  = flag.Int("limit", 0, "maximum number of items to process (0 = no cap)")
		configFlag = flag.String("config", "", "path to YAML config file")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(*configFlag, *limitFlag, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, limit int, logger *slog.Logger) error {
	cfg, err := industrymatch.LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	usageStore, itemStore, cleanup, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	lm := meter.NewLogMeter(logger)

	limiter, err := industrymatch.NewLimiter(usageStore, cfg.Models, cfg.ModelPriority,
		industrymatch.WithMeter(lm),
		industrymatch.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	provider, err := gemini.New(cfg.GeminiAPIKey)
	if err != nil {
		return err
	}

	classifier, err := industrymatch.NewClassifier(provider, limiter, industrymatch.DefaultTaxonomy(),
		industrymatch.WithClassifierMeter(lm),
		industrymatch.WithClassifierLogger(logger),
	)
	if err != nil {
		return err
	}

	retry := industrymatch.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.MaxRetries

	matcher, err := industrymatch.NewMatcher(itemStore, classifier,
		industrymatch.WithBatchSize(cfg.BatchSize),
		industrymatch.WithLookback(cfg.Lookback()),
		industrymatch.WithRetryPolicy(retry),
		industrymatch.WithMatcherMeter(lm),
		industrymatch.WithMatcherLogger(logger),
	)
	if err != nil {
		return err
	}

	stats, err := matcher.Run(ctx, limit)
	if err != nil {
		return err
	}

	printSummary(stats)
	return nil
}

// openStores picks the backends: DATABASE_URL selects Postgres for both
// stores, otherwise a local SQLite file serves single-node runs. When
// REDIS_URL is set the usage counters move to Redis so several worker
// instances can share them.
func openStores(ctx context.Context, cfg industrymatch.Config) (industrymatch.UsageStore, industrymatch.ItemStore, func(), error) {
	var (
		usage   industrymatch.UsageStore
		items   industrymatch.ItemStore
		cleanup func()
	)

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := pgstore.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		usage, items, cleanup = store, store, pool.Close
	} else {
		store, err := sqlitestore.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		usage, items, cleanup = store, store, func() { _ = store.Close() }
	}

	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		usage = redisstore.New(client)
		inner := cleanup
		cleanup = func() {
			_ = client.Close()
			inner()
		}
	}

	return usage, items, cleanup, nil
}

func printSummary(stats industrymatch.RunStats) {
	fmt.Println("==================================================")
	fmt.Println("PROCESSING SUMMARY")
	fmt.Println("==================================================")
	fmt.Printf("Total news items: %d\n", stats.TotalProcessed)
	fmt.Printf("Successfully classified: %d\n", stats.SuccessfullyClassified)
	fmt.Printf("Failed: %d\n", stats.Failed)
	fmt.Printf("Skipped (no industry): %d\n", stats.Skipped)
	if stats.TotalProcessed > 0 {
		fmt.Printf("Success rate: %.1f%%\n", stats.SuccessRate())
		fmt.Printf("Duration: %.1f seconds\n", stats.Elapsed.Seconds())
		fmt.Printf("Average time per item: %.2f seconds\n", stats.AvgPerItem().Seconds())
	}
	fmt.Println("==================================================")
}
