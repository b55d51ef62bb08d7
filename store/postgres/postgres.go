// Package postgres provides PostgreSQL-backed UsageStore and ItemStore
// implementations for industrymatch.
//
// The usage increment is a single INSERT ... ON CONFLICT DO UPDATE that
// applies the minute-rollover rule server-side, so concurrent limiter
// processes cannot lose counter updates to read-modify-write races.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ineyio/industrymatch"
)

// Store is a PostgreSQL-backed UsageStore and ItemStore.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var (
	_ industrymatch.UsageStore = (*Store)(nil)
	_ industrymatch.ItemStore  = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "industrymatch_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed Store.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "industrymatch_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) usageTable() string { return s.tablePrefix + "api_usage" }
func (s *Store) itemsTable() string { return s.tablePrefix + "news_items" }

// EnsureSchema creates the required tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			model_name TEXT NOT NULL,
			date TEXT NOT NULL,
			requests_minute INT NOT NULL DEFAULT 0,
			tokens_minute BIGINT NOT NULL DEFAULT 0,
			requests_day INT NOT NULL DEFAULT 0,
			tokens_day BIGINT NOT NULL DEFAULT 0,
			minute_window INT NOT NULL DEFAULT 0,
			last_request_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (model_name, date)
		);
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMPTZ NOT NULL,
			industries TEXT[] NOT NULL DEFAULT '{}',
			industry_classified BOOLEAN NOT NULL DEFAULT false
		);
	`, s.usageTable(), s.itemsTable())
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("industrymatch/postgres: ensure schema: %w", err)
	}
	return nil
}

// GetUsage returns the usage record for (model, date).
func (s *Store) GetUsage(ctx context.Context, model, date string) (industrymatch.UsageRecord, bool, error) {
	rec := industrymatch.UsageRecord{Model: model, Date: date}
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT requests_minute, tokens_minute, requests_day, tokens_day, minute_window, last_request_at
			FROM %s WHERE model_name = $1 AND date = $2`, s.usageTable()),
		model, date,
	).Scan(&rec.RequestsMinute, &rec.TokensMinute, &rec.RequestsDay, &rec.TokensDay, &rec.MinuteWindow, &rec.LastRequestAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return industrymatch.UsageRecord{}, false, nil
	}
	if err != nil {
		return industrymatch.UsageRecord{}, false, fmt.Errorf("industrymatch/postgres: get usage: %w", err)
	}
	return rec, true, nil
}

// RecordUsage applies one request of tokens at now. The rollover-aware
// increment runs entirely inside the database.
func (s *Store) RecordUsage(ctx context.Context, model string, tokens int64, now time.Time) error {
	now = now.UTC()
	date := industrymatch.DateUTC(now)
	minute := now.Minute()

	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s
			(model_name, date, requests_minute, tokens_minute, requests_day, tokens_day, minute_window, last_request_at)
			VALUES ($1, $2, 1, $3, 1, $3, $4, $5)
			ON CONFLICT (model_name, date) DO UPDATE SET
				requests_minute = CASE WHEN %[1]s.minute_window = $4 THEN %[1]s.requests_minute + 1 ELSE 1 END,
				tokens_minute   = CASE WHEN %[1]s.minute_window = $4 THEN %[1]s.tokens_minute + $3 ELSE $3 END,
				requests_day    = %[1]s.requests_day + 1,
				tokens_day      = %[1]s.tokens_day + $3,
				minute_window   = $4,
				last_request_at = $5`, s.usageTable()),
		model, date, tokens, minute, now,
	)
	if err != nil {
		return fmt.Errorf("industrymatch/postgres: record usage: %w", err)
	}
	return nil
}

// InsertItem adds a news item, leaving existing rows untouched.
func (s *Store) InsertItem(ctx context.Context, item industrymatch.NewsItem) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, title, content, published_at)
			VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`, s.itemsTable()),
		item.ID, item.Title, item.Content, item.PublishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("industrymatch/postgres: insert item: %w", err)
	}
	return nil
}

// FetchUnclassified returns unclassified items published within the
// lookback window, newest first.
func (s *Store) FetchUnclassified(ctx context.Context, lookback time.Duration, limit int) ([]industrymatch.NewsItem, error) {
	end := time.Now().UTC()
	start := end.Add(-lookback)

	q := fmt.Sprintf(`SELECT id, title, content, published_at FROM %s
		WHERE industry_classified = false AND published_at >= $1 AND published_at <= $2
		ORDER BY published_at DESC`, s.itemsTable())
	args := []any{start, end}
	if limit > 0 {
		q += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("industrymatch/postgres: fetch unclassified: %w", err)
	}
	defer rows.Close()

	var items []industrymatch.NewsItem
	for rows.Next() {
		var it industrymatch.NewsItem
		if err := rows.Scan(&it.ID, &it.Title, &it.Content, &it.PublishedAt); err != nil {
			return nil, fmt.Errorf("industrymatch/postgres: scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("industrymatch/postgres: fetch unclassified: %w", err)
	}
	return items, nil
}

// PersistClassification stores the label list and sets the classified
// flag. Repeating the call with the same arguments is a no-op.
func (s *Store) PersistClassification(ctx context.Context, id string, industries []string) error {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET industries = $2, industry_classified = true WHERE id = $1`,
			s.itemsTable()),
		id, industries,
	)
	if err != nil {
		return fmt.Errorf("industrymatch/postgres: persist classification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("industrymatch/postgres: persist classification: item %s not found", id)
	}
	return nil
}
