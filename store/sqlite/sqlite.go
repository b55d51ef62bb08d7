// Package sqlite provides a single-file UsageStore and ItemStore for
// single-node deployments. Usage increments run read-modify-write
// inside an immediate transaction, which is safe for one process;
// multi-instance deployments should use the postgres or redis stores.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ineyio/industrymatch"
)

// Store wraps a SQLite database implementing both store contracts.
type Store struct {
	db *sql.DB
}

var (
	_ industrymatch.UsageStore = (*Store)(nil)
	_ industrymatch.ItemStore  = (*Store)(nil)
)

// New opens (creating if needed) the database at path and initializes
// the schema.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("industrymatch/sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("industrymatch/sqlite: open database: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("industrymatch/sqlite: connect: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(context.Background(), pragma); err != nil {
			return fmt.Errorf("industrymatch/sqlite: %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) createSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS api_usage (
			model_name TEXT NOT NULL,
			date TEXT NOT NULL,
			requests_minute INTEGER NOT NULL DEFAULT 0,
			tokens_minute INTEGER NOT NULL DEFAULT 0,
			requests_day INTEGER NOT NULL DEFAULT 0,
			tokens_day INTEGER NOT NULL DEFAULT 0,
			minute_window INTEGER NOT NULL DEFAULT 0,
			last_request_at TEXT NOT NULL,
			PRIMARY KEY (model_name, date)
		)`,
		`CREATE TABLE IF NOT EXISTS news_items (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			published_at TEXT NOT NULL,
			industries TEXT NOT NULL DEFAULT '[]',
			industry_classified INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(context.Background(), q); err != nil {
			return fmt.Errorf("industrymatch/sqlite: create schema: %w", err)
		}
	}
	return nil
}

// GetUsage returns the usage record for (model, date).
func (s *Store) GetUsage(ctx context.Context, model, date string) (industrymatch.UsageRecord, bool, error) {
	rec := industrymatch.UsageRecord{Model: model, Date: date}
	var lastRequest string
	err := s.db.QueryRowContext(ctx,
		`SELECT requests_minute, tokens_minute, requests_day, tokens_day, minute_window, last_request_at
		 FROM api_usage WHERE model_name = ? AND date = ?`,
		model, date,
	).Scan(&rec.RequestsMinute, &rec.TokensMinute, &rec.RequestsDay, &rec.TokensDay, &rec.MinuteWindow, &lastRequest)

	if errors.Is(err, sql.ErrNoRows) {
		return industrymatch.UsageRecord{}, false, nil
	}
	if err != nil {
		return industrymatch.UsageRecord{}, false, fmt.Errorf("industrymatch/sqlite: get usage: %w", err)
	}
	if t, perr := time.Parse(time.RFC3339Nano, lastRequest); perr == nil {
		rec.LastRequestAt = t
	}
	return rec, true, nil
}

// RecordUsage applies one request of tokens at now inside a transaction.
func (s *Store) RecordUsage(ctx context.Context, model string, tokens int64, now time.Time) error {
	now = now.UTC()
	date := industrymatch.DateUTC(now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("industrymatch/sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec := industrymatch.UsageRecord{Model: model, Date: date}
	var lastRequest string
	err = tx.QueryRowContext(ctx,
		`SELECT requests_minute, tokens_minute, requests_day, tokens_day, minute_window, last_request_at
		 FROM api_usage WHERE model_name = ? AND date = ?`,
		model, date,
	).Scan(&rec.RequestsMinute, &rec.TokensMinute, &rec.RequestsDay, &rec.TokensDay, &rec.MinuteWindow, &lastRequest)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// first usage today
	case err != nil:
		return fmt.Errorf("industrymatch/sqlite: record usage: %w", err)
	default:
		if t, perr := time.Parse(time.RFC3339Nano, lastRequest); perr == nil {
			rec.LastRequestAt = t
		}
	}

	rec.Add(tokens, now)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO api_usage
			(model_name, date, requests_minute, tokens_minute, requests_day, tokens_day, minute_window, last_request_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (model_name, date) DO UPDATE SET
			requests_minute = excluded.requests_minute,
			tokens_minute = excluded.tokens_minute,
			requests_day = excluded.requests_day,
			tokens_day = excluded.tokens_day,
			minute_window = excluded.minute_window,
			last_request_at = excluded.last_request_at`,
		model, date, rec.RequestsMinute, rec.TokensMinute, rec.RequestsDay, rec.TokensDay,
		rec.MinuteWindow, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("industrymatch/sqlite: record usage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("industrymatch/sqlite: record usage: %w", err)
	}
	return nil
}

// InsertItem adds a news item, leaving existing rows untouched.
func (s *Store) InsertItem(ctx context.Context, item industrymatch.NewsItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO news_items (id, title, content, published_at)
		 VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		item.ID, item.Title, item.Content, item.PublishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("industrymatch/sqlite: insert item: %w", err)
	}
	return nil
}

// FetchUnclassified returns unclassified items published within the
// lookback window, newest first.
func (s *Store) FetchUnclassified(ctx context.Context, lookback time.Duration, limit int) ([]industrymatch.NewsItem, error) {
	end := time.Now().UTC()
	start := end.Add(-lookback)

	q := `SELECT id, title, content, published_at FROM news_items
		WHERE industry_classified = 0 AND published_at >= ? AND published_at <= ?
		ORDER BY published_at DESC`
	args := []any{start.Format(time.RFC3339Nano), end.Format(time.RFC3339Nano)}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("industrymatch/sqlite: fetch unclassified: %w", err)
	}
	defer rows.Close()

	var items []industrymatch.NewsItem
	for rows.Next() {
		var it industrymatch.NewsItem
		var publishedAt string
		if err := rows.Scan(&it.ID, &it.Title, &it.Content, &publishedAt); err != nil {
			return nil, fmt.Errorf("industrymatch/sqlite: scan item: %w", err)
		}
		if t, perr := time.Parse(time.RFC3339Nano, publishedAt); perr == nil {
			it.PublishedAt = t
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("industrymatch/sqlite: fetch unclassified: %w", err)
	}
	return items, nil
}

// PersistClassification stores the label list as JSON and sets the
// classified flag. Idempotent.
func (s *Store) PersistClassification(ctx context.Context, id string, industries []string) error {
	encoded, err := json.Marshal(industries)
	if err != nil {
		return fmt.Errorf("industrymatch/sqlite: encode industries: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE news_items SET industries = ?, industry_classified = 1 WHERE id = ?`,
		string(encoded), id,
	)
	if err != nil {
		return fmt.Errorf("industrymatch/sqlite: persist classification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("industrymatch/sqlite: persist classification: item %s not found", id)
	}
	return nil
}

// Classified returns the persisted labels for id, if classified.
func (s *Store) Classified(ctx context.Context, id string) ([]string, bool, error) {
	var encoded string
	var flag int
	err := s.db.QueryRowContext(ctx,
		`SELECT industries, industry_classified FROM news_items WHERE id = ?`, id,
	).Scan(&encoded, &flag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("industrymatch/sqlite: classified: %w", err)
	}
	if flag == 0 {
		return nil, false, nil
	}
	var industries []string
	if err := json.Unmarshal([]byte(encoded), &industries); err != nil {
		return nil, false, fmt.Errorf("industrymatch/sqlite: decode industries: %w", err)
	}
	return industries, true, nil
}
