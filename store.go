package industrymatch

import (
	"context"
	"time"
)

// UsageStore persists per-(model, UTC day) usage counters. The limiter
// never caches records across calls: every admission decision re-reads
// the store, making the persisted counters the single coordination
// point between process restarts.
//
// RecordUsage must apply the minute-rollover rule of UsageRecord.Add.
// Backends shared between processes should perform the increment
// server-side so concurrent writers cannot lose updates; see
// store/postgres and store/redis.
type UsageStore interface {
	// GetUsage returns the record for (model, date), or found=false when
	// no usage has been recorded yet that day.
	GetUsage(ctx context.Context, model, date string) (rec UsageRecord, found bool, err error)

	// RecordUsage adds one request and tokens to the (model, day-of-now)
	// record, creating it on first use.
	RecordUsage(ctx context.Context, model string, tokens int64, now time.Time) error
}

// ItemStore is the news-article side of the datastore.
type ItemStore interface {
	// FetchUnclassified returns items whose classification flag is unset
	// and whose publish time falls within the trailing lookback window,
	// newest first. limit <= 0 means no cap.
	FetchUnclassified(ctx context.Context, lookback time.Duration, limit int) ([]NewsItem, error)

	// PersistClassification stores the label list and sets the
	// classification flag. Must be idempotent.
	PersistClassification(ctx context.Context, id string, industries []string) error
}
