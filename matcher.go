package industrymatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RunStats accumulates the outcome of one classification run.
type RunStats struct {
	RunID                  string
	TotalProcessed         int
	SuccessfullyClassified int
	Failed                 int
	Skipped                int // classified to zero industries
	Elapsed                time.Duration
}

// SuccessRate returns the classified fraction as a percentage.
func (s RunStats) SuccessRate() float64 {
	if s.TotalProcessed == 0 {
		return 0
	}
	return float64(s.SuccessfullyClassified) / float64(s.TotalProcessed) * 100
}

// AvgPerItem returns the average wall-clock time spent per item.
func (s RunStats) AvgPerItem() time.Duration {
	if s.TotalProcessed == 0 {
		return 0
	}
	return s.Elapsed / time.Duration(s.TotalProcessed)
}

// Matcher drives a classification run: fetch unclassified items, split
// into batches, classify each batch, persist the results. Batches are
// processed strictly one at a time; a failed batch is counted and the
// run moves on.
type Matcher struct {
	items      ItemStore
	classifier *Classifier
	retry      RetryPolicy
	batchSize  int
	lookback   time.Duration
	meter      Meter
	logger     *slog.Logger
	now        func() time.Time
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithBatchSize sets how many items go into one LLM batch.
func WithBatchSize(n int) MatcherOption {
	return func(m *Matcher) { m.batchSize = n }
}

// WithLookback sets the trailing window items are fetched from.
func WithLookback(d time.Duration) MatcherOption {
	return func(m *Matcher) { m.lookback = d }
}

// WithRetryPolicy sets the per-batch retry policy.
func WithRetryPolicy(p RetryPolicy) MatcherOption {
	return func(m *Matcher) { m.retry = p }
}

// WithMatcherMeter sets the event meter.
func WithMatcherMeter(mt Meter) MatcherOption {
	return func(m *Matcher) { m.meter = mt }
}

// WithMatcherLogger sets the logger.
func WithMatcherLogger(lg *slog.Logger) MatcherOption {
	return func(m *Matcher) { m.logger = lg }
}

// NewMatcher creates a Matcher with batch size 5, a 2 hour lookback and
// the default retry policy unless overridden.
func NewMatcher(items ItemStore, classifier *Classifier, opts ...MatcherOption) (*Matcher, error) {
	if items == nil {
		return nil, fmt.Errorf("industrymatch: item store is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("industrymatch: classifier is required")
	}
	m := &Matcher{
		items:      items,
		classifier: classifier,
		retry:      DefaultRetryPolicy(),
		batchSize:  5,
		lookback:   2 * time.Hour,
		meter:      noopMeter{},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.batchSize <= 0 {
		return nil, fmt.Errorf("industrymatch: batch size must be positive")
	}
	return m, nil
}

// Run executes one classification pass over at most limit items
// (limit <= 0 means no cap). Cancelling ctx between batches ends the
// run cleanly; the summary always reflects what was actually done.
// Already-persisted updates survive interruption, and unpersisted
// batches are picked up by the next run because the fetch filter
// excludes classified items.
func (m *Matcher) Run(ctx context.Context, limit int) (RunStats, error) {
	stats := RunStats{RunID: uuid.New().String()}
	start := m.now()

	m.logger.Info("starting classification run",
		"run_id", stats.RunID, "batch_size", m.batchSize, "lookback", m.lookback)

	items, err := m.items.FetchUnclassified(ctx, m.lookback, limit)
	if err != nil {
		stats.Elapsed = m.now().Sub(start)
		return stats, fmt.Errorf("industrymatch: fetch unclassified items: %w", err)
	}
	if len(items) == 0 {
		m.logger.Info("no unclassified items found")
		stats.Elapsed = m.now().Sub(start)
		m.meter.OnSummary(stats)
		return stats, nil
	}

	stats.TotalProcessed = len(items)
	totalBatches := (len(items) + m.batchSize - 1) / m.batchSize
	m.logger.Info("found unclassified items", "count", len(items), "batches", totalBatches)

	for i := 0; i < len(items); i += m.batchSize {
		if ctx.Err() != nil {
			m.logger.Info("run interrupted", "remaining", len(items)-i)
			stats.TotalProcessed = i
			break
		}
		end := i + m.batchSize
		if end > len(items) {
			end = len(items)
		}
		m.logger.Info("processing batch",
			"batch", i/m.batchSize+1, "of", totalBatches, "items", end-i)
		m.processBatch(ctx, items[i:end], &stats)
	}

	stats.Elapsed = m.now().Sub(start)
	m.meter.OnSummary(stats)
	return stats, nil
}

// processBatch classifies one batch and persists its results, updating
// stats in place. No failure here ever aborts the run.
func (m *Matcher) processBatch(ctx context.Context, batch []NewsItem, stats *RunStats) {
	var results []Classification
	err := m.retry.Do(ctx, func() error {
		r, cerr := m.classifier.Classify(ctx, batch, "")
		results = r
		return cerr
	})
	if err != nil {
		m.logger.Error("batch classification failed", "items", len(batch), "error", err)
		stats.Failed += len(batch)
		return
	}
	if len(results) == 0 {
		m.logger.Warn("no classifications returned for batch", "items", len(batch))
		stats.Failed += len(batch)
		return
	}

	byID := make(map[string][]string, len(results))
	for _, r := range results {
		byID[r.ID] = r.Industries
	}

	for _, item := range batch {
		industries, ok := byID[item.ID]
		if !ok {
			m.logger.Warn("item missing from classification results", "id", item.ID)
			stats.Failed++
			continue
		}
		if len(industries) == 0 {
			m.logger.Warn("no industries identified", "id", item.ID)
			stats.Skipped++
			continue
		}
		if err := m.items.PersistClassification(ctx, item.ID, industries); err != nil {
			m.logger.Error("failed to persist classification", "id", item.ID, "error", err)
			stats.Failed++
			continue
		}
		m.logger.Info("classified", "id", item.ID, "industries", industries)
		stats.SuccessfullyClassified++
	}
}
