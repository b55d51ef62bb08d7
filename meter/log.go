package meter

import (
	"log/slog"
	"time"

	"github.com/ineyio/industrymatch"
)

// LogMeter logs limiter and classification events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ industrymatch.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnSelect(e industrymatch.SelectEvent) {
	m.Logger.Info("model_selected",
		"model", e.Model,
		"requests_today", e.RequestsDay,
		"daily_limit", e.DailyLimit,
	)
}

func (m *LogMeter) OnWait(e industrymatch.WaitEvent) {
	m.Logger.Info("rate_limit_wait",
		"model", e.Model,
		"reason", e.Reason,
		"sleep", e.Sleep.String(),
		"estimated_tokens", e.EstimatedTokens,
	)
}

func (m *LogMeter) OnRecord(e industrymatch.RecordEvent) {
	m.Logger.Info("usage_recorded",
		"model", e.Model,
		"tokens", e.Tokens,
	)
}

func (m *LogMeter) OnGroup(e industrymatch.GroupEvent) {
	if e.Err != nil {
		m.Logger.Warn("group_failed",
			"language", string(e.Language),
			"model", e.Model,
			"items", e.Items,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Err,
		)
		return
	}
	m.Logger.Info("group_classified",
		"language", string(e.Language),
		"model", e.Model,
		"items", e.Items,
		"results", e.Results,
		"duration_ms", e.Duration.Milliseconds(),
		"prompt_tokens", e.Usage.PromptTokens,
		"completion_tokens", e.Usage.CompletionTokens,
	)
}

func (m *LogMeter) OnSummary(s industrymatch.RunStats) {
	m.Logger.Info("run_summary",
		"run_id", s.RunID,
		"total_processed", s.TotalProcessed,
		"successfully_classified", s.SuccessfullyClassified,
		"failed", s.Failed,
		"skipped", s.Skipped,
		"success_rate_pct", s.SuccessRate(),
		"duration", s.Elapsed.Round(time.Millisecond).String(),
		"avg_per_item", s.AvgPerItem().Round(time.Millisecond).String(),
	)
}
