package industrymatch

import "time"

// Meter observes limiter and classification events for monitoring and
// logging.
type Meter interface {
	// OnSelect is called when a model is chosen for a batch.
	OnSelect(event SelectEvent)

	// OnWait is called before each rate-limit sleep.
	OnWait(event WaitEvent)

	// OnRecord is called after usage is persisted.
	OnRecord(event RecordEvent)

	// OnGroup is called when one language group finishes.
	OnGroup(event GroupEvent)

	// OnSummary is called once at the end of a run.
	OnSummary(event RunStats)
}

// SelectEvent describes a model selection decision.
type SelectEvent struct {
	Model       string
	RequestsDay int
	DailyLimit  int
}

// WaitEvent describes one iteration of the admission wait loop.
type WaitEvent struct {
	Model           string
	Reason          string // "rpm" or "tpm"
	Sleep           time.Duration
	EstimatedTokens int64
}

// RecordEvent describes a persisted usage update.
type RecordEvent struct {
	Model  string
	Tokens int64
}

// GroupEvent describes the outcome of one language group's LLM call.
type GroupEvent struct {
	Language Language
	Model    string
	Items    int
	Results  int
	Usage    Usage
	Duration time.Duration
	Err      error
}

// noopMeter is the default when no meter is configured.
type noopMeter struct{}

func (noopMeter) OnSelect(SelectEvent) {}
func (noopMeter) OnWait(WaitEvent)     {}
func (noopMeter) OnRecord(RecordEvent) {}
func (noopMeter) OnGroup(GroupEvent)   {}
func (noopMeter) OnSummary(RunStats)   {}
