package industrymatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// maxAdmissionWait bounds the total time WaitForAdmission blocks.
	// Per-minute quotas reset every minute, so 70 seconds guarantees at
	// least one full minute boundary is crossed; anything still blocked
	// after that is daily-limited or mis-accounted.
	maxAdmissionWait = 70 * time.Second

	// maxSleepStep bounds a single sleep between re-checks.
	maxSleepStep = 10 * time.Second
)

// Admission is the result of checking one request against a model's
// three ceilings.
type Admission struct {
	RPMOK bool // requests this minute below ceiling
	TPMOK bool // tokens this minute plus the estimate below ceiling
	RPDOK bool // requests today below ceiling
}

// OK reports whether the request may proceed now.
func (a Admission) OK() bool { return a.RPMOK && a.TPMOK && a.RPDOK }

// Limiter enforces per-model request and token ceilings against
// counters persisted in a UsageStore. It holds no counter state of its
// own: every decision re-reads the store, so restarts and sibling
// processes observe the same consumption.
//
// The model under consideration is an explicit parameter on every
// method; there is no "current model" field to get out of sync between
// admission and recording.
type Limiter struct {
	store    UsageStore
	limits   map[string]ModelLimit
	priority []string
	meter    Meter
	logger   *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithMeter sets the event meter.
func WithMeter(m Meter) LimiterOption {
	return func(l *Limiter) { l.meter = m }
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) LimiterOption {
	return func(l *Limiter) { l.logger = lg }
}

// NewLimiter creates a Limiter over the given static limit table.
// priority is the candidate order for SelectModel, highest daily quota
// first; every entry must be a key of limits.
func NewLimiter(store UsageStore, limits map[string]ModelLimit, priority []string, opts ...LimiterOption) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("industrymatch: usage store is required")
	}
	if len(priority) == 0 {
		return nil, fmt.Errorf("industrymatch: at least one model is required")
	}
	for _, m := range priority {
		if _, ok := limits[m]; !ok {
			return nil, fmt.Errorf("%w: %q in priority list", ErrUnknownModel, m)
		}
	}

	l := &Limiter{
		store:    store,
		limits:   limits,
		priority: priority,
		meter:    noopMeter{},
		logger:   slog.Default(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// SelectModel returns the first model in priority order whose daily
// request quota is not exhausted. Returns ErrNoModelAvailable when
// every candidate is spent for the day; that is an expected condition,
// not a fault.
func (l *Limiter) SelectModel(ctx context.Context) (string, error) {
	date := DateUTC(l.now())
	for _, model := range l.priority {
		limit := l.limits[model]
		rec, found, err := l.store.GetUsage(ctx, model, date)
		if err != nil {
			return "", fmt.Errorf("industrymatch: select model: %w", err)
		}
		if !found || rec.RequestsDay < limit.RPD {
			l.meter.OnSelect(SelectEvent{
				Model:       model,
				RequestsDay: rec.RequestsDay,
				DailyLimit:  limit.RPD,
			})
			return model, nil
		}
	}
	return "", ErrNoModelAvailable
}

// Admit checks a request of estimatedTokens against model's ceilings.
// When the stored minute window differs from the current wall-clock
// minute the per-minute checks pass trivially regardless of stored
// counters; otherwise stored counters are compared strictly (equal to
// the ceiling is a violation). The daily check applies either way.
func (l *Limiter) Admit(ctx context.Context, model string, estimatedTokens int64) (Admission, error) {
	limit, ok := l.limits[model]
	if !ok {
		return Admission{}, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}

	now := l.now()
	rec, found, err := l.store.GetUsage(ctx, model, DateUTC(now))
	if err != nil {
		return Admission{}, fmt.Errorf("industrymatch: admit: %w", err)
	}
	if !found {
		return Admission{RPMOK: true, TPMOK: true, RPDOK: true}, nil
	}

	adm := Admission{RPDOK: rec.RequestsDay < limit.RPD}
	if rec.MinuteWindow != now.Minute() {
		adm.RPMOK = true
		adm.TPMOK = true
	} else {
		adm.RPMOK = rec.RequestsMinute < limit.RPM
		adm.TPMOK = rec.TokensMinute+estimatedTokens < limit.TPM
	}
	return adm, nil
}

// WaitForAdmission blocks until a request of estimatedTokens may
// proceed on model. Daily exhaustion fails immediately with
// ErrDailyQuotaExhausted; per-minute pressure sleeps until the next
// minute boundary (at most maxSleepStep per iteration) and re-checks,
// giving up with ErrAdmissionTimeout after maxAdmissionWait.
func (l *Limiter) WaitForAdmission(ctx context.Context, model string, estimatedTokens int64) error {
	start := l.now()
	for {
		adm, err := l.Admit(ctx, model, estimatedTokens)
		if err != nil {
			return err
		}
		if !adm.RPDOK {
			l.logger.Error("daily request limit reached", "model", model)
			return ErrDailyQuotaExhausted
		}
		if adm.RPMOK && adm.TPMOK {
			return nil
		}

		now := l.now()
		if elapsed := now.Sub(start); elapsed > maxAdmissionWait {
			l.logger.Error("rate limit wait budget exceeded",
				"model", model, "waited", elapsed.Round(time.Second))
			return ErrAdmissionTimeout
		}

		reason := "rpm"
		if adm.RPMOK {
			reason = "tpm"
		}
		toNextMinute := time.Duration(60-now.Second()+1) * time.Second
		wait := toNextMinute
		if wait > maxSleepStep {
			wait = maxSleepStep
		}
		l.meter.OnWait(WaitEvent{
			Model:           model,
			Reason:          reason,
			Sleep:           wait,
			EstimatedTokens: estimatedTokens,
		})
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Record persists one request of tokensUsed against model. A failed
// write propagates: callers must not assume usage was recorded.
func (l *Limiter) Record(ctx context.Context, model string, tokensUsed int64) error {
	if _, ok := l.limits[model]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	if err := l.store.RecordUsage(ctx, model, tokensUsed, l.now()); err != nil {
		return fmt.Errorf("industrymatch: record usage for %s: %w", model, err)
	}
	l.meter.OnRecord(RecordEvent{Model: model, Tokens: tokensUsed})
	return nil
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
