package industrymatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsageStore struct {
	recs      map[string]UsageRecord
	getFunc   func(model, date string) (UsageRecord, bool, error)
	recordErr error
}

func newFakeUsageStore() *fakeUsageStore {
	return &fakeUsageStore{recs: make(map[string]UsageRecord)}
}

func (f *fakeUsageStore) GetUsage(_ context.Context, model, date string) (UsageRecord, bool, error) {
	if f.getFunc != nil {
		return f.getFunc(model, date)
	}
	rec, ok := f.recs[model+"|"+date]
	return rec, ok, nil
}

func (f *fakeUsageStore) RecordUsage(_ context.Context, model string, tokens int64, now time.Time) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	date := DateUTC(now)
	rec, ok := f.recs[model+"|"+date]
	if !ok {
		rec = UsageRecord{Model: model, Date: date}
	}
	rec.Add(tokens, now)
	f.recs[model+"|"+date] = rec
	return nil
}

func (f *fakeUsageStore) set(rec UsageRecord) {
	f.recs[rec.Model+"|"+rec.Date] = rec
}

type testClock struct {
	t      time.Time
	slept  time.Duration
	sleeps int
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) sleep(_ context.Context, d time.Duration) error {
	c.t = c.t.Add(d)
	c.slept += d
	c.sleeps++
	return nil
}

var testLimits = map[string]ModelLimit{
	"flash-lite": {RPM: 30, TPM: 1_000_000, RPD: 200},
	"flash":      {RPM: 15, TPM: 1_000_000, RPD: 200},
	"pro":        {RPM: 5, TPM: 250_000, RPD: 100},
}

func newTestLimiter(t *testing.T, store UsageStore, clock *testClock) *Limiter {
	t.Helper()
	l, err := NewLimiter(store, testLimits, []string{"flash-lite", "flash", "pro"})
	require.NoError(t, err)
	l.now = clock.now
	l.sleep = clock.sleep
	return l
}

func TestNewLimiter_RejectsUnknownPriorityModel(t *testing.T) {
	_, err := NewLimiter(newFakeUsageStore(), testLimits, []string{"flash-lite", "nope"})
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestAdmit_NoRecordMeansAllClear(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 30, 15, 0, time.UTC)}
	l := newTestLimiter(t, newFakeUsageStore(), clock)

	adm, err := l.Admit(context.Background(), "flash", 500)
	require.NoError(t, err)
	assert.True(t, adm.OK())
}

func TestAdmit_MinuteRolloverIgnoresStoredCounters(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 31, 5, 0, time.UTC)}
	store := newFakeUsageStore()
	// Counters far beyond any ceiling, but recorded in a past minute.
	store.set(UsageRecord{
		Model: "flash", Date: "2026-03-01",
		RequestsMinute: 9999, TokensMinute: 99_999_999,
		RequestsDay: 50, TokensDay: 99_999_999,
		MinuteWindow:  30,
		LastRequestAt: clock.t.Add(-time.Minute),
	})
	l := newTestLimiter(t, store, clock)

	adm, err := l.Admit(context.Background(), "flash", 500)
	require.NoError(t, err)
	assert.True(t, adm.RPMOK)
	assert.True(t, adm.TPMOK)
	assert.True(t, adm.RPDOK)
}

func TestAdmit_SameMinuteComparesStrictly(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 31, 5, 0, time.UTC)}
	store := newFakeUsageStore()
	store.set(UsageRecord{
		Model: "flash", Date: "2026-03-01",
		RequestsMinute: 15, // exactly at the RPM ceiling
		TokensMinute:   100,
		RequestsDay:    20,
		MinuteWindow:   31,
		LastRequestAt:  clock.t,
	})
	l := newTestLimiter(t, store, clock)

	adm, err := l.Admit(context.Background(), "flash", 500)
	require.NoError(t, err)
	assert.False(t, adm.RPMOK, "equal to ceiling is a violation")
	assert.True(t, adm.TPMOK)
	assert.True(t, adm.RPDOK)
}

func TestAdmit_EstimatedTokensCountTowardTPM(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 31, 5, 0, time.UTC)}
	store := newFakeUsageStore()
	store.set(UsageRecord{
		Model: "pro", Date: "2026-03-01",
		RequestsMinute: 1,
		TokensMinute:   249_000,
		RequestsDay:    1,
		MinuteWindow:   31,
		LastRequestAt:  clock.t,
	})
	l := newTestLimiter(t, store, clock)

	adm, err := l.Admit(context.Background(), "pro", 500)
	require.NoError(t, err)
	assert.True(t, adm.TPMOK)

	adm, err = l.Admit(context.Background(), "pro", 1000)
	require.NoError(t, err)
	assert.False(t, adm.TPMOK, "249000 + 1000 reaches the 250000 ceiling")
}

func TestAdmit_DailyCheckIgnoresRollover(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 31, 5, 0, time.UTC)}
	store := newFakeUsageStore()
	store.set(UsageRecord{
		Model: "pro", Date: "2026-03-01",
		RequestsDay:   100, // at the RPD ceiling
		MinuteWindow:  30,  // stale minute
		LastRequestAt: clock.t.Add(-time.Minute),
	})
	l := newTestLimiter(t, store, clock)

	adm, err := l.Admit(context.Background(), "pro", 0)
	require.NoError(t, err)
	assert.True(t, adm.RPMOK)
	assert.True(t, adm.TPMOK)
	assert.False(t, adm.RPDOK)
}

func TestSelectModel_PriorityOrder(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	l := newTestLimiter(t, newFakeUsageStore(), clock)

	model, err := l.SelectModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "flash-lite", model)
}

func TestSelectModel_SkipsDailyExhausted(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := newFakeUsageStore()
	store.set(UsageRecord{Model: "flash-lite", Date: "2026-03-01", RequestsDay: 200, LastRequestAt: clock.t})
	l := newTestLimiter(t, store, clock)

	model, err := l.SelectModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "flash", model)
}

func TestSelectModel_AllExhausted(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := newFakeUsageStore()
	store.set(UsageRecord{Model: "flash-lite", Date: "2026-03-01", RequestsDay: 200, LastRequestAt: clock.t})
	store.set(UsageRecord{Model: "flash", Date: "2026-03-01", RequestsDay: 200, LastRequestAt: clock.t})
	store.set(UsageRecord{Model: "pro", Date: "2026-03-01", RequestsDay: 100, LastRequestAt: clock.t})
	l := newTestLimiter(t, store, clock)

	_, err := l.SelectModel(context.Background())
	assert.ErrorIs(t, err, ErrNoModelAvailable)
}

func TestDailyExhaustion_IsPermanentForTheDay(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := newFakeUsageStore()
	l := newTestLimiter(t, store, clock)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, l.Record(ctx, "pro", 10))
		clock.t = clock.t.Add(time.Second)
	}

	adm, err := l.Admit(ctx, "pro", 0)
	require.NoError(t, err)
	assert.False(t, adm.RPDOK)

	// Minutes passing never clears the daily check.
	clock.t = clock.t.Add(30 * time.Minute)
	adm, err = l.Admit(ctx, "pro", 0)
	require.NoError(t, err)
	assert.False(t, adm.RPDOK)

	err = l.WaitForAdmission(ctx, "pro", 0)
	assert.ErrorIs(t, err, ErrDailyQuotaExhausted)
	assert.Zero(t, clock.sleeps, "daily exhaustion must not wait")
}

func TestWaitForAdmission_ImmediateWhenClear(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	l := newTestLimiter(t, newFakeUsageStore(), clock)

	require.NoError(t, l.WaitForAdmission(context.Background(), "flash", 100))
	assert.Zero(t, clock.sleeps)
}

func TestWaitForAdmission_ClearsAtMinuteBoundary(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 30, 55, 0, time.UTC)}
	store := newFakeUsageStore()
	store.set(UsageRecord{
		Model: "flash", Date: "2026-03-01",
		RequestsMinute: 15, RequestsDay: 20,
		MinuteWindow:  30,
		LastRequestAt: clock.t,
	})
	l := newTestLimiter(t, store, clock)

	require.NoError(t, l.WaitForAdmission(context.Background(), "flash", 100))
	assert.Greater(t, clock.sleeps, 0)
	assert.Equal(t, 31, clock.t.Minute(), "should have crossed the minute boundary")
}

func TestWaitForAdmission_BudgetExceeded(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)}
	store := newFakeUsageStore()
	// The store always reports the current minute as saturated, so the
	// rollover escape hatch never opens.
	store.getFunc = func(model, date string) (UsageRecord, bool, error) {
		return UsageRecord{
			Model: model, Date: date,
			RequestsMinute: 9999, RequestsDay: 1,
			MinuteWindow:  clock.t.Minute(),
			LastRequestAt: clock.t,
		}, true, nil
	}
	l := newTestLimiter(t, store, clock)

	err := l.WaitForAdmission(context.Background(), "flash", 100)
	assert.ErrorIs(t, err, ErrAdmissionTimeout)
	assert.Greater(t, clock.slept, maxAdmissionWait)
	assert.LessOrEqual(t, clock.slept, maxAdmissionWait+maxSleepStep)
}

func TestWaitForAdmission_SleepsAtMostTenSeconds(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)}
	store := newFakeUsageStore()
	store.set(UsageRecord{
		Model: "flash", Date: "2026-03-01",
		RequestsMinute: 15, RequestsDay: 1,
		MinuteWindow:  30,
		LastRequestAt: clock.t,
	})
	l := newTestLimiter(t, store, clock)

	require.NoError(t, l.WaitForAdmission(context.Background(), "flash", 100))
	// A full minute to the boundary, taken in capped 10s steps.
	assert.Equal(t, 6, clock.sleeps)
	assert.Equal(t, 60*time.Second, clock.slept)
}

func TestRecord_PropagatesWriteFailure(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := newFakeUsageStore()
	store.recordErr = errors.New("connection reset")
	l := newTestLimiter(t, store, clock)

	err := l.Record(context.Background(), "flash", 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRecord_UnknownModel(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	l := newTestLimiter(t, newFakeUsageStore(), clock)

	err := l.Record(context.Background(), "nope", 100)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestRecord_CountersStayConsistent(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)}
	store := newFakeUsageStore()
	l := newTestLimiter(t, store, clock)
	ctx := context.Background()

	steps := []time.Duration{0, 10 * time.Second, 25 * time.Second, 2 * time.Minute, 5 * time.Second, time.Hour}
	for _, d := range steps {
		clock.t = clock.t.Add(d)
		require.NoError(t, l.Record(ctx, "flash", 100))

		rec, found, err := store.GetUsage(ctx, "flash", "2026-03-01")
		require.NoError(t, err)
		require.True(t, found)
		assert.LessOrEqual(t, rec.RequestsMinute, rec.RequestsDay)
		assert.LessOrEqual(t, rec.TokensMinute, rec.TokensDay)
		assert.Equal(t, clock.t.Minute(), rec.MinuteWindow)
		assert.Equal(t, clock.t, rec.LastRequestAt)
	}

	rec, _, _ := store.GetUsage(ctx, "flash", "2026-03-01")
	assert.Equal(t, 6, rec.RequestsDay)
	assert.Equal(t, int64(600), rec.TokensDay)
}
