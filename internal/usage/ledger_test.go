package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/cchat/internal/config"
	"github.com/theirongolddev/cchat/internal/event"
	"github.com/theirongolddev/cchat/internal/store"
)

func newLedger(kv store.KV) *Ledger {
	return New(config.NewPriceTable(config.PricingOverrides{}), kv, event.NewBus(0), nil)
}

func at(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local)
	require.NoError(t, err)
	return d
}

func recordAt(l *Ledger, when time.Time, prompt, completion int64, modelName string) {
	l.now = func() time.Time { return when }
	l.Record(context.Background(), prompt, completion, modelName)
}

func TestRecord_OpusMillionTokensCosts90(t *testing.T) {
	l := newLedger(store.NewMemory())
	rec := l.Record(context.Background(), 1_000_000, 1_000_000, "claude-3-opus-20240229")
	assert.InDelta(t, 90.0, rec.Cost, 1e-9)
	assert.Len(t, l.Records(), 1)
	assert.Equal(t, time.Now().Format("2006-01-02"), rec.Date)
}

func TestSummarize_TotalsMatchBreakdowns(t *testing.T) {
	l := newLedger(store.NewMemory())
	recordAt(l, at(t, "2024-03-01 10:00"), 1000, 500, "claude-3-opus-20240229")
	recordAt(l, at(t, "2024-03-02 10:00"), 2000, 100, "claude-3-haiku-20240307")
	recordAt(l, at(t, "2024-03-02 11:00"), 10, 20, "claude-3-opus-20240229")

	sum := l.Summarize(Filter{})
	assert.Equal(t, 3, sum.Requests)
	assert.Equal(t, int64(3010), sum.PromptTokens)
	assert.Equal(t, int64(620), sum.CompletionTokens)
	assert.Equal(t, int64(3630), sum.TotalTokens)

	var modelCost, dayCost float64
	for _, m := range sum.Models() {
		modelCost += m.Cost
	}
	for _, d := range sum.Days() {
		dayCost += d.Cost
	}
	assert.InDelta(t, sum.Cost, modelCost, 1e-12)
	assert.InDelta(t, sum.Cost, dayCost, 1e-12)
	assert.Equal(t, "claude-3-opus-20240229", sum.Models()[0].Model, "sorted by cost")
	assert.Equal(t, "2024-03-02", sum.Days()[0].Date, "newest first")
}

func TestSummarize_Filters(t *testing.T) {
	l := newLedger(store.NewMemory())
	recordAt(l, at(t, "2024-03-01 10:00"), 100, 0, "claude-3-opus-20240229")
	recordAt(l, at(t, "2024-03-05 10:00"), 200, 0, "claude-3-haiku-20240307")
	recordAt(l, at(t, "2024-03-09 10:00"), 400, 0, "claude-3-opus-20240229")

	tests := []struct {
		name string
		f    Filter
		want int64
	}{
		{"all", Filter{}, 700},
		{"inclusive bounds", Filter{Start: "2024-03-01", End: "2024-03-05"}, 300},
		{"start only", Filter{Start: "2024-03-05"}, 600},
		{"model normalised", Filter{Model: "claude-3-opus"}, 500},
		{"model and range", Filter{Model: "claude-3-opus-20240229", End: "2024-03-04"}, 100},
		{"no match", Filter{Model: "claude-3-sonnet"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Summarize(tt.f).PromptTokens)
		})
	}
}

func TestProjection(t *testing.T) {
	l := newLedger(store.NewMemory())
	// $15 per 1M prompt tokens on opus.
	recordAt(l, at(t, "2024-03-10 09:00"), 1_000_000, 0, "claude-3-opus")
	recordAt(l, at(t, "2024-03-10 18:00"), 1_000_000, 0, "claude-3-opus")
	recordAt(l, at(t, "2024-03-13 09:00"), 2_000_000, 0, "claude-3-opus")
	recordAt(l, at(t, "2024-03-01 09:00"), 9_000_000, 0, "claude-3-opus")

	now := at(t, "2024-03-14 12:00")
	// Two active days in window, $60 total, $30/day, x30.
	assert.InDelta(t, 900.0, l.Projection(now), 1e-9)

	assert.InDelta(t, 0.0, l.Projection(at(t, "2024-05-01 12:00")), 1e-9)

	// Window edge: the 8th day back is excluded.
	assert.InDelta(t, 30.0*30, l.Projection(at(t, "2024-03-16 12:00")), 1e-9)
	assert.InDelta(t, 30.0*30, l.Projection(at(t, "2024-03-17 12:00")), 1e-9)
	assert.InDelta(t, 0.0, l.Projection(at(t, "2024-03-20 12:00")), 1e-9)
}

func TestCurrentPeriod_ResetsAcrossMonths(t *testing.T) {
	l := newLedger(store.NewMemory())
	recordAt(l, at(t, "2024-03-30 10:00"), 100, 10, "claude-3-haiku")
	recordAt(l, at(t, "2024-03-31 10:00"), 100, 10, "claude-3-haiku")
	assert.Equal(t, "2024-03", l.Current().Period)
	assert.Equal(t, 2, l.Current().Requests)

	recordAt(l, at(t, "2024-04-01 10:00"), 7, 3, "claude-3-haiku")
	cur := l.Current()
	assert.Equal(t, "2024-04", cur.Period)
	assert.Equal(t, 1, cur.Requests)
	assert.Equal(t, int64(10), cur.TotalTokens())
}

func TestLoad_RestoresHistory(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	first := newLedger(kv)
	recordAt(first, at(t, "2024-03-10 10:00"), 1_000_000, 0, "claude-3-opus")

	var estimate float64
	found, err := store.GetJSON(ctx, kv, store.KeyUsageEstimate, &estimate)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 450.0, estimate, 1e-9)

	second := newLedger(kv)
	second.now = func() time.Time { return at(t, "2024-03-11 10:00") }
	require.NoError(t, second.Load(ctx))
	assert.Len(t, second.Records(), 1)
	assert.Equal(t, 1, second.Current().Requests)
	assert.InDelta(t, 450.0, second.Estimate(), 1e-9)

	third := newLedger(kv)
	third.now = func() time.Time { return at(t, "2024-04-02 10:00") }
	require.NoError(t, third.Load(ctx))
	assert.Equal(t, "2024-04", third.Current().Period)
	assert.Equal(t, 0, third.Current().Requests)
}

func TestRecord_PersistFailureKeepsRecord(t *testing.T) {
	kv := store.NewMemory()
	kv.FailWrites = errors.New("read-only")
	l := newLedger(kv)

	l.Record(context.Background(), 1, 1, "claude-3-haiku")
	assert.Len(t, l.Records(), 1)
	assert.Contains(t, l.Err(), "read-only")
}

func TestBudget(t *testing.T) {
	l := newLedger(store.NewMemory())
	recordAt(l, at(t, "2024-03-10 10:00"), 1_000_000, 0, "claude-3-opus")
	budget := 60.0

	stats := l.Budget(&budget)
	assert.InDelta(t, 15.0, stats.CurrentSpend, 1e-9)
	assert.InDelta(t, 25.0, stats.BudgetUsedPercent, 1e-9)
	assert.Equal(t, 21, stats.DaysRemaining)

	none := l.Budget(nil)
	assert.Zero(t, none.BudgetUsedPercent)
}
