// Package usage keeps the append-only ledger of completed requests and
// derives cost summaries and projections from it.
package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/theirongolddev/cchat/internal/config"
	"github.com/theirongolddev/cchat/internal/event"
	"github.com/theirongolddev/cchat/internal/model"
	"github.com/theirongolddev/cchat/internal/store"
)

// projectionWindow is the number of trailing calendar days averaged by
// Projection, today included.
const projectionWindow = 7

// daysPerMonth scales the daily average into a monthly estimate.
const daysPerMonth = 30

// Filter narrows Summarize. Zero values mean unbounded.
type Filter struct {
	Start string // YYYY-MM-DD, inclusive
	End   string // YYYY-MM-DD, inclusive
	Model string
}

// Ledger records usage and answers aggregate queries.
type Ledger struct {
	prices *config.PriceTable
	kv     store.KV
	bus    *event.Bus
	log    *slog.Logger
	now    func() time.Time

	persistMu sync.Mutex

	mu       sync.RWMutex
	records  []model.UsageRecord
	current  model.PeriodUsage
	estimate float64
	err      string
}

// New returns an empty ledger. Call Load to restore history.
func New(prices *config.PriceTable, kv store.KV, bus *event.Bus, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		prices: prices,
		kv:     kv,
		bus:    bus,
		log:    logger,
		now:    time.Now,
	}
}

// Load restores the persisted history and current-period aggregate. A
// persisted aggregate for a past month is discarded.
func (l *Ledger) Load(ctx context.Context) error {
	var records []model.UsageRecord
	if _, err := store.GetJSON(ctx, l.kv, store.KeyUsageHistory, &records); err != nil {
		l.setErr(err)
		return err
	}
	var current model.PeriodUsage
	if _, err := store.GetJSON(ctx, l.kv, store.KeyUsageCurrent, &current); err != nil {
		l.setErr(err)
		return err
	}

	now := l.now()
	period := now.Format(model.PeriodLayout)
	if current.Period != period {
		current = model.PeriodUsage{Period: period}
	}

	l.mu.Lock()
	l.records = records
	l.current = current
	l.estimate = projection(records, now)
	l.mu.Unlock()
	return nil
}

// Record appends one completed request. It never fails the caller;
// persistence problems are logged and exposed through Err.
func (l *Ledger) Record(ctx context.Context, promptTokens, completionTokens int64, modelName string) model.UsageRecord {
	now := l.now()
	rec := model.UsageRecord{
		Date:             now.Format(model.DateLayout),
		Model:            modelName,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Cost:             l.prices.Cost(modelName, now, promptTokens, completionTokens),
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	period := now.Format(model.PeriodLayout)
	if l.current.Period != period {
		l.current = model.PeriodUsage{Period: period}
	}
	l.current.Requests++
	l.current.PromptTokens += promptTokens
	l.current.CompletionTokens += completionTokens
	l.current.Cost += rec.Cost
	l.estimate = projection(l.records, now)
	l.mu.Unlock()

	err := l.persist(ctx)
	if err != nil {
		l.log.Warn("persisting usage failed", "error", err)
		l.setErr(err)
	}

	l.log.Debug("usage recorded",
		"model", modelName,
		"prompt_tokens", promptTokens,
		"completion_tokens", completionTokens,
		"cost", rec.Cost,
	)
	l.bus.Emit(event.TopicUsage, "recorded", modelName, err)
	return rec
}

func (l *Ledger) persist(ctx context.Context) error {
	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	l.mu.RLock()
	records := append([]model.UsageRecord(nil), l.records...)
	current := l.current
	estimate := l.estimate
	l.mu.RUnlock()

	if err := store.SetJSON(ctx, l.kv, store.KeyUsageHistory, records); err != nil {
		return err
	}
	if err := store.SetJSON(ctx, l.kv, store.KeyUsageCurrent, current); err != nil {
		return err
	}
	return store.SetJSON(ctx, l.kv, store.KeyUsageEstimate, estimate)
}

// Summarize aggregates the records matching f.
func (l *Ledger) Summarize(f Filter) model.UsageSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	wantModel := ""
	if f.Model != "" {
		wantModel = config.NormalizeModelName(f.Model)
	}

	sum := model.UsageSummary{
		ByModel: make(map[string]*model.ModelUsage),
		ByDay:   make(map[string]*model.DayUsage),
	}
	for _, r := range l.records {
		if f.Start != "" && r.Date < f.Start {
			continue
		}
		if f.End != "" && r.Date > f.End {
			continue
		}
		if wantModel != "" && config.NormalizeModelName(r.Model) != wantModel {
			continue
		}

		sum.Requests++
		sum.PromptTokens += r.PromptTokens
		sum.CompletionTokens += r.CompletionTokens
		sum.Cost += r.Cost

		mu, ok := sum.ByModel[r.Model]
		if !ok {
			mu = &model.ModelUsage{Model: r.Model}
			sum.ByModel[r.Model] = mu
		}
		mu.Requests++
		mu.PromptTokens += r.PromptTokens
		mu.CompletionTokens += r.CompletionTokens
		mu.Cost += r.Cost

		du, ok := sum.ByDay[r.Date]
		if !ok {
			du = &model.DayUsage{Date: r.Date}
			sum.ByDay[r.Date] = du
		}
		du.Requests++
		du.PromptTokens += r.PromptTokens
		du.CompletionTokens += r.CompletionTokens
		du.Cost += r.Cost
	}
	sum.TotalTokens = sum.PromptTokens + sum.CompletionTokens
	return sum
}

// Projection estimates monthly spend from the trailing seven days as of now.
func (l *Ledger) Projection(now time.Time) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return projection(l.records, now)
}

// projection averages daily cost over the trailing window, counting only
// days with at least one record, and scales it to a month.
func projection(records []model.UsageRecord, now time.Time) float64 {
	window := make(map[string]float64, projectionWindow)
	for i := 0; i < projectionWindow; i++ {
		window[now.AddDate(0, 0, -i).Format(model.DateLayout)] = 0
	}
	active := make(map[string]bool, projectionWindow)
	var total float64
	for _, r := range records {
		if _, ok := window[r.Date]; !ok {
			continue
		}
		active[r.Date] = true
		total += r.Cost
	}
	if len(active) == 0 {
		return 0
	}
	return total / float64(len(active)) * daysPerMonth
}

// Budget compares the current month's spend and the projection with a
// monthly budget. budget may be nil.
func (l *Ledger) Budget(budget *float64) model.BudgetStats {
	now := l.now()
	l.mu.RLock()
	spend := 0.0
	if l.current.Period == now.Format(model.PeriodLayout) {
		spend = l.current.Cost
	}
	projected := projection(l.records, now)
	l.mu.RUnlock()

	firstOfNext := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
	stats := model.BudgetStats{
		CustomBudget:     budget,
		CurrentSpend:     spend,
		ProjectedMonthly: projected,
		DaysRemaining:    int(firstOfNext.Sub(now).Hours() / 24),
	}
	if budget != nil && *budget > 0 {
		stats.BudgetUsedPercent = spend / *budget * 100
	}
	return stats
}

// Records returns a copy of the ledger in insertion order.
func (l *Ledger) Records() []model.UsageRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.UsageRecord(nil), l.records...)
}

// Current returns the running aggregate for the current month.
func (l *Ledger) Current() model.PeriodUsage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Estimate returns the projection computed at the last Record or Load.
func (l *Ledger) Estimate() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.estimate
}

// Err returns the last persistence error, or "".
func (l *Ledger) Err() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

func (l *Ledger) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err.Error()
}
