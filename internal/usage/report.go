package usage

import (
	"sort"
	"time"

	"github.com/theirongolddev/cchat/internal/model"
)

// LastDays returns a filter covering the trailing n calendar days ending
// at now, today included. n <= 0 means unbounded.
func LastDays(n int, now time.Time) Filter {
	if n <= 0 {
		return Filter{}
	}
	return Filter{
		Start: now.AddDate(0, 0, -(n - 1)).Format(model.DateLayout),
		End:   now.Format(model.DateLayout),
	}
}

// DailySeries returns one entry per day from since to until, newest first.
// Days without records are present with zero values so charts show gaps.
func DailySeries(sum model.UsageSummary, since, until time.Time) []model.DayUsage {
	dayMap := make(map[string]model.DayUsage, len(sum.ByDay))
	for k, d := range sum.ByDay {
		dayMap[k] = *d
	}

	day := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, since.Location())
	end := time.Date(until.Year(), until.Month(), until.Day(), 0, 0, 0, 0, until.Location())
	for !day.After(end) {
		key := day.Format(model.DateLayout)
		if _, ok := dayMap[key]; !ok {
			dayMap[key] = model.DayUsage{Date: key}
		}
		day = day.AddDate(0, 0, 1)
	}

	days := make([]model.DayUsage, 0, len(dayMap))
	for _, d := range dayMap {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date > days[j].Date })
	return days
}
