package model

import (
	"sort"
	"time"
)

// DateLayout is the calendar-date format used for usage records.
const DateLayout = "2006-01-02"

// PeriodLayout is the month format used for the current-period aggregate.
const PeriodLayout = "2006-01"

// UsageRecord is one completed API request. Append-only.
type UsageRecord struct {
	Date             string  `json:"date"`
	Model            string  `json:"model"`
	PromptTokens     int64   `json:"promptTokens"`
	CompletionTokens int64   `json:"completionTokens"`
	Cost             float64 `json:"cost"`
}

// TotalTokens returns prompt plus completion tokens.
func (r UsageRecord) TotalTokens() int64 {
	return r.PromptTokens + r.CompletionTokens
}

// ModelUsage tracks usage for one model within a summary.
type ModelUsage struct { //nolint:revive // reads better than model.Usage at call sites
	Model            string
	Requests         int
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64
}

// DayUsage tracks usage for one calendar day within a summary.
type DayUsage struct {
	Date             string
	Requests         int
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64
}

// UsageSummary aggregates a filtered set of usage records.
type UsageSummary struct {
	Requests         int
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	Cost             float64

	ByModel map[string]*ModelUsage
	ByDay   map[string]*DayUsage
}

// Models returns the per-model breakdown sorted by cost, highest first.
func (s UsageSummary) Models() []ModelUsage {
	out := make([]ModelUsage, 0, len(s.ByModel))
	for _, m := range s.ByModel {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost > out[j].Cost
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// Days returns the per-day breakdown, newest first.
func (s UsageSummary) Days() []DayUsage {
	out := make([]DayUsage, 0, len(s.ByDay))
	for _, d := range s.ByDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// PeriodUsage is the running aggregate for one calendar month.
type PeriodUsage struct {
	Period           string  `json:"period"`
	Requests         int     `json:"requests"`
	PromptTokens     int64   `json:"promptTokens"`
	CompletionTokens int64   `json:"completionTokens"`
	Cost             float64 `json:"cost"`
}

// TotalTokens returns prompt plus completion tokens.
func (p PeriodUsage) TotalTokens() int64 {
	return p.PromptTokens + p.CompletionTokens
}

// Response is a normalized assistant reply.
type Response struct {
	ID           string
	Role         Role
	Content      string
	Model        string
	StopReason   string
	StopSequence string
	Usage        TokenUsage
	ReceivedAt   time.Time
}

// TokenUsage is the token accounting returned with a response.
type TokenUsage struct {
	PromptTokens     int64
	CompletionTokens int64
}
