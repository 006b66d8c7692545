package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/cchat/internal/store"
)

func TestLastDays(t *testing.T) {
	now := at(t, "2024-03-10 12:00")
	f := LastDays(7, now)
	assert.Equal(t, "2024-03-04", f.Start)
	assert.Equal(t, "2024-03-10", f.End)
	assert.Equal(t, Filter{}, LastDays(0, now))
}

func TestDailySeries_FillsGaps(t *testing.T) {
	l := newLedger(store.NewMemory())
	recordAt(l, at(t, "2024-03-01 10:00"), 100, 50, "claude-3-haiku-20240307")
	recordAt(l, at(t, "2024-03-04 10:00"), 100, 50, "claude-3-haiku-20240307")

	series := DailySeries(l.Summarize(Filter{}), at(t, "2024-03-01 00:00"), at(t, "2024-03-05 23:00"))
	require.Len(t, series, 5)
	assert.Equal(t, "2024-03-05", series[0].Date)
	assert.Equal(t, 0, series[0].Requests)
	assert.Equal(t, "2024-03-04", series[1].Date)
	assert.Equal(t, 1, series[1].Requests)
	assert.Equal(t, "2024-03-01", series[4].Date)
}
