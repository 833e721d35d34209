package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wasatchdata/listingradar/internal/filterplan"
)

func fptr(v float64) *float64 { return &v }
func bptr(v bool) *bool       { return &v }
func iptr(v int) *int         { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// rowsFor builds a ranked group: rn=1 is the newest event, later entries go
// back in time with LEAD-derived new_price and price_diff populated.
func rowsFor(mls string, motivated *bool, cdom int, prices []float64, dates []time.Time) []Row {
	rows := make([]Row, 0, len(prices))
	for i := range prices {
		row := Row{
			MLSNumber:           mls,
			Price:               prices[i],
			EventDate:           dates[i],
			SellerMotivation:    motivated,
			Active:              true,
			CurrentDaysOnMarket: cdom,
			Rn:                  int64(i + 1),
		}
		if i > 0 {
			row.NewPrice = fptr(prices[i-1])
			diff := prices[i-1] - prices[i]
			row.PriceDiff = fptr(diff)
		}
		rows = append(rows, row)
	}
	return rows
}

func TestReduceCollapsesToLatestSnapshot(t *testing.T) {
	t.Parallel()

	today := day(2024, 5, 15)
	rows := rowsFor("111", nil, 45,
		[]float64{440000, 450000},
		[]time.Time{day(2024, 5, 10), day(2024, 5, 1)})

	records := Reduce(rows, nil, today)
	require.Len(t, records, 1)
	rec := records[0]
	require.Equal(t, "111", rec.MLSNumber)
	require.Equal(t, 440000.0, rec.Price)

	require.Len(t, rec.Events, 1)
	require.Equal(t, -10000.0, rec.Events[0].PriceDiff)
	require.Equal(t, 440000.0, rec.Events[0].NewPrice)
	require.Equal(t, 450000.0, rec.Events[0].OldPrice)
}

func TestReduceEventsSortedNewestFirst(t *testing.T) {
	t.Parallel()

	today := day(2024, 5, 15)
	rows := rowsFor("111", nil, 100,
		[]float64{400000, 420000, 450000},
		[]time.Time{day(2024, 5, 12), day(2024, 5, 5), day(2024, 4, 20)})

	records := Reduce(rows, nil, today)
	require.Len(t, records, 1)
	events := records[0].Events
	require.Len(t, events, 2)
	require.True(t, events[0].EventDate.After(events[1].EventDate))
}

func TestReduceNewFlag(t *testing.T) {
	t.Parallel()

	today := day(2024, 5, 15)

	t.Run("price event today", func(t *testing.T) {
		t.Parallel()
		rows := rowsFor("111", nil, 45,
			[]float64{440000, 450000},
			[]time.Time{day(2024, 5, 15), day(2024, 5, 1)})
		records := Reduce(rows, nil, today)
		require.True(t, records[0].New)
	})

	t.Run("zero days on market", func(t *testing.T) {
		t.Parallel()
		rows := rowsFor("222", nil, 0, []float64{450000}, []time.Time{day(2024, 5, 15)})
		records := Reduce(rows, nil, today)
		require.True(t, records[0].New)
	})

	t.Run("just crossed the days floor", func(t *testing.T) {
		t.Parallel()
		rows := rowsFor("333", nil, 30, []float64{450000}, []time.Time{day(2024, 4, 15)})
		records := Reduce(rows, iptr(30), today)
		require.True(t, records[0].New)
	})

	t.Run("nothing new", func(t *testing.T) {
		t.Parallel()
		rows := rowsFor("444", nil, 45, []float64{450000}, []time.Time{day(2024, 4, 1)})
		records := Reduce(rows, iptr(30), today)
		require.False(t, records[0].New)
	})
}

func TestReduceMotivationScoring(t *testing.T) {
	t.Parallel()

	today := day(2024, 5, 15)

	// Flagged (+4), 95 days on market (+3), three drops (+3): High.
	high := rowsFor("111", bptr(true), 95,
		[]float64{380000, 400000, 420000, 450000},
		[]time.Time{day(2024, 5, 10), day(2024, 4, 20), day(2024, 3, 15), day(2024, 2, 10)})

	// Unflagged, 45 days (+1), one drop (+1): score 2, Undetected.
	low := rowsFor("222", bptr(false), 45,
		[]float64{440000, 450000},
		[]time.Time{day(2024, 5, 1), day(2024, 4, 10)})

	// Unflagged, 70 days (+2), one drop (+1): score 3, Moderate.
	mid := rowsFor("333", nil, 70,
		[]float64{440000, 450000},
		[]time.Time{day(2024, 4, 20), day(2024, 3, 10)})

	records := Reduce(append(append(high, low...), mid...), nil, today)
	tiers := map[string]filterplan.Tier{}
	for _, r := range records {
		tiers[r.MLSNumber] = r.SellerMotivationTier
	}
	require.Equal(t, filterplan.TierHigh, tiers["111"])
	require.Equal(t, filterplan.TierUndetected, tiers["222"])
	require.Equal(t, filterplan.TierModerate, tiers["333"])
}

func TestReducePriceRaisesDoNotCountAsDrops(t *testing.T) {
	t.Parallel()

	today := day(2024, 5, 15)
	// One raise then one drop: only the drop contributes.
	rows := rowsFor("111", nil, 20,
		[]float64{450000, 460000, 440000},
		[]time.Time{day(2024, 5, 10), day(2024, 4, 25), day(2024, 4, 1)})

	records := Reduce(rows, nil, today)
	require.Len(t, records[0].Events, 2)
	require.Equal(t, filterplan.TierUndetected, records[0].SellerMotivationTier)
}

func TestReduceNewListingsLeadStably(t *testing.T) {
	t.Parallel()

	today := day(2024, 5, 15)
	old1 := rowsFor("111", nil, 45, []float64{450000}, []time.Time{day(2024, 4, 1)})
	fresh := rowsFor("222", nil, 0, []float64{500000}, []time.Time{day(2024, 5, 15)})
	old2 := rowsFor("333", nil, 60, []float64{350000}, []time.Time{day(2024, 3, 16)})

	records := Reduce(append(append(old1, fresh...), old2...), nil, today)
	require.Len(t, records, 3)
	require.Equal(t, "222", records[0].MLSNumber)
	require.Equal(t, "111", records[1].MLSNumber)
	require.Equal(t, "333", records[2].MLSNumber)
}

func TestReduceDropsGroupsWithoutLatestRow(t *testing.T) {
	t.Parallel()

	rows := []Row{{MLSNumber: "111", Rn: 2, Price: 450000}}
	records := Reduce(rows, nil, day(2024, 5, 15))
	require.Empty(t, records)
}
