package match

import (
	"sort"
	"time"

	"github.com/wasatchdata/listingradar/internal/filterplan"
)

// Record is the reduced per-listing result: the latest snapshot row, its
// chronological price-change history, the new flag, and the motivation tier.
type Record struct {
	Row
	Events               []PriceChange   `json:"events"`
	New                  bool            `json:"new"`
	SellerMotivationTier filterplan.Tier `json:"seller_motivation_score"`
}

// Reduce collapses ranked rows to one record per listing. Today is the local
// ingestion day used for new-event detection; minDaysOnMarket is the filter's
// floor, surfacing listings that just crossed into it.
func Reduce(rows []Row, minDaysOnMarket *int, today time.Time) []Record {
	byListing := make(map[string][]Row)
	var order []string
	for _, row := range rows {
		if _, seen := byListing[row.MLSNumber]; !seen {
			order = append(order, row.MLSNumber)
		}
		byListing[row.MLSNumber] = append(byListing[row.MLSNumber], row)
	}

	day := today.Format("2006-01-02")
	records := make([]Record, 0, len(order))
	for _, mls := range order {
		group := byListing[mls]
		base, ok := latestRow(group)
		if !ok {
			continue
		}
		rec := Record{Row: base, Events: []PriceChange{}}

		for _, row := range group {
			if row.PriceDiff == nil || *row.PriceDiff == 0 {
				continue
			}
			rec.Events = append(rec.Events, PriceChange{
				MLSNumber: row.MLSNumber,
				EventDate: row.EventDate,
				NewPrice:  *row.NewPrice,
				OldPrice:  row.Price,
				PriceDiff: *row.PriceDiff,
			})
		}
		sort.SliceStable(rec.Events, func(i, j int) bool {
			return rec.Events[i].EventDate.After(rec.Events[j].EventDate)
		})

		rec.New = isNew(rec, minDaysOnMarket, day)
		rec.SellerMotivationTier = scoreMotivation(rec)
		records = append(records, rec)
	}

	return newFirst(records)
}

func latestRow(group []Row) (Row, bool) {
	for _, row := range group {
		if row.Rn == 1 {
			return row, true
		}
	}
	return Row{}, false
}

// isNew flags listings worth surfacing today: a price event dated today, a
// brand-new listing, or one that just crossed the filter's days floor.
func isNew(rec Record, minDaysOnMarket *int, day string) bool {
	for _, ev := range rec.Events {
		if ev.EventDate.Format("2006-01-02") == day {
			return true
		}
	}
	if rec.CurrentDaysOnMarket == 0 {
		return true
	}
	if minDaysOnMarket != nil && rec.CurrentDaysOnMarket == *minDaysOnMarket {
		return true
	}
	return false
}

// scoreMotivation combines the classifier flag, a days-on-market bucket, and
// the count of price drops into a tier. Buckets are mutually exclusive and
// checked in order.
func scoreMotivation(rec Record) filterplan.Tier {
	score := 0
	if rec.SellerMotivation != nil && *rec.SellerMotivation {
		score += 4
	}

	dom := rec.CurrentDaysOnMarket
	switch {
	case dom > 90 && dom < 180:
		score += 3
	case dom > 60:
		score += 2
	case dom > 30:
		score += 1
	}

	drops := 0
	for _, ev := range rec.Events {
		if ev.PriceDiff < 0 {
			drops++
		}
	}
	switch {
	case drops == 1:
		score++
	case drops == 2:
		score += 2
	case drops > 2:
		score += 3
	}

	switch {
	case score >= 6:
		return filterplan.TierHigh
	case score >= 3:
		return filterplan.TierModerate
	default:
		return filterplan.TierUndetected
	}
}

// newFirst stably partitions records so new ones lead, preserving each
// group's relative order.
func newFirst(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.New {
			out = append(out, r)
		}
	}
	for _, r := range records {
		if !r.New {
			out = append(out, r)
		}
	}
	return out
}
