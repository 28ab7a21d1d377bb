package explorer

import (
	"fmt"
	"slices"
	"time"

	"leadboard/internal/core"
)

// MonthBucket is a calendar month and the weeks assigned to it, in input order.
type MonthBucket struct {
	Year  int
	Month time.Month
	Weeks []core.Week
}

// Label renders the bucket heading, e.g. "February 2024".
func (b MonthBucket) Label() string {
	return fmt.Sprintf("%s %d", b.Month, b.Year)
}

type yearMonth struct {
	year  int
	month time.Month
}

func (a yearMonth) compare(b yearMonth) int {
	if a.year != b.year {
		return a.year - b.year
	}
	return int(a.month) - int(b.month)
}

// GroupByMonth assigns every week to exactly one calendar month and returns
// the buckets sorted ascending by (year, month).
//
// A week belongs to the month holding most of its days. On a tie the month
// reached first while walking the days in order wins.
func GroupByMonth(weeks []core.Week) []MonthBucket {
	var buckets []MonthBucket
	index := make(map[yearMonth]int)

	for _, w := range weeks {
		ym := dominantMonth(w)
		i, ok := index[ym]
		if !ok {
			i = len(buckets)
			index[ym] = i
			buckets = append(buckets, MonthBucket{Year: ym.year, Month: ym.month})
		}
		buckets[i].Weeks = append(buckets[i].Weeks, w)
	}

	slices.SortStableFunc(buckets, func(a, b MonthBucket) int {
		return yearMonth{a.Year, a.Month}.compare(yearMonth{b.Year, b.Month})
	})
	return buckets
}

func dominantMonth(w core.Week) yearMonth {
	start := dayOf(w.StartDate.Time)
	end := dayOf(w.EndDate.Time)
	if end.Before(start) {
		end = start
	}

	var order []yearMonth
	tally := make(map[yearMonth]int)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		ym := yearMonth{d.Year(), d.Month()}
		if _, seen := tally[ym]; !seen {
			order = append(order, ym)
		}
		tally[ym]++
	}

	best := order[0]
	for _, ym := range order[1:] {
		if tally[ym] > tally[best] {
			best = ym
		}
	}
	return best
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
