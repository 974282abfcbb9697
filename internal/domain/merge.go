package domain

import (
	"sort"
	"time"
)

// InstantKey identifies an instant independent of its location. Unlike
// UnixNano it is defined for every time.Time.
type InstantKey struct {
	sec  int64
	nsec int32
}

// KeyOf returns the join key for t. Equal instants share a key.
func KeyOf(t time.Time) InstantKey {
	return InstantKey{sec: t.Unix(), nsec: int32(t.Nanosecond())}
}

// Merge inner-joins prices and weather on instant equality.
//
// Only instants present on both sides produce output. Repeated instants on
// either side pair up as a Cartesian product. The result is ordered by
// timestamp, then by price input order, then by weather input order. An
// empty side yields an empty, non-nil slice.
func Merge(prices []PriceRecord, weather []WeatherRecord) []MergedRecord {
	byInstant := make(map[InstantKey][]WeatherRecord, len(weather))
	for _, w := range weather {
		key := KeyOf(w.Timestamp)
		byInstant[key] = append(byInstant[key], w)
	}

	merged := make([]MergedRecord, 0, min(len(prices), len(weather)))
	for _, p := range prices {
		for _, w := range byInstant[KeyOf(p.Timestamp)] {
			merged = append(merged, MergedRecord{
				Timestamp:   p.Timestamp,
				MarketPrice: p.MarketPrice,
				Unit:        p.Unit,
				SunIndex:    w.SunIndex,
			})
		}
	}

	// Stable keeps price order, and weather order within one price row, for
	// equal timestamps.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}
