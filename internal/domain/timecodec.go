package domain

import (
	"fmt"
	"math"
	"time"
)

// FromMillisEpoch converts milliseconds since the Unix epoch to an instant in
// the local timezone. Whole milliseconds are exact.
func FromMillisEpoch(ms float64) (time.Time, error) {
	whole, nanos, err := split(ms, float64(time.Millisecond))
	if err != nil {
		return time.Time{}, fmt.Errorf("millisecond timestamp: %w", err)
	}
	return time.UnixMilli(whole).Add(time.Duration(nanos)).Local(), nil
}

// FromSecondsEpoch converts seconds since the Unix epoch to an instant in the
// local timezone. Whole seconds are exact.
func FromSecondsEpoch(s float64) (time.Time, error) {
	whole, nanos, err := split(s, float64(time.Second))
	if err != nil {
		return time.Time{}, fmt.Errorf("second timestamp: %w", err)
	}
	return time.Unix(whole, nanos).Local(), nil
}

// split separates v into whole units and the remainder in nanoseconds, where
// one unit is unitNanos nanoseconds. The remainder is in [0, unitNanos).
func split(v, unitNanos float64) (int64, int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, 0, fmt.Errorf("%v is not finite", v)
	}
	whole := math.Floor(v)
	if whole < math.MinInt64 || whole >= math.MaxInt64 {
		return 0, 0, fmt.Errorf("%v is out of range", v)
	}
	nanos := int64(math.Round((v - whole) * unitNanos))
	if nanos >= int64(unitNanos) {
		whole++
		nanos = 0
	}
	return int64(whole), nanos, nil
}
