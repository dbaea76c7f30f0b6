package manifest

import (
	"encoding/json"
	"fmt"
	"time"
)

// DayFormat is the wire format for coverage dates.
const DayFormat = "2006-01-02"

// Interval is a closed date range at day granularity. Start and End are
// UTC midnights; End >= Start always holds for intervals built via NewInterval.
type Interval struct {
	Start time.Time
	End   time.Time
}

// ParseDay parses a YYYY-MM-DD string into a UTC midnight.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DayFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// NewInterval parses a start/end date pair.
func NewInterval(start, end string) (Interval, error) {
	s, err := ParseDay(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseDay(end)
	if err != nil {
		return Interval{}, err
	}
	if e.Before(s) {
		return Interval{}, fmt.Errorf("interval end %s before start %s", end, start)
	}
	return Interval{Start: s, End: e}, nil
}

// StartDay and EndDay return the wire form of the bounds.
func (iv Interval) StartDay() string { return iv.Start.Format(DayFormat) }
func (iv Interval) EndDay() string   { return iv.End.Format(DayFormat) }

func (iv Interval) String() string {
	return iv.StartDay() + ".." + iv.EndDay()
}

// Days returns the number of days the closed interval covers.
func (iv Interval) Days() int {
	return int(iv.End.Sub(iv.Start).Hours()/24) + 1
}

// MarshalJSON encodes the interval as a two-element ["start","end"] array,
// the manifest document form.
func (iv Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{iv.StartDay(), iv.EndDay()})
}

// UnmarshalJSON decodes the ["start","end"] array form.
func (iv *Interval) UnmarshalJSON(data []byte) error {
	var pair [2]string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("interval: %w", err)
	}
	parsed, err := NewInterval(pair[0], pair[1])
	if err != nil {
		return fmt.Errorf("interval: %w", err)
	}
	*iv = parsed
	return nil
}

func addDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// merge folds an interval list into the minimal sorted, disjoint
// representation. Two intervals fold together when the later one starts no
// more than bridgeDays after the earlier one ends: bridgeDays=1 folds
// overlapping and day-adjacent pairs ([1,5]+[6,10] becomes [1,10]),
// bridgeDays=0 folds overlapping pairs only.
func merge(intervals []Interval, bridgeDays int) []Interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sortIntervals(sorted)

	merged := sorted[:1]
	for _, cur := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !cur.Start.After(addDays(last.End, bridgeDays)) {
			last.End = maxTime(last.End, cur.End)
			continue
		}
		merged = append(merged, cur)
	}
	return merged
}

func sortIntervals(ivs []Interval) {
	// Insertion sort: manifests hold a handful of intervals per handle.
	for i := 1; i < len(ivs); i++ {
		for j := i; j > 0 && ivs[j].Start.Before(ivs[j-1].Start); j-- {
			ivs[j], ivs[j-1] = ivs[j-1], ivs[j]
		}
	}
}

// missing computes the set-difference of the requested closed interval
// against the union of stored intervals. A cursor sweeps forward from the
// requested start; every stretch of days not covered by a stored interval
// becomes a gap. Stored must be sorted and disjoint.
func missing(stored []Interval, requested Interval) []Interval {
	if len(stored) == 0 {
		return []Interval{requested}
	}

	var gaps []Interval
	cursor := requested.Start

	for _, iv := range stored {
		if cursor.After(requested.End) {
			break
		}
		if iv.End.Before(cursor) {
			continue
		}
		if iv.Start.After(cursor) {
			gapEnd := minTime(addDays(iv.Start, -1), requested.End)
			if !gapEnd.Before(cursor) {
				gaps = append(gaps, Interval{Start: cursor, End: gapEnd})
			}
		}
		cursor = maxTime(cursor, addDays(iv.End, 1))
	}

	if !cursor.After(requested.End) {
		gaps = append(gaps, Interval{Start: cursor, End: requested.End})
	}
	return gaps
}
