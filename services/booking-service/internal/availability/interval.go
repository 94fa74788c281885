package availability

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

// OverlapsAny reports whether [start,end) intersects any busy interval.
func OverlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
