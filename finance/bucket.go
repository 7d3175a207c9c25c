package finance

import "time"

// =============================================================================
// BUCKET - One calendar month, the unit of projection and aggregation
// =============================================================================

const (
	MinMonthsAhead = 1
	MaxMonthsAhead = 24
)

// Bucket is a calendar-month window [Start, End] in UTC.
type Bucket struct {
	MonthKey string
	Label    string
	Start    time.Time
	End      time.Time
}

// NewBucket returns the bucket for the month containing t.
func NewBucket(t time.Time) Bucket {
	start := StartOfMonth(t)
	return Bucket{
		MonthKey: MonthKey(start),
		Label:    MonthLabel(start),
		Start:    start,
		End:      EndOfMonth(start),
	}
}

// ClampMonthsAhead bounds a requested projection horizon to [1, 24].
func ClampMonthsAhead(n int) int {
	if n < MinMonthsAhead {
		return MinMonthsAhead
	}
	if n > MaxMonthsAhead {
		return MaxMonthsAhead
	}
	return n
}

// BuildBuckets returns monthsAhead consecutive month buckets, the first one
// being the month of reference.
func BuildBuckets(reference time.Time, monthsAhead int) []Bucket {
	n := ClampMonthsAhead(monthsAhead)
	buckets := make([]Bucket, 0, n)

	current := StartOfMonth(reference)
	for i := 0; i < n; i++ {
		buckets = append(buckets, NewBucket(current))
		current = AddMonths(current, 1)
	}
	return buckets
}

// MonthRange returns the buckets from the month of from through the month of
// to, inclusive, capped at MaxMonthsAhead. Empty when to precedes from.
func MonthRange(from, to time.Time) []Bucket {
	current := StartOfMonth(from)
	last := StartOfMonth(to)

	var buckets []Bucket
	for !current.After(last) && len(buckets) < MaxMonthsAhead {
		buckets = append(buckets, NewBucket(current))
		current = AddMonths(current, 1)
	}
	return buckets
}

// Window is the overall span covered by a bucket sequence.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowOf returns [first.Start, last.End]. The zero Window for no buckets.
func WindowOf(buckets []Bucket) Window {
	if len(buckets) == 0 {
		return Window{}
	}
	return Window{Start: buckets[0].Start, End: buckets[len(buckets)-1].End}
}

// Contains returns true if t is within the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
