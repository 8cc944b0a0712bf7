package phototag

import "math"

// ProgressEvent reports how many images of a batch the server has processed.
// Processed+Remaining is expected to equal Total, but this is not enforced:
// the values are forwarded exactly as the server sent them.
type ProgressEvent struct {
	Total      int
	Processed  int
	Remaining  int
	Percentage int // 0 when Total is 0
}

// NewProgressEvent builds a ProgressEvent and derives its percentage.
func NewProgressEvent(total, processed, remaining int) ProgressEvent {
	return ProgressEvent{
		Total:      total,
		Processed:  processed,
		Remaining:  remaining,
		Percentage: Percentage(float64(processed), float64(total)),
	}
}

// Percentage returns round(processed/total*100), with halves rounded up
// (toward positive infinity). A zero total yields 0 rather than a division
// by zero.
func Percentage(processed, total float64) int {
	if total == 0 {
		return 0
	}
	return int(math.Floor(processed/total*100 + 0.5))
}

// Fraction returns the completed share of the batch in [0, 1], for progress
// bars. Out-of-range server values are clamped.
func (p ProgressEvent) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Processed) / float64(p.Total)
	return math.Max(0, math.Min(1, f))
}
