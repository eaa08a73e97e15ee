package clip

import (
	"fmt"
	"math"
)

// Epsilon absorbs floating-point rounding when summing fractional durations.
const Epsilon = 1e-9

// Total returns the sum of clip durations in playback order.
func Total(clips []Clip) float64 {
	var total float64
	for _, c := range clips {
		total += c.DurationSeconds
	}
	return total
}

// Remaining returns max - Total(clips). It goes negative only if clips were
// mutated outside admission control.
func Remaining(clips []Clip, max float64) float64 {
	return max - Total(clips)
}

// HasCapacity reports whether there is room left for another clip.
func HasCapacity(clips []Clip, max float64) bool {
	return Remaining(clips, max) > Epsilon
}

// Budget is a snapshot of the duration ledger.
type Budget struct {
	Max         float64 `json:"max_seconds"`
	Total       float64 `json:"total_seconds"`
	Remaining   float64 `json:"remaining_seconds"`
	HasCapacity bool    `json:"has_capacity"`
}

// BudgetOf computes the ledger for clips against max.
func BudgetOf(clips []Clip, max float64) Budget {
	total := Total(clips)
	return Budget{
		Max:         max,
		Total:       total,
		Remaining:   max - total,
		HasCapacity: max-total > Epsilon,
	}
}

// UsagePercent is the share of the budget in use, clamped to [0, 100].
func (b Budget) UsagePercent() float64 {
	if b.Max <= 0 {
		return 0
	}
	return math.Min(100, math.Max(0, b.Total/b.Max*100))
}

// FormatUsage renders "12.0s / 20s".
func (b Budget) FormatUsage() string {
	return fmt.Sprintf("%.1fs / %gs", b.Total, b.Max)
}

// FormatRemaining renders "15.0s remaining of 20s".
func (b Budget) FormatRemaining() string {
	return fmt.Sprintf("%.1fs remaining of %gs", b.Remaining, b.Max)
}
