package track

import "github.com/c360/lineflow/message"

// Thresholds are the percent-of-target cutoffs for completion status.
type Thresholds struct {
	// Complete is the fraction at or above which a run counts as COMPLETE.
	Complete float64
	// InProgress is the fraction at or above which a run counts as
	// IN_PROGRESS; below it the run barely started.
	InProgress float64
}

// DefaultThresholds returns the standard 95% / 50% cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{Complete: 0.95, InProgress: 0.5}
}

// Classify derives a completion status from the final quantity and the
// declared target. The status is a derived read over the two stored
// values, never an input. A zero or absent target is not an error; the
// feed omits targets for some runs.
func Classify(finalQuantity float64, target *float64, th Thresholds) message.CompletionStatus {
	if target == nil || *target <= 0 {
		return message.StatusNoTarget
	}
	fraction := finalQuantity / *target
	switch {
	case fraction >= th.Complete:
		return message.StatusComplete
	case fraction >= th.InProgress:
		return message.StatusInProgress
	default:
		return message.StatusStarting
	}
}
