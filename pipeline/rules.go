package pipeline

import (
	"strings"

	"github.com/c360/lineflow/window"
)

// ruleFor selects the aggregation rule for a metric path.
//
// Interval counters (the feed publishes per-interval deltas) sum; ratio
// metrics average; everything else is a point-in-time gauge where the
// freshest reading wins.
func ruleFor(metric string) window.Rule {
	m := strings.ToLower(metric)
	switch {
	case strings.Contains(m, "count"),
		strings.Contains(m, "quantitydefect"),
		strings.Contains(m, "reject"):
		return window.RuleSum
	case strings.Contains(m, "oee"),
		strings.Contains(m, "availability"),
		strings.Contains(m, "performance"),
		strings.Contains(m, "quality"),
		strings.Contains(m, "percent"),
		strings.Contains(m, "efficiency"):
		return window.RuleAverage
	default:
		return window.RuleLast
	}
}
