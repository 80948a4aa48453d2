package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/lineflow/window"
)

func TestRuleFor(t *testing.T) {
	tests := []struct {
		metric string
		want   window.Rule
	}{
		{"status/goodcount", window.RuleSum},
		{"workorder/quantitydefect", window.RuleSum},
		{"iso7459/rejectrate", window.RuleSum},
		{"oee/availability", window.RuleAverage},
		{"oee/performance", window.RuleAverage},
		{"edge/QualityPercent", window.RuleAverage},
		{"process/lineefficiency", window.RuleAverage},
		{"status/speed", window.RuleLast},
		{"TIC-250-001/pv", window.RuleLast},
		{"utilities/pressure", window.RuleLast},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			assert.Equal(t, tt.want, ruleFor(tt.metric))
		})
	}
}
