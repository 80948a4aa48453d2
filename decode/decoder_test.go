package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/lineflow/errors"
)

func TestNewTable_RejectsDuplicateEnterprise(t *testing.T) {
	_, err := NewTable(
		NewGlass(GlassConfig{}, testLogger()),
		NewGlass(GlassConfig{}, testLogger()),
	)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestTable_Lookup(t *testing.T) {
	table, err := NewTable(
		NewGlass(GlassConfig{}, testLogger()),
		NewBeverage(BeverageConfig{}, testLogger()),
	)
	require.NoError(t, err)

	d, err := table.Lookup("glass")
	require.NoError(t, err)
	assert.Equal(t, "glass", d.Enterprise())

	_, err = table.Lookup("biotech")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnknownEnterprise)
}

func TestTable_RouteByPrefix(t *testing.T) {
	table, err := NewTable(
		NewGlass(GlassConfig{}, testLogger()),
		NewBeverage(BeverageConfig{}, testLogger()),
		NewBiotech(BiotechConfig{}, testLogger()),
	)
	require.NoError(t, err)

	tests := []struct {
		topic      string
		enterprise string
		routed     bool
	}{
		{"Enterprise A/Dallas/Line 1/OEE/Availability", "glass", true},
		{"Enterprise B/Site1/packaging/labelerline04/state/name", "beverage", true},
		{"Enterprise C/2501/TIC-250-001_PV_Celsius", "biotech", true},
		// Ignored sub-feeds still route; the decoder skips them itself.
		{"Enterprise A/maintainx/ticket/42", "glass", true},
		{"Enterprise D/anything", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			d, ok := table.Route(tt.topic)
			require.Equal(t, tt.routed, ok)
			if ok {
				assert.Equal(t, tt.enterprise, d.Enterprise())
			}
		})
	}
}
