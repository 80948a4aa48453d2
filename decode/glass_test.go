package decode

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/lineflow/message"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestGlass_StateTopics(t *testing.T) {
	g := NewGlass(GlassConfig{}, testLogger())

	r, ok := g.Decode("Enterprise A/Dallas/Line 1/HotEnd/Furnace/State/StateCurrent", []byte("3"), 1000)
	require.True(t, ok)
	sc, ok := r.(message.StateChange)
	require.True(t, ok)
	assert.Equal(t, "3", sc.Code)
	assert.Equal(t, "", sc.Reason)
	assert.Equal(t, message.EntityRef{
		Enterprise: "glass", Site: "Dallas", Area: "HotEnd", Line: "Line 1", Equipment: "Furnace",
	}, sc.Entity)
	assert.Equal(t, int64(1000), sc.At())

	r, ok = g.Decode("Enterprise A/Dallas/Line 1/HotEnd/Furnace/State/StateReason", []byte("Planned Maintenance"), 1000)
	require.True(t, ok)
	sc = r.(message.StateChange)
	assert.Equal(t, "", sc.Code)
	assert.Equal(t, "Planned Maintenance", sc.Reason)
}

func TestGlass_StatusAndOEE(t *testing.T) {
	g := NewGlass(GlassConfig{}, testLogger())

	r, ok := g.Decode("Enterprise A/Dallas/Line 1/BatchHouse/Silo01/Status/Level", []byte("87.5"), 1000)
	require.True(t, ok)
	ns := r.(message.NumericSample)
	assert.Equal(t, "status/level", ns.Metric)
	assert.Equal(t, 87.5, ns.Value)
	assert.Equal(t, "Silo01", ns.Entity.Equipment)

	// Line-level OEE has no area or equipment segment.
	r, ok = g.Decode("Enterprise A/Dallas/Line 1/OEE/Availability", []byte("0.92"), 1000)
	require.True(t, ok)
	ns = r.(message.NumericSample)
	assert.Equal(t, "oee/availability", ns.Metric)
	assert.Equal(t, "", ns.Entity.Equipment)
	assert.Equal(t, "Line 1", ns.Entity.Line)

	// Non-numeric payload for a numeric field yields no reading.
	_, ok = g.Decode("Enterprise A/Dallas/Line 1/BatchHouse/Silo01/Status/Material", []byte("Sand"), 1000)
	assert.False(t, ok)
}

func TestGlass_StructuredPayload(t *testing.T) {
	g := NewGlass(GlassConfig{}, testLogger())

	payload := []byte(`{"value": 12.5, "timestamp": "2026-01-15T10:30:00Z"}`)
	r, ok := g.Decode("Enterprise A/Dallas/Line 1/ColdEnd/Lehr/Status/Temperature", payload, 1000)
	require.True(t, ok)
	ns := r.(message.NumericSample)
	assert.Equal(t, 12.5, ns.Value)
	assert.Equal(t, int64(1768473000000), ns.At(), "payload timestamp wins over receive time")
}

func TestGlass_AssetInfo(t *testing.T) {
	g := NewGlass(GlassConfig{}, testLogger())

	r, ok := g.Decode("Enterprise A/Dallas/Line 1/HotEnd/ISMachine/Asset Info", []byte(`{"manufacturer":"Emhart","model":"IS-8"}`), 1000)
	require.True(t, ok)
	rf := r.(message.ReferenceFact)
	assert.Equal(t, message.EntityAsset, rf.EntityKind)
	assert.Equal(t, "Emhart", rf.Attributes["manufacturer"])
	assert.Equal(t, "asset_info", rf.Attributes["info_kind"])
	assert.NotEmpty(t, rf.NaturalKey)
}

func TestGlass_Utilities(t *testing.T) {
	g := NewGlass(GlassConfig{}, testLogger())

	r, ok := g.Decode("Enterprise A/opto22/Utilities/Compressors/Compressor01/Pressure", []byte("104.2"), 1000)
	require.True(t, ok)
	ns := r.(message.NumericSample)
	assert.Equal(t, "utilities/pressure", ns.Metric)
	assert.Equal(t, "Compressor01", ns.Entity.Equipment)
	assert.Equal(t, "Utilities", ns.Entity.Area)

	r, ok = g.Decode("Enterprise A/opto22/Utilities/Air Dryers/Dryer02/State", []byte("Running"), 1000)
	require.True(t, ok)
	sc := r.(message.StateChange)
	assert.Equal(t, "Running", sc.Code)
}

func TestGlass_IgnoredAndForeign(t *testing.T) {
	g := NewGlass(GlassConfig{}, testLogger())

	_, ok := g.Decode("Enterprise A/maintainx/workrequests/123", []byte("x"), 1000)
	assert.False(t, ok, "vendor prefix must be dropped")

	_, ok = g.Decode("Enterprise A/jpi/feed/x", []byte("x"), 1000)
	assert.False(t, ok)

	_, ok = g.Decode("Enterprise B/Site1/packaging/line/workorder/workorderid", []byte("1"), 1000)
	assert.False(t, ok, "foreign enterprise topics are not ours")

	_, ok = g.Decode("Enterprise A/Dallas", []byte("x"), 1000)
	assert.False(t, ok, "too shallow")

	_, ok = g.Decode("Enterprise A/Dallas/Organization Info", []byte("x"), 1000)
	assert.False(t, ok)
}

func TestGlass_SiteLevel(t *testing.T) {
	g := NewGlass(GlassConfig{}, testLogger())

	r, ok := g.Decode("Enterprise A/Dallas/Site/Timezone", []byte("America/Chicago"), 1000)
	require.True(t, ok)
	rf := r.(message.ReferenceFact)
	assert.Equal(t, "America/Chicago", rf.Attributes["timezone"])
}
