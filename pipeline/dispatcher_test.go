package pipeline

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/lineflow/decode"
	"github.com/c360/lineflow/errors"
	"github.com/c360/lineflow/message"
	"github.com/c360/lineflow/metric"
	"github.com/c360/lineflow/registry"
	"github.com/c360/lineflow/sink"
	"github.com/c360/lineflow/track"
	"github.com/c360/lineflow/window"
)

// base keeps test timestamps inside one realistic day.
const base = int64(1_756_100_000_000)

func newTestDispatcher(t *testing.T) (*Dispatcher, *sink.Memory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	table, err := decode.NewTable(
		decode.NewGlass(decode.GlassConfig{}, logger),
		decode.NewBeverage(decode.BeverageConfig{}, logger),
		decode.NewBiotech(decode.BiotechConfig{}, logger),
	)
	require.NoError(t, err)

	mem := sink.NewMemory()
	d := New(Options{
		Table:    table,
		Registry: registry.New(logger),
		Tracker:  track.New(track.DefaultThresholds(), logger),
		Windows:  window.New(10*time.Second, 5*time.Second, logger),
		Sink:     mem,
		Metrics:  metric.NewMetrics(),
		Logger:   logger,
	})
	require.NoError(t, d.Initialize())
	return d, mem
}

func env(topic, payload string, at int64) message.Envelope {
	return message.Envelope{Topic: topic, Payload: []byte(payload), ReceivedAt: at}
}

func TestDispatcher_WorkOrderLifecycle(t *testing.T) {
	d, mem := newTestDispatcher(t)
	require.NoError(t, d.Start(testContext(t)))

	line := "Enterprise B/Site1/packaging/labelerline04/workorder/"
	require.True(t, d.Submit(env(line+"workorderid", `"6107"`, base)))
	require.True(t, d.Submit(env(line+"quantitytarget", "100", base+1000)))
	require.True(t, d.Submit(env(line+"quantityactual", "40", base+2000)))
	require.True(t, d.Submit(env(line+"quantityactual", "97", base+3000)))
	// New identifier supersedes 6107.
	require.True(t, d.Submit(env(line+"workorderid", `"6200"`, base+4000)))

	require.NoError(t, d.Stop(5*time.Second))

	completions := mem.Completions()
	require.Len(t, completions, 2)

	// 6107 closed by supersession.
	first := completions[0]
	assert.Equal(t, "6107", first.Identifier)
	assert.Equal(t, 97.0, first.FinalQuantity)
	assert.Equal(t, message.StatusComplete, first.Status)
	assert.Equal(t, base+4000, first.ClosedAt)
	assert.Equal(t, "beverage/Site1/labelerline04", first.Slot.Key())

	// 6200 closed by shutdown, no quantity of its own yet.
	second := completions[1]
	assert.Equal(t, "6200", second.Identifier)
	assert.Equal(t, 0.0, second.FinalQuantity)

	_, ok := mem.Entity(message.EntityWorkOrder, "6107")
	assert.True(t, ok)
	_, ok = mem.Entity(message.EntityWorkOrder, "6200")
	assert.True(t, ok)
}

func TestDispatcher_StateFoldingAndDedup(t *testing.T) {
	d, mem := newTestDispatcher(t)
	require.NoError(t, d.Start(testContext(t)))

	state := "Enterprise A/Dallas/Line 1/HotEnd/Furnace/State/"
	require.True(t, d.Submit(env(state+"StateCurrent", "3", base)))
	require.True(t, d.Submit(env(state+"StateReason", `"Changeover"`, base+500)))
	// Scan-cycle republish of the same pair.
	require.True(t, d.Submit(env(state+"StateCurrent", "3", base+1000)))
	require.True(t, d.Submit(env(state+"StateReason", `"Changeover"`, base+1000)))
	require.True(t, d.Submit(env(state+"StateCurrent", "5", base+9000)))

	require.NoError(t, d.Stop(5*time.Second))

	events := mem.StateEvents()
	require.Len(t, events, 3)
	assert.Equal(t, "3", events[0].Code)
	assert.Equal(t, "Changeover", events[1].Reason)
	assert.Equal(t, "5", events[2].Code)
	assert.Equal(t, "3", events[2].PrevCode)
	assert.Equal(t, "Furnace", events[2].Entity.Equipment)
}

func TestDispatcher_WindowsSealedOnStop(t *testing.T) {
	d, mem := newTestDispatcher(t)
	require.NoError(t, d.Start(testContext(t)))

	// Align on a window boundary so both samples share one bucket.
	start := base - mod(base, 10_000)
	oee := "Enterprise A/Dallas/Line 1/OEE/Availability"
	require.True(t, d.Submit(env(oee, "80", start+1000)))
	require.True(t, d.Submit(env(oee, "90", start+4000)))

	require.NoError(t, d.Stop(5*time.Second))

	buckets := mem.Buckets()
	require.Len(t, buckets, 1)
	assert.Equal(t, "oee/availability", buckets[0].Metric)
	assert.Equal(t, string(window.RuleAverage), buckets[0].Rule)
	assert.Equal(t, 85.0, buckets[0].Aggregate)
	assert.Equal(t, 2, buckets[0].SampleCount)
	assert.Equal(t, start, buckets[0].WindowStart)
	assert.Equal(t, start+10_000, buckets[0].WindowEnd)
}

func TestDispatcher_BatchAttributesAttach(t *testing.T) {
	d, mem := newTestDispatcher(t)
	require.NoError(t, d.Start(testContext(t)))

	// Recipe publishes before the batch id; the scope assembler holds it.
	require.True(t, d.Submit(env("Enterprise C/2501/RECIPE_NAME", `"CIP-100"`, base)))
	require.True(t, d.Submit(env("Enterprise C/2501/UNIT250_BATCH_ID", `"B-77"`, base+1000)))
	require.True(t, d.Submit(env("Enterprise C/2501/BATCH_PHASE", `"FILL"`, base+2000)))

	require.NoError(t, d.Stop(5*time.Second))

	fact, ok := mem.Entity(message.EntityBatch, "B-77")
	require.True(t, ok)
	assert.Equal(t, "CIP-100", fact.Attributes["recipe_name"])
	assert.Equal(t, "FILL", fact.Attributes["phase"])
	assert.Equal(t, "B-77", fact.Attributes["number"])
}

func TestDispatcher_UnroutableTopicsIgnored(t *testing.T) {
	d, mem := newTestDispatcher(t)
	require.NoError(t, d.Start(testContext(t)))

	require.True(t, d.Submit(env("Enterprise Z/whatever", "1", base)))
	require.True(t, d.Submit(env("Enterprise A/maintainx/ticket/42", "{}", base)))

	require.NoError(t, d.Stop(5*time.Second))

	assert.Empty(t, mem.Entities())
	assert.Empty(t, mem.StateEvents())
	assert.Empty(t, mem.Buckets())
}

func TestDispatcher_SubmitRequiresRunning(t *testing.T) {
	d, _ := newTestDispatcher(t)
	assert.False(t, d.Submit(env("Enterprise A/Dallas/Line 1/OEE/Availability", "80", base)))

	require.NoError(t, d.Start(testContext(t)))
	require.NoError(t, d.Stop(5*time.Second))
	assert.False(t, d.Submit(env("Enterprise A/Dallas/Line 1/OEE/Availability", "80", base)))
}

func TestDispatcher_StopIdempotent(t *testing.T) {
	d, mem := newTestDispatcher(t)
	require.NoError(t, d.Start(testContext(t)))
	require.NoError(t, d.Stop(5*time.Second))
	require.NoError(t, d.Stop(5*time.Second))
	assert.GreaterOrEqual(t, mem.Flushes(), 0)
}

func TestDispatcher_RestartAfterStop(t *testing.T) {
	d, mem := newTestDispatcher(t)

	line := "Enterprise B/Site1/packaging/labelerline04/workorder/"
	require.NoError(t, d.Start(testContext(t)))
	require.True(t, d.Submit(env(line+"workorderid", `"6107"`, base)))
	require.NoError(t, d.Stop(5*time.Second))

	// A stopped dispatcher must come back up cleanly and keep accepting.
	require.NoError(t, d.Start(testContext(t)))
	require.True(t, d.Submit(env(line+"workorderid", `"6200"`, base+10_000)))
	require.True(t, d.Submit(env(line+"quantityactual", "12", base+11_000)))
	require.NoError(t, d.Stop(5*time.Second))

	completions := mem.Completions()
	require.Len(t, completions, 2)
	assert.Equal(t, "6107", completions[0].Identifier)
	assert.Equal(t, "6200", completions[1].Identifier)
	assert.Equal(t, 12.0, completions[1].FinalQuantity)

	_, ok := mem.Entity(message.EntityWorkOrder, "6200")
	assert.True(t, ok)
}

func TestDispatcher_InitializeValidatesDeps(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	table, err := decode.NewTable(decode.NewGlass(decode.GlassConfig{}, logger))
	require.NoError(t, err)

	d := New(Options{
		Table:    table,
		Registry: registry.New(logger),
		Tracker:  track.New(track.DefaultThresholds(), logger),
		Windows:  window.New(10*time.Second, 5*time.Second, logger),
		Logger:   logger,
	})
	err = d.Initialize()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

// mod mirrors the aggregator's window alignment for test setup.
func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
