package window

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lferrors "github.com/c360/lineflow/errors"
	"github.com/c360/lineflow/message"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAggregator() *Aggregator {
	return New(10*time.Second, 5*time.Second, testLogger())
}

var labeler = message.EntityRef{
	Enterprise: "beverage", Site: "Site1", Area: "packaging",
	Line: "labelerline04", Equipment: "labeler",
}

func sample(metric string, value float64, at int64) message.NumericSample {
	return message.NumericSample{Entity: labeler, Metric: metric, Value: value, Time: at}
}

func mustAdd(t *testing.T, a *Aggregator, s message.NumericSample, rule Rule) {
	t.Helper()
	ok, err := a.Add(s, rule)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAdd_SumRule(t *testing.T) {
	a := newTestAggregator()

	// All three land in [10000, 20000).
	mustAdd(t, a, sample("output/countoutfeed", 12, 11000), RuleSum)
	mustAdd(t, a, sample("output/countoutfeed", 9, 14500), RuleSum)
	mustAdd(t, a, sample("output/countoutfeed", 14, 19999), RuleSum)
	// This one opens the next window.
	mustAdd(t, a, sample("output/countoutfeed", 3, 20000), RuleSum)

	buckets := a.SealExpired(25000)
	require.Len(t, buckets, 1)
	b := buckets[0]
	assert.Equal(t, int64(10000), b.WindowStart)
	assert.Equal(t, int64(20000), b.WindowEnd)
	assert.Equal(t, 35.0, b.Aggregate)
	assert.Equal(t, 3, b.SampleCount)
	assert.Equal(t, string(RuleSum), b.Rule)
	assert.Equal(t, 1, a.OpenWindows())
}

func TestAdd_LastRule(t *testing.T) {
	a := newTestAggregator()

	mustAdd(t, a, sample("TIC-250-001/pv", 37.2, 13000), RuleLast)
	mustAdd(t, a, sample("TIC-250-001/pv", 37.9, 18000), RuleLast)
	// Out-of-order delivery: the earlier reading arrives last.
	mustAdd(t, a, sample("TIC-250-001/pv", 37.5, 15000), RuleLast)

	buckets := a.SealExpired(25000)
	require.Len(t, buckets, 1)
	assert.Equal(t, 37.9, buckets[0].Aggregate, "last is by sample time, not arrival order")
	assert.Equal(t, 3, buckets[0].SampleCount)
}

func TestAdd_AverageRule(t *testing.T) {
	a := newTestAggregator()

	mustAdd(t, a, sample("oee", 0.80, 11000), RuleAverage)
	mustAdd(t, a, sample("oee", 0.90, 16000), RuleAverage)

	buckets := a.SealExpired(25000)
	require.Len(t, buckets, 1)
	assert.InDelta(t, 0.85, buckets[0].Aggregate, 1e-9)
}

func TestAdd_RuleConflictRejected(t *testing.T) {
	a := newTestAggregator()

	mustAdd(t, a, sample("output/countoutfeed", 12, 11000), RuleSum)

	ok, err := a.Add(sample("output/countoutfeed", 9, 12000), RuleLast)
	assert.False(t, ok)
	require.Error(t, err)
	assert.ErrorIs(t, err, lferrors.ErrRuleConflict)
	assert.True(t, lferrors.IsInvalid(err))

	// The conflicting sample must not have touched the window.
	buckets := a.SealExpired(25000)
	require.Len(t, buckets, 1)
	assert.Equal(t, 12.0, buckets[0].Aggregate)
}

func TestSealExpired_GraceAndIdempotence(t *testing.T) {
	a := newTestAggregator()

	mustAdd(t, a, sample("oee", 0.8, 11000), RuleAverage)

	// Window [10000,20000) ends at 20000 but holds through its grace.
	assert.Empty(t, a.SealExpired(20000))
	assert.Empty(t, a.SealExpired(24999))

	buckets := a.SealExpired(25000)
	require.Len(t, buckets, 1)

	// Sealing again, even with the same clock reading, emits nothing.
	assert.Empty(t, a.SealExpired(25000))
	assert.Empty(t, a.SealExpired(30000))
}

func TestAdd_LateArrivalWithinGrace(t *testing.T) {
	a := newTestAggregator()

	mustAdd(t, a, sample("output/countoutfeed", 12, 11000), RuleSum)
	a.SealExpired(22000)

	// 19000 belongs to [10000,20000), still inside grace at 22000.
	mustAdd(t, a, sample("output/countoutfeed", 5, 19000), RuleSum)

	buckets := a.SealExpired(25000)
	require.Len(t, buckets, 1)
	assert.Equal(t, 17.0, buckets[0].Aggregate)
}

func TestAdd_LateArrivalAfterSealDropped(t *testing.T) {
	a := newTestAggregator()

	mustAdd(t, a, sample("output/countoutfeed", 12, 11000), RuleSum)
	buckets := a.SealExpired(25000)
	require.Len(t, buckets, 1)

	// Too late: reopening would duplicate the already-emitted bucket.
	ok, err := a.Add(sample("output/countoutfeed", 5, 19000), RuleSum)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, a.OpenWindows())
}

func TestSeriesAreIndependent(t *testing.T) {
	a := newTestAggregator()
	filler := message.EntityRef{
		Enterprise: "beverage", Site: "Site1", Area: "filling",
		Line: "fillingline01", Equipment: "filler",
	}

	mustAdd(t, a, sample("output/countoutfeed", 12, 11000), RuleSum)
	mustAdd(t, a, message.NumericSample{Entity: filler, Metric: "output/countoutfeed", Value: 7, Time: 11000}, RuleSum)

	buckets := a.SealExpired(25000)
	require.Len(t, buckets, 2)
	// Deterministic order: same window, sorted by entity key.
	assert.Equal(t, "filler", buckets[0].Entity.Equipment)
	assert.Equal(t, "labeler", buckets[1].Entity.Equipment)
	assert.Equal(t, 7.0, buckets[0].Aggregate)
	assert.Equal(t, 12.0, buckets[1].Aggregate)
}

func TestFlushAll(t *testing.T) {
	a := newTestAggregator()

	mustAdd(t, a, sample("oee", 0.8, 11000), RuleAverage)
	mustAdd(t, a, sample("oee", 0.9, 21000), RuleAverage)

	buckets := a.FlushAll()
	require.Len(t, buckets, 2)
	assert.Equal(t, int64(10000), buckets[0].WindowStart)
	assert.Equal(t, int64(20000), buckets[1].WindowStart)
	assert.Zero(t, a.OpenWindows())
	assert.Empty(t, a.FlushAll())
}

func TestWindowBoundariesAreHalfOpen(t *testing.T) {
	a := newTestAggregator()

	mustAdd(t, a, sample("oee", 1, 9999), RuleSum)
	mustAdd(t, a, sample("oee", 1, 10000), RuleSum)

	buckets := a.FlushAll()
	require.Len(t, buckets, 2)
	assert.Equal(t, int64(0), buckets[0].WindowStart)
	assert.Equal(t, int64(10000), buckets[0].WindowEnd)
	assert.Equal(t, int64(10000), buckets[1].WindowStart)
}
