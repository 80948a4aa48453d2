// Package window buckets numeric samples into fixed time windows.
//
// Windows are half-open [start, start+size) aligned to the epoch, so
// every producer computes identical boundaries for a given timestamp.
// A window stays open for a grace period after it ends to absorb late
// deliveries, then seals exactly once into an immutable Bucket.
package window

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/lineflow/errors"
	"github.com/c360/lineflow/message"
)

// Rule selects how samples in one window combine.
type Rule string

// Aggregation rules.
const (
	// RuleSum adds samples. Used for interval counts: the feed publishes
	// per-interval deltas, so the window total is their sum.
	RuleSum Rule = "sum"
	// RuleLast keeps the sample with the greatest timestamp. Used for
	// point-in-time gauges such as temperatures and rates.
	RuleLast Rule = "last"
	// RuleAverage averages samples. Used for ratio metrics such as OEE.
	RuleAverage Rule = "avg"
)

// cellKey identifies one open window.
type cellKey struct {
	entity string
	metric string
	start  int64
}

// cell is the running state of one open window.
type cell struct {
	entity message.EntityRef
	metric string
	rule   Rule
	sum    float64
	count  int
	last   float64
	lastAt int64
}

// Aggregator maintains the open windows for every (entity, metric)
// series. Safe for concurrent use.
type Aggregator struct {
	mu    sync.Mutex
	size  int64
	grace int64
	// rules pins the first rule seen per series; a conflicting rule for
	// the same series would silently corrupt aggregates, so it is
	// rejected instead.
	rules     map[string]Rule
	open      map[cellKey]*cell
	watermark int64
	logger    *slog.Logger
}

// New creates an aggregator with the given window size and grace period.
func New(size, grace time.Duration, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		size:   size.Milliseconds(),
		grace:  grace.Milliseconds(),
		rules:  make(map[string]Rule),
		open:   make(map[cellKey]*cell),
		logger: logger,
	}
}

// Add folds a sample into its window under the given rule.
//
// Returns false when the sample's window has already sealed; such
// samples are dropped rather than reopening the window, which would
// emit a duplicate bucket downstream. Returns an error when the rule
// conflicts with the one already pinned for the series.
func (a *Aggregator) Add(s message.NumericSample, rule Rule) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	series := s.Entity.Key() + "\x00" + s.Metric
	if pinned, ok := a.rules[series]; ok {
		if pinned != rule {
			return false, errors.WrapInvalid(errors.ErrRuleConflict,
				"window", "Add", "applying rule "+string(rule)+" to series pinned to "+string(pinned))
		}
	} else {
		a.rules[series] = rule
	}

	start := s.Time - mod(s.Time, a.size)
	if start+a.size+a.grace <= a.watermark {
		a.logger.Debug("late sample dropped",
			"metric", s.Metric, "entity", s.Entity.Key(),
			"window_start", start, "watermark", a.watermark)
		return false, nil
	}

	key := cellKey{entity: s.Entity.Key(), metric: s.Metric, start: start}
	c, ok := a.open[key]
	if !ok {
		c = &cell{entity: s.Entity, metric: s.Metric, rule: rule, lastAt: -1}
		a.open[key] = c
	}
	c.sum += s.Value
	c.count++
	// Ties go to the later arrival; the feed republishes unchanged
	// values with identical timestamps.
	if s.Time >= c.lastAt {
		c.last = s.Value
		c.lastAt = s.Time
	}
	return true, nil
}

// SealExpired seals every window whose grace period has elapsed at the
// given time and returns the resulting buckets. Idempotent: a sealed
// window is removed, so repeated calls with the same clock reading
// return nothing new. The clock only moves forward; a smaller now than
// a previous call is ignored.
func (a *Aggregator) SealExpired(now int64) []message.Bucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	if now > a.watermark {
		a.watermark = now
	}

	var out []message.Bucket
	for key, c := range a.open {
		if key.start+a.size+a.grace <= a.watermark {
			out = append(out, a.seal(key, c))
			delete(a.open, key)
		}
	}
	sortBuckets(out)
	return out
}

// FlushAll seals every open window regardless of grace. Called once at
// shutdown so buffered aggregates are not lost.
func (a *Aggregator) FlushAll() []message.Bucket {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]message.Bucket, 0, len(a.open))
	for key, c := range a.open {
		out = append(out, a.seal(key, c))
		delete(a.open, key)
	}
	sortBuckets(out)
	return out
}

// OpenWindows returns the number of currently open windows.
func (a *Aggregator) OpenWindows() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.open)
}

func (a *Aggregator) seal(key cellKey, c *cell) message.Bucket {
	var aggregate float64
	switch c.rule {
	case RuleSum:
		aggregate = c.sum
	case RuleAverage:
		aggregate = c.sum / float64(c.count)
	default:
		aggregate = c.last
	}
	return message.Bucket{
		Entity:      c.entity,
		Metric:      c.metric,
		WindowStart: key.start,
		WindowEnd:   key.start + a.size,
		Rule:        string(c.rule),
		Aggregate:   aggregate,
		SampleCount: c.count,
	}
}

func sortBuckets(buckets []message.Bucket) {
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].WindowStart != buckets[j].WindowStart {
			return buckets[i].WindowStart < buckets[j].WindowStart
		}
		if buckets[i].Entity.Key() != buckets[j].Entity.Key() {
			return buckets[i].Entity.Key() < buckets[j].Entity.Key()
		}
		return buckets[i].Metric < buckets[j].Metric
	})
}

// mod is a floor modulus that stays correct for timestamps before the
// epoch, which only show up in tests.
func mod(t, size int64) int64 {
	m := t % size
	if m < 0 {
		m += size
	}
	return m
}
