// Package track detects work-order and batch lifecycle transitions.
//
// A Tracker keeps one Slot per physical location (site+line, or unit+tag
// loop) holding the last-seen lifecycle identifier and its cumulative
// quantity. An identifier change supersedes the previous identifier and
// emits an immutable Completion fact carrying its final quantity.
//
// The source feed is a looping historical replay: identifiers are
// regenerated, numbers repeat, and delivery can be out of order. The
// tracker therefore keys strictly on the opaque identifier (two distinct
// identifiers sharing one human-readable number produce two distinct
// Completions) and treats a same-identifier quantity regression as an
// anomaly to ignore, never as data to apply.
package track

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/c360/lineflow/message"
)

// Outcome reports what applying a lifecycle sample did to its slot.
type Outcome int

// Apply outcomes.
const (
	// OutcomeNoChange means the sample carried nothing applicable
	// (e.g. a quantity for a slot with no active identifier).
	OutcomeNoChange Outcome = iota
	// OutcomeStarted means the slot left Empty for its first identifier.
	OutcomeStarted
	// OutcomeAdvanced means the active identifier's state was updated.
	OutcomeAdvanced
	// OutcomeCompleted means the identifier changed and a Completion was
	// emitted.
	OutcomeCompleted
	// OutcomeAnomaly means a regressive quantity was ignored.
	OutcomeAnomaly
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeNoChange:
		return "no_change"
	case OutcomeStarted:
		return "started"
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeCompleted:
		return "completed"
	case OutcomeAnomaly:
		return "anomaly"
	default:
		return "unknown"
	}
}

// Slot is the tracked state for one physical location. Mutated only by
// the Tracker; Snapshot returns copies.
type Slot struct {
	Ref          message.SlotRef
	IdentityKind message.EntityKind
	Identifier   string
	Number       string
	LastQuantity float64
	HasQuantity  bool
	Target       *float64
	LastSeenAt   int64
}

// Tracker runs the per-slot lifecycle state machine. Safe for concurrent
// use, but callers must apply samples for one slot in non-decreasing
// timestamp order or legitimate overrun growth will be rejected as
// regression (see the pipeline's single-worker apply loop).
type Tracker struct {
	mu         sync.Mutex
	slots      map[string]*Slot
	thresholds Thresholds
	anomalies  atomic.Int64
	logger     *slog.Logger
}

// New creates a tracker with the given completion-status thresholds.
func New(thresholds Thresholds, logger *slog.Logger) *Tracker {
	return &Tracker{
		slots:      make(map[string]*Slot),
		thresholds: thresholds,
		logger:     logger,
	}
}

// Apply folds a lifecycle sample into its slot. Returns a non-nil
// Completion exactly when the slot's identifier was superseded.
func (t *Tracker) Apply(s message.LifecycleSample) (*message.Completion, Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := s.Slot.Key()
	slot, ok := t.slots[key]
	if !ok {
		slot = &Slot{Ref: s.Slot}
		t.slots[key] = slot
	}
	if slot.LastSeenAt < s.Time {
		slot.LastSeenAt = s.Time
	}

	switch {
	case s.Identifier == "":
		return nil, t.refine(slot, s)
	case slot.Identifier == "":
		t.start(slot, s)
		return nil, OutcomeStarted
	case s.Identifier == slot.Identifier:
		return nil, t.advance(slot, s)
	default:
		completion := t.complete(slot, s)
		return completion, OutcomeCompleted
	}
}

// refine applies an identifier-less sample (number, quantity, or target
// published on its own topic) to the active identifier.
func (t *Tracker) refine(slot *Slot, s message.LifecycleSample) Outcome {
	if slot.Identifier == "" {
		// No identifier to attach to yet; the field will be republished
		// on the feed's next cycle.
		return OutcomeNoChange
	}
	return t.advance(slot, s)
}

// start initializes the slot for its first identifier.
func (t *Tracker) start(slot *Slot, s message.LifecycleSample) {
	slot.Identifier = s.Identifier
	slot.IdentityKind = identityKind(s)
	slot.Number = s.Number
	slot.Target = s.Target
	slot.HasQuantity = s.Quantity != nil
	if s.Quantity != nil {
		slot.LastQuantity = *s.Quantity
	} else {
		slot.LastQuantity = 0
	}
	t.logger.Debug("slot activated",
		"slot", slot.Ref.Key(), "identifier", slot.Identifier)
}

// advance updates the active identifier's state. Cumulative quantity is
// monotone non-decreasing while an identifier is live; a lower value is
// a malformed or out-of-order sample and is ignored.
func (t *Tracker) advance(slot *Slot, s message.LifecycleSample) Outcome {
	outcome := OutcomeNoChange
	if s.Number != "" && s.Number != slot.Number {
		slot.Number = s.Number
		outcome = OutcomeAdvanced
	}
	if s.Target != nil {
		if slot.Target == nil || *slot.Target != *s.Target {
			outcome = OutcomeAdvanced
		}
		slot.Target = s.Target
	}
	if s.Quantity != nil {
		switch {
		case !slot.HasQuantity:
			slot.HasQuantity = true
			slot.LastQuantity = *s.Quantity
			outcome = OutcomeAdvanced
		case *s.Quantity >= slot.LastQuantity:
			if *s.Quantity > slot.LastQuantity {
				outcome = OutcomeAdvanced
			}
			slot.LastQuantity = *s.Quantity
		default:
			t.anomalies.Add(1)
			t.logger.Warn("regressive quantity ignored",
				"slot", slot.Ref.Key(),
				"identifier", slot.Identifier,
				"last_quantity", slot.LastQuantity,
				"sample_quantity", *s.Quantity)
			return OutcomeAnomaly
		}
	}
	return outcome
}

// complete closes the superseded identifier and re-activates the slot
// for the new one with the sample's own quantity, which is usually small
// but may legitimately start high.
func (t *Tracker) complete(slot *Slot, s message.LifecycleSample) *message.Completion {
	completion := &message.Completion{
		ID:            uuid.New().String(),
		Slot:          slot.Ref,
		Identifier:    slot.Identifier,
		Number:        slot.Number,
		FinalQuantity: slot.LastQuantity,
		Target:        slot.Target,
		Status:        Classify(slot.LastQuantity, slot.Target, t.thresholds),
		ClosedAt:      s.Time,
	}
	t.logger.Info("lifecycle identifier superseded",
		"slot", slot.Ref.Key(),
		"identifier", completion.Identifier,
		"number", completion.Number,
		"final_quantity", completion.FinalQuantity,
		"status", string(completion.Status))

	t.start(slot, s)
	return completion
}

// Anomalies returns the cumulative count of ignored regressive samples.
func (t *Tracker) Anomalies() int64 {
	return t.anomalies.Load()
}

// Snapshot returns a copy of every slot's current state.
func (t *Tracker) Snapshot() []Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Slot, 0, len(t.slots))
	for _, slot := range t.slots {
		out = append(out, *slot)
	}
	return out
}

// FlushAll closes every active slot as if its identifier had been
// superseded at the given time. Called once at shutdown so in-flight
// identifiers are not silently lost.
func (t *Tracker) FlushAll(now int64) []message.Completion {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []message.Completion
	for _, slot := range t.slots {
		if slot.Identifier == "" {
			continue
		}
		out = append(out, message.Completion{
			ID:            uuid.New().String(),
			Slot:          slot.Ref,
			Identifier:    slot.Identifier,
			Number:        slot.Number,
			FinalQuantity: slot.LastQuantity,
			Target:        slot.Target,
			Status:        Classify(slot.LastQuantity, slot.Target, t.thresholds),
			ClosedAt:      now,
		})
		slot.Identifier = ""
		slot.Number = ""
		slot.HasQuantity = false
		slot.LastQuantity = 0
		slot.Target = nil
	}
	return out
}

func identityKind(s message.LifecycleSample) message.EntityKind {
	if s.IdentityKind == "" {
		return message.EntityWorkOrder
	}
	return s.IdentityKind
}
