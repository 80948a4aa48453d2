package message

import (
	"errors"
	"fmt"
)

// Kind discriminates the Reading variants.
type Kind string

// Reading kinds produced by the topic decoders.
const (
	KindStateChange     Kind = "state_change"
	KindNumericSample   Kind = "numeric_sample"
	KindLifecycleSample Kind = "lifecycle_sample"
	KindReferenceFact   Kind = "reference_fact"
)

// Reading is the decoder output unit: a tagged variant over the four
// reading kinds. Implementations are value types; a Reading is never
// mutated after the decoder returns it.
type Reading interface {
	Kind() Kind
	// At returns the reading timestamp in Unix milliseconds.
	At() int64
	// Validate checks required fields; decoders only emit valid readings,
	// so a failure downstream indicates a programming error.
	Validate() error
}

// StateChange reports an equipment state observation. The glass line
// publishes the state code and its reason on separate topics, so a
// StateChange may carry only a Reason; the dispatcher folds it into the
// next state event for the same entity.
type StateChange struct {
	Entity EntityRef `json:"entity"`
	// Code is the state as published: a numeric code for the glass line,
	// a state name for the beverage line, a tag suffix flag for biotech.
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
	Time   int64  `json:"at"`
}

// Kind implements Reading.
func (s StateChange) Kind() Kind { return KindStateChange }

// At implements Reading.
func (s StateChange) At() int64 { return s.Time }

// Validate implements Reading.
func (s StateChange) Validate() error {
	if s.Entity.Enterprise == "" {
		return errors.New("state change requires an enterprise")
	}
	if s.Code == "" && s.Reason == "" {
		return errors.New("state change requires a code or a reason")
	}
	return nil
}

// NumericSample is a single numeric observation for one entity+metric.
type NumericSample struct {
	Entity EntityRef `json:"entity"`
	Metric string    `json:"metric"`
	Value  float64   `json:"value"`
	Unit   string    `json:"unit,omitempty"`
	Time   int64     `json:"at"`
}

// Kind implements Reading.
func (n NumericSample) Kind() Kind { return KindNumericSample }

// At implements Reading.
func (n NumericSample) At() int64 { return n.Time }

// Validate implements Reading.
func (n NumericSample) Validate() error {
	if n.Entity.Enterprise == "" {
		return errors.New("numeric sample requires an enterprise")
	}
	if n.Metric == "" {
		return errors.New("numeric sample requires a metric name")
	}
	return nil
}

// LifecycleSample carries work-order / batch identity fields for one slot.
//
// The beverage line publishes each field on its own topic, so a single
// sample usually carries one field: identifier, number, cumulative
// quantity, or target. Pointer fields distinguish "not reported this
// time" from zero. The tracker folds partial samples into slot state.
type LifecycleSample struct {
	Slot SlotRef `json:"slot"`
	// IdentityKind is the entity kind the identifier resolves to:
	// work_order for the manufacturing lines, batch for biotech units.
	// Empty means work_order.
	IdentityKind EntityKind `json:"identity_kind,omitempty"`
	Identifier   string     `json:"identifier,omitempty"`
	Number       string     `json:"number,omitempty"`
	Quantity     *float64   `json:"quantity,omitempty"`
	Target       *float64   `json:"target,omitempty"`
	Time         int64      `json:"at"`
}

// Kind implements Reading.
func (l LifecycleSample) Kind() Kind { return KindLifecycleSample }

// At implements Reading.
func (l LifecycleSample) At() int64 { return l.Time }

// Validate implements Reading.
func (l LifecycleSample) Validate() error {
	if l.Slot.Enterprise == "" {
		return errors.New("lifecycle sample requires an enterprise")
	}
	if l.Slot.Site == "" || l.Slot.Line == "" {
		return fmt.Errorf("lifecycle sample requires a complete slot ref, got %q", l.Slot.Key())
	}
	if l.Identifier == "" && l.Number == "" && l.Quantity == nil && l.Target == nil {
		return errors.New("lifecycle sample carries no fields")
	}
	return nil
}

// ReferenceFact carries reference/master data about an entity: product
// attributes, lot numbers, asset metadata, tag descriptions. The registry
// resolves NaturalKey to a surrogate id and merges Attributes.
//
// Some feeds publish an entity's key and its attributes on separate
// topics (the beverage line's item/lot fields). Such attribute-only facts
// carry an empty NaturalKey plus the Scope they were published under; the
// dispatcher attaches them to the last key seen for that scope and kind.
type ReferenceFact struct {
	EntityKind EntityKind     `json:"entity_kind"`
	NaturalKey string         `json:"natural_key,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	// Scope is the location the fact was published under, when relevant
	// (e.g. the line a work order runs on).
	Scope EntityRef `json:"scope,omitzero"`
	Time  int64     `json:"at"`
}

// Kind implements Reading.
func (r ReferenceFact) Kind() Kind { return KindReferenceFact }

// At implements Reading.
func (r ReferenceFact) At() int64 { return r.Time }

// Validate implements Reading.
func (r ReferenceFact) Validate() error {
	if r.EntityKind == "" {
		return errors.New("reference fact requires an entity kind")
	}
	if r.NaturalKey == "" && r.Scope.IsZero() {
		return errors.New("reference fact requires a natural key or a scope")
	}
	return nil
}
