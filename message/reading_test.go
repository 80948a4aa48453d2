package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefKeysAreStable(t *testing.T) {
	a := EntityRef{Enterprise: "B", Site: "Site1", Area: "packaging", Line: "labelerline04"}
	b := EntityRef{Enterprise: "B", Site: "Site1", Area: "packaging", Line: "labelerline04", Equipment: "labeler"}
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), EntityRef{Enterprise: "B", Site: "Site1", Area: "packaging", Line: "labelerline04"}.Key())

	// A line-level ref and an equipment-level ref that happen to share
	// leading segments must not collide.
	c := EntityRef{Enterprise: "B", Site: "Site1", Area: "packaging/labelerline04"}
	assert.NotEqual(t, a.Key(), c.Key())

	slot := SlotRef{Enterprise: "B", Site: "Site1", Line: "labelerline04"}
	assert.Equal(t, "B/Site1/labelerline04", slot.Key())
}

func TestReadingKinds(t *testing.T) {
	qty := 4.0
	var r Reading

	r = StateChange{Entity: EntityRef{Enterprise: "A"}, Code: "3", Time: 10}
	assert.Equal(t, KindStateChange, r.Kind())
	assert.Equal(t, int64(10), r.At())

	r = NumericSample{Entity: EntityRef{Enterprise: "A"}, Metric: "oee", Value: 0.8, Time: 20}
	assert.Equal(t, KindNumericSample, r.Kind())

	r = LifecycleSample{Slot: SlotRef{Enterprise: "B", Site: "Site1", Line: "l1"}, Quantity: &qty, Time: 30}
	assert.Equal(t, KindLifecycleSample, r.Kind())

	r = ReferenceFact{EntityKind: EntityProduct, NaturalKey: "1234", Time: 40}
	assert.Equal(t, KindReferenceFact, r.Kind())
}

func TestValidate(t *testing.T) {
	assert.Error(t, StateChange{}.Validate())
	assert.Error(t, StateChange{Entity: EntityRef{Enterprise: "A"}}.Validate())
	assert.NoError(t, StateChange{Entity: EntityRef{Enterprise: "A"}, Code: "3"}.Validate())

	assert.Error(t, NumericSample{Entity: EntityRef{Enterprise: "A"}}.Validate())
	assert.NoError(t, NumericSample{Entity: EntityRef{Enterprise: "A"}, Metric: "oee"}.Validate())

	// A lifecycle sample must carry at least one field and a full slot ref.
	slot := SlotRef{Enterprise: "B", Site: "Site1", Line: "fillingline01"}
	assert.Error(t, LifecycleSample{Slot: slot}.Validate())
	assert.Error(t, LifecycleSample{Slot: SlotRef{Enterprise: "B"}, Identifier: "6107"}.Validate())
	assert.NoError(t, LifecycleSample{Slot: slot, Identifier: "6107"}.Validate())

	assert.Error(t, ReferenceFact{EntityKind: EntityLot}.Validate())
	assert.NoError(t, ReferenceFact{EntityKind: EntityLot, NaturalKey: "88"}.Validate())
}
