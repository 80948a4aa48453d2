package pipeline

import (
	"maps"

	"github.com/google/uuid"

	"github.com/c360/lineflow/message"
)

// statePair is the last merged state observed for one entity.
type statePair struct {
	code   string
	reason string
	seen   bool
}

// stateFolder merges split state topics (code and reason arrive
// separately) and deduplicates re-publishes. The feed republishes the
// current state every scan cycle; only actual transitions become events.
type stateFolder struct {
	states map[string]*statePair
}

func newStateFolder() *stateFolder {
	return &stateFolder{states: make(map[string]*statePair)}
}

// fold merges a state change into the entity's pair. Returns an event
// exactly when the merged pair differs from the last emitted one.
func (s *stateFolder) fold(sc message.StateChange) (message.StateEvent, bool) {
	key := sc.Entity.Key()
	cur, ok := s.states[key]
	if !ok {
		cur = &statePair{}
		s.states[key] = cur
	}

	merged := *cur
	merged.seen = true
	if sc.Code != "" {
		merged.code = sc.Code
	}
	if sc.Reason != "" {
		merged.reason = sc.Reason
	}
	if cur.seen && merged == *cur {
		return message.StateEvent{}, false
	}

	ev := message.StateEvent{
		ID:       uuid.New().String(),
		Entity:   sc.Entity,
		Code:     merged.code,
		Reason:   merged.reason,
		PrevCode: cur.code,
		Time:     sc.Time,
	}
	*cur = merged
	return ev, true
}

// scopeAssembler attaches attribute-only reference facts to the natural
// key last seen for their (kind, scope). The feed publishes an entity's
// key and its attributes on separate topics; attributes arriving before
// the key are held until it shows up.
type scopeAssembler struct {
	lastKey map[string]string
	pending map[string]map[string]any
}

func newScopeAssembler() *scopeAssembler {
	return &scopeAssembler{
		lastKey: make(map[string]string),
		pending: make(map[string]map[string]any),
	}
}

func scopeKey(kind message.EntityKind, scope message.EntityRef) string {
	return string(kind) + "\x00" + scope.Key()
}

// resolve returns the natural key and attributes to upsert for a
// reference fact. ok=false means the fact is attribute-only with no key
// seen yet; its attributes are held for the key's arrival.
func (a *scopeAssembler) resolve(f message.ReferenceFact) (string, map[string]any, bool) {
	key := scopeKey(f.EntityKind, f.Scope)

	if f.NaturalKey != "" {
		attrs := f.Attributes
		if held, ok := a.pending[key]; ok {
			// Held attributes predate the fact's own; the fact wins.
			maps.Copy(held, attrs)
			attrs = held
			delete(a.pending, key)
		}
		a.lastKey[key] = f.NaturalKey
		return f.NaturalKey, attrs, true
	}

	if naturalKey, ok := a.lastKey[key]; ok {
		return naturalKey, f.Attributes, true
	}

	held, ok := a.pending[key]
	if !ok {
		held = make(map[string]any, len(f.Attributes))
		a.pending[key] = held
	}
	maps.Copy(held, f.Attributes)
	return "", nil, false
}

// note records a natural key learned outside the reference-fact path
// (a lifecycle identifier naming the scope's current run) and returns
// any attributes held for it.
func (a *scopeAssembler) note(kind message.EntityKind, scope message.EntityRef, naturalKey string) map[string]any {
	key := scopeKey(kind, scope)
	a.lastKey[key] = naturalKey
	held, ok := a.pending[key]
	if !ok {
		return nil
	}
	delete(a.pending, key)
	return held
}
