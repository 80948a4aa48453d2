package decode

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/c360/lineflow/errors"
	"github.com/c360/lineflow/message"
	"github.com/c360/lineflow/pkg/timestamp"
)

// Decoder is the per-enterprise topic decoder contract.
//
// Decode returns (reading, true) for a recognized topic, or (nil, false)
// when the topic shape is unknown or the payload cannot serve the field
// it was published for. receivedAt (Unix ms) is the reading timestamp
// unless the payload carries its own.
type Decoder interface {
	Enterprise() string
	// Matches reports whether the topic belongs to this enterprise's
	// feed, recognized or not. Used to attribute skip counts.
	Matches(topic string) bool
	Decode(topic string, payload []byte, receivedAt int64) (message.Reading, bool)
}

// Table resolves enterprise ids to decoders. Construction fails on a
// duplicate enterprise id; lookups of unknown enterprises are fatal
// because they indicate a configuration error, never a per-message one.
type Table struct {
	decoders map[string]Decoder
}

// NewTable builds a decoder table from the given decoders.
func NewTable(decoders ...Decoder) (*Table, error) {
	t := &Table{decoders: make(map[string]Decoder, len(decoders))}
	for _, d := range decoders {
		id := d.Enterprise()
		if id == "" {
			return nil, errors.WrapFatal(errors.ErrInvalidConfig, "Table", "NewTable", "decoder with empty enterprise id")
		}
		if _, dup := t.decoders[id]; dup {
			return nil, errors.WrapFatal(errors.ErrInvalidConfig, "Table", "NewTable", "duplicate decoder for enterprise "+id)
		}
		t.decoders[id] = d
	}
	return t, nil
}

// Lookup returns the decoder for an enterprise id.
func (t *Table) Lookup(enterprise string) (Decoder, error) {
	d, ok := t.decoders[enterprise]
	if !ok {
		return nil, errors.WrapFatal(errors.ErrUnknownEnterprise, "Table", "Lookup", "no decoder for "+enterprise)
	}
	return d, nil
}

// Route returns the decoder whose feed the topic belongs to.
func (t *Table) Route(topic string) (Decoder, bool) {
	for _, d := range t.decoders {
		if d.Matches(topic) {
			return d, true
		}
	}
	return nil, false
}

// Enterprises returns the configured enterprise ids.
func (t *Table) Enterprises() []string {
	ids := make([]string, 0, len(t.decoders))
	for id := range t.decoders {
		ids = append(ids, id)
	}
	return ids
}

// scalarDoc is the structured payload shape some publishers use instead
// of a bare scalar.
type scalarDoc struct {
	Value     any `json:"value"`
	Timestamp any `json:"timestamp"`
}

// numericValue parses a payload that should carry a number. Tolerates
// bare numerics ("47389", "12.5"), quoted numerics, and structured
// documents ({"value": 12.5}). Anything else yields ok=false.
func numericValue(payload []byte) (float64, bool) {
	s := strings.TrimSpace(string(payload))
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	if f, err := strconv.ParseFloat(strings.Trim(s, `"`), 64); err == nil {
		return f, true
	}
	var doc scalarDoc
	if err := json.Unmarshal(payload, &doc); err == nil && doc.Value != nil {
		switch v := doc.Value.(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		case bool:
			if v {
				return 1, true
			}
			return 0, true
		}
	}
	return 0, false
}

// textValue parses a payload that should carry text: a bare string, a
// quoted JSON string, or a structured document's value field. Returns ""
// for empty payloads.
func textValue(payload []byte) string {
	s := strings.TrimSpace(string(payload))
	if s == "" {
		return ""
	}
	var quoted string
	if err := json.Unmarshal(payload, &quoted); err == nil {
		return quoted
	}
	var doc scalarDoc
	if err := json.Unmarshal(payload, &doc); err == nil && doc.Value != nil {
		if v, ok := doc.Value.(string); ok {
			return v
		}
	}
	return s
}

// sampleTime returns the payload's own timestamp when the publisher
// included one, otherwise the broker receive time.
func sampleTime(payload []byte, receivedAt int64) int64 {
	var doc scalarDoc
	if err := json.Unmarshal(payload, &doc); err == nil && doc.Timestamp != nil {
		if ts := timestamp.Parse(doc.Timestamp); ts != 0 {
			return ts
		}
	}
	return receivedAt
}

// objectValue parses a payload expected to be a JSON object (the glass
// line's Asset Info / Location Info documents).
func objectValue(payload []byte) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil || len(m) == 0 {
		return nil, false
	}
	return m, true
}
