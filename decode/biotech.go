package decode

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/c360/lineflow/message"
)

// Biotech decodes the biotech batch process's tag-oriented topics. Two
// shapes appear on the feed:
//
//	Enterprise C/{unit}/{TAG}
//	Enterprise C/aveva/bioreactor/{unit}/controllers/{TAG}/{SUFFIX}
//
// Tag names follow ISA-5.1 / ISA-88 conventions: instrument code, loop
// number, value suffix (e.g. TIC-250-001_PV_Celsius). The suffix selects
// the reading kind: _PV/_SP and bare tags become NumericSamples,
// _ACTIVE/_START/_MODE/_STATUS become StateChanges, _DESC/_EU become tag
// metadata ReferenceFacts, and BATCH_ID drives per-unit batch lifecycle.
type Biotech struct {
	enterprise string
	prefix     string
	ignore     []string
	logger     *slog.Logger
}

// BiotechConfig configures the biotech decoder.
type BiotechConfig struct {
	Enterprise string
	Prefix     string
	Ignore     []string
}

// DefaultBiotechConfig returns the observed production topology.
func DefaultBiotechConfig() BiotechConfig {
	return BiotechConfig{
		Enterprise: "biotech",
		Prefix:     "Enterprise C/",
		Ignore:     []string{"maintainx/"},
	}
}

// Value suffixes, checked in order (longer names first so _STATUS wins
// over a bare STATE keyword match).
var biotechSuffixes = []string{
	"_ACTIVE", "_STATUS", "_START", "_DESC", "_MODE", "_CMD", "_ACK", "_EU", "_PV", "_SP",
}

// ISA-5.1 instrument codes, longest first so TIC matches before TI.
var biotechTagTypes = []string{
	"TIC", "FIC", "FCV", "PIC", "SIC", "AIC",
	"TI", "FI", "PI", "AI", "WI", "HV", "XV", "CI", "UV", "DI",
}

var biotechLoopRe = regexp.MustCompile(`[-_](\d{3})[-_]?`)

// NewBiotech creates the biotech decoder.
func NewBiotech(cfg BiotechConfig, logger *slog.Logger) *Biotech {
	def := DefaultBiotechConfig()
	if cfg.Enterprise == "" {
		cfg.Enterprise = def.Enterprise
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.Ignore == nil {
		cfg.Ignore = def.Ignore
	}
	return &Biotech{
		enterprise: cfg.Enterprise,
		prefix:     cfg.Prefix,
		ignore:     cfg.Ignore,
		logger:     logger,
	}
}

// Enterprise implements Decoder.
func (bt *Biotech) Enterprise() string { return bt.enterprise }

// Matches implements Decoder.
func (bt *Biotech) Matches(topic string) bool { return strings.HasPrefix(topic, bt.prefix) }

// tagInfo is the parsed form of an ISA-style tag name.
type tagInfo struct {
	base   string // tag name without suffix/unit, e.g. TIC-250-001
	suffix string // PV, SP, DESC, ... ("" for bare value tags)
	unit   string // trailing engineering unit, e.g. Celsius
	isa    string // instrument code, e.g. TIC
	loop   string // three-digit loop number
}

// Decode implements Decoder.
func (bt *Biotech) Decode(topic string, payload []byte, receivedAt int64) (message.Reading, bool) {
	remainder, ok := stripPrefix(topic, bt.prefix)
	if !ok || hasAnyPrefix(remainder, bt.ignore) {
		return nil, false
	}

	tok := Tokenize(remainder)
	var unit, tag string
	switch {
	case tok.Len() == 2:
		// Flat: {unit}/{TAG}
		unit, tag = tok.At(0), tok.At(1)
	case tok.Len() == 6 && tok.At(0) == "aveva" && tok.At(3) == "controllers":
		// Hierarchical: aveva/bioreactor/{unit}/controllers/{TAG}/{SUFFIX}
		unit, tag = tok.At(2), tok.At(4)+"_"+tok.At(5)
	default:
		return nil, false
	}
	if unit == "" || tag == "" {
		return nil, false
	}

	if isBatchTag(tag) {
		return bt.decodeBatchTag(unit, tag, payload, receivedAt)
	}

	info := parseTag(tag)
	entity := message.EntityRef{Enterprise: bt.enterprise, Site: unit, Equipment: info.base}
	at := sampleTime(payload, receivedAt)

	switch info.suffix {
	case "DESC":
		return bt.tagMeta(unit, info, "description", payload, at)
	case "EU":
		return bt.tagMeta(unit, info, "engineering_unit", payload, at)

	case "ACTIVE", "START", "MODE", "STATUS":
		state := textValue(payload)
		if state == "" {
			return nil, false
		}
		return message.StateChange{Entity: entity, Code: info.suffix + "=" + state, Time: at}, true

	case "CMD", "ACK":
		// Command/acknowledge handshake traffic; not telemetry.
		return nil, false

	case "PV", "SP", "":
		v, ok := numericValue(payload)
		if !ok {
			return nil, false
		}
		metric := info.base + "/" + valueTypeName(info.suffix)
		return message.NumericSample{Entity: entity, Metric: metric, Value: v, Unit: info.unit, Time: at}, true
	}

	return nil, false
}

func valueTypeName(suffix string) string {
	switch suffix {
	case "PV":
		return "pv"
	case "SP":
		return "sp"
	default:
		return "value"
	}
}

// tagMeta emits tag metadata (description, engineering unit) as a
// reference fact keyed by unit/base-tag.
func (bt *Biotech) tagMeta(unit string, info tagInfo, attr string, payload []byte, at int64) (message.Reading, bool) {
	value := textValue(payload)
	if value == "" {
		return nil, false
	}
	attrs := map[string]any{attr: value}
	if info.isa != "" {
		attrs["instrument_type"] = info.isa
	}
	if info.loop != "" {
		attrs["loop"] = info.loop
	}
	return message.ReferenceFact{
		EntityKind: message.EntityTag,
		NaturalKey: unit + "/" + info.base,
		Attributes: attrs,
		Scope:      message.EntityRef{Enterprise: bt.enterprise, Site: unit},
		Time:       at,
	}, true
}

// Batch-related tag keywords (ISA-88 procedural tags).
func isBatchTag(tag string) bool {
	for _, kw := range []string{"BATCH_ID", "BATCH-ID", "RECIPE", "FORMULA", "PHASE", "OPR_ID", "OPR_VRF"} {
		if strings.Contains(tag, kw) {
			return true
		}
	}
	// STATE is batch-procedural, STATUS belongs to instrument tags.
	return strings.Contains(tag, "STATE") && !strings.Contains(tag, "STATUS")
}

// decodeBatchTag handles ISA-88 batch identity and metadata. A BATCH_ID
// value is the lifecycle identifier for the unit; recipe/formula/operator
// tags are attributes of whichever batch is current, attached by the
// dispatcher's scope assembler.
func (bt *Biotech) decodeBatchTag(unit, tag string, payload []byte, receivedAt int64) (message.Reading, bool) {
	value := textValue(payload)
	if value == "" {
		return nil, false
	}
	at := sampleTime(payload, receivedAt)
	scope := message.EntityRef{Enterprise: bt.enterprise, Site: unit}

	if strings.Contains(tag, "BATCH_ID") || strings.Contains(tag, "BATCH-ID") {
		slot := message.SlotRef{Enterprise: bt.enterprise, Site: unit, Line: batchUnitName(tag)}
		return message.LifecycleSample{
			Slot:         slot,
			IdentityKind: message.EntityBatch,
			Identifier:   value,
			Number:       value,
			Time:         at,
		}, true
	}

	var attr string
	switch {
	case strings.Contains(tag, "RECIPE"):
		attr = "recipe_name"
	case strings.Contains(tag, "FORMULA"):
		attr = "formula_name"
	case strings.Contains(tag, "OPR_ID"):
		attr = "operator_id"
	case strings.Contains(tag, "PHASE"):
		attr = "phase"
	case strings.Contains(tag, "STATE"):
		attr = "state"
	default:
		return nil, false
	}

	return message.ReferenceFact{
		EntityKind: message.EntityBatch,
		Attributes: map[string]any{attr: value},
		Scope:      scope,
		Time:       at,
	}, true
}

// batchUnitName strips the batch keyword off a tag to recover the unit
// vessel name, e.g. UNIT-250_BATCH_ID -> UNIT-250.
func batchUnitName(tag string) string {
	for _, kw := range []string{"_BATCH_ID", "_BATCH-ID", "BATCH_ID", "BATCH-ID"} {
		if idx := strings.Index(tag, kw); idx > 0 {
			return tag[:idx]
		}
	}
	return tag
}

// parseTag splits an ISA-style tag name into its components.
func parseTag(tag string) tagInfo {
	info := tagInfo{base: tag}

	for _, suffix := range biotechSuffixes {
		idx := strings.Index(tag, suffix)
		if idx <= 0 {
			continue
		}
		info.suffix = strings.TrimPrefix(suffix, "_")
		info.base = tag[:idx]
		// A trailing engineering unit may follow, e.g. _PV_Celsius.
		if rest := tag[idx+len(suffix):]; strings.HasPrefix(rest, "_") {
			info.unit = rest[1:]
		}
		break
	}

	for _, isa := range biotechTagTypes {
		if strings.HasPrefix(info.base, isa) ||
			strings.Contains(info.base, "_"+isa) ||
			strings.Contains(info.base, "-"+isa) {
			info.isa = isa
			break
		}
	}

	if m := biotechLoopRe.FindStringSubmatch(tag); m != nil {
		info.loop = m[1]
	}
	return info
}
