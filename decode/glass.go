package decode

import (
	"log/slog"
	"strings"

	"github.com/c360/lineflow/message"
)

// Glass decodes the continuous glass line's topics. Paths are five to six
// fixed segments:
//
//	Enterprise A/Dallas/Line 1/{Area}/{Equipment}/{Category}/{Field}
//	Enterprise A/opto22/Utilities/{Category}/{Equipment}/{Metric}
//	Enterprise A/Dallas/Site/{Field}
//
// The category segment selects the reading kind: State topics become
// StateChanges, Status/OEE/edge topics become NumericSamples, and the
// Asset Info / Location Info JSON documents become ReferenceFacts.
type Glass struct {
	enterprise string
	prefix     string
	ignore     []string
	logger     *slog.Logger
}

// GlassConfig configures the glass line decoder.
type GlassConfig struct {
	Enterprise string   // enterprise id stamped on readings
	Prefix     string   // topic prefix including trailing slash
	Ignore     []string // vendor sub-prefixes to drop (relative to Prefix)
}

// DefaultGlassConfig returns the observed production topology.
func DefaultGlassConfig() GlassConfig {
	return GlassConfig{
		Enterprise: "glass",
		Prefix:     "Enterprise A/",
		Ignore:     []string{"maintainx/", "jpi/"},
	}
}

// Production areas on the glass line.
var glassAreas = map[string]bool{
	"BatchHouse": true,
	"HotEnd":     true,
	"ColdEnd":    true,
}

// Categories that carry a data field after them.
var glassCategories = map[string]bool{
	"State":       true,
	"Status":      true,
	"Description": true,
	"edge":        true,
	"OEE":         true,
	"ISO7459":     true,
}

// NewGlass creates the glass line decoder.
func NewGlass(cfg GlassConfig, logger *slog.Logger) *Glass {
	def := DefaultGlassConfig()
	if cfg.Enterprise == "" {
		cfg.Enterprise = def.Enterprise
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.Ignore == nil {
		cfg.Ignore = def.Ignore
	}
	return &Glass{
		enterprise: cfg.Enterprise,
		prefix:     cfg.Prefix,
		ignore:     cfg.Ignore,
		logger:     logger,
	}
}

// Enterprise implements Decoder.
func (g *Glass) Enterprise() string { return g.enterprise }

// Matches implements Decoder.
func (g *Glass) Matches(topic string) bool { return strings.HasPrefix(topic, g.prefix) }

// Decode implements Decoder.
func (g *Glass) Decode(topic string, payload []byte, receivedAt int64) (message.Reading, bool) {
	remainder, ok := stripPrefix(topic, g.prefix)
	if !ok || hasAnyPrefix(remainder, g.ignore) {
		return nil, false
	}

	tok := Tokenize(remainder)
	if tok.Len() < 2 {
		return nil, false
	}

	if tok.At(0) == "opto22" {
		return g.decodeUtilities(tok, payload, receivedAt)
	}

	site := tok.At(0)
	switch {
	case tok.At(1) == "Site":
		return g.decodeSiteInfo(site, tok, payload, receivedAt)
	case tok.At(1) == "Organization Info":
		// Org metadata has no data field; nothing to store.
		return nil, false
	case strings.HasPrefix(tok.At(1), "Line"):
		return g.decodeLine(site, tok.At(1), tok.Skip(2), payload, receivedAt)
	}

	g.logger.Debug("unrecognized glass topic shape", "topic", topic)
	return nil, false
}

// decodeLine handles topics under a production line. tok starts after the
// line segment: {Area?}/{Equipment?}/{Category}/{Field...}.
func (g *Glass) decodeLine(site, line string, tok Tokens, payload []byte, receivedAt int64) (message.Reading, bool) {
	entity := message.EntityRef{Enterprise: g.enterprise, Site: site, Line: line}

	if glassAreas[tok.At(0)] {
		entity.Area = tok.At(0)
		tok = tok.Skip(1)
	}

	// Line-level category (e.g. Line 1/OEE/Availability).
	if glassCategories[tok.At(0)] {
		return g.route(entity, tok.At(0), tok.Tail(1), payload, receivedAt)
	}

	// Equipment-level.
	entity.Equipment = tok.At(0)
	tok = tok.Skip(1)
	if tok.Len() == 0 {
		return nil, false
	}

	switch {
	case glassCategories[tok.At(0)]:
		return g.route(entity, tok.At(0), tok.Tail(1), payload, receivedAt)
	case tok.At(0) == "Asset Info" || tok.At(0) == "Location Info":
		return g.decodeAssetInfo(entity, tok.At(0), payload, receivedAt)
	default:
		g.logger.Debug("unrecognized glass category",
			"site", site, "line", line, "category", tok.At(0))
		return nil, false
	}
}

// route maps a category+field to a reading.
func (g *Glass) route(entity message.EntityRef, category, field string, payload []byte, receivedAt int64) (message.Reading, bool) {
	at := sampleTime(payload, receivedAt)

	switch category {
	case "State":
		switch field {
		case "StateCurrent":
			code := textValue(payload)
			if code == "" {
				return nil, false
			}
			return message.StateChange{Entity: entity, Code: code, Time: at}, true
		case "StateReason":
			reason := textValue(payload)
			if reason == "" {
				return nil, false
			}
			return message.StateChange{Entity: entity, Reason: reason, Time: at}, true
		}
		return nil, false

	case "Status", "OEE", "edge", "ISO7459":
		if field == "" {
			return nil, false
		}
		v, ok := numericValue(payload)
		if !ok {
			// Status fields like Material carry text; not a metric.
			return nil, false
		}
		metric := strings.ToLower(category) + "/" + strings.ToLower(field)
		return message.NumericSample{Entity: entity, Metric: metric, Value: v, Time: at}, true

	case "Description":
		desc := textValue(payload)
		if desc == "" {
			return nil, false
		}
		return message.ReferenceFact{
			EntityKind: message.EntityAsset,
			NaturalKey: entity.Key(),
			Attributes: map[string]any{"description": desc},
			Scope:      entity,
			Time:       at,
		}, true
	}

	return nil, false
}

// decodeAssetInfo handles the Asset Info / Location Info JSON documents.
func (g *Glass) decodeAssetInfo(entity message.EntityRef, category string, payload []byte, receivedAt int64) (message.Reading, bool) {
	attrs, ok := objectValue(payload)
	if !ok {
		return nil, false
	}
	attrs["info_kind"] = strings.ToLower(strings.ReplaceAll(category, " ", "_"))
	return message.ReferenceFact{
		EntityKind: message.EntityAsset,
		NaturalKey: entity.Key(),
		Attributes: attrs,
		Scope:      entity,
		Time:       sampleTime(payload, receivedAt),
	}, true
}

// decodeSiteInfo handles site-level topics: Enterprise A/Dallas/Site/{Field}.
func (g *Glass) decodeSiteInfo(site string, tok Tokens, payload []byte, receivedAt int64) (message.Reading, bool) {
	field := tok.Tail(2)
	if field == "" {
		return nil, false
	}
	value := textValue(payload)
	if value == "" {
		return nil, false
	}
	scope := message.EntityRef{Enterprise: g.enterprise, Site: site}
	return message.ReferenceFact{
		EntityKind: message.EntityAsset,
		NaturalKey: scope.Key(),
		Attributes: map[string]any{strings.ToLower(field): value},
		Scope:      scope,
		Time:       sampleTime(payload, receivedAt),
	}, true
}

// decodeUtilities handles the industrial controls feed:
// opto22/Utilities/{Category}/{Equipment}/{Metric...}.
func (g *Glass) decodeUtilities(tok Tokens, payload []byte, receivedAt int64) (message.Reading, bool) {
	if tok.Len() < 4 || tok.At(1) != "Utilities" {
		return nil, false
	}

	entity := message.EntityRef{
		Enterprise: g.enterprise,
		Area:       "Utilities",
		Line:       tok.At(2), // utility category, e.g. Compressors
		Equipment:  tok.At(3),
	}
	field := tok.Tail(4)
	if field == "" {
		return nil, false
	}
	at := sampleTime(payload, receivedAt)

	if v, ok := numericValue(payload); ok {
		metric := "utilities/" + strings.ToLower(field)
		return message.NumericSample{Entity: entity, Metric: metric, Value: v, Time: at}, true
	}

	// Utility state topics publish text states (Running, Off).
	if state := textValue(payload); state != "" && strings.EqualFold(field, "state") {
		return message.StateChange{Entity: entity, Code: state, Time: at}, true
	}
	return nil, false
}
