package decode

import (
	"log/slog"
	"strings"

	"github.com/c360/lineflow/message"
)

// Beverage decodes the discrete/batch beverage line's topics. Depth
// varies: the category segment may appear at the site, area, line, or
// equipment level, so its position is detected by matching known category
// names against segment positions - never by a hardcoded index.
//
//	Enterprise B/Site1/{area}/{category}/{field...}
//	Enterprise B/Site1/{area}/{line}/{category}/{field...}
//	Enterprise B/Site1/{area}/{line}/{equipment}/{category}/{field...}
//
// Work-order identity/quantity/target fields route to LifecycleSamples,
// state names to StateChanges, metric and processdata numerics to
// NumericSamples, and item/lot reference fields to ReferenceFacts.
type Beverage struct {
	enterprise string
	prefix     string
	ignore     []string
	logger     *slog.Logger
}

// BeverageConfig configures the beverage line decoder.
type BeverageConfig struct {
	Enterprise string
	Prefix     string
	Ignore     []string
}

// DefaultBeverageConfig returns the observed production topology.
func DefaultBeverageConfig() BeverageConfig {
	return BeverageConfig{
		Enterprise: "beverage",
		Prefix:     "Enterprise B/",
		Ignore:     []string{"maintainx/", "abelara/", "roeslein/"},
	}
}

// Category segment names on the beverage feed.
var beverageCategories = map[string]bool{
	"metric":      true,
	"node":        true,
	"workorder":   true,
	"lotnumber":   true,
	"processdata": true,
	"state":       true,
}

// NewBeverage creates the beverage line decoder.
func NewBeverage(cfg BeverageConfig, logger *slog.Logger) *Beverage {
	def := DefaultBeverageConfig()
	if cfg.Enterprise == "" {
		cfg.Enterprise = def.Enterprise
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.Ignore == nil {
		cfg.Ignore = def.Ignore
	}
	return &Beverage{
		enterprise: cfg.Enterprise,
		prefix:     cfg.Prefix,
		ignore:     cfg.Ignore,
		logger:     logger,
	}
}

// Enterprise implements Decoder.
func (b *Beverage) Enterprise() string { return b.enterprise }

// Matches implements Decoder.
func (b *Beverage) Matches(topic string) bool { return strings.HasPrefix(topic, b.prefix) }

// Decode implements Decoder.
func (b *Beverage) Decode(topic string, payload []byte, receivedAt int64) (message.Reading, bool) {
	remainder, ok := stripPrefix(topic, b.prefix)
	if !ok || hasAnyPrefix(remainder, b.ignore) {
		return nil, false
	}

	tok := Tokenize(remainder)
	if tok.Len() < 2 {
		return nil, false
	}

	// Enterprise-level Node/Metric topics carry no site; only the node
	// asset metadata is worth keeping.
	if tok.At(0) == "Node" || tok.At(0) == "Metric" {
		return b.decodeNode(message.EntityRef{Enterprise: b.enterprise}, tok.Tail(1), payload, receivedAt)
	}

	if !strings.HasPrefix(tok.At(0), "Site") {
		return nil, false
	}
	site := tok.At(0)

	// Site-level: Site1/{category}/{field...}
	if beverageCategories[tok.At(1)] {
		entity := message.EntityRef{Enterprise: b.enterprise, Site: site}
		return b.route(entity, tok.At(1), tok.Tail(2), payload, receivedAt)
	}

	area := tok.At(1)
	entity := message.EntityRef{Enterprise: b.enterprise, Site: site, Area: area}

	// The category segment's position tells us the topic depth.
	switch {
	case beverageCategories[tok.At(2)]:
		// Area-level: Site1/packaging/{category}/{field...}
		return b.route(entity, tok.At(2), tok.Tail(3), payload, receivedAt)

	case beverageCategories[tok.At(3)]:
		// Line-level: Site1/packaging/labelerline04/{category}/{field...}
		entity.Line = tok.At(2)
		return b.route(entity, tok.At(3), tok.Tail(4), payload, receivedAt)

	case beverageCategories[tok.At(4)]:
		// Equipment-level: Site1/packaging/labelerline04/labeler/{category}/{field...}
		entity.Line = tok.At(2)
		entity.Equipment = tok.At(3)
		return b.route(entity, tok.At(4), tok.Tail(5), payload, receivedAt)
	}

	b.logger.Debug("unrecognized beverage topic shape", "topic", topic)
	return nil, false
}

// route maps a category+field to a reading.
func (b *Beverage) route(entity message.EntityRef, category, field string, payload []byte, receivedAt int64) (message.Reading, bool) {
	if field == "" {
		return nil, false
	}
	at := sampleTime(payload, receivedAt)

	switch category {
	case "workorder":
		// Lot and item facts also nest under the workorder branch.
		if rest, ok := stripPrefix(field, "lotnumber/"); ok {
			return b.decodeLot(entity, rest, payload, at)
		}
		return b.decodeWorkOrder(entity, field, payload, at)

	case "lotnumber":
		return b.decodeLot(entity, field, payload, at)

	case "state":
		if field != "name" {
			// code and duration ride along with the name topic.
			return nil, false
		}
		name := textValue(payload)
		if name == "" {
			return nil, false
		}
		return message.StateChange{Entity: entity, Code: name, Time: at}, true

	case "metric":
		return b.decodeMetric(entity, field, payload, at)

	case "processdata":
		return b.decodeMetric(entity, "processdata/"+field, payload, at)

	case "node":
		return b.decodeNode(entity, field, payload, at)
	}

	return nil, false
}

// decodeWorkOrder maps the per-field work-order topics to lifecycle
// samples. Each field arrives on its own topic; the tracker folds the
// partial samples together.
func (b *Beverage) decodeWorkOrder(entity message.EntityRef, field string, payload []byte, at int64) (message.Reading, bool) {
	if entity.Line == "" {
		// Work orders are tracked per line; area-level workorder noise
		// has no slot to land on.
		return nil, false
	}
	slot := message.SlotRef{Enterprise: entity.Enterprise, Site: entity.Site, Line: entity.Line}

	switch field {
	case "workorderid":
		id := textValue(payload)
		if id == "" {
			return nil, false
		}
		return message.LifecycleSample{Slot: slot, Identifier: id, Time: at}, true

	case "workordernumber":
		num := textValue(payload)
		if num == "" {
			return nil, false
		}
		return message.LifecycleSample{Slot: slot, Number: num, Time: at}, true

	case "quantityactual":
		v, ok := numericValue(payload)
		if !ok {
			return nil, false
		}
		return message.LifecycleSample{Slot: slot, Quantity: &v, Time: at}, true

	case "quantitytarget":
		v, ok := numericValue(payload)
		if !ok {
			return nil, false
		}
		return message.LifecycleSample{Slot: slot, Target: &v, Time: at}, true

	case "quantitydefect":
		v, ok := numericValue(payload)
		if !ok {
			return nil, false
		}
		return message.NumericSample{Entity: entity, Metric: "workorder/quantitydefect", Value: v, Time: at}, true

	case "uom", "assetid":
		value := textValue(payload)
		if value == "" {
			return nil, false
		}
		// Scoped to the slot (not the full entity path) so the fact
		// attaches to whichever work order the line is running.
		return message.ReferenceFact{
			EntityKind: message.EntityWorkOrder,
			Attributes: map[string]any{field: value},
			Scope:      message.EntityRef{Enterprise: slot.Enterprise, Site: slot.Site, Line: slot.Line},
			Time:       at,
		}, true
	}
	return nil, false
}

// decodeLot maps lot and nested item fields to reference facts. The lot
// id and its attributes arrive on separate topics, so attribute-only
// facts carry only the scope.
func (b *Beverage) decodeLot(entity message.EntityRef, field string, payload []byte, at int64) (message.Reading, bool) {
	if rest, ok := stripPrefix(field, "item/"); ok {
		return b.decodeItem(entity, rest, payload, at)
	}

	value := textValue(payload)
	if value == "" {
		return nil, false
	}

	switch field {
	case "lotnumberid":
		return message.ReferenceFact{
			EntityKind: message.EntityLot,
			NaturalKey: value,
			Scope:      entity,
			Time:       at,
		}, true
	case "lotnumber":
		return message.ReferenceFact{
			EntityKind: message.EntityLot,
			Attributes: map[string]any{"lot_number": value},
			Scope:      entity,
			Time:       at,
		}, true
	}
	return nil, false
}

// Item attribute fields published under lotnumber/item/.
var beverageItemFields = map[string]string{
	"itemname":     "name",
	"itemclass":    "class",
	"bottlesize":   "bottle_size",
	"packcount":    "pack_count",
	"labelvariant": "label_variant",
	"parentitemid": "parent_item_id",
}

func (b *Beverage) decodeItem(entity message.EntityRef, field string, payload []byte, at int64) (message.Reading, bool) {
	value := textValue(payload)
	if value == "" {
		return nil, false
	}

	if field == "itemid" {
		return message.ReferenceFact{
			EntityKind: message.EntityProduct,
			NaturalKey: value,
			Scope:      entity,
			Time:       at,
		}, true
	}
	if attr, ok := beverageItemFields[field]; ok {
		return message.ReferenceFact{
			EntityKind: message.EntityProduct,
			Attributes: map[string]any{attr: value},
			Scope:      entity,
			Time:       at,
		}, true
	}
	return nil, false
}

// decodeMetric maps numeric fields to window-aggregated samples.
func (b *Beverage) decodeMetric(entity message.EntityRef, metric string, payload []byte, at int64) (message.Reading, bool) {
	if entity.Site == "" || entity.Line == "" {
		// Buckets key on site+line; samples above line level have no home.
		return nil, false
	}
	v, ok := numericValue(payload)
	if !ok {
		return nil, false
	}
	return message.NumericSample{Entity: entity, Metric: metric, Value: v, Time: at}, true
}

// decodeNode keeps the asset identifier metadata published under node/.
func (b *Beverage) decodeNode(entity message.EntityRef, field string, payload []byte, at int64) (message.Reading, bool) {
	rest, ok := stripPrefix(field, "assetidentifier/")
	if !ok {
		return nil, false
	}
	value := textValue(payload)
	if value == "" {
		return nil, false
	}

	key := entity.Key()
	return message.ReferenceFact{
		EntityKind: message.EntityAsset,
		NaturalKey: key,
		Attributes: map[string]any{strings.ToLower(rest): value},
		Scope:      entity,
		Time:       at,
	}, true
}
