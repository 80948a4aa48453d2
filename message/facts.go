package message

// EntityKind enumerates the reference entity kinds the registry manages.
type EntityKind string

// Entity kinds.
const (
	EntityProduct   EntityKind = "product"
	EntityLot       EntityKind = "lot"
	EntityWorkOrder EntityKind = "work_order"
	EntityAsset     EntityKind = "asset"
	EntityTag       EntityKind = "tag"
	EntityBatch     EntityKind = "batch"
)

// CompletionStatus classifies a completion against its target quantity.
// Thresholds are configuration, not a contract (see config.LifecycleConfig).
type CompletionStatus string

// Completion statuses.
const (
	StatusComplete   CompletionStatus = "COMPLETE"
	StatusInProgress CompletionStatus = "IN_PROGRESS"
	StatusStarting   CompletionStatus = "STARTING"
	StatusNoTarget   CompletionStatus = "NO_TARGET"
)

// EntityUpsert is the fact emitted when the registry creates or refines
// an entity. The sink upserts by (kind, natural key); Created marks first
// sight so creation can be event-logged while refinements are not.
type EntityUpsert struct {
	Kind       EntityKind     `json:"kind"`
	NaturalKey string         `json:"natural_key"`
	Surrogate  int64          `json:"surrogate_id"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Created    bool           `json:"created"`
	Time       int64          `json:"at"`
}

// StateEvent is the fact recording an observed state transition.
type StateEvent struct {
	ID       string    `json:"id"`
	Entity   EntityRef `json:"entity"`
	Code     string    `json:"code"`
	Reason   string    `json:"reason,omitempty"`
	PrevCode string    `json:"prev_code,omitempty"`
	Time     int64     `json:"at"`
}

// Completion is the immutable record of a lifecycle identifier's final
// observed cumulative quantity before supersession. Never updated after
// creation; two distinct identifiers sharing one human-readable number
// produce two distinct Completions.
type Completion struct {
	ID            string           `json:"id"`
	Slot          SlotRef          `json:"slot"`
	Identifier    string           `json:"identifier"`
	Number        string           `json:"number,omitempty"`
	FinalQuantity float64          `json:"final_quantity"`
	Target        *float64         `json:"target,omitempty"`
	Status        CompletionStatus `json:"status"`
	ClosedAt      int64            `json:"closed_at"`
}

// Bucket is a sealed, fixed-window aggregate for one entity+metric.
// The window is half-open: samples with WindowStart <= t < WindowEnd.
type Bucket struct {
	Entity      EntityRef `json:"entity"`
	Metric      string    `json:"metric"`
	WindowStart int64     `json:"window_start"`
	WindowEnd   int64     `json:"window_end"`
	Rule        string    `json:"rule"`
	Aggregate   float64   `json:"aggregate"`
	// SampleCount is how many samples contributed to the aggregate.
	SampleCount int `json:"sample_count"`
}
