package message

import "strings"

// EntityRef is the composite natural key locating an entity in the
// physical hierarchy. Depth varies by enterprise: the continuous glass
// line fills all five segments, line-level beverage topics leave Equipment
// empty, and the biotech feed maps its unit into Site and its tag loop
// into Equipment.
type EntityRef struct {
	Enterprise string `json:"enterprise"`
	Site       string `json:"site,omitempty"`
	Area       string `json:"area,omitempty"`
	Line       string `json:"line,omitempty"`
	Equipment  string `json:"equipment,omitempty"`
}

// Key returns a stable string form usable as a map key. Empty segments
// are kept so two refs differing only in depth never collide.
func (r EntityRef) Key() string {
	return strings.Join([]string{r.Enterprise, r.Site, r.Area, r.Line, r.Equipment}, "/")
}

// IsZero reports whether no segment is set.
func (r EntityRef) IsZero() bool {
	return r == EntityRef{}
}

// SlotRef identifies the physical location a lifecycle identifier is
// tracked against: site+line for the manufacturing lines, unit+tag for
// the biotech batch units (mapped into Site/Line).
type SlotRef struct {
	Enterprise string `json:"enterprise"`
	Site       string `json:"site"`
	Line       string `json:"line"`
}

// Key returns a stable string form usable as a map key.
func (s SlotRef) Key() string {
	return strings.Join([]string{s.Enterprise, s.Site, s.Line}, "/")
}
