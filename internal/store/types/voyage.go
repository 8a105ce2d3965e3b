package types

import "time"

// VoyageContext is the active cruise and lowering window plus the
// master system switch. It is mutated only through the admin boundary
// and passed by value into every component that needs it.
type VoyageContext struct {
	CruiseID      string    `json:"cruiseID"`
	LoweringID    string    `json:"loweringID,omitempty"`
	CruiseStart   time.Time `json:"cruiseStart"`
	CruiseEnd     time.Time `json:"cruiseEnd,omitempty"`
	LoweringStart time.Time `json:"loweringStart,omitempty"`
	LoweringEnd   time.Time `json:"loweringEnd,omitempty"`
	SystemOn      bool      `json:"systemOn"`
}

// LoweringActive reports whether a lowering is currently in progress.
func (v VoyageContext) LoweringActive() bool {
	return v.LoweringID != ""
}
