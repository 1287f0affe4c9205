package domain

import "strings"

// OEMStatus is the outcome of the external OEM number lookup.
type OEMStatus string

const (
	OEMPending         OEMStatus = "pending"
	OEMSuccess         OEMStatus = "success"
	OEMNotFound        OEMStatus = "not_found"
	OEMMultipleMatches OEMStatus = "multiple_matches"
)

// Valid reports whether s is a known OEM status.
func (s OEMStatus) Valid() bool {
	switch s {
	case OEMPending, OEMSuccess, OEMNotFound, OEMMultipleMatches:
		return true
	}
	return false
}

// Part categories with a fixed position rule.
const (
	CategoryIgnition   = "ignition_component"
	CategoryEngine     = "engine_component"
	CategoryBrake      = "brake_component"
	CategorySuspension = "suspension_component"
	CategorySteering   = "steering_component"
	CategoryLighting   = "lighting_component"
	CategoryBody       = "body_component"
	CategoryWheel      = "wheel_component"
)

var positionlessCategories = map[string]bool{
	CategoryIgnition: true,
	CategoryEngine:   true,
}

var positionalCategories = map[string]bool{
	CategoryBrake:      true,
	CategorySuspension: true,
	CategorySteering:   true,
	CategoryLighting:   true,
	CategoryBody:       true,
	CategoryWheel:      true,
}

// Part is what the customer wants to buy.
type Part struct {
	Category       string    `json:"partCategory,omitempty"`
	Position       string    `json:"position,omitempty"`
	Text           string    `json:"partText,omitempty"`
	NormalizedName string    `json:"normalizedPartName,omitempty"`
	PositionNeeded bool      `json:"positionNeeded"`
	OEMStatus      OEMStatus `json:"oemStatus,omitempty"`
	OEMNumber      string    `json:"oemNumber,omitempty"`
}

// PartUpdate carries the part slots extracted from one message. A nil
// PositionNeeded means the extractor had no opinion.
type PartUpdate struct {
	Category       string
	Position       string
	Text           string
	NormalizedName string
	PositionNeeded *bool
	OEMStatus      OEMStatus
	OEMNumber      string
}

// Merge applies the known fields of in and re-derives PositionNeeded.
func (p Part) Merge(in PartUpdate) Part {
	out := p
	out.Category = pick(out.Category, strings.ToLower(in.Category))
	out.Position = pick(out.Position, in.Position)
	out.Text = pick(out.Text, in.Text)
	out.NormalizedName = pick(out.NormalizedName, in.NormalizedName)
	out.OEMNumber = pick(out.OEMNumber, in.OEMNumber)
	if in.OEMStatus.Valid() {
		out.OEMStatus = in.OEMStatus
	}
	out.PositionNeeded = PositionNeededFor(out.Category, in.PositionNeeded, p.PositionNeeded)
	return out
}

// PositionNeededFor decides whether a mounting position must be asked.
// The category wins over the extractor's hint; without either the current
// value is kept.
func PositionNeededFor(category string, hint *bool, current bool) bool {
	switch {
	case positionlessCategories[category]:
		return false
	case positionalCategories[category]:
		return true
	case hint != nil:
		return *hint
	}
	return current
}

// HasName reports whether the customer told us which part they need.
func (p Part) HasName() bool {
	return known(p.Text) || known(p.NormalizedName)
}

// IsComplete reports whether the part is specific enough for OEM lookup.
func (p Part) IsComplete() bool {
	if !p.HasName() {
		return false
	}
	return !p.PositionNeeded || known(p.Position)
}
