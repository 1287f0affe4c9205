package domain

import "strings"

// Vehicle fields a customer can name over several turns. Empty strings and
// a zero Year mean "not known yet".
type Vehicle struct {
	VIN    string `json:"vin,omitempty"`
	HSN    string `json:"hsn,omitempty"`
	TSN    string `json:"tsn,omitempty"`
	Make   string `json:"make,omitempty"`
	Model  string `json:"model,omitempty"`
	Year   int    `json:"year,omitempty"`
	Engine string `json:"engine,omitempty"`
}

// Vehicle field names accepted by Without.
const (
	VehicleFieldVIN    = "vin"
	VehicleFieldHSN    = "hsn"
	VehicleFieldTSN    = "tsn"
	VehicleFieldMake   = "make"
	VehicleFieldModel  = "model"
	VehicleFieldYear   = "year"
	VehicleFieldEngine = "engine"
)

// IsVehicleField reports whether name is one of the VehicleField* constants.
func IsVehicleField(name string) bool {
	switch name {
	case VehicleFieldVIN, VehicleFieldHSN, VehicleFieldTSN, VehicleFieldMake,
		VehicleFieldModel, VehicleFieldYear, VehicleFieldEngine:
		return true
	}
	return false
}

// Merge returns v with every known field of incoming applied on top.
// Unknown incoming fields never erase what is already stored.
func (v Vehicle) Merge(incoming Vehicle) Vehicle {
	out := v
	out.VIN = pick(out.VIN, incoming.VIN)
	out.HSN = pick(out.HSN, incoming.HSN)
	out.TSN = pick(out.TSN, incoming.TSN)
	out.Make = pick(out.Make, incoming.Make)
	out.Model = pick(out.Model, incoming.Model)
	out.Engine = pick(out.Engine, incoming.Engine)
	if incoming.Year > 0 {
		out.Year = incoming.Year
	}
	return out
}

// IsComplete reports whether the vehicle can be identified: by VIN, by the
// German registration key pair HSN/TSN, or by make, model and year.
func (v Vehicle) IsComplete() bool {
	switch {
	case known(v.VIN):
		return true
	case known(v.HSN) && known(v.TSN):
		return true
	case known(v.Make) && known(v.Model) && v.Year > 0:
		return true
	}
	return false
}

// IsEmpty reports whether nothing is known about the vehicle.
func (v Vehicle) IsEmpty() bool {
	return v == Vehicle{}
}

// Without clears the named fields. It is the only way a stored vehicle
// field is ever removed.
func (v Vehicle) Without(fields ...string) Vehicle {
	out := v
	for _, f := range fields {
		switch f {
		case VehicleFieldVIN:
			out.VIN = ""
		case VehicleFieldHSN:
			out.HSN = ""
		case VehicleFieldTSN:
			out.TSN = ""
		case VehicleFieldMake:
			out.Make = ""
		case VehicleFieldModel:
			out.Model = ""
		case VehicleFieldYear:
			out.Year = 0
		case VehicleFieldEngine:
			out.Engine = ""
		}
	}
	return out
}

func pick(current, incoming string) string {
	if known(incoming) {
		return strings.TrimSpace(incoming)
	}
	return current
}

func known(s string) bool {
	return strings.TrimSpace(s) != ""
}
