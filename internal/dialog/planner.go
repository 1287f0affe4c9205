// Package dialog holds the deterministic parts of the order conversation:
// which slot to ask for next, when to apologize, which stage comes next and
// how the reply is worded. Everything here is pure.
package dialog

import "parts-order-bot/internal/domain"

// Plan is the planner's decision for one turn.
type Plan struct {
	// Slot is the single slot to ask for, or empty when collection is done.
	Slot domain.QuestionType
	// Rephrase asks the renderer to vary the wording because the same slot
	// was asked in the previous turn.
	Rephrase bool
}

// SlotsToAsk returns the planned slot as a list with at most one element.
func (p Plan) SlotsToAsk() []domain.QuestionType {
	if p.Slot == "" {
		return []domain.QuestionType{}
	}
	return []domain.QuestionType{p.Slot}
}

// Done reports whether nothing is left to ask.
func (p Plan) Done() bool {
	return p.Slot == ""
}

// PlanNext picks the next slot in priority order: vehicle, part name,
// position. Position is only considered when the part needs one, so a
// position question that became moot is never repeated.
func PlanNext(v domain.Vehicle, p domain.Part, last domain.QuestionType) Plan {
	var slot domain.QuestionType
	switch {
	case !v.IsComplete():
		slot = domain.QuestionVehicle
	case !p.HasName():
		slot = domain.QuestionPartName
	case p.PositionNeeded && p.Position == "":
		slot = domain.QuestionPosition
	default:
		return Plan{}
	}
	return Plan{Slot: slot, Rephrase: slot == last}
}
