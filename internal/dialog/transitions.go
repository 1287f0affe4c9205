package dialog

import "parts-order-bot/internal/domain"

// Snapshot is the merged order state a transition is computed from.
type Snapshot struct {
	LanguageSet     bool
	VehicleComplete bool
	Plan            Plan
}

// NextStatus applies the transition table until the status stops changing,
// so a single rich message can move an order through several stages.
// Stages after collect_part are only left through external events.
func NextStatus(current domain.OrderStatus, s Snapshot) domain.OrderStatus {
	status := current
	for range 4 {
		next := step(status, s)
		if next == status {
			return status
		}
		status = next
	}
	return status
}

func step(status domain.OrderStatus, s Snapshot) domain.OrderStatus {
	switch status {
	case domain.StatusChooseLanguage:
		if s.LanguageSet {
			return domain.StatusCollectVehicle
		}
	case domain.StatusCollectVehicle:
		if s.VehicleComplete {
			return domain.StatusCollectPart
		}
	case domain.StatusCollectPart:
		switch {
		case !s.VehicleComplete:
			return domain.StatusCollectVehicle
		case s.Plan.Done():
			return domain.StatusOEMLookup
		}
	}
	return status
}

var externalTransitions = map[domain.OrderStatus]domain.OrderStatus{
	domain.StatusOEMLookup:  domain.StatusShowOffers,
	domain.StatusShowOffers: domain.StatusDone,
}

// CanAdvance reports whether an external event may move an order from one
// status to the other.
func CanAdvance(from, to domain.OrderStatus) bool {
	next, ok := externalTransitions[from]
	return ok && next == to
}
