package usecase

import (
	"context"
	"errors"
	"strings"

	"parts-order-bot/internal/dialog"
	"parts-order-bot/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// OEMResult is the outcome reported by the OEM lookup pipeline.
type OEMResult struct {
	Status    domain.OEMStatus
	OEMNumber string
	Offers    []domain.ShopOffer
}

// GetOrder returns the stored order.
func (s *DialogService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, newError(ErrorInvalidInput, "missing_order_id", nil)
	}
	order, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Order{}, newError(ErrorNotFound, "order_not_found", err)
	}
	if err != nil {
		return domain.Order{}, s.storeError("order_store_read_error", orderID, err)
	}
	return order, nil
}

// ListOrders returns the most recently updated orders first.
func (s *DialogService) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	orders, err := s.store.ListOrders(ctx, limit)
	if err != nil {
		return nil, s.storeError("order_store_list_error", "", err)
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

// ApplyOEMResult records the OEM lookup outcome. A successful lookup moves
// the order to show_offers; other outcomes keep it in oem_lookup.
func (s *DialogService) ApplyOEMResult(ctx context.Context, orderID string, res OEMResult) (domain.Order, error) {
	if !res.Status.Valid() || res.Status == domain.OEMPending {
		return domain.Order{}, newError(ErrorInvalidInput, "invalid_oem_status", nil)
	}
	oemNumber := strings.TrimSpace(res.OEMNumber)
	if res.Status == domain.OEMSuccess && oemNumber == "" {
		return domain.Order{}, newError(ErrorInvalidInput, "missing_oem_number", nil)
	}
	for _, o := range res.Offers {
		if o.PriceCents < 0 || o.DeliveryDays < 0 {
			return domain.Order{}, newError(ErrorInvalidInput, "invalid_offer", nil)
		}
	}

	return s.mutate(ctx, orderID, func(o *domain.Order) error {
		if o.Status != domain.StatusOEMLookup {
			return newError(ErrorInvalidTransition, "order_not_in_oem_lookup", nil)
		}
		o.Part.OEMStatus = res.Status
		o.Part.OEMNumber = oemNumber
		if res.Status != domain.OEMSuccess {
			return nil
		}
		if !dialog.CanAdvance(o.Status, domain.StatusShowOffers) {
			return newError(ErrorInvalidTransition, "order_not_in_oem_lookup", nil)
		}
		offers := make([]domain.ShopOffer, 0, len(res.Offers))
		for _, offer := range res.Offers {
			offer.ID = newUUID()
			offer.Published = false
			offer.Currency = strings.ToUpper(strings.TrimSpace(offer.Currency))
			offers = append(offers, offer)
		}
		o.Offers = offers
		o.Status = domain.StatusShowOffers
		return nil
	})
}

// PublishOffers makes the offers of an order visible to the customer.
func (s *DialogService) PublishOffers(ctx context.Context, orderID string) (domain.Order, error) {
	return s.mutate(ctx, orderID, func(o *domain.Order) error {
		if o.Status != domain.StatusShowOffers {
			return newError(ErrorInvalidTransition, "order_not_showing_offers", nil)
		}
		if len(o.Offers) == 0 {
			return newError(ErrorInvalidTransition, "no_offers", nil)
		}
		for i := range o.Offers {
			o.Offers[i].Published = true
		}
		return nil
	})
}

// ConfirmOrder completes an order whose offers were published. Confirming a
// completed order is a no-op.
func (s *DialogService) ConfirmOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.mutate(ctx, orderID, func(o *domain.Order) error {
		if o.Status == domain.StatusDone {
			return errUnchanged
		}
		if !dialog.CanAdvance(o.Status, domain.StatusDone) {
			return newError(ErrorInvalidTransition, "order_not_showing_offers", nil)
		}
		if !published(o.Offers) {
			return newError(ErrorInvalidTransition, "offers_not_published", nil)
		}
		o.Status = domain.StatusDone
		return nil
	})
}

var errUnchanged = errors.New("usecase: order unchanged")

// mutate applies fn to the stored order under the order lock and saves the
// result with the next version. fn returning errUnchanged skips the write.
func (s *DialogService) mutate(ctx context.Context, orderID string, fn func(*domain.Order) error) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, newError(ErrorInvalidInput, "missing_order_id", nil)
	}

	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	next := order
	next.Offers = append([]domain.ShopOffer(nil), order.Offers...)
	if err := fn(&next); err != nil {
		if errors.Is(err, errUnchanged) {
			return order, nil
		}
		return domain.Order{}, err
	}
	next.Version = order.Version + 1
	next.UpdatedAt = s.now().UTC()
	if err := s.store.SaveOrder(ctx, next, nil); err != nil {
		return domain.Order{}, s.saveError(orderID, err)
	}
	s.logger.Info("order updated", "order_id", orderID, "status", next.Status, "version", next.Version)
	return next, nil
}

func published(offers []domain.ShopOffer) bool {
	if len(offers) == 0 {
		return false
	}
	for _, o := range offers {
		if !o.Published {
			return false
		}
	}
	return true
}
