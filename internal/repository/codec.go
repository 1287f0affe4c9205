package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"parts-order-bot/internal/domain"
)

// sortableTimeLayout keeps nanoseconds at a fixed width so stored timestamps
// sort lexically in time order. RFC3339Nano trims trailing zeros and does not.
const sortableTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func sortableTime(t time.Time) string {
	return t.UTC().Format(sortableTimeLayout)
}

func encodeOrder(o domain.Order) (string, error) {
	if o.ID == "" {
		return "", errors.New("repository: order id is required")
	}
	if o.Version < 1 {
		return "", errors.New("repository: order version must be positive")
	}
	buf, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("repository: encode order: %w", err)
	}
	return string(buf), nil
}

func decodeOrder(data string) (domain.Order, error) {
	var o domain.Order
	if err := json.Unmarshal([]byte(data), &o); err != nil {
		return domain.Order{}, fmt.Errorf("repository: decode order: %w", err)
	}
	return o, nil
}

func encodeTurn(t domain.TurnRecord) (string, error) {
	if t.OrderID == "" || t.MessageID == "" {
		return "", errors.New("repository: turn order id and message id are required")
	}
	buf, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("repository: encode turn: %w", err)
	}
	return string(buf), nil
}

func decodeTurn(data string) (domain.TurnRecord, error) {
	var t domain.TurnRecord
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return domain.TurnRecord{}, fmt.Errorf("repository: decode turn: %w", err)
	}
	return t, nil
}
