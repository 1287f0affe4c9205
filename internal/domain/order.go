package domain

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores when an order does not exist.
	ErrNotFound = errors.New("domain: not found")
	// ErrOrderConflict is returned when an order was saved by someone else
	// since it was read.
	ErrOrderConflict = errors.New("domain: order version conflict")
	// ErrDuplicateTurn is returned when a turn for the same inbound message
	// id was already stored.
	ErrDuplicateTurn = errors.New("domain: duplicate turn")
)

// OrderStatus is the dialog stage an order is in.
type OrderStatus string

const (
	StatusChooseLanguage OrderStatus = "choose_language"
	StatusCollectVehicle OrderStatus = "collect_vehicle"
	StatusCollectPart    OrderStatus = "collect_part"
	StatusOEMLookup      OrderStatus = "oem_lookup"
	StatusShowOffers     OrderStatus = "show_offers"
	StatusDone           OrderStatus = "done"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusChooseLanguage, StatusCollectVehicle, StatusCollectPart,
		StatusOEMLookup, StatusShowOffers, StatusDone:
		return true
	}
	return false
}

// Collecting reports whether the bot is still asking the customer for data.
func (s OrderStatus) Collecting() bool {
	return s == StatusChooseLanguage || s == StatusCollectVehicle || s == StatusCollectPart
}

// Language of the conversation.
type Language string

const (
	LanguageDE Language = "de"
	LanguageEN Language = "en"
)

func (l Language) Valid() bool {
	return l == LanguageDE || l == LanguageEN
}

// QuestionType names the slot a question asks for.
type QuestionType string

const (
	QuestionVehicle  QuestionType = "vehicle"
	QuestionPartName QuestionType = "part_name"
	QuestionPosition QuestionType = "position"
	QuestionSymptoms QuestionType = "symptoms"
)

func (q QuestionType) Valid() bool {
	switch q {
	case QuestionVehicle, QuestionPartName, QuestionPosition, QuestionSymptoms:
		return true
	}
	return false
}

// ShopOffer is one purchasable offer produced by the offer pipeline.
type ShopOffer struct {
	ID           string `json:"id"`
	Brand        string `json:"brand"`
	PartNumber   string `json:"partNumber"`
	PriceCents   int64  `json:"priceCents"`
	Currency     string `json:"currency"`
	DeliveryDays int    `json:"deliveryDays"`
	Published    bool   `json:"published"`
}

// Order is the aggregate the dialog engine owns. The dashboard only reads it.
type Order struct {
	ID               string       `json:"id"`
	ChatID           string       `json:"chatId,omitempty"`
	Status           OrderStatus  `json:"status"`
	Language         Language     `json:"language,omitempty"`
	Vehicle          Vehicle      `json:"vehicle"`
	Part             Part         `json:"part"`
	LastQuestionType QuestionType `json:"lastQuestionType,omitempty"`
	LastReply        string       `json:"lastReply,omitempty"`
	// QuestionRepeats counts how many turns in a row asked LastQuestionType.
	QuestionRepeats int         `json:"questionRepeats"`
	Offers          []ShopOffer `json:"offers,omitempty"`
	Version         int64       `json:"version"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// NewOrder returns an order as created by the first inbound message.
func NewOrder(id, chatID string, now time.Time) Order {
	now = now.UTC()
	return Order{
		ID:        id,
		ChatID:    chatID,
		Status:    StatusChooseLanguage,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TurnRecord is the stored outcome of one processed inbound message.
type TurnRecord struct {
	OrderID             string         `json:"orderId"`
	MessageID           string         `json:"messageId"`
	UserText            string         `json:"userText"`
	Reply               string         `json:"reply"`
	Status              OrderStatus    `json:"status"`
	SlotsToAsk          []QuestionType `json:"slotsToAsk"`
	ShouldApologize     bool           `json:"shouldApologize"`
	DetectedFrustration bool           `json:"detectedFrustration"`
	CreatedAt           time.Time      `json:"createdAt"`
}
