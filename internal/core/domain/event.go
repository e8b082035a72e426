package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const EventOrderPlaced = "order.placed"

// OutboxEvent is written in the same transaction as the state change it
// describes and relayed afterwards. SentAt is nil while pending.
type OutboxEvent struct {
	ID          string
	Type        string
	AggregateID string
	Payload     json.RawMessage
	CreatedAt   time.Time
	SentAt      *time.Time
}

type OrderPlacedPayload struct {
	OrderID     string            `json:"order_id"`
	UserID      string            `json:"user_id"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Lines       []OrderPlacedLine `json:"lines"`
	PlacedAt    time.Time         `json:"placed_at"`
}

type OrderPlacedLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func NewOrderPlacedEvent(id string, order Order) (OutboxEvent, error) {
	lines := make([]OrderPlacedLine, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, OrderPlacedLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	payload, err := json.Marshal(OrderPlacedPayload{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Lines:       lines,
		PlacedAt:    order.CreatedAt,
	})
	if err != nil {
		return OutboxEvent{}, err
	}
	return OutboxEvent{
		ID:          id,
		Type:        EventOrderPlaced,
		AggregateID: order.ID,
		Payload:     payload,
		CreatedAt:   order.CreatedAt,
	}, nil
}
