package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is immutable once created.
type Order struct {
	ID          string
	UserID      string
	TotalAmount decimal.Decimal
	Lines       []OrderLine
	CreatedAt   time.Time
}

// OrderLine snapshots what was bought and at which price.
type OrderLine struct {
	OrderID     string
	ProductID   string
	ProductName string
	UnitPrice   decimal.Decimal
	Quantity    int
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
