package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one pending purchase intent. There is at most one line per
// (UserID, ProductID).
type CartLine struct {
	ID        string
	UserID    string
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// CartItem is a cart line joined with the product as it was at read time.
type CartItem struct {
	CartLine
	Product Product
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	UserID string
	Items  []CartItem
}

func NewCart(userID string, items []CartItem) Cart {
	if items == nil {
		items = []CartItem{}
	}
	return Cart{UserID: userID, Items: items}
}

func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
