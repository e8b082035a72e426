package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEntry records a balance-affecting event. Entries are append-only.
type LedgerEntry struct {
	ID          string
	OrderID     string
	Amount      decimal.Decimal
	Description string
	CreatedAt   time.Time
}

func OrderLedgerDescription(orderID, userID string) string {
	return fmt.Sprintf("Order #%s by user %s", orderID, userID)
}

// Ledger is a page of entries plus the store balance over all entries.
type Ledger struct {
	Entries []LedgerEntry
	Balance decimal.Decimal
}
