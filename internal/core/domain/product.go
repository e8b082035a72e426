package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategorySweater Category = "sweater"
	CategoryPants   Category = "pants"
	CategoryShorts  Category = "shorts"
	CategoryTShirt  Category = "tshirt"
	CategoryJacket  Category = "jacket"
)

var categories = map[Category]struct{}{
	CategorySweater: {},
	CategoryPants:   {},
	CategoryShorts:  {},
	CategoryTShirt:  {},
	CategoryJacket:  {},
}

// ParseCategory normalizes s and reports whether it names a known category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := categories[c]; !ok {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, s)
	}
	return c, nil
}

// MaxStock bounds a product's quantity to what the stock column can hold.
const MaxStock = math.MaxInt32

// PriceScale is the number of decimal places a price may carry.
const PriceScale = 2

// Product is a sellable item. Quantity is the available stock and never
// goes below zero.
type Product struct {
	ID        string
	Name      string
	Barcode   string
	Color     string
	Size      string
	Category  Category
	Price     decimal.Decimal
	Quantity  int
	CreatedAt time.Time
}

func (p Product) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidArgument)
	case strings.TrimSpace(p.Barcode) == "":
		return fmt.Errorf("%w: barcode is required", ErrInvalidArgument)
	case p.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidArgument)
	case !p.Price.Equal(p.Price.Round(PriceScale)):
		return fmt.Errorf("%w: price must have at most %d decimal places", ErrInvalidArgument, PriceScale)
	case p.Quantity < 0:
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidArgument)
	case p.Quantity > MaxStock:
		return fmt.Errorf("%w: quantity must not exceed %d", ErrInvalidArgument, MaxStock)
	}
	if _, ok := categories[p.Category]; !ok {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, p.Category)
	}
	return nil
}

// ProductFilter narrows a stock report. Empty fields match everything.
type ProductFilter struct {
	Category Category
	Size     string
}
