package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

type CreateProductRequest struct {
	Name     string          `json:"name"     binding:"required"`
	Barcode  string          `json:"barcode"  binding:"required"`
	Color    string          `json:"color"`
	Size     string          `json:"size"`
	Category string          `json:"category" binding:"required"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type UpdateProductRequest struct {
	Name     string          `json:"name"     binding:"required"`
	Barcode  string          `json:"barcode"  binding:"required"`
	Color    string          `json:"color"`
	Size     string          `json:"size"`
	Category string          `json:"category" binding:"required"`
	Price    decimal.Decimal `json:"price"`
}

type RestockRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

type AddToCartRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type SetQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type ProductResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Barcode   string          `json:"barcode"`
	Color     string          `json:"color"`
	Size      string          `json:"size"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
}

type CartItemResponse struct {
	LineID    string          `json:"line_id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Available int             `json:"available"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	AddedAt   time.Time       `json:"added_at"`
}

type CartResponse struct {
	UserID string             `json:"user_id"`
	Items  []CartItemResponse `json:"items"`
	Total  decimal.Decimal    `json:"total"`
}

type OrderLineResponse struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type OrderResponse struct {
	ID          string              `json:"id"`
	UserID      string              `json:"user_id"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	Lines       []OrderLineResponse `json:"lines"`
	CreatedAt   time.Time           `json:"created_at"`
}

type LedgerEntryResponse struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

type LedgerResponse struct {
	Balance decimal.Decimal       `json:"balance"`
	Entries []LedgerEntryResponse `json:"entries"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Available *int   `json:"available,omitempty"`
}

func toProductResponse(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:        p.ID,
		Name:      p.Name,
		Barcode:   p.Barcode,
		Color:     p.Color,
		Size:      p.Size,
		Category:  string(p.Category),
		Price:     p.Price,
		Quantity:  p.Quantity,
		CreatedAt: p.CreatedAt,
	}
}

func toCartResponse(cart domain.Cart) CartResponse {
	resp := CartResponse{
		UserID: cart.UserID,
		Items:  make([]CartItemResponse, 0, len(cart.Items)),
		Total:  cart.Total(),
	}
	for _, item := range cart.Items {
		resp.Items = append(resp.Items, CartItemResponse{
			LineID:    item.ID,
			ProductID: item.ProductID,
			Name:      item.Product.Name,
			UnitPrice: item.Product.Price,
			Quantity:  item.Quantity,
			Available: item.Product.Quantity,
			Subtotal:  item.Subtotal(),
			AddedAt:   item.AddedAt,
		})
	}
	return resp
}

func toOrderResponse(order domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:          order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Lines:       make([]OrderLineResponse, 0, len(order.Lines)),
		CreatedAt:   order.CreatedAt,
	}
	for _, l := range order.Lines {
		resp.Lines = append(resp.Lines, OrderLineResponse{
			ProductID: l.ProductID,
			Name:      l.ProductName,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Subtotal:  l.Subtotal(),
		})
	}
	return resp
}

func toLedgerResponse(ledger domain.Ledger) LedgerResponse {
	resp := LedgerResponse{
		Balance: ledger.Balance,
		Entries: make([]LedgerEntryResponse, 0, len(ledger.Entries)),
	}
	for _, e := range ledger.Entries {
		resp.Entries = append(resp.Entries, LedgerEntryResponse{
			ID:          e.ID,
			OrderID:     e.OrderID,
			Amount:      e.Amount,
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}
	return resp
}
