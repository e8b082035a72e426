package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrDuplicateBarcode   = errors.New("barcode already exists")
	ErrProductInUse       = errors.New("product is in a cart")
	ErrConflict           = errors.New("concurrent modification")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	ErrTransient          = errors.New("transient failure")
)

// InsufficientStockError carries the stock that was available when the
// request was rejected.
type InsufficientStockError struct {
	ProductID string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: %d available", e.ProductID, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func NewInsufficientStock(productID string, available int) error {
	return &InsufficientStockError{ProductID: productID, Available: available}
}

// AvailableStock extracts the available count from an insufficient stock
// error anywhere in err's chain.
func AvailableStock(err error) (int, bool) {
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		return ise.Available, true
	}
	return 0, false
}

// TransientError marks a failure that left no partial state and may be
// retried as is.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func (e *TransientError) Is(target error) bool {
	return target == ErrTransient
}

// IsBusiness reports whether err is an expected outcome the caller should
// present rather than retry.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrDuplicateBarcode) ||
		errors.Is(err, ErrProductInUse)
}

// Transient wraps err unless it already is a business outcome or transient.
func Transient(op string, err error) error {
	if err == nil || IsBusiness(err) || errors.Is(err, ErrTransient) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}
