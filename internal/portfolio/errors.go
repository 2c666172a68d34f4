package portfolio

import (
	"errors"
	"fmt"

	"tradesim/pkg/model"
)

var (
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidKind        = errors.New("unknown trade kind")
	ErrUnknownAsset       = errors.New("unknown asset")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
)

// TradeError describes a rejected trade command
type TradeError struct {
	AssetID  string
	Kind     model.TradeKind
	Quantity int
	Price    float64
	Err      error
}

func (e *TradeError) Error() string {
	if e.Price > 0 {
		return fmt.Sprintf("%s %d %s @ %.2f: %v", e.Kind, e.Quantity, e.AssetID, e.Price, e.Err)
	}
	return fmt.Sprintf("%s %d %s: %v", e.Kind, e.Quantity, e.AssetID, e.Err)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// Reason maps a trade error to a short label (used for metrics)
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInvalidKind):
		return "invalid_kind"
	case errors.Is(err, ErrUnknownAsset):
		return "unknown_asset"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	}
	return "other"
}
