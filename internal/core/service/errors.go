package service

import (
	"errors"

	"github.com/rl1809/stock-validator/internal/core/domain"
)

var (
	ErrCartEmpty         = errors.New("cart is empty")
	ErrStoreNotFound     = errors.New("store not found")
	ErrStoreMismatch     = errors.New("cart spans another store")
	ErrItemNotFound      = errors.New("item not found")
	ErrInvalidCart       = errors.New("cart line has a non-positive quantity")
	ErrPriceMismatch     = errors.New("declared total does not match cart")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConcurrency       = errors.New("durable inventory out of sync")
	ErrDurableDrift      = errors.New("durable inventory cannot absorb reservation")
	ErrTransport         = errors.New("collaborator unavailable")
)

// reasonFor maps a pipeline error to the reason reported downstream.
// Anything unrecognised is a transport failure.
func reasonFor(err error) domain.FailureReason {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return domain.ReasonMessageParse
	case errors.Is(err, ErrCartEmpty):
		return domain.ReasonCartEmpty
	case errors.Is(err, ErrStoreNotFound):
		return domain.ReasonStoreNotFound
	case errors.Is(err, ErrStoreMismatch):
		return domain.ReasonStoreMismatch
	case errors.Is(err, ErrItemNotFound):
		return domain.ReasonItemNotFound
	case errors.Is(err, ErrPriceMismatch):
		return domain.ReasonPriceMismatch
	case errors.Is(err, ErrInsufficientStock):
		return domain.ReasonOutOfStock
	case errors.Is(err, ErrConcurrency):
		return domain.ReasonConcurrency
	default:
		return domain.ReasonTransport
	}
}
