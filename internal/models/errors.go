package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation               = errors.New("validation error")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrOrderNotFound            = errors.New("order not found")
	ErrOrderNotCancellable      = errors.New("order not cancellable")
	ErrConcurrencyTimeout       = errors.New("timed out waiting for portfolio lock")
	ErrPriceUnavailable         = errors.New("price unavailable")
	ErrRateLimited              = errors.New("rate limited")
	ErrLedgerInvariantViolation = errors.New("ledger invariant violation")
	ErrPortfolioNotFound        = errors.New("portfolio not found")
	ErrPortfolioExists          = errors.New("portfolio already exists")
	ErrOrderStatusConflict      = errors.New("order status changed concurrently")
	ErrUnknownTradingPair       = errors.New("unknown trading pair")
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotCancellableError carries the state that blocked a cancellation.
type NotCancellableError struct {
	OrderID string
	Status  OrderStatus
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("order %s is %s and cannot be cancelled", e.OrderID, e.Status)
}

func (e *NotCancellableError) Is(target error) bool {
	return target == ErrOrderNotCancellable
}

// ErrInvalidTransition marks an attempt to move an order along an edge the lifecycle does not have.
var ErrInvalidTransition = errors.New("invalid order status transition")
