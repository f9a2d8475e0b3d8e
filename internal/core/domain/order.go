package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrInvalidRequest = errors.New("invalid validation request")

// ValidationRequest is the inbound message asking for a cart to be validated
// and its stock reserved.
type ValidationRequest struct {
	OrderID    string `json:"orderId"`
	UserID     int64  `json:"userId"`
	StoreID    string `json:"storeId"`
	TotalPrice int64  `json:"totalPrice"`
}

// wireRequest detects absent fields, which plain decoding would zero.
type wireRequest struct {
	OrderID    *string `json:"orderId"`
	UserID     *int64  `json:"userId"`
	StoreID    *string `json:"storeId"`
	TotalPrice *int64  `json:"totalPrice"`
}

// DecodeValidationRequest parses and validates an inbound message body.
func DecodeValidationRequest(data []byte) (ValidationRequest, error) {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return ValidationRequest{}, errors.Join(ErrInvalidRequest, err)
	}
	if w.OrderID == nil || w.UserID == nil || w.StoreID == nil || w.TotalPrice == nil {
		return ValidationRequest{}, fmt.Errorf("%w: missing required field", ErrInvalidRequest)
	}

	req := ValidationRequest{
		OrderID:    *w.OrderID,
		UserID:     *w.UserID,
		StoreID:    *w.StoreID,
		TotalPrice: *w.TotalPrice,
	}
	return req, req.Validate()
}

func (r ValidationRequest) Validate() error {
	if _, err := uuid.Parse(r.OrderID); err != nil {
		return errors.Join(ErrInvalidRequest, err)
	}
	if _, err := uuid.Parse(r.StoreID); err != nil {
		return errors.Join(ErrInvalidRequest, err)
	}
	if r.UserID <= 0 {
		return fmt.Errorf("%w: userId must be positive", ErrInvalidRequest)
	}
	if r.TotalPrice < 0 {
		return fmt.Errorf("%w: totalPrice must not be negative", ErrInvalidRequest)
	}
	return nil
}

// State tracks a request through the pipeline. Transitions only move forward.
type State string

const (
	StateReceived   State = "received"
	StateValidating State = "validating"
	StateReserving  State = "reserving"
	StateSyncing    State = "syncing"
	StateEmitted    State = "emitted"
)

var stateOrder = map[State]int{
	StateReceived:   0,
	StateValidating: 1,
	StateReserving:  2,
	StateSyncing:    3,
	StateEmitted:    4,
}

// CanAdvance reports whether next is a legal successor of s. Any state may
// jump straight to emitted on failure; emitted is terminal.
func (s State) CanAdvance(next State) bool {
	if s == StateEmitted {
		return false
	}
	if next == StateEmitted {
		return true
	}
	return stateOrder[next] == stateOrder[s]+1
}
