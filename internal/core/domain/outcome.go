package domain

type EventType string

const (
	EventSuccess EventType = "success"
	EventFail    EventType = "fail"
)

type FailureReason string

const (
	ReasonCartEmpty     FailureReason = "CART_EMPTY"
	ReasonStoreNotFound FailureReason = "STORE_NOT_FOUND"
	ReasonStoreMismatch FailureReason = "STORE_MISMATCH"
	ReasonItemNotFound  FailureReason = "ITEM_NOT_FOUND"
	ReasonPriceMismatch FailureReason = "PRICE_MISMATCH"
	ReasonOutOfStock    FailureReason = "OUT_OF_STOCK"
	ReasonConcurrency   FailureReason = "CONCURRENCY_ERROR"
	ReasonMessageParse  FailureReason = "MESSAGE_PARSE_ERROR"
	ReasonTransport     FailureReason = "TRANSPORT_ERROR"
)

// ValidatedLine is the priced line reported back on success.
type ValidatedLine struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

// ReservationOutcome is the single result produced for a ValidationRequest.
// OrderID is empty when it could not be recovered from a malformed message.
type ReservationOutcome struct {
	OrderID   string                   `json:"orderId"`
	EventType EventType                `json:"eventType"`
	Lines     map[string]ValidatedLine `json:"lines,omitempty"`
	Reason    FailureReason            `json:"reason,omitempty"`
}

func Succeeded(orderID string, lines map[string]ValidatedLine) ReservationOutcome {
	return ReservationOutcome{OrderID: orderID, EventType: EventSuccess, Lines: lines}
}

func Failed(orderID string, reason FailureReason) ReservationOutcome {
	return ReservationOutcome{OrderID: orderID, EventType: EventFail, Reason: reason}
}

func (o ReservationOutcome) Success() bool {
	return o.EventType == EventSuccess
}
