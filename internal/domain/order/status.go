package order

import "strings"

// Status is the lifecycle state of an order
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusPendingPayment   Status = "PENDING_PAYMENT"
	StatusPaymentFailed    Status = "PAYMENT_FAILED"
	StatusPaid             Status = "PAID"
	StatusProcessing       Status = "PROCESSING"
	StatusFulfillmentError Status = "FULFILLMENT_ERROR"
	StatusShipped          Status = "SHIPPED"
	StatusDelivered        Status = "DELIVERED"
	StatusOnHold           Status = "ON_HOLD"
	StatusCancelled        Status = "CANCELLED"
	StatusRefunded         Status = "REFUNDED"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []Status{
	StatusPending,
	StatusPendingPayment,
	StatusPaymentFailed,
	StatusPaid,
	StatusProcessing,
	StatusFulfillmentError,
	StatusShipped,
	StatusDelivered,
	StatusOnHold,
	StatusCancelled,
	StatusRefunded,
}

// transitions is the allowed-edge table. FULFILLMENT_ERROR -> PROCESSING is
// the retry edge; it is bounded by the fulfillment attempt cap, after which
// the order moves to ON_HOLD and only an operator can resume it.
var transitions = map[Status][]Status{
	StatusPending:          {StatusPendingPayment, StatusCancelled, StatusRefunded},
	StatusPendingPayment:   {StatusPaid, StatusPaymentFailed, StatusCancelled, StatusRefunded},
	StatusPaid:             {StatusProcessing, StatusOnHold, StatusCancelled, StatusRefunded},
	StatusProcessing:       {StatusShipped, StatusFulfillmentError, StatusOnHold, StatusCancelled, StatusRefunded},
	StatusFulfillmentError: {StatusProcessing, StatusOnHold, StatusCancelled, StatusRefunded},
	StatusOnHold:           {StatusPaid, StatusCancelled, StatusRefunded},
	StatusShipped:          {StatusDelivered},
}

// ParseStatus parses a status name case-insensitively
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllStatuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	_, ok := ParseStatus(string(s))
	return ok
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// IsForwardable reports whether the engine may claim an order in this status
func (s Status) IsForwardable() bool {
	return s == StatusPaid || s == StatusFulfillmentError
}

// IsPreShipment reports whether the goods have not left the partner yet
func (s Status) IsPreShipment() bool {
	switch s {
	case StatusShipped, StatusDelivered:
		return false
	}
	return !s.IsTerminal()
}

// CanTransitionTo reports whether s -> to is an allowed edge
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer
func (s Status) String() string {
	return string(s)
}
