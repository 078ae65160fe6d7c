// Package events is the wire contract between the two services. Topic
// names, header keys and payload shapes are shared here so neither side
// drifts; everything else about the services is private to them.
package events

const (
	TopicOrderCreated            = "order.created"
	TopicCreditReserved          = "user.credit-reserved"
	TopicCreditReservationFailed = "user.credit-reservation-failed"
	TopicOrderCanceled           = "order.canceled"
)

const (
	HeaderEventType   = "event_type"
	HeaderEventID     = "event_id"
	HeaderTraceparent = "traceparent"
)

// OrderCreated starts the saga: a PENDING order asks for a credit hold.
type OrderCreated struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Amount  int64  `json:"amount"`
}

// CreditReserved confirms the hold stuck; the order may confirm.
type CreditReserved struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Amount  int64  `json:"amount"`
}

// CreditReservationFailed carries the refusal reason verbatim; it ends up
// on the canceled order.
type CreditReservationFailed struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
}

// OrderCanceled triggers the compensation leg: release the hold.
type OrderCanceled struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Amount  int64  `json:"amount"`
}
