package application

import (
	"context"

	"github.com/orderflow/orderflow/internal/order/domain"
	"github.com/orderflow/orderflow/pkg/outbox"
)

type OrderRepository interface {
	// CreateWithOutbox persists the order and queues its OrderCreated
	// event in one transaction.
	CreateWithOutbox(ctx context.Context, o domain.Order, rec outbox.Record) error

	Get(ctx context.Context, id string) (domain.Order, error)

	// Confirm transitions PENDING→CONFIRMED. Returns false when the order
	// is already terminal (the transition is a no-op, not an error).
	Confirm(ctx context.Context, id string) (bool, error)

	// Cancel transitions PENDING→CANCELED and queues the event built by
	// the callback in the same transaction. Returns false without calling
	// the callback when the order is already CANCELED;
	// domain.ErrAlreadyFinalized when it is CONFIRMED.
	Cancel(ctx context.Context, id string, event func(o domain.Order) (outbox.Record, error)) (bool, error)
}
