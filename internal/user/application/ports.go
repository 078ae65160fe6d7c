package application

import (
	"context"

	"github.com/orderflow/orderflow/internal/user/domain"
	"github.com/orderflow/orderflow/pkg/outbox"
)

type UserRepository interface {
	Create(ctx context.Context, u domain.User) error
	Get(ctx context.Context, id string) (domain.User, error)

	// ReserveCredit is the atomic check-and-debit. In one transaction it
	// verifies the user exists, inserts the hold keyed by order id (an
	// existing hold means a redelivered event: no second debit), debits
	// the balance only when it covers the amount, and queues the outcome
	// event built by the callback. Returns domain.ErrNotFound when the
	// user does not exist; insufficient balance is an outcome, not an
	// error.
	ReserveCredit(ctx context.Context, res domain.Reservation, event func(outcome domain.ReserveOutcome) (outbox.Record, error)) (domain.ReserveOutcome, error)

	// ReleaseCredit deactivates the hold for orderID and credits its
	// amount back, both in one transaction. Returns false when no active
	// hold exists, which makes duplicate OrderCanceled deliveries
	// harmless.
	ReleaseCredit(ctx context.Context, orderID string) (bool, error)

	// EnqueueEvent queues an outbox record with no accompanying state
	// change; used for the failure event when reservation itself errored.
	EnqueueEvent(ctx context.Context, rec outbox.Record) error
}
