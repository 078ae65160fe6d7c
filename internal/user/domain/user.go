package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound            = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeBalance     = errors.New("balance must be non-negative")
)

type User struct {
	ID        string
	Username  string
	Balance   int64 // available balance, minor currency units, never negative
	CreatedAt time.Time
}

func NewUser(username string, initialBalance int64) (User, error) {
	if initialBalance < 0 {
		return User{}, ErrNegativeBalance
	}
	return User{
		ID:        uuid.NewString(),
		Username:  username,
		Balance:   initialBalance,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ReservationStatus records why a hold is or is not live. Keeping refused
// and released apart matters on redelivery: each re-resolves to the event
// that was originally emitted for it.
type ReservationStatus string

const (
	HoldHeld     ReservationStatus = "held"
	HoldRefused  ReservationStatus = "refused"
	HoldReleased ReservationStatus = "released"
)

// Reservation is a credit hold keyed by order id. Keeping the hold as its
// own record makes reserve and release idempotent: a redelivered
// OrderCreated reserves at most once, a redelivered OrderCanceled credits
// back at most once.
type Reservation struct {
	OrderID   string
	UserID    string
	Amount    int64
	Status    ReservationStatus
	CreatedAt time.Time
}

// ReserveOutcome is the result of an attempted credit reservation.
type ReserveOutcome string

const (
	OutcomeReserved     ReserveOutcome = "reserved"
	OutcomeDuplicate    ReserveOutcome = "duplicate"
	OutcomeInsufficient ReserveOutcome = "insufficient"
	OutcomeReleased     ReserveOutcome = "released"
)
