package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrAlreadyFinalized is returned when a direct cancellation hits an
	// order that is already CONFIRMED. Terminal states never change.
	ErrAlreadyFinalized = errors.New("order already finalized")
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusCanceled  OrderStatus = "CANCELED"
)

func (s OrderStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusCanceled
}

type Order struct {
	ID        string
	UserID    string
	Amount    int64 // minor currency units
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewOrder(userID string, amount int64) (Order, error) {
	if amount <= 0 {
		return Order{}, ErrInvalidAmount
	}
	now := time.Now().UTC()
	return Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
