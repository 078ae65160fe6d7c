package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/user/domain"
	"github.com/orderflow/orderflow/pkg/outbox"
)

// Wire-visible reasons on a CreditReservationFailed event.
const (
	// ReasonInsufficient means the balance did not cover the amount.
	ReasonInsufficient = "Insufficient balance"
	// ReasonAlreadyReleased means the hold for this order was already
	// credited back; a redelivered OrderCreated must not claim the balance
	// was short when it never was.
	ReasonAlreadyReleased = "Reservation already released"
)

type Service struct {
	log  *slog.Logger
	repo UserRepository
}

func NewService(log *slog.Logger, repo UserRepository) *Service {
	return &Service{log: log, repo: repo}
}

func (s *Service) CreateUser(ctx context.Context, username string, initialBalance int64) (domain.User, error) {
	u, err := domain.NewUser(username, initialBalance)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return domain.User{}, err
	}
	s.log.Info("user created", "user_id", u.ID, "balance", u.Balance)
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.repo.Get(ctx, id)
}

// ReserveCredit resolves an OrderCreated event to exactly one outbound
// event: CreditReserved when the hold sticks (or already existed),
// CreditReservationFailed otherwise. Only a transient storage failure
// escapes as an error, for the consumer to retry.
func (s *Service) ReserveCredit(ctx context.Context, orderID, userID string, amount int64, traceparent string) error {
	res := domain.Reservation{
		OrderID:   orderID,
		UserID:    userID,
		Amount:    amount,
		Status:    domain.HoldHeld,
		CreatedAt: time.Now().UTC(),
	}

	outcome, err := s.repo.ReserveCredit(ctx, res, func(outcome domain.ReserveOutcome) (outbox.Record, error) {
		switch outcome {
		case domain.OutcomeInsufficient:
			return s.reservationFailedRecord(orderID, userID, amount, ReasonInsufficient, traceparent)
		case domain.OutcomeReleased:
			return s.reservationFailedRecord(orderID, userID, amount, ReasonAlreadyReleased, traceparent)
		default:
			return s.creditReservedRecord(orderID, userID, amount, traceparent)
		}
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// No state changed; still resolve the saga leg with a
			// failure event so the order gets canceled.
			s.log.Warn("reservation for unknown user", "order_id", orderID, "user_id", userID)
			rec, recErr := s.reservationFailedRecord(orderID, userID, amount, "Error: "+err.Error(), traceparent)
			if recErr != nil {
				return recErr
			}
			return s.repo.EnqueueEvent(ctx, rec)
		}
		return err
	}

	switch outcome {
	case domain.OutcomeReserved:
		s.log.Info("credit reserved", "order_id", orderID, "user_id", userID, "amount", amount)
	case domain.OutcomeDuplicate:
		s.log.Info("reservation already held", "order_id", orderID, "user_id", userID)
	case domain.OutcomeInsufficient:
		s.log.Warn("insufficient balance", "order_id", orderID, "user_id", userID, "amount", amount)
	case domain.OutcomeReleased:
		s.log.Info("reservation already released", "order_id", orderID, "user_id", userID)
	}
	return nil
}

// ReleaseCredit is the compensation leg: credit the held amount back after
// the order was canceled. A release with no active hold is a no-op, so a
// duplicate OrderCanceled never double-credits.
func (s *Service) ReleaseCredit(ctx context.Context, orderID string) error {
	released, err := s.repo.ReleaseCredit(ctx, orderID)
	if err != nil {
		return err
	}
	if !released {
		s.log.Info("release ignored, no active hold", "order_id", orderID)
		return nil
	}
	s.log.Info("credit released", "order_id", orderID)
	return nil
}

func (s *Service) creditReservedRecord(orderID, userID string, amount int64, traceparent string) (outbox.Record, error) {
	payload, err := json.Marshal(events.CreditReserved{OrderID: orderID, UserID: userID, Amount: amount})
	if err != nil {
		return outbox.Record{}, err
	}
	return outbox.Record{
		AggregateType: "user",
		AggregateID:   orderID,
		Topic:         events.TopicCreditReserved,
		Type:          "CreditReserved",
		Headers:       map[string]string{"source": "user-service"},
		Payload:       payload,
		Traceparent:   traceparent,
	}, nil
}

func (s *Service) reservationFailedRecord(orderID, userID string, amount int64, reason, traceparent string) (outbox.Record, error) {
	payload, err := json.Marshal(events.CreditReservationFailed{OrderID: orderID, UserID: userID, Amount: amount, Reason: reason})
	if err != nil {
		return outbox.Record{}, err
	}
	return outbox.Record{
		AggregateType: "user",
		AggregateID:   orderID,
		Topic:         events.TopicCreditReservationFailed,
		Type:          "CreditReservationFailed",
		Headers:       map[string]string{"source": "user-service"},
		Payload:       payload,
		Traceparent:   traceparent,
	}, nil
}
