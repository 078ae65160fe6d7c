package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/order/domain"
	"github.com/orderflow/orderflow/pkg/outbox"
)

type Service struct {
	log  *slog.Logger
	repo OrderRepository
}

func NewService(log *slog.Logger, repo OrderRepository) *Service {
	return &Service{log: log, repo: repo}
}

// CreateOrder creates a PENDING order and queues OrderCreated, starting
// the saga.
func (s *Service) CreateOrder(ctx context.Context, userID string, amount int64, traceparent string) (domain.Order, error) {
	o, err := domain.NewOrder(userID, amount)
	if err != nil {
		return domain.Order{}, err
	}

	payload, err := json.Marshal(events.OrderCreated{
		OrderID: o.ID,
		UserID:  o.UserID,
		Amount:  o.Amount,
	})
	if err != nil {
		return domain.Order{}, err
	}

	rec := outbox.Record{
		AggregateType: "order",
		AggregateID:   o.ID,
		Topic:         events.TopicOrderCreated,
		Type:          "OrderCreated",
		Headers:       map[string]string{"source": "order-service"},
		Payload:       payload,
		Traceparent:   traceparent,
	}
	if err := s.repo.CreateWithOutbox(ctx, o, rec); err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order created", "order_id", o.ID, "user_id", o.UserID, "amount", o.Amount)
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.Get(ctx, id)
}

// ConfirmOrder completes the happy path. Confirming an already-terminal
// order is a no-op so redelivered CreditReserved events cannot corrupt
// state.
func (s *Service) ConfirmOrder(ctx context.Context, orderID string) error {
	transitioned, err := s.repo.Confirm(ctx, orderID)
	if err != nil {
		return err
	}
	if !transitioned {
		s.log.Info("confirm ignored, order already terminal", "order_id", orderID)
		return nil
	}
	s.log.Info("order confirmed", "order_id", orderID)
	return nil
}

// CancelOrder transitions the order to CANCELED and queues OrderCanceled
// so the user service can release the hold. Returns
// domain.ErrAlreadyFinalized when the order is CONFIRMED; cancel of an
// already-CANCELED order is a no-op.
func (s *Service) CancelOrder(ctx context.Context, orderID, traceparent string) error {
	transitioned, err := s.repo.Cancel(ctx, orderID, func(o domain.Order) (outbox.Record, error) {
		payload, err := json.Marshal(events.OrderCanceled{
			OrderID: o.ID,
			UserID:  o.UserID,
			Amount:  o.Amount,
		})
		if err != nil {
			return outbox.Record{}, err
		}
		return outbox.Record{
			AggregateType: "order",
			AggregateID:   o.ID,
			Topic:         events.TopicOrderCanceled,
			Type:          "OrderCanceled",
			Headers:       map[string]string{"source": "order-service"},
			Payload:       payload,
			Traceparent:   traceparent,
		}, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyFinalized) {
			s.log.Warn("cancel rejected, order already confirmed", "order_id", orderID)
		}
		return err
	}
	if !transitioned {
		s.log.Info("cancel ignored, order already canceled", "order_id", orderID)
		return nil
	}
	s.log.Info("order canceled", "order_id", orderID)
	return nil
}
