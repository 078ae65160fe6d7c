// The order service's two saga handlers: confirm on reserved credit,
// cancel on failed reservation.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/order/application"
	"github.com/orderflow/orderflow/internal/order/domain"
	"github.com/orderflow/orderflow/pkg/consumer"
)

// NewCreditReservedHandler confirms the order: the happy path's terminal
// leg, no outbound event.
func NewCreditReservedHandler(log *slog.Logger, svc *application.Service) consumer.HandleFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		var ev events.CreditReserved
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return consumer.Permanent(fmt.Errorf("unmarshal CreditReserved: %w", err))
		}
		log.Info("received CreditReserved", "order_id", ev.OrderID, "user_id", ev.UserID)

		if err := svc.ConfirmOrder(ctx, ev.OrderID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				log.Error("confirm for unknown order, dropping", "order_id", ev.OrderID)
				return nil
			}
			return err
		}
		return nil
	}
}

// NewCreditReservationFailedHandler cancels the order. The cancel
// transition itself queues OrderCanceled; this handler publishes nothing.
func NewCreditReservationFailedHandler(log *slog.Logger, svc *application.Service) consumer.HandleFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		var ev events.CreditReservationFailed
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return consumer.Permanent(fmt.Errorf("unmarshal CreditReservationFailed: %w", err))
		}
		log.Info("received CreditReservationFailed", "order_id", ev.OrderID, "reason", ev.Reason)

		traceparent := consumer.HeaderValue(msg.Headers, events.HeaderTraceparent)
		if err := svc.CancelOrder(ctx, ev.OrderID, traceparent); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				log.Error("cancel for unknown order, dropping", "order_id", ev.OrderID)
				return nil
			}
			if errors.Is(err, domain.ErrAlreadyFinalized) {
				log.Warn("cancel ignored, order already confirmed", "order_id", ev.OrderID)
				return nil
			}
			return err
		}
		return nil
	}
}
