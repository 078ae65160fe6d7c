// The user service's two saga handlers: reserve credit when an order is
// created, release it when an order is canceled.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/user/application"
	"github.com/orderflow/orderflow/pkg/consumer"
)

// NewOrderCreatedHandler reserves credit for the order and resolves to
// exactly one outbound event (reserved or failed) through the outbox.
func NewOrderCreatedHandler(log *slog.Logger, svc *application.Service) consumer.HandleFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		var ev events.OrderCreated
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return consumer.Permanent(fmt.Errorf("unmarshal OrderCreated: %w", err))
		}
		log.Info("received OrderCreated", "order_id", ev.OrderID, "user_id", ev.UserID, "amount", ev.Amount)

		traceparent := consumer.HeaderValue(msg.Headers, events.HeaderTraceparent)
		return svc.ReserveCredit(ctx, ev.OrderID, ev.UserID, ev.Amount, traceparent)
	}
}

// NewOrderCanceledHandler releases the hold: the compensation leg's
// terminus. No outbound event.
func NewOrderCanceledHandler(log *slog.Logger, svc *application.Service) consumer.HandleFunc {
	return func(ctx context.Context, msg kafka.Message) error {
		var ev events.OrderCanceled
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return consumer.Permanent(fmt.Errorf("unmarshal OrderCanceled: %w", err))
		}
		log.Info("received OrderCanceled", "order_id", ev.OrderID, "user_id", ev.UserID, "amount", ev.Amount)

		return svc.ReleaseCredit(ctx, ev.OrderID)
	}
}
