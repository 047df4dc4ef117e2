package event

import (
	"context"
	"log/slog"

	pkgkafka "github.com/addisbazaar/platform/pkg/kafka"
)

// Topics consumed from the payment gateway integration.
const (
	TopicPaymentSucceeded = "addisbazaar.payment.succeeded"
	TopicPaymentFailed    = "addisbazaar.payment.failed"
)

// Consumer group ID for this service.
const ConsumerGroupID = "platform"

// PaymentSucceededData is the payload of a payment.succeeded event.
type PaymentSucceededData struct {
	SubscriptionID string  `json:"subscription_id"`
	Amount         float64 `json:"amount"`
	Reference      string  `json:"reference"`
}

// SubscriptionActivator promotes a pending subscription after payment
// confirmation and records the transaction.
type SubscriptionActivator interface {
	ConfirmPayment(ctx context.Context, subscriptionID string, amount float64, reference string) error
}

// ConsumerHandler routes incoming Kafka events to the appropriate handler.
type ConsumerHandler struct {
	activator SubscriptionActivator
	logger    *slog.Logger
}

// NewConsumerHandler creates a new event consumer handler.
func NewConsumerHandler(activator SubscriptionActivator, logger *slog.Logger) *ConsumerHandler {
	return &ConsumerHandler{
		activator: activator,
		logger:    logger,
	}
}

// Handle processes an incoming Kafka event based on its event type.
func (h *ConsumerHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TopicPaymentSucceeded:
		return h.handlePaymentSucceeded(ctx, event)
	case TopicPaymentFailed:
		return h.handlePaymentFailed(ctx, event)
	default:
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handlePaymentSucceeded promotes the paid subscription from pending to active.
func (h *ConsumerHandler) handlePaymentSucceeded(ctx context.Context, event *pkgkafka.Event) error {
	var data PaymentSucceededData
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.ErrorContext(ctx, "malformed payment.succeeded payload",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if err := h.activator.ConfirmPayment(ctx, data.SubscriptionID, data.Amount, data.Reference); err != nil {
		h.logger.ErrorContext(ctx, "failed to confirm payment",
			slog.String("subscription_id", data.SubscriptionID),
			slog.String("error", err.Error()),
		)
		return err
	}

	h.logger.InfoContext(ctx, "subscription activated by payment",
		slog.String("subscription_id", data.SubscriptionID),
	)
	return nil
}

// handlePaymentFailed logs the failure; the subscription stays pending until
// a later payment succeeds or it is cancelled.
func (h *ConsumerHandler) handlePaymentFailed(ctx context.Context, event *pkgkafka.Event) error {
	h.logger.InfoContext(ctx, "received payment.failed event",
		slog.String("event_id", event.EventID),
		slog.String("aggregate_id", event.AggregateID),
	)
	return nil
}
