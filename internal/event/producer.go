package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/addisbazaar/platform/internal/domain"
	pkgkafka "github.com/addisbazaar/platform/pkg/kafka"
)

// Kafka topic constants for identity and subscription domain events.
const (
	TopicUserRegistered        = "addisbazaar.identity.registered"
	TopicUserVerified          = "addisbazaar.identity.verified"
	TopicPasswordReset         = "addisbazaar.identity.password_reset"
	TopicSubscriptionCreated   = "addisbazaar.subscription.created"
	TopicSubscriptionActivated = "addisbazaar.subscription.activated"
	TopicSubscriptionCancelled = "addisbazaar.subscription.cancelled"
	TopicSubscriptionRenewed   = "addisbazaar.subscription.renewed"
)

// Aggregate type constants.
const (
	AggregateTypeProfile      = "profile"
	AggregateTypeSubscription = "subscription"
)

// Source identifier for events originating from this service.
const SourcePlatform = "platform"

// UserRegisteredData is the payload for an identity.registered event.
type UserRegisteredData struct {
	ID          string `json:"id"`
	Identifier  string `json:"identifier"`
	AccountType string `json:"account_type"`
}

// UserVerifiedData is the payload for an identity.verified event.
type UserVerifiedData struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
}

// PasswordResetData is the payload for an identity.password_reset event.
type PasswordResetData struct {
	UserID     string `json:"user_id"`
	Identifier string `json:"identifier"`
}

// SubscriptionData is the payload shared by subscription lifecycle events.
type SubscriptionData struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	PlanID string `json:"plan_id"`
	Status string `json:"status"`
}

// Producer publishes identity and subscription domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes an identity.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, profile *domain.Profile) error {
	data := UserRegisteredData{
		ID:          profile.ID,
		Identifier:  profile.Identifier,
		AccountType: profile.AccountType,
	}
	return p.publish(ctx, TopicUserRegistered, profile.ID, AggregateTypeProfile, data)
}

// PublishUserVerified publishes an identity.verified event.
func (p *Producer) PublishUserVerified(ctx context.Context, profile *domain.Profile) error {
	data := UserVerifiedData{
		ID:         profile.ID,
		Identifier: profile.Identifier,
	}
	return p.publish(ctx, TopicUserVerified, profile.ID, AggregateTypeProfile, data)
}

// PublishPasswordReset publishes an identity.password_reset event.
func (p *Producer) PublishPasswordReset(ctx context.Context, profile *domain.Profile) error {
	data := PasswordResetData{
		UserID:     profile.ID,
		Identifier: profile.Identifier,
	}
	return p.publish(ctx, TopicPasswordReset, profile.ID, AggregateTypeProfile, data)
}

// PublishSubscriptionEvent publishes a subscription lifecycle event on the
// given topic.
func (p *Producer) PublishSubscriptionEvent(ctx context.Context, topic string, sub *domain.Subscription) error {
	data := SubscriptionData{
		ID:     sub.ID,
		UserID: sub.UserID,
		PlanID: sub.PlanID,
		Status: string(sub.Status),
	}
	return p.publish(ctx, topic, sub.ID, AggregateTypeSubscription, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourcePlatform, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)

	return nil
}
