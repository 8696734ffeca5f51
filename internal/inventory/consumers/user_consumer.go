package consumers

import (
	"context"

	"github.com/progami/wms-ecomos-sub005/internal/inventory/repository"
	"github.com/progami/wms-ecomos-sub005/pkg/errors"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
	"github.com/progami/wms-ecomos-sub005/pkg/messaging"
)

// UserStore is the cache the consumer keeps in sync
type UserStore interface {
	Set(ctx context.Context, user *repository.CachedUser) error
	Get(ctx context.Context, userID string) (*repository.CachedUser, error)
	Delete(ctx context.Context, userID string) error
}

// UserEventConsumer consumes user events
type UserEventConsumer struct {
	consumer *messaging.Consumer
	users    UserStore
	logger   *logger.Logger
}

// NewUserEventConsumer creates a new user event consumer
func NewUserEventConsumer(rmq *messaging.RabbitMQ, users UserStore, log *logger.Logger) (*UserEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "inventory-service.user-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeUserEvents, "user.#"); err != nil {
		return nil, err
	}

	c := &UserEventConsumer{
		consumer: consumer,
		users:    users,
		logger:   log,
	}

	consumer.RegisterHandler(messaging.EventUserCreated, c.handleUserCreated)
	consumer.RegisterHandler(messaging.EventUserUpdated, c.handleUserUpdated)
	consumer.RegisterHandler(messaging.EventUserDeleted, c.handleUserDeleted)

	return c, nil
}

// Start starts consuming messages
func (c *UserEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *UserEventConsumer) handleUserCreated(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserCreatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().Str("user_id", data.UserID).Msg("received user created event")

	return c.users.Set(ctx, &repository.CachedUser{
		UserID:    data.UserID,
		FirstName: data.FirstName,
		LastName:  data.LastName,
		Email:     optional(data.Email),
		RoleName:  optional(data.RoleName),
	})
}

func (c *UserEventConsumer) handleUserUpdated(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserUpdatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().Str("user_id", data.UserID).Msg("received user updated event")

	existing, err := c.users.Get(ctx, data.UserID)
	if errors.Is(err, errors.ErrNotFound) {
		// never seen; the next created event or lookup miss handles it
		return nil
	}
	if err != nil {
		return err
	}

	if v, ok := changedTo(data.Fields, "first_name"); ok {
		existing.FirstName = v
	}
	if v, ok := changedTo(data.Fields, "last_name"); ok {
		existing.LastName = v
	}
	if v, ok := changedTo(data.Fields, "email"); ok {
		existing.Email = optional(v)
	}
	if v, ok := changedTo(data.Fields, "role_name"); ok {
		existing.RoleName = optional(v)
	}

	return c.users.Set(ctx, existing)
}

func (c *UserEventConsumer) handleUserDeleted(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserDeletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().Str("user_id", data.UserID).Msg("received user deleted event")

	return c.users.Delete(ctx, data.UserID)
}

// changedTo reads fields[name]["to"] as a string
func changedTo(fields map[string]any, name string) (string, bool) {
	change, ok := fields[name].(map[string]interface{})
	if !ok {
		return "", false
	}
	v, ok := change["to"].(string)
	return v, ok
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
