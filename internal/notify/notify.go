// Package notify fans notification events out to an append-only outbox.
// Delivery to end users (email, Slack DM, in-app badge) is an external
// concern reading from the outbox.
package notify

import (
	"context"
	"fmt"

	"github.com/speccyhq/speccy/internal/models"
	"github.com/speccyhq/speccy/internal/store"
)

// Event is one fire-and-forget notification.
type Event struct {
	Action          models.NotificationAction
	NotifiableType  string
	NotifiableID    string
	Data            map[string]any
	TenantID        string
	ExcludedActorID string
}

// Notifier publishes notification events.
type Notifier interface {
	Publish(ctx context.Context, e Event) error
}

// OutboxNotifier writes events to the store's notifications table.
type OutboxNotifier struct {
	store store.Store
}

// NewOutboxNotifier creates a store-backed notifier.
func NewOutboxNotifier(s store.Store) *OutboxNotifier {
	return &OutboxNotifier{store: s}
}

// Publish appends the event to the outbox.
func (n *OutboxNotifier) Publish(ctx context.Context, e Event) error {
	rec := &models.Notification{
		Action:          e.Action,
		NotifiableType:  e.NotifiableType,
		NotifiableID:    e.NotifiableID,
		Data:            e.Data,
		TenantID:        e.TenantID,
		ExcludedActorID: e.ExcludedActorID,
	}
	if err := n.store.CreateNotification(ctx, rec); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
