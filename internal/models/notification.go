package models

import "time"

// NotificationAction identifies the event a notification describes.
type NotificationAction string

const (
	ActionTurnLimitApproaching NotificationAction = "turn_limit_approaching"
	ActionSpecCompleted        NotificationAction = "spec_completed"
	ActionHandoffRequested     NotificationAction = "handoff_requested"
)

// Notification is one fan-out event in the append-only outbox. Delivery
// (email, Slack DM, in-app) is an external concern.
type Notification struct {
	ID              string
	Action          NotificationAction
	NotifiableType  string
	NotifiableID    string
	Data            map[string]any
	TenantID        string
	ExcludedActorID string
	CreatedAt       time.Time
}
