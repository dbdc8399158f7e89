package store

import (
	"context"
	"errors"

	"github.com/speccyhq/speccy/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SessionListFilter specifies filters for listing sessions.
type SessionListFilter struct {
	ProjectID string
	Status    models.SessionStatus
	Channel   models.Channel
	Limit     int
}

// Store defines the persistence interface for speccy.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	GetActiveSessionByProject(ctx context.Context, projectID string) (*models.Session, error)
	ListSessions(ctx context.Context, filter SessionListFilter) ([]*models.Session, error)
	UpdateSession(ctx context.Context, s *models.Session) error
	NextSessionVersion(ctx context.Context, projectID string) (int, error)

	// Messages
	CreateMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, sessionID string) ([]*models.Message, error)
	DeleteMessage(ctx context.Context, id string) error

	// Handoffs
	CreateHandoff(ctx context.Context, h *models.Handoff) error
	GetHandoff(ctx context.Context, id string) (*models.Handoff, error)
	GetHandoffByToken(ctx context.Context, token string) (*models.Handoff, error)
	CountPendingHandoffs(ctx context.Context, sessionID string) (int, error)
	UpdateHandoff(ctx context.Context, h *models.Handoff) error

	// Cards
	CreateCards(ctx context.Context, cards []*models.Card) error
	ListCards(ctx context.Context, sessionID string) ([]*models.Card, error)
	CountCards(ctx context.Context, sessionID string) (int, error)

	// Notifications
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, limit int) ([]*models.Notification, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
