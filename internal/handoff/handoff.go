// Package handoff issues and redeems conversation handoffs. An internal
// handoff binds a known user directly; an external one carries an invite
// token with a fixed expiry, delivered out of band.
package handoff

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/speccyhq/speccy/internal/models"
	"github.com/speccyhq/speccy/internal/store"
)

// DefaultTTL is how long an unaccepted invite stays valid.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrPendingExists is returned when the session already has an
	// unaccepted, unbound handoff.
	ErrPendingExists = errors.New("session already has a pending handoff")
	// ErrExpired is returned when redeeming a token past its expiry.
	ErrExpired = errors.New("handoff invite expired")
	// ErrAlreadyAccepted is returned when redeeming a claimed token.
	ErrAlreadyAccepted = errors.New("handoff already accepted")
)

// Service creates and accepts handoffs.
type Service struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewService creates a handoff service with the given invite TTL. A zero
// ttl uses DefaultTTL.
func NewService(s store.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: s, ttl: ttl, now: time.Now}
}

// CreateInput describes a requested handoff.
type CreateInput struct {
	SessionID          string
	InitiatorID        string
	InitiatorName      string
	Reason             string
	Summary            string
	SuggestedQuestions []string
	TargetRole         models.HandoffRole
	TargetUserID       string // empty for invite-based handoff
}

// Create records a handoff. When no target user is bound, an invite token
// and expiry are generated. At most one pending handoff may exist per
// session; a second attempt returns ErrPendingExists.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Handoff, error) {
	if in.TargetUserID == "" {
		pending, err := s.store.CountPendingHandoffs(ctx, in.SessionID)
		if err != nil {
			return nil, fmt.Errorf("check pending handoffs: %w", err)
		}
		if pending > 0 {
			return nil, ErrPendingExists
		}
	}

	h := &models.Handoff{
		SessionID:          in.SessionID,
		InitiatorID:        in.InitiatorID,
		InitiatorName:      in.InitiatorName,
		Reason:             in.Reason,
		Summary:            in.Summary,
		SuggestedQuestions: in.SuggestedQuestions,
		TargetRole:         in.TargetRole,
		TargetUserID:       in.TargetUserID,
	}

	if in.TargetUserID == "" {
		token, err := newToken()
		if err != nil {
			return nil, fmt.Errorf("generate invite token: %w", err)
		}
		expires := s.now().UTC().Add(s.ttl)
		h.Token = token
		h.ExpiresAt = &expires
	}

	if err := s.store.CreateHandoff(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Accept redeems an invite token, binding the handoff to the accepting
// user and stamping the acceptance time.
func (s *Service) Accept(ctx context.Context, token, userID string) (*models.Handoff, error) {
	h, err := s.store.GetHandoffByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if h.AcceptedAt != nil {
		return nil, ErrAlreadyAccepted
	}
	now := s.now().UTC()
	if h.Expired(now) {
		return nil, ErrExpired
	}

	h.TargetUserID = userID
	h.AcceptedAt = &now
	if err := s.store.UpdateHandoff(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// newToken returns a URL-safe random invite token.
func newToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
