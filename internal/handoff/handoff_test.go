package handoff

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speccyhq/speccy/internal/models"
	"github.com/speccyhq/speccy/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.SQLiteStore) {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	return NewService(s, 0), s
}

func testSession(t *testing.T, s *store.SQLiteStore) *models.Session {
	t.Helper()
	sess := &models.Session{
		ProjectID:  "proj-1",
		Phase:      models.PhaseExplore,
		Status:     models.SessionStatusActive,
		Version:    1,
		TurnBudget: 10,
		Channel:    models.ChannelWeb,
	}
	require.NoError(t, s.CreateSession(context.Background(), sess))
	return sess
}

func TestCreate_InviteHandoff(t *testing.T) {
	svc, s := newTestService(t)
	sess := testSession(t, s)
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{
		SessionID:          sess.ID,
		InitiatorName:      "Grace",
		Reason:             "billing context needed",
		Summary:            "Scoped the portal",
		SuggestedQuestions: []string{"Which invoicing system?"},
		TargetRole:         models.HandoffRoleOwner,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, h.ID)
	assert.NotEmpty(t, h.Token)
	require.NotNil(t, h.ExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(DefaultTTL), *h.ExpiresAt, time.Minute)
	assert.True(t, h.Pending())
}

func TestCreate_DirectHandoffSkipsToken(t *testing.T) {
	svc, s := newTestService(t)
	sess := testSession(t, s)

	h, err := svc.Create(context.Background(), CreateInput{
		SessionID:    sess.ID,
		Reason:       "internal delegation",
		TargetRole:   models.HandoffRoleMember,
		TargetUserID: "user-7",
	})
	require.NoError(t, err)
	assert.Empty(t, h.Token)
	assert.Nil(t, h.ExpiresAt)
}

func TestCreate_SecondPendingRejected(t *testing.T) {
	svc, s := newTestService(t)
	sess := testSession(t, s)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{
		SessionID:  sess.ID,
		Reason:     "first",
		TargetRole: models.HandoffRoleOwner,
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateInput{
		SessionID:  sess.ID,
		Reason:     "second",
		TargetRole: models.HandoffRoleOwner,
	})
	assert.ErrorIs(t, err, ErrPendingExists)

	// A direct handoff is not blocked by the pending invite.
	_, err = svc.Create(ctx, CreateInput{
		SessionID:    sess.ID,
		Reason:       "direct",
		TargetRole:   models.HandoffRoleMember,
		TargetUserID: "user-3",
	})
	assert.NoError(t, err)
}

func TestAccept(t *testing.T) {
	svc, s := newTestService(t)
	sess := testSession(t, s)
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{
		SessionID:  sess.ID,
		Reason:     "needs the owner",
		TargetRole: models.HandoffRoleOwner,
	})
	require.NoError(t, err)

	accepted, err := svc.Accept(ctx, h.Token, "user-9")
	require.NoError(t, err)
	assert.Equal(t, "user-9", accepted.TargetUserID)
	require.NotNil(t, accepted.AcceptedAt)
	assert.False(t, accepted.Pending())

	// Redeeming the same token again fails.
	_, err = svc.Accept(ctx, h.Token, "user-10")
	assert.ErrorIs(t, err, ErrAlreadyAccepted)
}

func TestAccept_UnknownToken(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Accept(context.Background(), "no-such-token", "user-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAccept_Expired(t *testing.T) {
	svc, s := newTestService(t)
	sess := testSession(t, s)
	ctx := context.Background()

	h, err := svc.Create(ctx, CreateInput{
		SessionID:  sess.ID,
		Reason:     "needs the owner",
		TargetRole: models.HandoffRoleOwner,
	})
	require.NoError(t, err)

	// Move the clock past the invite expiry.
	svc.now = func() time.Time { return time.Now().Add(DefaultTTL + time.Hour) }

	_, err = svc.Accept(ctx, h.Token, "user-9")
	assert.ErrorIs(t, err, ErrExpired)
}
