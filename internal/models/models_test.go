package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBudgetRatio(t *testing.T) {
	assert.Equal(t, 0.0, (&Session{TurnBudget: 0, TurnsUsed: 5}).BudgetRatio())
	assert.Equal(t, 0.0, (&Session{TurnBudget: 10}).BudgetRatio())
	assert.Equal(t, 0.5, (&Session{TurnBudget: 10, TurnsUsed: 5}).BudgetRatio())
	assert.Equal(t, 1.2, (&Session{TurnBudget: 5, TurnsUsed: 6}).BudgetRatio())
}

func TestHandoffPending(t *testing.T) {
	now := time.Now()

	assert.True(t, (&Handoff{}).Pending())
	assert.False(t, (&Handoff{TargetUserID: "user-1"}).Pending())
	assert.False(t, (&Handoff{AcceptedAt: &now}).Pending())
}

func TestHandoffExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.False(t, (&Handoff{}).Expired(now), "no expiry means never expired")
	assert.True(t, (&Handoff{ExpiresAt: &past}).Expired(now))
	assert.False(t, (&Handoff{ExpiresAt: &future}).Expired(now))
	assert.False(t, (&Handoff{ExpiresAt: &past, AcceptedAt: &past}).Expired(now),
		"accepted handoffs do not expire")
}

func TestAllowedImageMediaTypes(t *testing.T) {
	for _, mt := range []string{"image/jpeg", "image/png", "image/gif", "image/webp"} {
		assert.True(t, AllowedImageMediaTypes[mt], mt)
	}
	assert.False(t, AllowedImageMediaTypes["image/tiff"])
	assert.False(t, AllowedImageMediaTypes["application/pdf"])
}
