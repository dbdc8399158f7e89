package models

import "time"

// HandoffRole is the role the conversation is handed to.
type HandoffRole string

const (
	HandoffRoleOwner  HandoffRole = "owner"
	HandoffRoleMember HandoffRole = "member"
	HandoffRoleClient HandoffRole = "client"
)

// Handoff represents a delegation of the conversation to a different human.
// An internal handoff binds TargetUserID directly; an external handoff
// carries an invite token and expiry instead.
type Handoff struct {
	ID                 string
	SessionID          string
	InitiatorID        string
	InitiatorName      string
	Reason             string
	Summary            string
	SuggestedQuestions []string
	TargetRole         HandoffRole
	TargetUserID       string // internal handoff; empty for invite-based
	Token              string // external handoff invite token
	ExpiresAt          *time.Time
	AcceptedAt         *time.Time
	CreatedAt          time.Time
}

// Pending reports whether the handoff is still awaiting acceptance.
func (h *Handoff) Pending() bool {
	return h.AcceptedAt == nil && h.TargetUserID == ""
}

// Expired reports whether an unaccepted invite has passed its expiry.
func (h *Handoff) Expired(now time.Time) bool {
	return h.AcceptedAt == nil && h.ExpiresAt != nil && now.After(*h.ExpiresAt)
}
