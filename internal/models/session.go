package models

import "time"

// Phase represents the coarse stage of a spec interview.
type Phase string

const (
	PhaseExplore  Phase = "explore"
	PhaseNarrow   Phase = "narrow"
	PhaseConverge Phase = "converge"
	PhaseGenerate Phase = "generate"
)

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusArchived  SessionStatus = "archived"
)

// Channel identifies the delivery surface a session belongs to.
type Channel string

const (
	ChannelWeb   Channel = "web"
	ChannelSlack Channel = "slack"
	ChannelGuest Channel = "guest"
)

// Session represents one spec interview thread for a project.
type Session struct {
	ID          string
	ProjectID   string
	TenantID    string
	Phase       Phase
	Status      SessionStatus
	Version     int // monotonic per project, assigned as max+1 at creation
	TurnBudget  int
	TurnsUsed   int
	Channel     Channel
	ChannelMeta map[string]string // free-form, e.g. slack thread_ts
	Model       string
	LatestBrief *ClientBrief // most recent client brief, if any
	TeamSpec    *TeamSpec    // set when the session completes
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BudgetRatio returns turns_used / turn_budget, or 0 for a zero budget.
func (s *Session) BudgetRatio() float64 {
	if s.TurnBudget <= 0 {
		return 0
	}
	return float64(s.TurnsUsed) / float64(s.TurnBudget)
}
