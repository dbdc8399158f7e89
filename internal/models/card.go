package models

import "time"

// CardStatus tracks a card through the delivery workflow.
type CardStatus string

const (
	CardStatusBacklog    CardStatus = "backlog"
	CardStatusInProgress CardStatus = "in_progress"
	CardStatusReview     CardStatus = "review"
	CardStatusDone       CardStatus = "done"
)

// Card is one actionable chunk of a completed team spec. Cards are created
// in bulk when a session completes and mutated afterward only by external
// issue-tracker mirroring.
type Card struct {
	ID                 string
	SessionID          string
	Title              string
	Description        string
	AcceptanceCriteria []string
	HasUI              bool
	Dependencies       []string // free-form cross-references to other cards
	Status             CardStatus
	Position           int
	ChunkIndex         int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
