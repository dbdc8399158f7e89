// Package channel translates a generic turn result into channel-specific
// payloads. One adapter per delivery surface; selection is a lookup on the
// session's channel, defaulting to web for unrecognized values.
package channel

import (
	"encoding/json"

	"github.com/slack-go/slack"

	"github.com/speccyhq/speccy/internal/models"
	"github.com/speccyhq/speccy/internal/orchestrator"
)

// Payload is the channel-shaped rendering of a turn result.
type Payload struct {
	Content     string                      `json:"content"`
	ToolName    string                      `json:"tool_name,omitempty"`
	ToolInput   json.RawMessage             `json:"tool_input,omitempty"`
	Question    *orchestrator.Question      `json:"question,omitempty"`
	ClientBrief *models.ClientBrief         `json:"client_brief,omitempty"`
	TeamSpec    *models.TeamSpec            `json:"team_spec,omitempty"`
	Handoff     *models.Handoff             `json:"handoff,omitempty"`
	Phase       models.Phase                `json:"phase,omitempty"`
	Status      models.SessionStatus        `json:"status,omitempty"`
	TurnsUsed   int                         `json:"turns_used"`
	TurnBudget  int                         `json:"turn_budget"`
	Error       *orchestrator.TurnError     `json:"error,omitempty"`
	Blocks      []slack.Block               `json:"blocks,omitempty"`
}

// Adapter formats a turn result for one delivery channel. Implementations
// must not mutate the input result.
type Adapter interface {
	FormatResult(result *orchestrator.TurnResult) *Payload
}

// ForChannel returns the adapter for a session channel. Unrecognized
// channels get the web adapter, never an error.
func ForChannel(ch models.Channel) Adapter {
	switch ch {
	case models.ChannelSlack:
		return NewSlackAdapter()
	case models.ChannelGuest:
		// Guest shares the web contract; its restriction (forced client
		// actor) lives in the caller, so the payload always strips the
		// team spec.
		return NewWebAdapter(true)
	default:
		return NewWebAdapter(false)
	}
}
