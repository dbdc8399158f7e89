package channel

import "github.com/speccyhq/speccy/internal/orchestrator"

// WebAdapter passes the turn result through unchanged. In strip mode the
// internal team spec is removed before the payload reaches a client-facing
// response.
type WebAdapter struct {
	stripTeamSpec bool
}

// NewWebAdapter creates a web adapter. stripTeamSpec controls whether the
// internal spec is withheld from the payload.
func NewWebAdapter(stripTeamSpec bool) *WebAdapter {
	return &WebAdapter{stripTeamSpec: stripTeamSpec}
}

// FormatResult copies the result into a payload without mutating the input.
func (a *WebAdapter) FormatResult(result *orchestrator.TurnResult) *Payload {
	p := &Payload{
		Content:     result.Content,
		ToolName:    result.ToolName,
		ToolInput:   result.ToolInput,
		Question:    result.Question,
		ClientBrief: result.ClientBrief,
		TeamSpec:    result.TeamSpec,
		Handoff:     result.Handoff,
		Phase:       result.Phase,
		Status:      result.Status,
		TurnsUsed:   result.TurnsUsed,
		TurnBudget:  result.TurnBudget,
		Error:       result.Err,
	}
	if a.stripTeamSpec {
		p.TeamSpec = nil
	}
	return p
}
