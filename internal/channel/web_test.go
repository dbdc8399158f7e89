package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speccyhq/speccy/internal/models"
	"github.com/speccyhq/speccy/internal/orchestrator"
)

func fullResult() *orchestrator.TurnResult {
	return &orchestrator.TurnResult{
		SessionID: "sess-1",
		Content:   "All set.",
		ToolName:  "generate_team_spec",
		ToolInput: []byte(`{"title":"Portal"}`),
		TeamSpec: &models.TeamSpec{
			Title: "Portal",
			Chunks: []models.SpecChunk{
				{Title: "Auth", Description: "Login"},
			},
		},
		ClientBrief: &models.ClientBrief{Title: "Portal", Goal: "Self-service"},
		Phase:       models.PhaseGenerate,
		Status:      models.SessionStatusCompleted,
		TurnsUsed:   7,
		TurnBudget:  20,
	}
}

func TestWebAdapter_PassThrough(t *testing.T) {
	result := fullResult()
	p := NewWebAdapter(false).FormatResult(result)

	assert.Equal(t, "All set.", p.Content)
	assert.Equal(t, "generate_team_spec", p.ToolName)
	require.NotNil(t, p.TeamSpec)
	assert.Equal(t, "Portal", p.TeamSpec.Title)
	assert.Equal(t, models.SessionStatusCompleted, p.Status)
	assert.Equal(t, 7, p.TurnsUsed)
	assert.Nil(t, p.Blocks)
}

func TestWebAdapter_StripTeamSpec(t *testing.T) {
	result := fullResult()
	p := NewWebAdapter(true).FormatResult(result)

	assert.Nil(t, p.TeamSpec)
	assert.NotNil(t, p.ClientBrief, "client brief still passes through")

	// Stripping must not mutate the shared result.
	assert.NotNil(t, result.TeamSpec)
}

func TestWebAdapter_Error(t *testing.T) {
	result := &orchestrator.TurnResult{
		SessionID: "sess-1",
		Err:       &orchestrator.TurnError{Kind: "rate_limit", Message: "slow down"},
	}
	p := NewWebAdapter(false).FormatResult(result)

	require.NotNil(t, p.Error)
	assert.Equal(t, "rate_limit", p.Error.Kind)
	assert.Empty(t, p.Content)
}
