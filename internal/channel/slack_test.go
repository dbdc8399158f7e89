package channel

import (
	"encoding/json"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speccyhq/speccy/internal/models"
	"github.com/speccyhq/speccy/internal/orchestrator"
)

func TestSlackAdapter_TextOnly(t *testing.T) {
	p := NewSlackAdapter().FormatResult(&orchestrator.TurnResult{
		SessionID: "sess-1",
		Content:   "Tell me more.",
	})

	require.Len(t, p.Blocks, 1)
	section, ok := p.Blocks[0].(*slack.SectionBlock)
	require.True(t, ok)
	assert.Equal(t, "Tell me more.", section.Text.Text)
}

func TestSlackAdapter_QuestionButtons(t *testing.T) {
	p := NewSlackAdapter().FormatResult(&orchestrator.TurnResult{
		SessionID: "sess-1",
		ToolName:  "ask_question",
		Question: &orchestrator.Question{
			Question: "Which provider?",
			Options: []models.QuestionOption{
				{Label: "Stripe"},
				{Label: "Adyen"},
			},
		},
	})

	require.Len(t, p.Blocks, 2)

	actions, ok := p.Blocks[1].(*slack.ActionBlock)
	require.True(t, ok)
	assert.Equal(t, "speccy_options", actions.BlockID)
	require.Len(t, actions.Elements.ElementSet, 2)

	button, ok := actions.Elements.ElementSet[0].(*slack.ButtonBlockElement)
	require.True(t, ok)
	assert.Equal(t, "speccy_option_sess-1_0", button.ActionID)
	assert.Equal(t, "Stripe", button.Text.Text)
}

func TestSlackAdapter_FreeFormQuestionHasNoButtons(t *testing.T) {
	p := NewSlackAdapter().FormatResult(&orchestrator.TurnResult{
		SessionID: "sess-1",
		ToolName:  "ask_question",
		Question:  &orchestrator.Question{Question: "What is the deadline?"},
	})

	require.Len(t, p.Blocks, 1)
	_, ok := p.Blocks[0].(*slack.SectionBlock)
	assert.True(t, ok)
}

func TestSlackAdapter_Brief(t *testing.T) {
	p := NewSlackAdapter().FormatResult(&orchestrator.TurnResult{
		SessionID: "sess-1",
		ToolName:  "generate_client_brief",
		ClientBrief: &models.ClientBrief{
			Title: "Portal",
			Goal:  "Self-service",
			Sections: []models.BriefSection{
				{Heading: "Scope", Content: "Login and billing."},
			},
		},
	})

	require.Len(t, p.Blocks, 2)
	head, ok := p.Blocks[0].(*slack.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, head.Text.Text, "*Portal*")
}

func TestSlackAdapter_CompletionNeverLeaksSpec(t *testing.T) {
	result := &orchestrator.TurnResult{
		SessionID: "sess-1",
		ToolName:  "generate_team_spec",
		TeamSpec: &models.TeamSpec{
			Title:    "Portal",
			Approach: "internal architecture details",
			Chunks: []models.SpecChunk{
				{Title: "Auth", Description: "secret internal notes"},
				{Title: "Billing", Description: "more internals"},
			},
		},
		Status: models.SessionStatusCompleted,
	}

	p := NewSlackAdapter().FormatResult(result)

	assert.Nil(t, p.TeamSpec, "slack payload never carries the team spec")

	require.Len(t, p.Blocks, 2)
	_, ok := p.Blocks[0].(*slack.DividerBlock)
	assert.True(t, ok)
	summary, ok := p.Blocks[1].(*slack.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, summary.Text.Text, "*Portal*")
	assert.Contains(t, summary.Text.Text, "2 work item(s)")

	// Nothing from the spec body may appear anywhere in the payload.
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret internal notes")
	assert.NotContains(t, string(raw), "internal architecture details")
}

func TestSlackAdapter_Handoff(t *testing.T) {
	p := NewSlackAdapter().FormatResult(&orchestrator.TurnResult{
		SessionID: "sess-1",
		ToolName:  "request_handoff",
		Handoff: &models.Handoff{
			TargetRole: models.HandoffRoleOwner,
			Reason:     "Billing questions need the owner.",
		},
	})

	require.Len(t, p.Blocks, 1)
	section, ok := p.Blocks[0].(*slack.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, section.Text.Text, "owner")
}

func TestSlackAdapter_ErrorVariants(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{"rate_limit", "a little busy"},
		{"overloaded", "a little busy"},
		{"invalid_input", "need a message"},
		{"api_error", "went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			p := NewSlackAdapter().FormatResult(&orchestrator.TurnResult{
				SessionID: "sess-1",
				Content:   "should not render",
				Err:       &orchestrator.TurnError{Kind: tt.kind, Message: "detail"},
			})

			require.Len(t, p.Blocks, 1, "errors collapse to one warning block")
			section, ok := p.Blocks[0].(*slack.SectionBlock)
			require.True(t, ok)
			assert.Contains(t, section.Text.Text, ":warning:")
			assert.Contains(t, section.Text.Text, tt.want)
		})
	}
}
