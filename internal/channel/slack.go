package channel

import (
	"fmt"

	"github.com/slack-go/slack"

	"github.com/speccyhq/speccy/internal/gateway"
	"github.com/speccyhq/speccy/internal/models"
	"github.com/speccyhq/speccy/internal/orchestrator"
	"github.com/speccyhq/speccy/internal/toolschema"
)

// SlackAdapter renders turn results as Block Kit blocks. Slack is a
// client-facing surface by construction: the team spec is always withheld
// from its payload, regardless of request mode.
type SlackAdapter struct{}

// NewSlackAdapter creates a Slack adapter.
func NewSlackAdapter() *SlackAdapter {
	return &SlackAdapter{}
}

// FormatResult renders the result into Block Kit without mutating the
// input. Errors collapse into a single warning block.
func (a *SlackAdapter) FormatResult(result *orchestrator.TurnResult) *Payload {
	p := &Payload{
		Content:    result.Content,
		ToolName:   result.ToolName,
		Question:   result.Question,
		Handoff:    result.Handoff,
		Phase:      result.Phase,
		Status:     result.Status,
		TurnsUsed:  result.TurnsUsed,
		TurnBudget: result.TurnBudget,
		Error:      result.Err,
	}

	if result.Err != nil {
		p.Blocks = []slack.Block{warningBlock(result.Err)}
		return p
	}

	var blocks []slack.Block
	if result.Content != "" {
		blocks = append(blocks, markdownSection(result.Content))
	}

	switch result.ToolName {
	case toolschema.ToolAskQuestion:
		if result.Question != nil {
			blocks = append(blocks, questionBlocks(result.SessionID, result.Question)...)
		}
	case toolschema.ToolGenerateClientBrief:
		if result.ClientBrief != nil {
			blocks = append(blocks, briefBlocks(result.ClientBrief)...)
		}
	case toolschema.ToolGenerateTeamSpec:
		blocks = append(blocks, completionBlocks(result)...)
	case toolschema.ToolRequestHandoff:
		if result.Handoff != nil {
			blocks = append(blocks, markdownSection(fmt.Sprintf(
				":wave: The conversation is being handed to a project %s. %s",
				result.Handoff.TargetRole, result.Handoff.Reason)))
		}
	}

	p.Blocks = blocks
	return p
}

func markdownSection(text string) slack.Block {
	return slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

// questionBlocks renders an ask_question call as a question section plus an
// interactive button group keyed speccy_option_{session_id}_{index}.
func questionBlocks(sessionID string, q *orchestrator.Question) []slack.Block {
	blocks := []slack.Block{markdownSection(q.Question)}

	if len(q.Options) == 0 {
		return blocks
	}

	buttons := make([]slack.BlockElement, len(q.Options))
	for i, opt := range q.Options {
		buttons[i] = slack.NewButtonBlockElement(
			fmt.Sprintf("speccy_option_%s_%d", sessionID, i),
			opt.Label,
			slack.NewTextBlockObject(slack.PlainTextType, opt.Label, false, false),
		)
	}
	blocks = append(blocks, slack.NewActionBlock("speccy_options", buttons...))
	return blocks
}

func briefBlocks(brief *models.ClientBrief) []slack.Block {
	blocks := []slack.Block{
		markdownSection(fmt.Sprintf("*%s*\n%s", brief.Title, brief.Goal)),
	}
	for _, section := range brief.Sections {
		blocks = append(blocks, markdownSection(fmt.Sprintf("*%s*\n%s", section.Heading, section.Content)))
	}
	return blocks
}

// completionBlocks summarizes a finished spec: divider plus summary. The
// spec body itself never reaches Slack.
func completionBlocks(result *orchestrator.TurnResult) []slack.Block {
	chunks := 0
	title := "the specification"
	if result.TeamSpec != nil {
		chunks = len(result.TeamSpec.Chunks)
		if result.TeamSpec.Title != "" {
			title = result.TeamSpec.Title
		}
	}
	return []slack.Block{
		slack.NewDividerBlock(),
		markdownSection(fmt.Sprintf(
			":white_check_mark: *%s* is complete. %d work item(s) have been created for the team.",
			title, chunks)),
	}
}

func warningBlock(err *orchestrator.TurnError) slack.Block {
	msg := "Something went wrong processing that turn. Please try again."
	switch err.Kind {
	case string(gateway.KindRateLimit), string(gateway.KindOverloaded):
		msg = "The assistant is a little busy right now. Give it a moment and try again."
	case orchestrator.KindInvalidInput:
		msg = "I need a message to work with. Try sending some text."
	}
	return markdownSection(":warning: " + msg)
}
