// Package toolschema holds the static description of the tools the model
// may call during a spec interview. The registry is immutable and shared
// process-wide; schemas are versioned per audience so client-facing
// sessions never see internal-only tools.
package toolschema

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// Tool names recognized by the orchestrator's dispatcher.
const (
	ToolAskQuestion         = "ask_question"
	ToolGenerateClientBrief = "generate_client_brief"
	ToolGenerateTeamSpec    = "generate_team_spec"
	ToolRequestHandoff      = "request_handoff"
)

// Audience selects which tool schema variant a session sees.
type Audience string

const (
	// AudienceInternal exposes all tools, including generate_team_spec.
	AudienceInternal Audience = "internal"
	// AudienceClient omits generate_team_spec: the internal spec is never
	// produced while a client-role actor drives the conversation.
	AudienceClient Audience = "client"
)

var askQuestionTool = anthropic.ToolParam{
	Name:        ToolAskQuestion,
	Description: anthropic.String("Ask the user a single clarifying question, optionally with a short list of selectable options."),
	InputSchema: anthropic.ToolInputSchemaParam{
		Properties: map[string]any{
			"question": map[string]any{
				"type":        "string",
				"description": "The question to put to the user.",
			},
			"options": map[string]any{
				"type":        "array",
				"description": "Ordered answer options. Omit for a free-form question.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"label":       map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
					},
					"required": []string{"label"},
				},
			},
		},
		Required: []string{"question"},
	},
}

var generateClientBriefTool = anthropic.ToolParam{
	Name:        ToolGenerateClientBrief,
	Description: anthropic.String("Produce the client-facing project brief summarizing what will be built, in plain language."),
	InputSchema: anthropic.ToolInputSchemaParam{
		Properties: map[string]any{
			"title": map[string]any{"type": "string"},
			"goal":  map[string]any{"type": "string"},
			"sections": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"heading": map[string]any{"type": "string"},
						"content": map[string]any{"type": "string"},
					},
					"required": []string{"heading", "content"},
				},
			},
		},
		Required: []string{"title", "goal", "sections"},
	},
}

var generateTeamSpecTool = anthropic.ToolParam{
	Name:        ToolGenerateTeamSpec,
	Description: anthropic.String("Produce the internal team specification. Call this only when the interview has converged; it ends the session."),
	InputSchema: anthropic.ToolInputSchemaParam{
		Properties: map[string]any{
			"title":    map[string]any{"type": "string"},
			"goal":     map[string]any{"type": "string"},
			"approach": map[string]any{"type": "string"},
			"chunks": map[string]any{
				"type":        "array",
				"description": "Independently buildable units of work, in delivery order.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":       map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
						"acceptance_criteria": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
						"dependencies": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
						"has_ui": map[string]any{"type": "boolean"},
					},
					"required": []string{"title", "description"},
				},
			},
		},
		Required: []string{"title", "goal", "approach", "chunks"},
	},
}

var requestHandoffTool = anthropic.ToolParam{
	Name:        ToolRequestHandoff,
	Description: anthropic.String("Hand the conversation to a different human when the current participant cannot answer, naming who should take over."),
	InputSchema: anthropic.ToolInputSchemaParam{
		Properties: map[string]any{
			"reason":  map[string]any{"type": "string"},
			"summary": map[string]any{"type": "string", "description": "Context so far for the person taking over."},
			"suggested_questions": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"target_role": map[string]any{
				"type": "string",
				"enum": []string{"owner", "member", "client"},
			},
			"target_user_id": map[string]any{
				"type":        "string",
				"description": "Known internal user to hand to. Omit to generate an invite link.",
			},
		},
		Required: []string{"reason", "summary", "target_role"},
	},
}

var internalTools = []anthropic.ToolParam{
	askQuestionTool,
	generateClientBriefTool,
	generateTeamSpecTool,
	requestHandoffTool,
}

var clientTools = []anthropic.ToolParam{
	askQuestionTool,
	generateClientBriefTool,
	requestHandoffTool,
}

// Tools returns the tool schema for the given audience, defaulting to the
// client variant for unrecognized values.
func Tools(audience Audience) []anthropic.ToolUnionParam {
	params := clientTools
	if audience == AudienceInternal {
		params = internalTools
	}
	out := make([]anthropic.ToolUnionParam, len(params))
	for i := range params {
		out[i] = anthropic.ToolUnionParam{OfTool: &params[i]}
	}
	return out
}

// Names returns the tool names visible to the given audience.
func Names(audience Audience) []string {
	params := clientTools
	if audience == AudienceInternal {
		params = internalTools
	}
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}
