// Package gateway wraps the Anthropic Messages API behind a small
// request/response contract with a typed failure taxonomy. It is stateless,
// performs no retries, and is safe to share across sessions; retry policy
// belongs to the caller.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// TextMessage is one role-tagged entry of the conversation history.
type TextMessage struct {
	Role           string // "user" or "assistant"
	Content        string
	ImageMediaType string // optional base64 image attachment (user messages)
	ImageData      string
}

// Request is one synchronous round trip to the model.
type Request struct {
	System    string
	Messages  []TextMessage
	Model     string
	MaxTokens int64
	Tools     []anthropic.ToolUnionParam
}

// ToolCall is a structured action the model requested.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Response is the parsed model reply. At most one tool call is surfaced;
// when the model emits multiple tool_use blocks only the first is kept.
type Response struct {
	Content      string
	ToolCall     *ToolCall
	StopReason   string
	ModelID      string
	InputTokens  int64
	OutputTokens int64
}

// Client is a synchronous gateway to the Anthropic API.
type Client struct {
	api *anthropic.Client
}

// NewClient creates a gateway client. An empty API key falls back to the
// SDK's environment lookup.
func NewClient(apiKey string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{api: &client}
}

// Send performs one model round trip. Failures are returned as one of the
// typed errors in this package.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("gateway: model is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{
				Text:         req.System,
				CacheControl: anthropic.NewCacheControlEphemeralParam(),
			},
		},
		Messages: convertMessages(req.Messages),
		Tools:    req.Tools,
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapAPIError(err)
	}

	resp := parseMessage(msg)

	switch resp.StopReason {
	case string(anthropic.StopReasonMaxTokens):
		return nil, &MaxTokensError{OutputTokens: resp.OutputTokens}
	case string(anthropic.StopReasonRefusal):
		return nil, &RefusalError{}
	}

	return resp, nil
}

// convertMessages builds the ordered SDK message list. User images are
// inlined as base64 blocks alongside the text.
func convertMessages(messages []TextMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		var blocks []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		if m.ImageData != "" && m.ImageMediaType != "" {
			blocks = append(blocks, anthropic.NewImageBlockBase64(m.ImageMediaType, m.ImageData))
		}
		if len(blocks) == 0 {
			continue
		}
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

// parseMessage flattens the response content blocks: text blocks are
// concatenated, and the first tool_use block (if any) becomes the tool call.
func parseMessage(msg *anthropic.Message) *Response {
	resp := &Response{
		StopReason:   string(msg.StopReason),
		ModelID:      string(msg.Model),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}

	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += variant.Text
		case anthropic.ToolUseBlock:
			if resp.ToolCall != nil {
				continue
			}
			resp.ToolCall = &ToolCall{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: json.RawMessage(variant.JSON.Input.Raw()),
			}
		}
	}

	return resp
}
