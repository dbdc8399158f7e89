package models

import (
	"encoding/json"
	"time"
)

// Role represents who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MaxImageBytes caps the decoded size of an attached image.
const MaxImageBytes = 5 << 20

// AllowedImageMediaTypes lists the accepted image content types.
var AllowedImageMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Message represents one utterance within a session. The user message and
// the assistant reply of the same turn share a TurnNumber. Messages are
// never mutated after creation.
type Message struct {
	ID             string
	SessionID      string
	Role           Role
	TurnNumber     int
	Content        string          // empty if the turn was pure tool use
	ToolName       string          // set on assistant messages that carried a tool call
	ToolInput      json.RawMessage // raw tool input as emitted by the model
	ImageMediaType string          // set on user messages with an attachment
	ImageData      string          // base64-encoded image payload
	InputTokens    int64
	OutputTokens   int64
	ModelID        string // the model that produced an assistant message
	CreatedAt      time.Time
}
