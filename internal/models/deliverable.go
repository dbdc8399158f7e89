package models

// QuestionOption is one selectable answer offered by an ask_question tool
// call.
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// BriefSection is one ordered section of a client brief.
type BriefSection struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// ClientBrief is the client-facing structured deliverable.
type ClientBrief struct {
	Title    string         `json:"title"`
	Goal     string         `json:"goal"`
	Sections []BriefSection `json:"sections"`
}

// SpecChunk is one buildable unit of a team spec; each chunk becomes a Card
// when the session completes.
type SpecChunk struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Dependencies       []string `json:"dependencies"`
	HasUI              bool     `json:"has_ui"`
}

// TeamSpec is the internal structured deliverable. It must never be exposed
// to client-role actors.
type TeamSpec struct {
	Title    string      `json:"title"`
	Goal     string      `json:"goal"`
	Approach string      `json:"approach"`
	Chunks   []SpecChunk `json:"chunks"`
}
