package models

// Role of a chat turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of a conversation as sent by the client
type ChatMessage struct {
	ID      string `json:"id,omitempty"`
	Role    Role   `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// ContextResult is the output of context retrieval.
//
// Documents is always a subsequence of the score-qualifying matches, in relevance
// order. NoMatches is set when nothing beat the score threshold. AccessNotice is set
// when the permission filter removed at least one qualifying match.
type ContextResult struct {
	Documents    []ScoredMatch `json:"documents"`
	AccessNotice bool          `json:"accessNotice"`
	NoMatches    bool          `json:"noMatches"`
	Text         string        `json:"-"`
}
