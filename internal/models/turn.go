package models

import "time"

// ToolUsageLabel classifies which tool categories a turn exercised
type ToolUsageLabel string

const (
	ToolUsageNone          ToolUsageLabel = "none"
	ToolUsageRetrieval     ToolUsageLabel = "retrieval"
	ToolUsageTransactional ToolUsageLabel = "transactional"
	ToolUsageBoth          ToolUsageLabel = "both"
)

// ToolUsage lists the tools a turn invoked, split by category
type ToolUsage struct {
	Label         ToolUsageLabel `json:"label"`
	Retrieval     []string       `json:"retrieval"`
	Transactional []string       `json:"transactional"`
}

// AuthGate is the outcome of the authentication-gate sub-flow for one turn
type AuthGate struct {
	Granted      bool    `json:"granted"`
	MinutesSince float64 `json:"minutes_since_auth"`
}

// TurnResult is what the orchestrator hands back to the request layer
type TurnResult struct {
	Answer    string    `json:"answer"`
	MessageID string    `json:"message_id"`
	ToolUsage ToolUsage `json:"tool_usage"`
	AuthGate  *AuthGate `json:"auth_gate,omitempty"`
}

// TurnRecord is the durable per-turn row written to the per-org conversation log
type TurnRecord struct {
	SessionID string    `bson:"session_id" json:"session_id"`
	Question  string    `bson:"question" json:"question"`
	Answer    string    `bson:"answer" json:"answer"`
	MessageID string    `bson:"message_id" json:"message_id"`
	ToolLabel string    `bson:"tool_label,omitempty" json:"tool_label,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// BufferEntry is one role-tagged line of short-term chat memory
type BufferEntry struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// AskRequest is the request body for a conversation turn
type AskRequest struct {
	Question string `json:"question"`
}
