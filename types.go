package guardowl

import (
	"time"

	"github.com/google/uuid"
)

// Message roles as stored in the conversation store.
const (
	// RoleUser marks a message written by the guard.
	RoleUser = "user"

	// RoleAgent marks a stored assistant response.
	RoleAgent = "agent"

	// RoleModel is the generation-facing label for assistant messages.
	// Stored "agent" messages are relabeled to this when history is
	// handed to the language model.
	RoleModel = "model"

	// RoleSystem marks synthetic context messages (e.g. history digests).
	RoleSystem = "system"
)

// Message is a single entry in a conversation's stored history.
type Message struct {
	// Role is "user" or "agent".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Timestamp is when the message was saved. User/agent pairs share
	// a single timestamp.
	Timestamp time.Time `json:"timestamp"`

	// Metadata holds optional response details (tool calls, model, etc.).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HistoryMessage is the generation-facing view of a stored message.
// It carries only what the model needs as prior context.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation is a stored conversation document.
type Conversation struct {
	// ID is the caller-supplied conversation identifier.
	ID string `json:"conversationId"`

	// Messages is the ordered, append-only message log.
	Messages []Message `json:"messages"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Report is a security report record in the document store. Reports are
// written once at ingestion and never modified by this service.
type Report struct {
	// ID uniquely identifies the report.
	ID string `json:"id"`

	// Text is the report body.
	Text string `json:"text"`

	// Metadata holds report attributes: siteId, guardId, a numeric
	// timestamp (Unix seconds) and a display date string.
	Metadata map[string]any `json:"metadata"`
}

// ReportResult is a single retrieval hit. Distance is set only for
// semantic search results.
type ReportResult struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Distance *float64       `json:"distance,omitempty"`
}

// ResultEnvelope is the uniform retrieval outcome handed back to the
// orchestration layer. Failures are reported in-band; retrieval never
// surfaces store or model faults as raised errors.
type ResultEnvelope struct {
	Success bool           `json:"success"`
	Count   int            `json:"count"`
	Message string         `json:"message"`
	Results []ReportResult `json:"results"`
}

// HistoryDigest is the structured summary of an old conversation prefix.
// It is recomputed per request and never persisted.
type HistoryDigest struct {
	// Summary is a concise account of what was discussed.
	Summary string `json:"summary"`

	// KeyEntities lists identifiers worth preserving verbatim
	// (site IDs, guard IDs, vehicle types, dates).
	KeyEntities []string `json:"keyEntities"`

	// UserIntent states what the user is trying to accomplish.
	UserIntent string `json:"userIntent"`
}

// ChatRequest is an incoming guard query.
type ChatRequest struct {
	// Message is the guard's question.
	Message string `json:"message"`

	// ConversationID links this message to an existing conversation.
	// If empty, a new conversation is created.
	ConversationID string `json:"conversationId,omitempty"`
}

// ChatResult is the response from processing a chat request.
type ChatResult struct {
	// ConversationID identifies the conversation the exchange was saved to.
	ConversationID string `json:"conversationId"`

	// Answer is the assistant's reply.
	Answer string `json:"answer"`

	// Reports are the records retrieved to ground the answer, if any.
	Reports []ReportResult `json:"reports,omitempty"`

	// Duration is how long processing took.
	Duration time.Duration `json:"duration,omitempty"`
}

// NewConversationID generates a new conversation ID.
func NewConversationID() string {
	return uuid.New().String()
}
