package guardowl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// SummarizationThreshold is the stored-message count above which
	// history is returned as digest + recent tail instead of verbatim.
	SummarizationThreshold = 12

	// RecentMessagesThreshold is how many trailing messages are always
	// kept verbatim on the summarize path.
	RecentMessagesThreshold = 10
)

// ConversationStore is the persistence boundary for conversation
// history. Implementations must append atomically so racing requests on
// the same conversation cannot lose messages.
type ConversationStore interface {
	// Find returns the stored messages for a conversation, or (nil, nil)
	// when the conversation does not exist.
	Find(ctx context.Context, conversationID string) ([]Message, error)

	// AppendPair appends a (user, agent) message pair, creating the
	// conversation if absent. Reports whether it was created.
	AppendPair(ctx context.Context, conversationID string, userMsg, agentMsg Message) (created bool, err error)

	// Delete removes a conversation and returns how many were deleted.
	// Deleting an unknown id is not an error.
	Delete(ctx context.Context, conversationID string) (deleted int64, err error)
}

// HistoryManager produces bounded conversation context for generation
// and owns the save/delete lifecycle. The bounded view it builds is
// transient: digests are recomputed per request and never written back,
// trading repeat summarization cost for freedom from staleness.
type HistoryManager struct {
	store     ConversationStore
	summarize SummarizeFn
	logger    *slog.Logger
}

// NewHistoryManager creates a history manager.
func NewHistoryManager(store ConversationStore, summarize SummarizeFn, logger *slog.Logger) *HistoryManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryManager{store: store, summarize: summarize, logger: logger}
}

// GetHistory returns the conversation as ready-to-consume generation
// context. Short conversations come back verbatim (agent relabeled to
// the model-facing role); long ones come back as one synthetic digest
// message followed by the verbatim recent tail. An unknown conversation
// yields an empty slice.
func (m *HistoryManager) GetHistory(ctx context.Context, conversationID string) ([]HistoryMessage, error) {
	messages, err := m.store.Find(ctx, conversationID)
	if err != nil {
		return nil, &StoreFault{Op: "find conversation", Err: err}
	}
	if len(messages) == 0 {
		m.logger.Debug("no history found", slog.String("conversation_id", conversationID))
		return []HistoryMessage{}, nil
	}

	total := len(messages)
	if total <= SummarizationThreshold {
		m.logger.Debug("returning full history",
			slog.String("conversation_id", conversationID),
			slog.Int("messages", total),
		)
		return toHistoryMessages(messages), nil
	}

	m.logger.Debug("history exceeds threshold, summarizing prefix",
		slog.String("conversation_id", conversationID),
		slog.Int("messages", total),
		slog.Int("threshold", SummarizationThreshold),
	)
	return m.summarizedHistory(ctx, conversationID, messages), nil
}

// summarizedHistory splits the log into an old prefix and the recent
// tail, summarizes the prefix and splices a synthetic context message
// ahead of the tail. If summarization fails after retries, the tail is
// returned alone: availability over completeness.
func (m *HistoryManager) summarizedHistory(ctx context.Context, conversationID string, messages []Message) []HistoryMessage {
	split := len(messages) - RecentMessagesThreshold
	prefix := messages[:split]
	recent := messages[split:]

	digest, err := m.summarize(ctx, prefix)
	if err != nil {
		m.logger.Warn("summarization failed, falling back to recent tail",
			slog.String("conversation_id", conversationID),
			slog.Int("dropped_messages", len(prefix)),
			slog.String("error", err.Error()),
		)
		return toHistoryMessages(recent)
	}

	history := make([]HistoryMessage, 0, len(recent)+1)
	history = append(history, HistoryMessage{
		Role:    RoleSystem,
		Content: digestMessage(digest),
	})
	history = append(history, toHistoryMessages(recent)...)
	return history
}

// SavePair appends the user message and agent response as one pair
// sharing a timestamp, creating the conversation on first save.
func (m *HistoryManager) SavePair(ctx context.Context, conversationID, userText, agentText string, agentMetadata map[string]any) error {
	now := time.Now().UTC()
	userMsg := Message{Role: RoleUser, Content: userText, Timestamp: now}
	agentMsg := Message{Role: RoleAgent, Content: agentText, Timestamp: now, Metadata: agentMetadata}

	created, err := m.store.AppendPair(ctx, conversationID, userMsg, agentMsg)
	if err != nil {
		return &StoreFault{Op: "append message pair", Err: err}
	}

	if created {
		m.logger.Info("created conversation", slog.String("conversation_id", conversationID))
	} else {
		m.logger.Debug("appended to conversation", slog.String("conversation_id", conversationID))
	}
	return nil
}

// Delete removes a conversation. Unknown ids are a no-op.
func (m *HistoryManager) Delete(ctx context.Context, conversationID string) error {
	deleted, err := m.store.Delete(ctx, conversationID)
	if err != nil {
		return &StoreFault{Op: "delete conversation", Err: err}
	}
	m.logger.Info("deleted conversation",
		slog.String("conversation_id", conversationID),
		slog.Int64("deleted", deleted),
	)
	return nil
}

// toHistoryMessages converts stored messages to the generation-facing
// view, relabeling the stored "agent" role to the model-facing label.
func toHistoryMessages(messages []Message) []HistoryMessage {
	history := make([]HistoryMessage, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		if role == RoleAgent {
			role = RoleModel
		}
		history = append(history, HistoryMessage{Role: role, Content: msg.Content})
	}
	return history
}

// digestMessage renders the digest as the synthetic context message
// placed ahead of the recent tail.
func digestMessage(digest *HistoryDigest) string {
	return fmt.Sprintf(`Previous conversation context (summarized):

%s

Key entities mentioned: %s
User intent: %s

[Recent conversation continues below...]`,
		digest.Summary,
		strings.Join(digest.KeyEntities, ", "),
		digest.UserIntent,
	)
}
