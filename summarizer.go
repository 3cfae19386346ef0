package guardowl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// SummarizeFn condenses an ordered message log into a structured digest.
// Failures after all retries are *SummarizationError.
type SummarizeFn func(ctx context.Context, messages []Message) (*HistoryDigest, error)

const (
	// summarizationAttempts bounds retries on digest failures.
	summarizationAttempts = 2

	// maxMessageExcerptLen caps individual message content in the
	// summarization prompt so tool outputs can't blow up prompt size.
	maxMessageExcerptLen = 500
)

const summarizerSystemPrompt = `You are a conversation summarizer for a security guard assistant chatbot.

Create a CONCISE summary of the conversation history that preserves:
1. Key topics discussed (vehicle types, incidents, sites, guards)
2. Important entities (site IDs like S04, guard IDs like G03, vehicle types)
3. The user's intent and conversation flow
4. Critical findings from security reports

Rules:
- Be EXTREMELY concise (max 3-4 sentences)
- Preserve specific IDs, dates and numbers verbatim
- Skip pleasantries and confirmations
- Summarize the SUBSTANCE of what was discussed, not the mechanics

Return a JSON object with this exact shape:
{
  "summary": "concise summary of topics and findings",
  "keyEntities": ["Site S04", "G03", "Camry"],
  "userIntent": "what the user is trying to accomplish"
}`

// NewSummarizer builds a history summarizer from a JSON-mode completion
// function.
func NewSummarizer(chatJSON ChatJSONFn, logger *slog.Logger) SummarizeFn {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, messages []Message) (*HistoryDigest, error) {
		transcript := formatTranscript(messages)

		logger.Debug("summarizing conversation prefix", slog.Int("messages", len(messages)))

		digest, err := withRetries(ctx, summarizationAttempts, logger, "history summarization",
			func(ctx context.Context) (*HistoryDigest, error) {
				var digest HistoryDigest
				if err := chatJSON(ctx, summarizerSystemPrompt, transcript, &digest); err != nil {
					return nil, err
				}
				if digest.Summary == "" {
					return nil, errors.New("digest has empty summary")
				}
				return &digest, nil
			})
		if err != nil {
			return nil, &SummarizationError{Attempts: summarizationAttempts, Err: err}
		}

		logger.Debug("conversation prefix summarized",
			slog.Int("messages", len(messages)),
			slog.Int("entities", len(digest.KeyEntities)),
		)

		return digest, nil
	}
}

// formatTranscript renders messages as numbered "[i] Role: content"
// lines. Content beyond maxMessageExcerptLen is cut and marked so the
// model knows it is looking at an excerpt.
func formatTranscript(messages []Message) string {
	lines := make([]string, 0, len(messages))
	for i, msg := range messages {
		role := "Agent"
		if msg.Role == RoleUser {
			role = "User"
		}
		content := msg.Content
		// Character count, not bytes: multibyte content must keep the
		// full excerpt and never be cut mid-rune.
		if runes := []rune(content); len(runes) > maxMessageExcerptLen {
			content = string(runes[:maxMessageExcerptLen]) + "... (truncated)"
		}
		lines = append(lines, fmt.Sprintf("[%d] %s: %s", i+1, role, content))
	}
	return strings.Join(lines, "\n")
}
