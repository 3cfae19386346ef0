package guardowl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SupportLine is the number guards are connected to for urgent issues.
const SupportLine = "111-111-1111"

const guardSystemPrompt = `You are an assistant that responds to security guards' queries.
You can provide information about security protocols, emergency procedures and general safety guidelines.
Always prioritize the safety and security of individuals and property.
When report records are provided below, ground your answer in them and cite report IDs, sites and dates exactly.
If the records indicate nothing was found, say so plainly; never invent reports.`

// ProcessChatFn handles one guard chat request end to end.
type ProcessChatFn func(ctx context.Context, req ChatRequest) (*ChatResult, error)

// NewChatService wires the guard chat pipeline: bounded history in,
// report retrieval for grounding, response generation, then the
// (user, agent) pair saved back.
func NewChatService(
	chat ChatFn,
	retriever *Retriever,
	history *HistoryManager,
	logger *slog.Logger,
) ProcessChatFn {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, req ChatRequest) (*ChatResult, error) {
		start := time.Now()

		if strings.TrimSpace(req.Message) == "" {
			return nil, ErrInvalidInput
		}

		conversationID := req.ConversationID
		if conversationID == "" {
			conversationID = NewConversationID()
		}

		priorContext, err := history.GetHistory(ctx, conversationID)
		if err != nil {
			// Answer without context rather than failing the request.
			logger.Warn("failed to load history, continuing without context",
				slog.String("conversation_id", conversationID),
				slog.String("error", err.Error()),
			)
			priorContext = nil
		}

		var answer string
		var envelope ResultEnvelope
		meta := map[string]any{}

		switch routeQuery(req.Message) {
		case intentSupport:
			answer = fmt.Sprintf("Call %s for support regarding: %s", SupportLine, req.Message)
			meta["handler"] = "support"
		case intentSchedule:
			answer = "Shift schedule: 9 AM - 5 PM. Check with your site supervisor for day-specific changes."
			meta["handler"] = "schedule"
		default:
			envelope = retriever.Search(ctx, req.Message)
			meta["handler"] = "reports"
			meta["reportCount"] = envelope.Count

			answer, err = chat(ctx, reportGroundedPrompt(envelope), priorContext, req.Message)
			if err != nil {
				return nil, fmt.Errorf("response generation failed: %w", err)
			}
		}

		if err := history.SavePair(ctx, conversationID, req.Message, answer, meta); err != nil {
			// The answer is already generated; losing one history pair is
			// preferable to failing the whole request.
			logger.Warn("failed to save message pair",
				slog.String("conversation_id", conversationID),
				slog.String("error", err.Error()),
			)
		}

		return &ChatResult{
			ConversationID: conversationID,
			Answer:         answer,
			Reports:        envelope.Results,
			Duration:       time.Since(start),
		}, nil
	}
}

// reportGroundedPrompt appends the retrieval outcome to the guard
// instructions so the model answers from records, not memory.
func reportGroundedPrompt(envelope ResultEnvelope) string {
	var sb strings.Builder
	sb.WriteString(guardSystemPrompt)
	sb.WriteString("\n\nRetrieved security reports:\n")

	if !envelope.Success {
		sb.WriteString(envelope.Message)
		return sb.String()
	}

	for _, report := range envelope.Results {
		sb.WriteString(formatReportLine(report))
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatReportLine(report ReportResult) string {
	var attrs []string
	for _, key := range []string{"siteId", "guardId", "date"} {
		if v, ok := report.Metadata[key]; ok {
			attrs = append(attrs, fmt.Sprintf("%s=%v", key, v))
		}
	}
	line := fmt.Sprintf("- [%s]", report.ID)
	if len(attrs) > 0 {
		line += " (" + strings.Join(attrs, ", ") + ")"
	}
	return line + ": " + report.Text
}
