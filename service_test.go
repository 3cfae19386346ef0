package guardowl

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func testService(t *testing.T, chat ChatFn, store *fakeReportStore) (ProcessChatFn, *fakeConversationStore) {
	t.Helper()
	conversations := newFakeConversationStore()
	history := NewHistoryManager(conversations, stubSummarizer(nil, errors.New("unused")), testLogger())
	translate := stubTranslator(&QueryParams{Filter: Eq("siteId", "S04"), Limit: 5}, nil)
	retriever := NewRetriever(store, translate, testLogger())
	return NewChatService(chat, retriever, history, testLogger()), conversations
}

func echoChat(answer string) ChatFn {
	return func(ctx context.Context, systemPrompt string, history []HistoryMessage, userMessage string) (string, error) {
		return answer, nil
	}
}

func TestChatService(t *testing.T) {
	t.Run("empty message is rejected", func(t *testing.T) {
		processChat, _ := testService(t, echoChat("hi"), &fakeReportStore{})

		_, err := processChat(context.Background(), ChatRequest{Message: "   "})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("new conversation gets an id", func(t *testing.T) {
		processChat, _ := testService(t, echoChat("hi"), &fakeReportStore{reports: sampleReports(1)})

		result, err := processChat(context.Background(), ChatRequest{Message: "anything happen at S04?"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ConversationID == "" {
			t.Error("expected a generated conversation id")
		}
	})

	t.Run("existing conversation id is kept", func(t *testing.T) {
		processChat, _ := testService(t, echoChat("hi"), &fakeReportStore{reports: sampleReports(1)})

		result, err := processChat(context.Background(), ChatRequest{
			Message:        "follow up",
			ConversationID: "c42",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ConversationID != "c42" {
			t.Errorf("ConversationID = %q", result.ConversationID)
		}
	})

	t.Run("report query grounds the prompt and saves the pair", func(t *testing.T) {
		var seenPrompt string
		chat := func(ctx context.Context, systemPrompt string, history []HistoryMessage, userMessage string) (string, error) {
			seenPrompt = systemPrompt
			return "Two reports were filed at S04 yesterday.", nil
		}
		store := &fakeReportStore{reports: sampleReports(2)}
		processChat, conversations := testService(t, chat, store)

		result, err := processChat(context.Background(), ChatRequest{Message: "what happened at S04 yesterday?"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Reports) != 2 {
			t.Errorf("Reports = %d, want 2", len(result.Reports))
		}
		if !strings.Contains(seenPrompt, "Retrieved security reports:") {
			t.Errorf("prompt missing report section: %q", seenPrompt)
		}
		if !strings.Contains(seenPrompt, "RPT-001") {
			t.Errorf("prompt missing report id: %q", seenPrompt)
		}

		saved := conversations.conversations[result.ConversationID]
		if len(saved) != 2 {
			t.Fatalf("saved %d messages, want 2", len(saved))
		}
		if saved[1].Metadata["handler"] != "reports" {
			t.Errorf("handler metadata = %v", saved[1].Metadata)
		}
	})

	t.Run("retrieval failure message reaches the prompt", func(t *testing.T) {
		var seenPrompt string
		chat := func(ctx context.Context, systemPrompt string, history []HistoryMessage, userMessage string) (string, error) {
			seenPrompt = systemPrompt
			return "Nothing was found.", nil
		}
		processChat, _ := testService(t, chat, &fakeReportStore{})

		if _, err := processChat(context.Background(), ChatRequest{Message: "what happened at S99?"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(seenPrompt, "No reports matching those criteria could be found in the database.") {
			t.Errorf("prompt missing no-match message: %q", seenPrompt)
		}
	})

	t.Run("support query bypasses retrieval", func(t *testing.T) {
		chat := func(ctx context.Context, systemPrompt string, history []HistoryMessage, userMessage string) (string, error) {
			t.Fatal("model must not run for support queries")
			return "", nil
		}
		processChat, conversations := testService(t, chat, &fakeReportStore{})

		result, err := processChat(context.Background(), ChatRequest{Message: "what is the support number?"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result.Answer, SupportLine) {
			t.Errorf("Answer = %q, want the support line", result.Answer)
		}
		saved := conversations.conversations[result.ConversationID]
		if saved[1].Metadata["handler"] != "support" {
			t.Errorf("handler metadata = %v", saved[1].Metadata)
		}
	})

	t.Run("schedule query answers deterministically", func(t *testing.T) {
		processChat, _ := testService(t, echoChat("unused"), &fakeReportStore{})

		result, err := processChat(context.Background(), ChatRequest{Message: "when is my shift?"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(result.Answer, "9 AM - 5 PM") {
			t.Errorf("Answer = %q", result.Answer)
		}
	})

	t.Run("generation failure surfaces", func(t *testing.T) {
		chat := func(ctx context.Context, systemPrompt string, history []HistoryMessage, userMessage string) (string, error) {
			return "", errors.New("model unavailable")
		}
		processChat, _ := testService(t, chat, &fakeReportStore{reports: sampleReports(1)})

		if _, err := processChat(context.Background(), ChatRequest{Message: "anything"}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("save failure does not fail the request", func(t *testing.T) {
		conversations := newFakeConversationStore()
		conversations.appendErr = errors.New("disk full")
		history := NewHistoryManager(conversations, stubSummarizer(nil, nil), testLogger())
		translate := stubTranslator(&QueryParams{Filter: Eq("siteId", "S04"), Limit: 5}, nil)
		retriever := NewRetriever(&fakeReportStore{reports: sampleReports(1)}, translate, testLogger())
		processChat := NewChatService(echoChat("ok"), retriever, history, testLogger())

		result, err := processChat(context.Background(), ChatRequest{Message: "anything happen?"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Answer != "ok" {
			t.Errorf("Answer = %q", result.Answer)
		}
	})
}

func TestFormatReportLine(t *testing.T) {
	line := formatReportLine(ReportResult{
		ID:   "RPT-001",
		Text: "White sedan circled the lot twice.",
		Metadata: map[string]any{
			"siteId":  "S04",
			"guardId": "G03",
			"date":    "2025-10-16",
		},
	})

	for _, want := range []string{"RPT-001", "siteId=S04", "guardId=G03", "date=2025-10-16", "White sedan"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}
