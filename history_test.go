package guardowl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConversationStore is an in-memory ConversationStore for tests.
type fakeConversationStore struct {
	conversations map[string][]Message
	findErr       error
	appendErr     error
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{conversations: make(map[string][]Message)}
}

func (s *fakeConversationStore) Find(ctx context.Context, id string) ([]Message, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	messages, ok := s.conversations[id]
	if !ok {
		return nil, nil
	}
	return messages, nil
}

func (s *fakeConversationStore) AppendPair(ctx context.Context, id string, userMsg, agentMsg Message) (bool, error) {
	if s.appendErr != nil {
		return false, s.appendErr
	}
	_, existed := s.conversations[id]
	s.conversations[id] = append(s.conversations[id], userMsg, agentMsg)
	return !existed, nil
}

func (s *fakeConversationStore) Delete(ctx context.Context, id string) (int64, error) {
	if _, ok := s.conversations[id]; !ok {
		return 0, nil
	}
	delete(s.conversations, id)
	return 1, nil
}

func seedMessages(n int) []Message {
	messages := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAgent
		}
		messages = append(messages, Message{Role: role, Content: fmt.Sprintf("message %d", i)})
	}
	return messages
}

func stubSummarizer(digest *HistoryDigest, err error) SummarizeFn {
	return func(ctx context.Context, messages []Message) (*HistoryDigest, error) {
		if err != nil {
			return nil, err
		}
		return digest, nil
	}
}

func TestGetHistory(t *testing.T) {
	t.Run("unknown conversation yields empty slice", func(t *testing.T) {
		store := newFakeConversationStore()
		m := NewHistoryManager(store, stubSummarizer(nil, errors.New("unused")), testLogger())

		history, err := m.GetHistory(context.Background(), "nope")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if history == nil || len(history) != 0 {
			t.Errorf("expected empty slice, got %v", history)
		}
	})

	t.Run("at threshold returns verbatim", func(t *testing.T) {
		store := newFakeConversationStore()
		store.conversations["c1"] = seedMessages(SummarizationThreshold)
		summarize := func(ctx context.Context, messages []Message) (*HistoryDigest, error) {
			t.Fatal("summarizer must not run at the threshold")
			return nil, nil
		}
		m := NewHistoryManager(store, summarize, testLogger())

		history, err := m.GetHistory(context.Background(), "c1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != SummarizationThreshold {
			t.Errorf("len = %d, want %d", len(history), SummarizationThreshold)
		}
	})

	t.Run("agent relabeled for generation", func(t *testing.T) {
		store := newFakeConversationStore()
		store.conversations["c1"] = seedMessages(4)
		m := NewHistoryManager(store, stubSummarizer(nil, nil), testLogger())

		history, err := m.GetHistory(context.Background(), "c1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, msg := range history {
			if msg.Role == RoleAgent {
				t.Errorf("stored agent role leaked into history: %+v", msg)
			}
		}
		if history[1].Role != RoleModel {
			t.Errorf("role = %q, want %q", history[1].Role, RoleModel)
		}
	})

	t.Run("over threshold summarizes prefix", func(t *testing.T) {
		store := newFakeConversationStore()
		store.conversations["c1"] = seedMessages(SummarizationThreshold + 1)

		var summarized []Message
		summarize := func(ctx context.Context, messages []Message) (*HistoryDigest, error) {
			summarized = messages
			return &HistoryDigest{
				Summary:     "Earlier discussion about Site S04.",
				KeyEntities: []string{"S04", "G03"},
				UserIntent:  "review incidents",
			}, nil
		}
		m := NewHistoryManager(store, summarize, testLogger())

		history, err := m.GetHistory(context.Background(), "c1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// 13 stored: 3 summarized, 10 verbatim, plus one digest message.
		if len(summarized) != 3 {
			t.Errorf("summarized %d messages, want 3", len(summarized))
		}
		if len(history) != RecentMessagesThreshold+1 {
			t.Fatalf("len = %d, want %d", len(history), RecentMessagesThreshold+1)
		}
		if history[0].Role != RoleSystem {
			t.Errorf("first message role = %q, want %q", history[0].Role, RoleSystem)
		}
		if !strings.Contains(history[0].Content, "Earlier discussion about Site S04.") {
			t.Errorf("digest content missing summary: %q", history[0].Content)
		}
		if !strings.Contains(history[0].Content, "S04, G03") {
			t.Errorf("digest content missing entities: %q", history[0].Content)
		}
		if history[1].Content != "message 3" {
			t.Errorf("tail starts at %q, want message 3", history[1].Content)
		}
	})

	t.Run("summarization failure falls back to recent tail", func(t *testing.T) {
		store := newFakeConversationStore()
		store.conversations["c1"] = seedMessages(20)
		m := NewHistoryManager(store, stubSummarizer(nil, errors.New("model down")), testLogger())

		history, err := m.GetHistory(context.Background(), "c1")
		if err != nil {
			t.Fatalf("fallback must not surface the error, got %v", err)
		}
		if len(history) != RecentMessagesThreshold {
			t.Errorf("len = %d, want %d", len(history), RecentMessagesThreshold)
		}
		if history[0].Role == RoleSystem {
			t.Error("fallback must not include a digest message")
		}
	})

	t.Run("store failure surfaces as StoreFault", func(t *testing.T) {
		store := newFakeConversationStore()
		store.findErr = errors.New("connection refused")
		m := NewHistoryManager(store, stubSummarizer(nil, nil), testLogger())

		_, err := m.GetHistory(context.Background(), "c1")
		var fault *StoreFault
		if !errors.As(err, &fault) {
			t.Fatalf("expected StoreFault, got %v", err)
		}
	})
}

func TestSavePair(t *testing.T) {
	t.Run("pair shares one timestamp", func(t *testing.T) {
		store := newFakeConversationStore()
		m := NewHistoryManager(store, stubSummarizer(nil, nil), testLogger())

		if err := m.SavePair(context.Background(), "c1", "question", "answer", map[string]any{"handler": "reports"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		messages := store.conversations["c1"]
		if len(messages) != 2 {
			t.Fatalf("stored %d messages, want 2", len(messages))
		}
		if messages[0].Role != RoleUser || messages[1].Role != RoleAgent {
			t.Errorf("roles = %q, %q", messages[0].Role, messages[1].Role)
		}
		if !messages[0].Timestamp.Equal(messages[1].Timestamp) {
			t.Error("pair must share a timestamp")
		}
		if messages[1].Metadata["handler"] != "reports" {
			t.Errorf("agent metadata = %v", messages[1].Metadata)
		}
	})

	t.Run("append failure surfaces as StoreFault", func(t *testing.T) {
		store := newFakeConversationStore()
		store.appendErr = errors.New("disk full")
		m := NewHistoryManager(store, stubSummarizer(nil, nil), testLogger())

		err := m.SavePair(context.Background(), "c1", "q", "a", nil)
		var fault *StoreFault
		if !errors.As(err, &fault) {
			t.Fatalf("expected StoreFault, got %v", err)
		}
	})
}

func TestHistoryDelete(t *testing.T) {
	store := newFakeConversationStore()
	store.conversations["c1"] = seedMessages(2)
	m := NewHistoryManager(store, stubSummarizer(nil, nil), testLogger())

	if err := m.Delete(context.Background(), "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.conversations["c1"]; ok {
		t.Error("conversation was not removed")
	}

	// Deleting again is a no-op, not an error.
	if err := m.Delete(context.Background(), "c1"); err != nil {
		t.Fatalf("idempotent delete failed: %v", err)
	}
}
