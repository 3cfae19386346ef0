package guardowl

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// HTTPChatResponse is the POST /chat response body.
type HTTPChatResponse struct {
	ConversationID string         `json:"conversationId"`
	Answer         string         `json:"answer"`
	Reports        []ReportResult `json:"reports,omitempty"`
	DurationMs     int64          `json:"durationMs"`
}

// HTTPSearchRequest is the POST /reports/search request body.
type HTTPSearchRequest struct {
	Query string `json:"query"`
}

// HTTPHistoryResponse is the GET /conversations/{id}/history response body.
type HTTPHistoryResponse struct {
	ConversationID string           `json:"conversationId"`
	Messages       []HistoryMessage `json:"messages"`
}

// NewHTTPHandler builds the chi router exposing the service: chat,
// retrieval, and conversation lifecycle endpoints.
func NewHTTPHandler(
	processChat ProcessChatFn,
	retriever *Retriever,
	history *HistoryManager,
	cfg Config,
	logger *slog.Logger,
) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(recoveryMiddleware(logger))
	r.Use(loggingMiddleware(logger))
	r.Use(chimiddleware.RealIP)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	r.Use(bodySizeLimitMiddleware(cfg.MaxRequestBodySize))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handleHealth)
	r.Post("/chat", newChatHandler(processChat, cfg.MaxMessageLength, logger))
	r.Post("/reports/search", newSearchHandler(retriever, logger))
	r.Get("/conversations/{id}/history", newHistoryHandler(history, logger))
	r.Delete("/conversations/{id}", newDeleteHandler(history, logger))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func newChatHandler(processChat ProcessChatFn, maxMessageLength int, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Message == "" {
			respondError(w, http.StatusBadRequest, "Message cannot be empty")
			return
		}
		if len(req.Message) > maxMessageLength {
			respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Message exceeds maximum length of %d characters", maxMessageLength))
			return
		}

		result, err := processChat(r.Context(), req)
		if err != nil {
			logger.Error("failed to process chat message", "error", err)
			respondError(w, http.StatusInternalServerError, "An error occurred while processing your message")
			return
		}

		respondJSON(w, http.StatusOK, HTTPChatResponse{
			ConversationID: result.ConversationID,
			Answer:         result.Answer,
			Reports:        result.Reports,
			DurationMs:     result.Duration.Milliseconds(),
		})
	}
}

func newSearchHandler(retriever *Retriever, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HTTPSearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Query == "" {
			respondError(w, http.StatusBadRequest, "Query cannot be empty")
			return
		}

		// The envelope reports failures in-band; the HTTP status stays 200.
		respondJSON(w, http.StatusOK, retriever.Search(r.Context(), req.Query))
	}
}

func newHistoryHandler(history *HistoryManager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := chi.URLParam(r, "id")

		messages, err := history.GetHistory(r.Context(), conversationID)
		if err != nil {
			logger.Error("failed to load history", "conversation_id", conversationID, "error", err)
			respondError(w, http.StatusInternalServerError, "An error occurred while loading the conversation")
			return
		}

		respondJSON(w, http.StatusOK, HTTPHistoryResponse{
			ConversationID: conversationID,
			Messages:       messages,
		})
	}
}

func newDeleteHandler(history *HistoryManager, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conversationID := chi.URLParam(r, "id")

		if err := history.Delete(r.Context(), conversationID); err != nil {
			logger.Error("failed to delete conversation", "conversation_id", conversationID, "error", err)
			respondError(w, http.StatusInternalServerError, "An error occurred while deleting the conversation")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
