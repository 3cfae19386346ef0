package guardowl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-backed LLM client.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Required.
	APIKey string

	// Model is the chat model. Defaults to gpt-4o-mini.
	Model string

	// EmbeddingModel is the embeddings model. Defaults to
	// text-embedding-3-small.
	EmbeddingModel string

	// Temperature for free-text completions. JSON completions always run
	// at low temperature for schema stability.
	Temperature float32
}

func (c OpenAIConfig) withDefaults() OpenAIConfig {
	if c.Model == "" {
		c.Model = openai.GPT4oMini
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	return c
}

// NewOpenAIClient creates an LLM client backed by the OpenAI API.
func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) (*LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	cfg = cfg.withDefaults()
	client := openai.NewClient(cfg.APIKey)

	return &LLMClient{
		Chat:     newOpenAIChatFn(client, cfg, logger),
		ChatJSON: newOpenAIChatJSONFn(client, cfg, logger),
		Embed:    newOpenAIEmbedFn(client, cfg, logger),
	}, nil
}

func newOpenAIChatFn(client *openai.Client, cfg OpenAIConfig, logger *slog.Logger) ChatFn {
	return func(ctx context.Context, systemPrompt string, history []HistoryMessage, userMessage string) (string, error) {
		messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
		for _, msg := range history {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openaiRole(msg.Role),
				Content: msg.Content,
			})
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: userMessage,
		})

		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       cfg.Model,
			Messages:    messages,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return "", fmt.Errorf("OpenAI API error: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return "", errors.New("empty response from OpenAI")
		}

		logger.Debug("chat completion successful",
			slog.String("model", cfg.Model),
			slog.Int("history_len", len(history)),
			slog.Int("prompt_tokens", resp.Usage.PromptTokens),
			slog.Int("completion_tokens", resp.Usage.CompletionTokens),
		)

		return resp.Choices[0].Message.Content, nil
	}
}

func newOpenAIChatJSONFn(client *openai.Client, cfg OpenAIConfig, logger *slog.Logger) ChatJSONFn {
	return func(ctx context.Context, systemPrompt, userMessage string, result any) error {
		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userMessage},
			},
			Temperature: 0.3,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			return fmt.Errorf("OpenAI API error: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return errors.New("empty response from OpenAI")
		}

		content := resp.Choices[0].Message.Content
		if err := json.Unmarshal([]byte(content), result); err != nil {
			return fmt.Errorf("failed to parse OpenAI JSON response: %w (content: %s)", err, content)
		}

		logger.Debug("JSON chat completion successful",
			slog.String("model", cfg.Model),
			slog.Int("response_len", len(content)),
			slog.Int("prompt_tokens", resp.Usage.PromptTokens),
			slog.Int("completion_tokens", resp.Usage.CompletionTokens),
		)

		return nil
	}
}

func newOpenAIEmbedFn(client *openai.Client, cfg OpenAIConfig, logger *slog.Logger) EmbedFn {
	return func(ctx context.Context, text string) ([]float32, error) {
		resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(cfg.EmbeddingModel),
		})
		if err != nil {
			return nil, fmt.Errorf("OpenAI embeddings error: %w", err)
		}
		if len(resp.Data) == 0 {
			return nil, errors.New("no embedding returned from OpenAI")
		}

		logger.Debug("embedding computed",
			slog.String("model", cfg.EmbeddingModel),
			slog.Int("text_len", len(text)),
			slog.Int("dimensions", len(resp.Data[0].Embedding)),
		)

		return resp.Data[0].Embedding, nil
	}
}

func openaiRole(role string) string {
	switch role {
	case RoleModel, RoleAgent:
		return openai.ChatMessageRoleAssistant
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
