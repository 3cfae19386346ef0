package guardowl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Anthropic-backed LLM client.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key. Required.
	APIKey string

	// BaseURL overrides the API endpoint. Optional.
	BaseURL string

	// Model is the chat model. Defaults to claude-3-5-haiku-latest.
	Model string

	// MaxTokens caps completion length. Defaults to 2048.
	MaxTokens int
}

func (c AnthropicConfig) withDefaults() AnthropicConfig {
	if c.Model == "" {
		c.Model = "claude-3-5-haiku-latest"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2048
	}
	return c
}

// NewAnthropicClient creates an LLM client backed by the Anthropic API.
// Anthropic has no embeddings endpoint, so Embed is left nil; semantic
// search requires pairing with an embedder from another provider.
func NewAnthropicClient(cfg AnthropicConfig, logger *slog.Logger) (*LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	cfg = cfg.withDefaults()

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &LLMClient{
		Chat:     newAnthropicChatFn(client, cfg, logger),
		ChatJSON: newAnthropicChatJSONFn(client, cfg, logger),
	}, nil
}

func newAnthropicChatFn(client anthropic.Client, cfg AnthropicConfig, logger *slog.Logger) ChatFn {
	return func(ctx context.Context, systemPrompt string, history []HistoryMessage, userMessage string) (string, error) {
		messages := make([]anthropic.MessageParam, 0, len(history)+1)
		system := systemPrompt
		for _, msg := range history {
			switch msg.Role {
			case RoleModel, RoleAgent:
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			case RoleSystem:
				// Anthropic takes system content out of band.
				system = system + "\n\n" + msg.Content
			default:
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)))

		resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(cfg.Model),
			MaxTokens: int64(cfg.MaxTokens),
			System:    []anthropic.TextBlockParam{{Text: system}},
			Messages:  messages,
		})
		if err != nil {
			return "", fmt.Errorf("Anthropic API error: %w", err)
		}

		text := anthropicText(resp)
		if text == "" {
			return "", errors.New("empty response from Anthropic")
		}

		logger.Debug("chat completion successful",
			slog.String("model", cfg.Model),
			slog.Int("history_len", len(history)),
			slog.Int64("input_tokens", resp.Usage.InputTokens),
			slog.Int64("output_tokens", resp.Usage.OutputTokens),
		)

		return text, nil
	}
}

func newAnthropicChatJSONFn(client anthropic.Client, cfg AnthropicConfig, logger *slog.Logger) ChatJSONFn {
	return func(ctx context.Context, systemPrompt, userMessage string, result any) error {
		system := systemPrompt + "\n\nRespond with a single JSON object and nothing else."

		resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(cfg.Model),
			MaxTokens: int64(cfg.MaxTokens),
			System:    []anthropic.TextBlockParam{{Text: system}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
			},
		})
		if err != nil {
			return fmt.Errorf("Anthropic API error: %w", err)
		}

		content := stripCodeFences(anthropicText(resp))
		if content == "" {
			return errors.New("empty response from Anthropic")
		}
		if err := json.Unmarshal([]byte(content), result); err != nil {
			return fmt.Errorf("failed to parse Anthropic JSON response: %w (content: %s)", err, content)
		}

		logger.Debug("JSON chat completion successful",
			slog.String("model", cfg.Model),
			slog.Int("response_len", len(content)),
			slog.Int64("input_tokens", resp.Usage.InputTokens),
			slog.Int64("output_tokens", resp.Usage.OutputTokens),
		)

		return nil
	}
}

func anthropicText(resp *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// stripCodeFences removes a surrounding markdown code fence, which
// Anthropic models sometimes wrap JSON output in despite instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
