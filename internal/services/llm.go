package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrAIUnavailable is returned when no completion provider is configured.
	ErrAIUnavailable = errors.New("llm integration is not configured")
)

// CompletionOptions tunes a single completion call.
type CompletionOptions struct {
	// JSONMode asks the provider for a bare JSON payload.
	JSONMode bool
}

// Completer is the text-completion collaborator. Failures abort the caller's
// run; there is no retry here.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

const jsonSystemPrompt = "Respond with raw JSON only. Do not wrap it in markdown fences and do not add any prose."

type OpenAICompleter struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAICompleter(apiKey, model, apiEndpoint string, timeout time.Duration) *OpenAICompleter {
	if apiKey == "" {
		return &OpenAICompleter{}
	}

	cfg := openai.DefaultConfig(apiKey)
	if apiEndpoint != "" {
		cfg.BaseURL = apiEndpoint
	}

	return &OpenAICompleter{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
	}
}

func (c *OpenAICompleter) disabled() bool {
	return c.client == nil || c.model == ""
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	if c.disabled() {
		return "", ErrAIUnavailable
	}

	// json_object response format only allows objects, and distractors come
	// back as a top-level array, so JSON mode is a system instruction instead.
	var messages []openai.ChatCompletionMessage
	if opts.JSONMode {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: jsonSystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("request openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// stripCodeFence removes a surrounding ``` or ```json fence if present.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	start := 3
	// Skip the language identifier, then the space or newline after it.
	for start < len(content) && isFenceLangByte(content[start]) {
		start++
	}

	body := content[start:]
	if endIdx := strings.LastIndex(body, "```"); endIdx != -1 {
		body = body[:endIdx]
	}
	return strings.TrimSpace(body)
}

func isFenceLangByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}

func sanitizeForPrompt(input string, limit int) string {
	collapsed := strings.Join(strings.Fields(strings.TrimSpace(input)), " ")
	if limit <= 0 {
		return collapsed
	}
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	if limit > 3 {
		return string(runes[:limit-3]) + "..."
	}
	return string(runes[:limit])
}
