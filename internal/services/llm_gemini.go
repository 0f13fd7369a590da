package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiCompleter keeps two model handles so JSON mode never mutates shared
// generation config between concurrent calls.
type GeminiCompleter struct {
	client  *genai.Client
	text    *genai.GenerativeModel
	json    *genai.GenerativeModel
	timeout time.Duration
}

func NewGeminiCompleter(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiCompleter, error) {
	if apiKey == "" {
		return &GeminiCompleter{}, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	text := client.GenerativeModel(model)
	text.SetTemperature(0.7)

	jsonModel := client.GenerativeModel(model)
	jsonModel.SetTemperature(0.7)
	jsonModel.ResponseMIMEType = "application/json"

	return &GeminiCompleter{client: client, text: text, json: jsonModel, timeout: timeout}, nil
}

func (c *GeminiCompleter) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	if c.client == nil {
		return "", ErrAIUnavailable
	}

	model := c.text
	if opts.JSONMode {
		model = c.json
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("request gemini completion: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}
	return candidateText(resp.Candidates[0]), nil
}

func candidateText(cand *genai.Candidate) string {
	if cand == nil || cand.Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String()
}

func (c *GeminiCompleter) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
