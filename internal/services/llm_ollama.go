package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaCompleter talks to a local Ollama server through langchaingo.
type OllamaCompleter struct {
	llm     llms.Model
	timeout time.Duration
}

func NewOllamaCompleter(serverURL, model string, timeout time.Duration) (*OllamaCompleter, error) {
	httpClient := &http.Client{Timeout: timeout}
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
		ollama.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return &OllamaCompleter{llm: llm, timeout: timeout}, nil
}

func (c *OllamaCompleter) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	if c.llm == nil {
		return "", ErrAIUnavailable
	}

	callOpts := []llms.CallOption{llms.WithTemperature(0.7)}
	if opts.JSONMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, callOpts...)
	if err != nil {
		return "", fmt.Errorf("request ollama completion: %w", err)
	}
	return out, nil
}
