// Package model wraps the OpenAI-compatible chat-completion backend.
package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go-probe-agent/internal/config"
)

var ErrNoChoices = errors.New("completion returned no choices")

// NewLLM returns a langchaingo model bound to POST {base}/chat/completions.
func NewLLM(cfg config.LLMConfig, model string, timeout time.Duration) (*openai.LLM, error) {
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
		openai.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return llm, nil
}

// Client issues one chat completion per call with fixed sampling options.
type Client struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

func New(llm llms.Model, cfg config.LLMConfig, timeout time.Duration) *Client {
	return &Client{
		llm:         llm,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
	}
}

// Complete sends the history and, when given, the tool schema, and returns
// the first choice.
func (c *Client) Complete(ctx context.Context, msgs []llms.MessageContent, tools []llms.Tool) (*llms.ContentChoice, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	opts := []llms.CallOption{
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools), llms.WithToolChoice("auto"))
	}

	resp, err := c.llm.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, ErrNoChoices
	}
	return resp.Choices[0], nil
}
