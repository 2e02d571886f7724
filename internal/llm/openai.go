package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient calls any OpenAI-compatible chat completion API.  The key is
// supplied per call by the rotating client, so a fresh SDK client is built for
// each request.
type OpenAIClient struct {
	baseURL string
	model   string
}

// NewOpenAIClient constructs an OpenAI-compatible backend.  An empty baseURL
// uses the SDK default.
func NewOpenAIClient(baseURL, model string) *OpenAIClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{baseURL: baseURL, model: model}
}

// Name identifies the backend in logs and metrics.
func (c *OpenAIClient) Name() string { return "openai" }

// GenerateWithKey sends the prompt as a single user message.
func (c *OpenAIClient) GenerateWithKey(ctx context.Context, key, prompt string, cfg GenerationConfig) (string, error) {
	conf := openai.DefaultConfig(key)
	if c.baseURL != "" {
		conf.BaseURL = c.baseURL
	}
	client := openai.NewClientWithConfig(conf)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		MaxTokens:   cfg.MaxOutputTokens,
	})
	if err != nil {
		return "", translateOpenAIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// translateOpenAIError maps SDK errors carrying an HTTP status onto
// *StatusError.
func translateOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &StatusError{Code: reqErr.HTTPStatusCode}
	}
	return err
}
