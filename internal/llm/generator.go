package llm

import (
	"context"
	"errors"
	"fmt"
)

// GenerationConfig carries the sampling parameters sent with every request.
type GenerationConfig struct {
	Temperature     float32 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float32 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

var (
	// SummaryConfig is used for assessments, which need room for five sections.
	SummaryConfig = GenerationConfig{Temperature: 0.7, TopK: 40, TopP: 0.95, MaxOutputTokens: 1024}
	// FollowUpConfig is used for single follow-up questions.
	FollowUpConfig = GenerationConfig{Temperature: 0.7, TopK: 40, TopP: 0.95, MaxOutputTokens: 512}
)

var (
	// ErrPoolExhausted is returned when every attempt in the rotation budget
	// was rejected with a rate-limit or auth status.
	ErrPoolExhausted = errors.New("all API keys exhausted")
	// ErrEmptyPool is returned when no credentials are configured.
	ErrEmptyPool = errors.New("no API keys configured")
	// ErrEmptyResponse is returned when the provider answered without text.
	ErrEmptyResponse = errors.New("empty model response")
)

// Generator produces text for a prompt.  The chat flow depends only on this.
type Generator interface {
	Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error)
}

// Backend performs a single generation call with an explicit credential.
// Implementations report provider status codes through *StatusError so the
// rotating client can decide whether to move to the next key.
type Backend interface {
	Name() string
	GenerateWithKey(ctx context.Context, key, prompt string, cfg GenerationConfig) (string, error)
}

// StatusError is a non-success HTTP status from a model provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("model provider returned status %d", e.Code)
	}
	return fmt.Sprintf("model provider returned status %d: %s", e.Code, e.Body)
}

// Rotatable reports whether err means the current key is rate-limited or
// rejected, in which case the next key should be tried.
func Rotatable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == 429 || se.Code == 401
}
