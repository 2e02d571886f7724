package llm

import (
	"context"

	"go.uber.org/zap"

	"symptom-triage/internal/logger"
	"symptom-triage/internal/metrics"
)

// DefaultRotationFactor bounds retries at twice the pool size.
const DefaultRotationFactor = 2

// RotatingClient is a Generator that spreads calls over a key pool, moving to
// the next key whenever the provider answers 429 or 401.
type RotatingClient struct {
	backend Backend
	pool    *Pool
	factor  int
	log     *zap.Logger
}

// NewRotatingClient wraps backend with pool.  factor <= 0 uses
// DefaultRotationFactor.
func NewRotatingClient(backend Backend, pool *Pool, factor int, log *zap.Logger) *RotatingClient {
	if factor <= 0 {
		factor = DefaultRotationFactor
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RotatingClient{backend: backend, pool: pool, factor: factor, log: log}
}

// Generate tries at most factor*poolSize calls.  Errors other than 429/401 are
// returned immediately without rotating.
func (c *RotatingClient) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error) {
	size := c.pool.Size()
	if size == 0 {
		return "", ErrEmptyPool
	}
	attempts := c.factor * size
	for i := 0; i < attempts; i++ {
		key, idx, err := c.pool.Current()
		if err != nil {
			return "", err
		}
		text, err := c.backend.GenerateWithKey(ctx, key, prompt, cfg)
		if err == nil {
			metrics.LLMRequests.WithLabelValues(c.backend.Name(), "ok").Inc()
			return text, nil
		}
		if !Rotatable(err) {
			metrics.LLMRequests.WithLabelValues(c.backend.Name(), "error").Inc()
			return "", err
		}
		metrics.LLMRequests.WithLabelValues(c.backend.Name(), "rotated").Inc()
		metrics.KeyRotations.Inc()
		next := c.pool.Advance(ctx)
		c.log.Warn("api key rejected, rotating",
			zap.Int("from", idx), zap.Int("to", next), zap.String("key", logger.Redact(key)), zap.Error(err))
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", ErrPoolExhausted
}
