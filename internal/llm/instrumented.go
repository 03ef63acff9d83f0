package llm

import (
	"context"
	"errors"
	"time"

	"github.com/kitbuilder587/translation-pipeline/internal/metrics"
)

// Instrumented пишет в метрики каждый запрос к провайдеру
type Instrumented struct {
	next     Client
	provider string
	metrics  *metrics.Metrics
}

func WithMetrics(c Client, provider string, m *metrics.Metrics) Client {
	if m == nil {
		return c
	}
	return &Instrumented{next: c, provider: provider, metrics: m}
}

func (i *Instrumented) Name() string { return i.provider }

func (i *Instrumented) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	start := time.Now()
	out, err := i.next.CompleteWithSystem(ctx, system, prompt)
	i.metrics.RecordLLMRequest(i.provider, requestStatus(err), time.Since(start))
	return out, err
}

// WithModel сохраняет обертку вокруг клиента с другой моделью
func (i *Instrumented) WithModel(model string) Client {
	sw, ok := i.next.(ModelSwitcher)
	if !ok {
		return i
	}
	return &Instrumented{next: sw.WithModel(model), provider: i.provider, metrics: i.metrics}
}

func requestStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRateLimit):
		return "rate_limited"
	case errors.Is(err, ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
