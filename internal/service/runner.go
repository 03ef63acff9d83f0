package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/translation-pipeline/internal/failure"
	"github.com/kitbuilder587/translation-pipeline/internal/fallback"
	"github.com/kitbuilder587/translation-pipeline/internal/llm"
	"github.com/kitbuilder587/translation-pipeline/internal/ratelimit"
	"github.com/kitbuilder587/translation-pipeline/internal/retry"
)

// providerRunner - единственное место, откуда идут вызовы провайдеров:
// и основной путь, и все стратегии каскада
type providerRunner struct {
	providers      *Providers
	exec           *retry.Executor
	limiter        *ratelimit.Limiter
	prompts        PromptBuilder
	attemptTimeout time.Duration
	logger         *zap.Logger
}

var _ fallback.Runner = (*providerRunner)(nil)

func (r *providerRunner) Run(ctx context.Context, call fallback.Call) (string, error) {
	route, err := r.providers.Resolve(call.Provider, call.Model)
	if err != nil {
		return "", err
	}

	system, user := r.prompts.Build(call)

	opts := retry.Options{AttemptTimeout: r.attemptTimeout}
	st := stateFrom(ctx)
	if st != nil && st.maxRetries >= 0 {
		opts = opts.WithMaxRetries(st.maxRetries)
	}

	work := func(ctx context.Context) (string, error) {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx, route.Provider); err != nil {
				return "", err
			}
		}
		if st != nil {
			st.attempts.Add(1)
		}
		out, err := route.Client.CompleteWithSystem(ctx, system, user)
		if err != nil {
			return "", err
		}
		out = cleanOutput(out, call.Text)
		if out == "" {
			return "", llm.ErrEmptyResponse
		}
		return out, nil
	}

	out, err := retry.Do(ctx, r.exec, route.Dependency, work, opts)
	if errors.Is(err, retry.ErrCircuitOpen) {
		r.logger.Debug("call rejected by open circuit",
			zap.String("dependency", route.Dependency),
			zap.String("mode", string(call.Mode)),
		)
		return "", failure.Tag(failure.KindDependencyUnavailable, err)
	}
	return out, err
}
