package service

import (
	"context"
	"errors"

	"github.com/kitbuilder587/translation-pipeline/internal/failure"
	"github.com/kitbuilder587/translation-pipeline/internal/llm"
	"github.com/kitbuilder587/translation-pipeline/internal/ratelimit"
	"github.com/kitbuilder587/translation-pipeline/internal/retry"
)

// guardedClient - вызовы мимо каскада (критик) идут через тот же лимитер,
// брейкер и учет сбоев, что и перевод
type guardedClient struct {
	route   Route
	exec    *retry.Executor
	limiter *ratelimit.Limiter
}

var (
	_ llm.Client = (*guardedClient)(nil)
	_ llm.Named  = (*guardedClient)(nil)
)

// Guarded отдает клиента маршрута под защитой. Повторов нет: вызывающий
// ограничен бюджетом гейта и сам решает, что делать со сбоем.
func (p *Providers) Guarded(provider, model string, exec *retry.Executor, limiter *ratelimit.Limiter) (llm.Client, error) {
	route, err := p.Resolve(provider, model)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		exec = retry.NewExecutor(retry.Config{})
	}
	return &guardedClient{route: route, exec: exec, limiter: limiter}, nil
}

func (g *guardedClient) Name() string { return g.route.Provider }

func (g *guardedClient) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	work := func(ctx context.Context) (string, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx, g.route.Provider); err != nil {
				return "", err
			}
		}
		return g.route.Client.CompleteWithSystem(ctx, system, prompt)
	}

	out, err := retry.Do(ctx, g.exec, g.route.Dependency, work, retry.Options{}.WithMaxRetries(0))
	if errors.Is(err, retry.ErrCircuitOpen) {
		return "", failure.Tag(failure.KindDependencyUnavailable, err)
	}
	return out, err
}
