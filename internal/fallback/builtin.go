package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kitbuilder587/translation-pipeline/internal/circuit"
	"github.com/kitbuilder587/translation-pipeline/internal/failure"
)

// ReducedContext повторяет запрос без контекста и глоссария
type ReducedContext struct {
	Runner Runner
}

func (ReducedContext) Name() string { return "reduced_context" }

func (ReducedContext) DefaultSkip(tr Trigger) (bool, string) { return SkipWhenDependencyExhausted(tr) }

func (s ReducedContext) Attempt(ctx context.Context, item Item, _ Trigger) (Outcome, error) {
	reduced := item
	reduced.Context = ""
	reduced.Glossary = nil

	out, err := s.Runner.Run(ctx, Call{
		Item:     reduced,
		Text:     item.Text,
		Provider: item.Provider,
		Model:    item.Model,
		Mode:     ModeReduced,
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Output: out, Provider: item.Provider, Model: item.Model}, nil
}

// AlternateProvider пробует другие провайдеры по порядку, пропуская открытые цепи
type AlternateProvider struct {
	Runner    Runner
	Providers []string
	Breakers  *circuit.Registry
}

func (AlternateProvider) Name() string { return "alternate_provider" }

func (s AlternateProvider) Attempt(ctx context.Context, item Item, _ Trigger) (Outcome, error) {
	var errs []error
	tried := 0

	for _, p := range s.Providers {
		if p == item.Provider {
			continue
		}
		if s.Breakers != nil && s.Breakers.State(p) == circuit.StateOpen {
			errs = append(errs, fmt.Errorf("%s: circuit open", p))
			continue
		}
		tried++

		out, err := s.Runner.Run(ctx, Call{Item: item, Text: item.Text, Provider: p, Mode: ModeStandard})
		if err == nil {
			return Outcome{Output: out, Provider: p}, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, failure.ErrCancelled) {
			return Outcome{}, err
		}
		errs = append(errs, fmt.Errorf("%s: %w", p, err))
	}

	if tried == 0 && len(errs) == 0 {
		return Outcome{}, ErrNoAlternatives
	}
	return Outcome{}, failure.Tag(failure.KindDependencyUnavailable, errors.Join(errs...))
}

// AlternateModel - тот же провайдер, другая модель
type AlternateModel struct {
	Runner Runner
	Models []string
}

func (AlternateModel) Name() string { return "alternate_model" }

// DefaultSkip: перегрузка бывает у конкретной модели, остальное исчерпание - у провайдера
func (AlternateModel) DefaultSkip(tr Trigger) (bool, string) {
	if tr.Classification.Kind == failure.KindDependencyOverloaded && tr.CircuitState != circuit.StateOpen {
		return false, ""
	}
	return SkipWhenDependencyExhausted(tr)
}

func (s AlternateModel) Attempt(ctx context.Context, item Item, _ Trigger) (Outcome, error) {
	var errs []error
	for _, m := range s.Models {
		if m == item.Model {
			continue
		}
		out, err := s.Runner.Run(ctx, Call{Item: item, Text: item.Text, Provider: item.Provider, Model: m, Mode: ModeStandard})
		if err == nil {
			return Outcome{Output: out, Provider: item.Provider, Model: m}, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, failure.ErrCancelled) {
			return Outcome{}, err
		}
		errs = append(errs, fmt.Errorf("%s: %w", m, err))
	}
	if len(errs) == 0 {
		return Outcome{}, ErrNoAlternatives
	}
	return Outcome{}, errors.Join(errs...)
}

// StricterFormat просит модель строго соблюдать формат вывода
type StricterFormat struct {
	Runner Runner
}

func (StricterFormat) Name() string { return "stricter_format" }

// DefaultSkip: сбитый формат ответа лечится строгим промптом, поэтому
// invalid_format не пропускается, пока цепь не разомкнута
func (StricterFormat) DefaultSkip(tr Trigger) (bool, string) {
	if tr.Classification.Kind == failure.KindInvalidFormat && tr.CircuitState != circuit.StateOpen {
		return false, ""
	}
	return SkipWhenDependencyExhausted(tr)
}

func (s StricterFormat) Attempt(ctx context.Context, item Item, _ Trigger) (Outcome, error) {
	out, err := s.Runner.Run(ctx, Call{Item: item, Text: item.Text, Provider: item.Provider, Model: item.Model, Mode: ModeStrict})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Output: out, Provider: item.Provider, Model: item.Model}, nil
}

// SmallerChunks режет вход и переводит куски последовательно
type SmallerChunks struct {
	Runner    Runner
	MaxChunks int
}

func (SmallerChunks) Name() string { return "smaller_chunks" }

func (SmallerChunks) DefaultSkip(tr Trigger) (bool, string) { return SkipWhenDependencyExhausted(tr) }

func (s SmallerChunks) Attempt(ctx context.Context, item Item, _ Trigger) (Outcome, error) {
	maxChunks := s.MaxChunks
	if maxChunks < 2 {
		maxChunks = 4
	}

	parts := Split(item.Text, maxChunks)
	if len(parts) < 2 {
		return Outcome{}, failure.Tag(failure.KindUnsupportedInput, ErrUnsplittable)
	}

	// последовательно: параллельные куски добили бы лимит провайдера
	translated := make([]string, 0, len(parts))
	for i, part := range parts {
		out, err := s.Runner.Run(ctx, Call{Item: item, Text: part, Provider: item.Provider, Model: item.Model, Mode: ModeStandard})
		if err != nil {
			return Outcome{}, fmt.Errorf("chunk %d/%d: %w", i+1, len(parts), err)
		}
		translated = append(translated, strings.TrimSpace(out))
	}

	return Outcome{
		Output:   strings.Join(translated, "\n\n"),
		Provider: item.Provider,
		Model:    item.Model,
	}, nil
}

// ManualIntervention - терминальная стратегия, всегда "падает"
type ManualIntervention struct{}

func (ManualIntervention) Name() string { return manualStrategyName }

func (ManualIntervention) Attempt(context.Context, Item, Trigger) (Outcome, error) {
	return Outcome{}, ErrManualIntervention
}
