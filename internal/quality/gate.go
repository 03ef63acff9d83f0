package quality

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrGateNotFound     = errors.New("gate not found")
	ErrDuplicateGate    = errors.New("gate already exists")
	ErrInvalidGate      = errors.New("invalid gate")
	ErrInvalidThreshold = errors.New("threshold must be in [0,1]")
	ErrInvalidWeight    = errors.New("weight must be in [0,1]")
)

// Action - что делать, если гейт не пройден
type Action string

const (
	ActionReject Action = "reject"
	ActionRetry  Action = "retry"
	ActionWarn   Action = "warn"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionReject, ActionRetry, ActionWarn:
		return true
	}
	return false
}

// Candidate - готовый результат, который оценивают гейты
type Candidate struct {
	Output     string
	Source     string
	Confidence float64
	// Alternatives - независимые варианты того же перевода от других провайдеров
	Alternatives []string
	Glossary     map[string]string
	Provider     string
	Model        string
}

type CheckResult struct {
	Passed   bool
	Score    float64
	Message  string
	Metadata map[string]any
}

type CheckFunc func(ctx context.Context, c Candidate) (CheckResult, error)

type Gate struct {
	Name          string
	Check         CheckFunc
	Threshold     float64
	Weight        float64
	FailureAction Action
	Enabled       bool
}

func (g Gate) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidGate)
	}
	if g.Check == nil {
		return fmt.Errorf("%w: %s has no check", ErrInvalidGate, g.Name)
	}
	if g.Threshold < 0 || g.Threshold > 1 {
		return fmt.Errorf("%s: %w", g.Name, ErrInvalidThreshold)
	}
	if g.Weight < 0 || g.Weight > 1 {
		return fmt.Errorf("%s: %w", g.Name, ErrInvalidWeight)
	}
	if !g.FailureAction.IsValid() {
		return fmt.Errorf("%w: %s has unknown action %q", ErrInvalidGate, g.Name, g.FailureAction)
	}
	return nil
}

// GateInfo - описание гейта без функции проверки, для админки
type GateInfo struct {
	Name          string
	Threshold     float64
	Weight        float64
	FailureAction Action
	Enabled       bool
}

// GateResult - итог одного гейта
type GateResult struct {
	Name      string
	Score     float64
	Threshold float64
	Weight    float64
	Action    Action
	Passed    bool
	Message   string
	Err       error
}

type Actions struct {
	ShouldReject  bool
	ShouldRetry   bool
	ShouldWarn    bool
	RejectReasons []string
	RetryReasons  []string
	WarnReasons   []string
}

// Disposition - итоговое решение по кандидату
type Disposition string

const (
	DispositionAccept Disposition = "accept"
	DispositionWarn   Disposition = "warn"
	DispositionRetry  Disposition = "retry"
	DispositionReject Disposition = "reject"
)

// RunResult не меняется после возврата из Run
type RunResult struct {
	Passed       bool
	Gates        []GateResult
	OverallScore float64
	Actions      Actions
}

func (r RunResult) Gate(name string) (GateResult, bool) {
	for _, g := range r.Gates {
		if g.Name == name {
			return g, true
		}
	}
	return GateResult{}, false
}

// Disposition: reject важнее retry, retry важнее warn
func (r RunResult) Disposition() Disposition {
	switch {
	case r.Actions.ShouldReject:
		return DispositionReject
	case r.Actions.ShouldRetry:
		return DispositionRetry
	case r.Actions.ShouldWarn:
		return DispositionWarn
	default:
		return DispositionAccept
	}
}
