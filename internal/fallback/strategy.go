package fallback

import (
	"context"
	"errors"

	"github.com/kitbuilder587/translation-pipeline/internal/circuit"
	"github.com/kitbuilder587/translation-pipeline/internal/failure"
)

var (
	ErrNoAlternatives     = errors.New("no alternatives configured")
	ErrUnsplittable       = errors.New("input cannot be split")
	ErrManualIntervention = errors.New("manual intervention required")
)

// Mode - вариант построения запроса к провайдеру
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeReduced  Mode = "reduced"
	ModeStrict   Mode = "strict"
)

// Item - единица работы, которую каскад пытается спасти
type Item struct {
	ID         string
	Text       string
	SourceLang string
	TargetLang string
	Glossary   map[string]string
	Context    string

	// Provider и Model - основной путь, который уже исчерпан
	Provider string
	Model    string
}

// Call - один конкретный вариант запроса
type Call struct {
	Item     Item
	Text     string
	Provider string
	Model    string
	Mode     Mode
}

// Runner выполняет вызов провайдера (обычно через retry.Do)
type Runner interface {
	Run(ctx context.Context, call Call) (string, error)
}

// RunnerFunc адаптер для функций
type RunnerFunc func(ctx context.Context, call Call) (string, error)

func (f RunnerFunc) Run(ctx context.Context, call Call) (string, error) { return f(ctx, call) }

// Trigger - что привело к каскаду
type Trigger struct {
	Err            error
	Classification failure.Classification
	CircuitState   circuit.State
}

// Outcome - результат успешной стратегии
type Outcome struct {
	Output     string
	Confidence float64
	Provider   string
	Model      string
}

type Strategy interface {
	Name() string
	Attempt(ctx context.Context, item Item, trigger Trigger) (Outcome, error)
}

// SkipFunc решает, стоит ли вообще пробовать стратегию
type SkipFunc func(Trigger) (skip bool, reason string)

// Skipper - стратегия со своим правилом пропуска по умолчанию
type Skipper interface {
	DefaultSkip(Trigger) (bool, string)
}

// SkipWhenDependencyExhausted - повтор к тому же исчерпанному провайдеру бессмысленен.
// Фатальный сбой и категории без fallback в политике тоже не повторяются на том же провайдере.
func SkipWhenDependencyExhausted(tr Trigger) (bool, string) {
	if tr.CircuitState == circuit.StateOpen {
		return true, "circuit open for primary dependency"
	}
	if tr.Classification.IsFatal {
		return true, "fatal failure on primary dependency: " + string(tr.Classification.Kind)
	}
	if !tr.Classification.Policy.UsesFallback {
		return true, "policy forbids fallback on primary dependency: " + string(tr.Classification.Kind)
	}
	if tr.Classification.Kind.DependencyExhausted() {
		return true, "primary dependency exhausted: " + string(tr.Classification.Kind)
	}
	return false, ""
}

// NeverSkip - для стратегий, которые уходят от основного провайдера
func NeverSkip(Trigger) (bool, string) { return false, "" }
