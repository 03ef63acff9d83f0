package fallback

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kitbuilder587/translation-pipeline/internal/circuit"
	"github.com/kitbuilder587/translation-pipeline/internal/failure"
	"github.com/kitbuilder587/translation-pipeline/internal/metrics"
)

const manualStrategyName = "manual_intervention"

// Skip - стратегия, которую не стали пробовать
type Skip struct {
	Strategy string
	Reason   string
}

// StrategyFailure - стратегия пробовалась и упала
type StrategyFailure struct {
	Strategy string
	Err      error
}

// Result создается один раз на вызов Execute
type Result struct {
	Success                    bool
	Output                     string
	Confidence                 float64
	StrategyUsed               string
	Provider                   string
	Model                      string
	Err                        error
	RequiresManualIntervention bool
	Skipped                    []Skip
	Failures                   []StrategyFailure
}

type Config struct {
	Classifier *failure.Classifier
	Breakers   *circuit.Registry
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

type Cascade struct {
	strategies []Strategy
	skips      map[string]SkipFunc
	classifier *failure.Classifier
	breakers   *circuit.Registry
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

type Option func(*Cascade)

// WithSkip переопределяет правило пропуска для стратегии по имени.
// Для manual_intervention игнорируется: каскад всегда должен завершиться.
func WithSkip(strategy string, fn SkipFunc) Option {
	return func(c *Cascade) {
		if strategy == manualStrategyName || fn == nil {
			return
		}
		c.skips[strategy] = fn
	}
}

// NewCascade - порядок strategies сохраняется, терминальная стратегия
// добавляется в конец, если ее нет.
func NewCascade(cfg Config, strategies []Strategy, opts ...Option) *Cascade {
	if cfg.Classifier == nil {
		cfg.Classifier = failure.NewClassifier(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	list := make([]Strategy, 0, len(strategies)+1)
	for _, s := range strategies {
		if s == nil {
			continue
		}
		if s.Name() == manualStrategyName {
			break
		}
		list = append(list, s)
	}
	list = append(list, ManualIntervention{})

	c := &Cascade{
		strategies: list,
		skips:      make(map[string]SkipFunc),
		classifier: cfg.Classifier,
		breakers:   cfg.Breakers,
		logger:     cfg.Logger.Named("fallback"),
		metrics:    cfg.Metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Strategies возвращает имена в порядке выполнения
func (c *Cascade) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Execute никогда не возвращает ошибку и не паникует: любой исход - это Result.
func (c *Cascade) Execute(ctx context.Context, item Item, originalErr error) Result {
	trigger := c.trigger(item, originalErr)
	res := Result{}

	if cancelled, err := c.isCancelled(ctx, trigger.Classification.Kind, originalErr); cancelled {
		res.Err = err
		c.logger.Info("fallback cascade cancelled before start", zap.String("item_id", item.ID))
		return res
	}

	for _, s := range c.strategies {
		name := s.Name()

		if name == manualStrategyName {
			return c.manual(item, originalErr, res)
		}

		if skip, reason := c.shouldSkip(s, trigger); skip {
			res.Skipped = append(res.Skipped, Skip{Strategy: name, Reason: reason})
			c.record(name, "skipped")
			c.logger.Warn("fallback strategy skipped",
				zap.String("item_id", item.ID),
				zap.String("strategy", name),
				zap.String("reason", reason),
			)
			continue
		}

		out, err := c.attempt(ctx, s, item, trigger)
		if err == nil {
			c.record(name, "success")
			c.logger.Info("fallback strategy succeeded",
				zap.String("item_id", item.ID),
				zap.String("strategy", name),
				zap.String("provider", out.Provider),
				zap.String("model", out.Model),
			)
			res.Success = true
			res.Output = out.Output
			res.Confidence = out.Confidence
			res.StrategyUsed = name
			res.Provider = out.Provider
			res.Model = out.Model
			return res
		}

		c.record(name, "failure")
		res.Failures = append(res.Failures, StrategyFailure{Strategy: name, Err: err})
		c.logger.Warn("fallback strategy failed",
			zap.String("item_id", item.ID),
			zap.String("strategy", name),
			zap.Error(err),
		)

		kind := c.classifier.Classify(err).Kind
		if cancelled, cerr := c.isCancelled(ctx, kind, err); cancelled {
			res.Err = cerr
			res.StrategyUsed = name
			return res
		}
	}

	// до сюда не доходим: manual всегда последний
	return c.manual(item, originalErr, res)
}

func (c *Cascade) trigger(item Item, originalErr error) Trigger {
	tr := Trigger{Err: originalErr, CircuitState: circuit.StateClosed}
	if fe, ok := failure.AsError(originalErr); ok {
		tr.Classification = fe.Classification
	} else {
		tr.Classification = c.classifier.Classify(originalErr)
	}
	if c.breakers != nil && item.Provider != "" {
		tr.CircuitState = c.breakers.State(item.Provider)
	}
	return tr
}

func (c *Cascade) shouldSkip(s Strategy, tr Trigger) (bool, string) {
	if fn, ok := c.skips[s.Name()]; ok {
		return fn(tr)
	}
	if sk, ok := s.(Skipper); ok {
		return sk.DefaultSkip(tr)
	}
	return false, ""
}

// attempt изолирует панику стратегии
func (c *Cascade) attempt(ctx context.Context, s Strategy, item Item, tr Trigger) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("fallback strategy panicked",
				zap.String("strategy", s.Name()),
				zap.Any("panic", r),
			)
			err = failure.Tag(failure.KindProcessingFailed, fmt.Errorf("strategy %s panicked: %v", s.Name(), r))
		}
	}()
	return s.Attempt(ctx, item, tr)
}

func (c *Cascade) isCancelled(ctx context.Context, kind failure.Kind, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return true, fmt.Errorf("%w: %w", failure.ErrCancelled, ctxErr)
	}
	if kind == failure.KindCancelled {
		if errors.Is(err, failure.ErrCancelled) {
			return true, err
		}
		return true, fmt.Errorf("%w: %w", failure.ErrCancelled, err)
	}
	return false, nil
}

func (c *Cascade) manual(item Item, originalErr error, res Result) Result {
	c.record(manualStrategyName, "manual")
	c.logger.Info("fallback cascade exhausted, manual intervention required",
		zap.String("item_id", item.ID),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failures)),
		zap.Error(originalErr),
	)
	res.Success = false
	res.StrategyUsed = manualStrategyName
	res.RequiresManualIntervention = true
	res.Err = originalErr
	if res.Err == nil {
		res.Err = ErrManualIntervention
	}
	return res
}

func (c *Cascade) record(strategy, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordFallback(strategy, outcome)
	}
}
