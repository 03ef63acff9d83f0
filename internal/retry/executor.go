package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/translation-pipeline/internal/circuit"
	"github.com/kitbuilder587/translation-pipeline/internal/failure"
	"github.com/kitbuilder587/translation-pipeline/internal/metrics"
)

// ErrCircuitOpen не классифицируется и не повторяется
var ErrCircuitOpen = errors.New("circuit open")

// Attempt живет только до возврата из наблюдателя
type Attempt struct {
	Number         int
	Err            error
	Classification failure.Classification
	Delay          time.Duration
}

// Observer вызывается синхронно перед каждой паузой
type Observer func(Attempt)

type Options struct {
	Override       failure.Override
	AttemptTimeout time.Duration
	Observer       Observer
}

// WithMaxRetries - сокращение для самого частого переопределения
func (o Options) WithMaxRetries(n int) Options {
	o.Override.MaxRetries = &n
	return o
}

type Executor struct {
	classifier *failure.Classifier
	breakers   *circuit.Registry
	logger     *zap.Logger
	metrics    *metrics.Metrics
	sleep      func(ctx context.Context, d time.Duration) error
}

type Config struct {
	Classifier *failure.Classifier
	Breakers   *circuit.Registry
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

func NewExecutor(cfg Config, opts ...ExecutorOption) *Executor {
	if cfg.Classifier == nil {
		cfg.Classifier = failure.NewClassifier(nil)
	}
	if cfg.Breakers == nil {
		cfg.Breakers = circuit.NewRegistry(circuit.DefaultConfig())
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	e := &Executor{
		classifier: cfg.Classifier,
		breakers:   cfg.Breakers,
		logger:     cfg.Logger.Named("retry"),
		metrics:    cfg.Metrics,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type ExecutorOption func(*Executor)

// WithSleep подменяет ожидание между попытками (для тестов)
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

func (e *Executor) Classifier() *failure.Classifier { return e.classifier }

func (e *Executor) Breakers() *circuit.Registry { return e.breakers }

// Do выполняет work с повторами. Попытки строго последовательные.
// Ошибки наружу - *failure.Error поверх последней ошибки work,
// кроме ErrCircuitOpen.
func Do[T any](ctx context.Context, e *Executor, dependency string, work func(context.Context) (T, error), opts Options) (T, error) {
	var zero T
	breaker := e.breakers.GetOrCreate(dependency)

	for attempt := 1; ; attempt++ {
		if !breaker.CanAttempt() {
			e.recordAttempt(dependency, "circuit_open")
			e.logger.Warn("circuit open, attempt rejected",
				zap.String("dependency", dependency),
				zap.Int("attempt", attempt),
			)
			return zero, fmt.Errorf("%w: %s", ErrCircuitOpen, dependency)
		}

		if err := ctx.Err(); err != nil {
			e.recordAttempt(dependency, "cancelled")
			return zero, e.cancelled(err, attempt-1, dependency)
		}

		result, err := WithTimeout(ctx, opts.AttemptTimeout, work)
		if err == nil {
			breaker.RecordSuccess()
			e.recordAttempt(dependency, "success")
			if attempt > 1 {
				e.logger.Info("recovered after retry",
					zap.String("dependency", dependency),
					zap.Int("attempts", attempt),
				)
			}
			return result, nil
		}

		// родительский контекст закончился - это не вина зависимости
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.recordAttempt(dependency, "cancelled")
			return zero, e.cancelled(errors.Join(ctxErr, err), attempt, dependency)
		}

		cls := e.classifier.Classify(err)
		if cls.Kind == failure.KindCancelled {
			e.recordAttempt(dependency, "cancelled")
			return zero, &failure.Error{Err: err, Classification: cls, Attempts: attempt, Dependency: dependency}
		}

		breaker.RecordFailure()
		e.recordAttempt(dependency, "failure")

		final := &failure.Error{Err: err, Classification: cls, Attempts: attempt, Dependency: dependency}
		if cls.IsFatal || !cls.IsRetryable {
			e.logger.Warn("non-retryable failure",
				zap.String("dependency", dependency),
				zap.String("kind", string(cls.Kind)),
				zap.Bool("fatal", cls.IsFatal),
				zap.Error(err),
			)
			return zero, final
		}

		policy := cls.Policy.Apply(opts.Override)
		if attempt > policy.MaxRetries {
			e.logger.Warn("retries exhausted",
				zap.String("dependency", dependency),
				zap.String("kind", string(cls.Kind)),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return zero, final
		}

		delay := cls.Metadata.RetryAfter
		if delay <= 0 {
			delay = e.classifier.Delay(policy, attempt)
		}

		if opts.Observer != nil {
			opts.Observer(Attempt{Number: attempt, Err: err, Classification: cls, Delay: delay})
		}
		if e.metrics != nil {
			e.metrics.RecordRetry(dependency, string(cls.Kind))
		}
		e.logger.Warn("attempt failed, retrying",
			zap.String("dependency", dependency),
			zap.String("kind", string(cls.Kind)),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", policy.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := e.sleep(ctx, delay); err != nil {
			e.recordAttempt(dependency, "cancelled")
			return zero, e.cancelled(err, attempt, dependency)
		}
	}
}

func (e *Executor) cancelled(cause error, attempts int, dependency string) error {
	err := fmt.Errorf("%w: %w", failure.ErrCancelled, cause)
	return &failure.Error{
		Err:            err,
		Classification: e.classifier.Classify(failure.ErrCancelled),
		Attempts:       attempts,
		Dependency:     dependency,
	}
}

func (e *Executor) recordAttempt(dependency, outcome string) {
	if e.metrics != nil {
		e.metrics.RecordAttempt(dependency, outcome)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
