package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/kitbuilder587/translation-pipeline/internal/failure"
)

// WithTimeout - гонка work против таймера. Проигравший не убивается:
// его контекст отменяется, а поздний результат выбрасывается.
func WithTimeout[T any](ctx context.Context, d time.Duration, work func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return work(ctx)
	}

	var zero T
	type outcome struct {
		value T
		err   error
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// буфер 1: горутина не зависнет, если результат уже никому не нужен
	done := make(chan outcome, 1)
	go func() {
		v, err := work(workCtx)
		done <- outcome{value: v, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.value, o.err
	case <-timer.C:
		return zero, fmt.Errorf("%w after %s", failure.ErrAttemptTimeout, d)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
