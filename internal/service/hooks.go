package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/translation-pipeline/internal/circuit"
	"github.com/kitbuilder587/translation-pipeline/internal/domain"
	"github.com/kitbuilder587/translation-pipeline/internal/metrics"
)

// Notifier - канал оповещения операторов (телеграм-бот)
type Notifier interface {
	NotifyReview(ctx context.Context, review *domain.ManualReview) error
	NotifyCircuit(ctx context.Context, dependency string, from, to circuit.State) error
}

const notifyTimeout = 10 * time.Second

// CircuitHook - обработчик смены состояния для circuit.WithStateChange.
// Вызывается из горутины запроса, поэтому оповещение уходит асинхронно.
func CircuitHook(m *metrics.Metrics, n Notifier, logger *zap.Logger) circuit.StateChangeFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("circuit")

	return func(dependency string, from, to circuit.State) {
		if m != nil {
			m.SetCircuitState(dependency, int(to))
		}

		fields := []zap.Field{
			zap.String("dependency", dependency),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		}
		if to == circuit.StateOpen {
			logger.Warn("circuit opened", fields...)
		} else {
			logger.Info("circuit state changed", fields...)
		}

		if n == nil {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
			defer cancel()
			if err := n.NotifyCircuit(ctx, dependency, from, to); err != nil {
				logger.Warn("circuit notification failed", append(fields, zap.Error(err))...)
			}
		}()
	}
}
