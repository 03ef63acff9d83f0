package quality

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/kitbuilder587/translation-pipeline/internal/metrics"
)

type Config struct {
	// Gates - начальный набор; nil означает DefaultGates
	Gates   []Gate
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Runner держит упорядоченный набор гейтов. Чтения идут параллельно,
// изменения набора редкие и взаимно исключающие.
type Runner struct {
	mu    sync.RWMutex
	gates []Gate

	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	gates := cfg.Gates
	if gates == nil {
		gates = DefaultGates(DefaultThresholds(), nil)
	}

	r := &Runner{
		logger:  cfg.Logger.Named("quality"),
		metrics: cfg.Metrics,
	}
	for _, g := range gates {
		if err := r.Add(g); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) Add(g Gate) error {
	if err := g.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(g.Name) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateGate, g.Name)
	}
	r.gates = append(r.gates, g)
	return nil
}

func (r *Runner) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrGateNotFound, name)
	}
	// копия, чтобы уже выданные снапшоты не поменялись
	gates := make([]Gate, 0, len(r.gates)-1)
	gates = append(gates, r.gates[:i]...)
	r.gates = append(gates, r.gates[i+1:]...)
	return nil
}

func (r *Runner) Enable(name string) error {
	return r.update(name, func(g *Gate) error {
		g.Enabled = true
		return nil
	})
}

func (r *Runner) Disable(name string) error {
	return r.update(name, func(g *Gate) error {
		g.Enabled = false
		return nil
	})
}

func (r *Runner) SetThreshold(name string, threshold float64) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("%s: %w", name, ErrInvalidThreshold)
	}
	return r.update(name, func(g *Gate) error {
		g.Threshold = threshold
		return nil
	})
}

func (r *Runner) SetWeight(name string, weight float64) error {
	if weight < 0 || weight > 1 {
		return fmt.Errorf("%s: %w", name, ErrInvalidWeight)
	}
	return r.update(name, func(g *Gate) error {
		g.Weight = weight
		return nil
	})
}

// Gates возвращает текущий список в порядке выполнения
func (r *Runner) Gates() []GateInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]GateInfo, len(r.gates))
	for i, g := range r.gates {
		out[i] = GateInfo{
			Name:          g.Name,
			Threshold:     g.Threshold,
			Weight:        g.Weight,
			FailureAction: g.FailureAction,
			Enabled:       g.Enabled,
		}
	}
	return out
}

func (r *Runner) update(name string, fn func(*Gate) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrGateNotFound, name)
	}
	gates := make([]Gate, len(r.gates))
	copy(gates, r.gates)
	if err := fn(&gates[i]); err != nil {
		return err
	}
	r.gates = gates
	return nil
}

func (r *Runner) indexLocked(name string) int {
	for i, g := range r.gates {
		if g.Name == name {
			return i
		}
	}
	return -1
}

func (r *Runner) snapshot() []Gate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gates
}

// Run прогоняет кандидата через включенные гейты. Упавшая или
// запаниковавшая проверка становится предупреждением и не учитывается в среднем.
func (r *Runner) Run(ctx context.Context, c Candidate) RunResult {
	gates := r.snapshot()

	res := RunResult{Passed: true}
	var weighted, weights float64

	for _, g := range gates {
		if !g.Enabled {
			continue
		}

		check, err := r.runCheck(ctx, g, c)
		gr := GateResult{
			Name:      g.Name,
			Threshold: g.Threshold,
			Weight:    g.Weight,
			Action:    g.FailureAction,
		}

		if err != nil {
			gr.Err = err
			gr.Message = "check failed: " + err.Error()
			gr.Action = ActionWarn
			res.Passed = false
			res.Actions.WarnReasons = append(res.Actions.WarnReasons, fmt.Sprintf("%s: %s", g.Name, gr.Message))
			res.Gates = append(res.Gates, gr)
			r.record(g.Name, "error")
			r.logger.Warn("quality gate check failed",
				zap.String("gate", g.Name),
				zap.Error(err),
			)
			continue
		}

		gr.Score = clamp01(check.Score)
		gr.Message = check.Message
		gr.Passed = check.Passed && gr.Score >= g.Threshold

		weighted += gr.Score * g.Weight
		weights += g.Weight

		if gr.Passed {
			r.record(g.Name, "passed")
		} else {
			res.Passed = false
			reason := fmt.Sprintf("%s: score %.2f below %.2f", g.Name, gr.Score, g.Threshold)
			if gr.Message != "" {
				reason += " (" + gr.Message + ")"
			}
			switch g.FailureAction {
			case ActionReject:
				res.Actions.RejectReasons = append(res.Actions.RejectReasons, reason)
			case ActionRetry:
				res.Actions.RetryReasons = append(res.Actions.RetryReasons, reason)
			default:
				res.Actions.WarnReasons = append(res.Actions.WarnReasons, reason)
			}
			r.record(g.Name, string(g.FailureAction))
		}
		res.Gates = append(res.Gates, gr)
	}

	if weights > 0 {
		res.OverallScore = weighted / weights
	} else {
		res.OverallScore = 1
	}

	a := &res.Actions
	a.ShouldReject = len(a.RejectReasons) > 0
	a.ShouldRetry = !a.ShouldReject && len(a.RetryReasons) > 0
	a.ShouldWarn = !a.ShouldReject && !a.ShouldRetry && len(a.WarnReasons) > 0

	r.logger.Debug("quality gates evaluated",
		zap.Bool("passed", res.Passed),
		zap.Float64("overall_score", res.OverallScore),
		zap.String("disposition", string(res.Disposition())),
	)
	return res
}

func (r *Runner) runCheck(ctx context.Context, g Gate, c Candidate) (res CheckResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return g.Check(ctx, c)
}

func (r *Runner) record(gate, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordGate(gate, outcome)
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
