package quality

import (
	"context"
	"fmt"
	"strings"

	"github.com/kitbuilder587/translation-pipeline/internal/confidence"
)

const (
	GateConfidence   = "confidence"
	GateFormat       = "format"
	GateLengthRatio  = "length_ratio"
	GatePreservation = "preservation"
	GateAgreement    = "agreement"
)

type Thresholds struct {
	Confidence   float64
	Preservation float64
	Agreement    float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Confidence:   0.7,
		Preservation: 0.7,
		Agreement:    0.6,
	}
}

// DefaultGates - базовый набор; agreement может быть nil (только Jaccard)
func DefaultGates(th Thresholds, agreement *confidence.Agreement) []Gate {
	if agreement == nil {
		agreement = confidence.NewAgreement(nil, nil)
	}
	return []Gate{
		{
			Name:          GateConfidence,
			Check:         CheckConfidence,
			Threshold:     th.Confidence,
			Weight:        0.3,
			FailureAction: ActionReject,
			Enabled:       true,
		},
		{
			Name:          GateFormat,
			Check:         CheckFormat,
			Threshold:     1,
			Weight:        0.2,
			FailureAction: ActionRetry,
			Enabled:       true,
		},
		{
			Name:          GateLengthRatio,
			Check:         CheckLengthRatio,
			Threshold:     0.5,
			Weight:        0.15,
			FailureAction: ActionWarn,
			Enabled:       true,
		},
		{
			Name:          GatePreservation,
			Check:         CheckPreservation,
			Threshold:     th.Preservation,
			Weight:        0.25,
			FailureAction: ActionReject,
			Enabled:       true,
		},
		{
			Name:          GateAgreement,
			Check:         AgreementCheck(agreement),
			Threshold:     th.Agreement,
			Weight:        0.1,
			FailureAction: ActionWarn,
			Enabled:       true,
		},
	}
}

func CheckConfidence(_ context.Context, c Candidate) (CheckResult, error) {
	return CheckResult{
		Passed:  true,
		Score:   c.Confidence,
		Message: fmt.Sprintf("confidence %.2f", c.Confidence),
	}, nil
}

// CheckFormat - структурная валидность: непустой вывод, парные разделители, без преамбулы
func CheckFormat(_ context.Context, c Candidate) (CheckResult, error) {
	var problems []string
	if strings.TrimSpace(c.Output) == "" {
		problems = append(problems, "empty output")
	}
	if !confidence.DelimitersBalanced(c.Output) {
		problems = append(problems, "unbalanced delimiters")
	}
	if confidence.HasMetaPreamble(c.Output) {
		problems = append(problems, "meta preamble")
	}

	const checks = 3
	return CheckResult{
		Passed:  len(problems) == 0,
		Score:   float64(checks-len(problems)) / checks,
		Message: strings.Join(problems, ", "),
	}, nil
}

// CheckLengthRatio: [0.5,3] - полный балл, до [0.3,4] - мягкий штраф, дальше - линейный
func CheckLengthRatio(_ context.Context, c Candidate) (CheckResult, error) {
	ratio := confidence.LengthRatio(c.Output, c.Source)
	res := CheckResult{
		Passed:   ratio >= 0.5 && ratio <= 3,
		Score:    lengthScore(ratio),
		Message:  fmt.Sprintf("length ratio %.2f", ratio),
		Metadata: map[string]any{"ratio": ratio},
	}
	return res, nil
}

func lengthScore(ratio float64) float64 {
	switch {
	case ratio >= 0.5 && ratio <= 3:
		return 1
	case ratio >= 0.3 && ratio < 0.5:
		return 0.7
	case ratio > 3 && ratio <= 4:
		return 0.7
	case ratio < 0.3:
		return 0.5 * ratio / 0.3
	default:
		// каждые лишние 100% длины сверх 4x снимают 0.1
		return clamp01(0.5 - 0.1*(ratio-4))
	}
}

// CheckPreservation: доля сохраненных фрагментов источника и корректные разделители
func CheckPreservation(_ context.Context, c Candidate) (CheckResult, error) {
	found, preserved := confidence.PreservedFragments(c.Output, c.Source)
	score := 1.0
	if found > 0 {
		score = float64(preserved) / float64(found)
	}
	balanced := confidence.DelimitersBalanced(c.Output)

	msg := fmt.Sprintf("%d/%d fragments preserved", preserved, found)
	if !balanced {
		msg += ", delimiters unbalanced"
	}
	return CheckResult{
		Passed:   balanced,
		Score:    score,
		Message:  msg,
		Metadata: map[string]any{"found": found, "preserved": preserved},
	}, nil
}

// AgreementCheck сравнивает вывод с альтернативными кандидатами
func AgreementCheck(a *confidence.Agreement) CheckFunc {
	return func(ctx context.Context, c Candidate) (CheckResult, error) {
		if len(c.Alternatives) == 0 {
			return CheckResult{Passed: true, Score: 1, Message: "no alternatives to compare"}, nil
		}
		outputs := append([]string{c.Output}, c.Alternatives...)
		score, err := a.Score(ctx, outputs)
		if err != nil {
			return CheckResult{}, err
		}
		return CheckResult{
			Passed:  true,
			Score:   score,
			Message: fmt.Sprintf("agreement %.2f across %d candidates", score, len(outputs)),
		}, nil
	}
}
