package domain

import "strings"

// RejectedScoreCap - выше этого не поднимается оценка перевода, который критик не одобрил
const RejectedScoreCap = 0.5

// CriticResult - разбор перевода LLM-критиком
type CriticResult struct {
	Approved    bool
	Issues      []string
	Suggestions []string
	Confidence  float64 // 0.0-1.0
}

type CriticConfig struct {
	// StrictMode: стилистические замечания тоже валят проверку
	StrictMode bool
	// MinConfidence - ниже этого критик не одобряет даже при approved=true
	MinConfidence float64
}

// Acceptable - можно ли отдавать перевод без правки
func (r *CriticResult) Acceptable(strict bool) bool {
	if !r.Approved || len(r.Issues) > 0 {
		return false
	}
	return !strict || len(r.Suggestions) == 0
}

// Score - уверенность критика, для неодобренного перевода не выше RejectedScoreCap
func (r *CriticResult) Score() float64 {
	score := r.Confidence
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	if !r.Approved && score > RejectedScoreCap {
		score = RejectedScoreCap
	}
	return score
}

func (r *CriticResult) Summary() string {
	if len(r.Issues) == 0 {
		if r.Approved {
			return "approved"
		}
		return "not approved"
	}
	return strings.Join(r.Issues, "; ")
}

func (c *CriticConfig) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return ErrInvalidCriticConfidence
	}
	return nil
}
