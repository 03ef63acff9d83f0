package domain

import "time"

type Status string

const (
	StatusAccepted    Status = "accepted"
	StatusWarned      Status = "accepted_with_warnings"
	StatusNeedsReview Status = "needs_review"
)

// StrategyPrimary - перевод получен основным провайдером без каскада
const StrategyPrimary = "primary"

type Result struct {
	RequestID  string
	Output     string
	Confidence float64
	Status     Status
	Strategy   string
	Provider   string
	Model      string
	// Attempts - все вызовы провайдеров, включая каскад и повтор по гейтам
	Attempts     int
	OverallScore float64
	Warnings     []string
	Report       string
	ReviewID     string
	Cached       bool
	Duration     time.Duration
}

func (r *Result) NeedsReview() bool {
	return r.Status == StatusNeedsReview
}

// Usable - есть что отдать пользователю, пусть и с предупреждениями
func (r *Result) Usable() bool {
	return r.Output != "" && r.Status != StatusNeedsReview
}
