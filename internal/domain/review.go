package domain

import (
	"strings"
	"time"
)

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewResolved ReviewStatus = "resolved"
)

// ManualReview - перевод, который автоматика не смогла принять
type ManualReview struct {
	ID         string
	RequestID  string
	SourceText string
	// Output - лучший из полученных вариантов, может быть пустым
	Output      string
	SourceLang  string
	TargetLang  string
	Reason      string
	FailureKind string
	Status      ReviewStatus
	Resolution  string
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

func (r *ManualReview) Validate() error {
	if strings.TrimSpace(r.RequestID) == "" {
		return ErrEmptyRequestID
	}
	if strings.TrimSpace(r.SourceText) == "" {
		return ErrEmptyText
	}
	if strings.TrimSpace(r.Reason) == "" {
		return ErrEmptyReason
	}
	return nil
}

func (r *ManualReview) IsPending() bool {
	return r.Status == "" || r.Status == ReviewPending
}

// Resolve закрывает заявку. Повторно закрыть нельзя.
func (r *ManualReview) Resolve(resolution string, now time.Time) error {
	if !r.IsPending() {
		return ErrAlreadyResolved
	}
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return ErrEmptyResolution
	}
	r.Status = ReviewResolved
	r.Resolution = resolution
	r.ResolvedAt = &now
	return nil
}
