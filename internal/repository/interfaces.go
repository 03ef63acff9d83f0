package repository

import (
	"context"

	"github.com/kitbuilder587/translation-pipeline/internal/domain"
)

// ManualReviewRepository - очередь переводов на ручную проверку
type ManualReviewRepository interface {
	// Create выдает ID, если его нет, и ставит статус pending
	Create(ctx context.Context, review *domain.ManualReview) error
	GetByID(ctx context.Context, id string) (*domain.ManualReview, error)
	// ListPending - самые старые первыми
	ListPending(ctx context.Context, limit int) ([]domain.ManualReview, error)
	CountPending(ctx context.Context) (int, error)
	Resolve(ctx context.Context, id, resolution string) (*domain.ManualReview, error)
}
