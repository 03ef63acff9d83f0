package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kitbuilder587/translation-pipeline/internal/domain"
)

// MockReviewRepository - in-memory очередь, годится и для запуска без базы
type MockReviewRepository struct {
	mu      sync.RWMutex
	reviews map[string]*domain.ManualReview
	now     func() time.Time

	// Err, если задан, возвращается из всех методов
	Err         error
	CreateCalls int
}

func NewMockReviewRepository() *MockReviewRepository {
	return &MockReviewRepository{
		reviews: make(map[string]*domain.ManualReview),
		now:     time.Now,
	}
}

func (m *MockReviewRepository) Create(ctx context.Context, review *domain.ManualReview) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls++
	if m.Err != nil {
		return m.Err
	}
	if err := review.Validate(); err != nil {
		return err
	}

	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if _, exists := m.reviews[review.ID]; exists {
		return domain.ErrDuplicateReview
	}

	review.Status = domain.ReviewPending
	review.CreatedAt = m.now()
	review.ResolvedAt = nil

	stored := *review
	m.reviews[review.ID] = &stored
	return nil
}

func (m *MockReviewRepository) GetByID(ctx context.Context, id string) (*domain.ManualReview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	r, ok := m.reviews[id]
	if !ok {
		return nil, domain.ErrReviewNotFound
	}
	out := *r
	return &out, nil
}

func (m *MockReviewRepository) ListPending(ctx context.Context, limit int) ([]domain.ManualReview, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}

	var out []domain.ManualReview
	for _, r := range m.reviews {
		if r.IsPending() {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockReviewRepository) CountPending(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return 0, m.Err
	}
	cnt := 0
	for _, r := range m.reviews {
		if r.IsPending() {
			cnt++
		}
	}
	return cnt, nil
}

func (m *MockReviewRepository) Resolve(ctx context.Context, id, resolution string) (*domain.ManualReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	r, ok := m.reviews[id]
	if !ok {
		return nil, domain.ErrReviewNotFound
	}
	if err := r.Resolve(resolution, m.now()); err != nil {
		return nil, err
	}
	out := *r
	return &out, nil
}

var _ ManualReviewRepository = (*MockReviewRepository)(nil)
