package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitbuilder587/translation-pipeline/internal/domain"
)

func newReview(reqID string) *domain.ManualReview {
	return &domain.ManualReview{
		RequestID:   reqID,
		SourceText:  "Hello",
		SourceLang:  "en",
		TargetLang:  "ru",
		Reason:      "all fallbacks exhausted",
		FailureKind: "rate_limited",
	}
}

func TestMockReviewRepository_CreateAndGet(t *testing.T) {
	repo := NewMockReviewRepository()
	ctx := context.Background()

	r := newReview("req-1")
	require.NoError(t, repo.Create(ctx, r))
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, domain.ReviewPending, r.Status)
	assert.False(t, r.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.RequestID)

	// изменение возвращенной копии не трогает хранилище
	got.Reason = "changed"
	again, _ := repo.GetByID(ctx, r.ID)
	assert.Equal(t, "all fallbacks exhausted", again.Reason)

	assert.ErrorIs(t, repo.Create(ctx, r), domain.ErrDuplicateReview)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrReviewNotFound)
}

func TestMockReviewRepository_CreateValidates(t *testing.T) {
	repo := NewMockReviewRepository()
	err := repo.Create(context.Background(), &domain.ManualReview{SourceText: "x", Reason: "y"})
	assert.ErrorIs(t, err, domain.ErrEmptyRequestID)
}

func TestMockReviewRepository_ListPending(t *testing.T) {
	repo := NewMockReviewRepository()
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	var tick time.Duration
	repo.now = func() time.Time {
		tick += time.Second
		return base.Add(tick)
	}

	ids := make([]string, 0, 3)
	for _, req := range []string{"a", "b", "c"} {
		r := newReview(req)
		require.NoError(t, repo.Create(ctx, r))
		ids = append(ids, r.ID)
	}

	_, err := repo.Resolve(ctx, ids[1], "done")
	require.NoError(t, err)

	pending, err := repo.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].RequestID)
	assert.Equal(t, "c", pending[1].RequestID)

	limited, _ := repo.ListPending(ctx, 1)
	assert.Len(t, limited, 1)

	cnt, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt)
}

func TestMockReviewRepository_Resolve(t *testing.T) {
	repo := NewMockReviewRepository()
	ctx := context.Background()

	r := newReview("req")
	require.NoError(t, repo.Create(ctx, r))

	resolved, err := repo.Resolve(ctx, r.ID, "translated manually")
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = repo.Resolve(ctx, r.ID, "again")
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	_, err = repo.Resolve(ctx, "nope", "x")
	assert.ErrorIs(t, err, domain.ErrReviewNotFound)
}

func TestMockReviewRepository_Err(t *testing.T) {
	repo := NewMockReviewRepository()
	boom := errors.New("database is down")
	repo.Err = boom

	assert.ErrorIs(t, repo.Create(context.Background(), newReview("x")), boom)
	assert.Equal(t, 1, repo.CreateCalls)
	_, err := repo.ListPending(context.Background(), 10)
	assert.ErrorIs(t, err, boom)
}
