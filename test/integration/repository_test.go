package integration

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kitbuilder587/translation-pipeline/internal/domain"
	"github.com/kitbuilder587/translation-pipeline/internal/failure"
	pgRepo "github.com/kitbuilder587/translation-pipeline/internal/repository/postgres"
)

var testDB *pgRepo.DB

func TestMain(m *testing.M) {
	if os.Getenv("SHORT_TESTS") == "1" {
		os.Exit(0)
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		panic(err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}

	testDB, err = pgRepo.New(ctx, connStr)
	if err != nil {
		panic(err)
	}

	if err := testDB.Migrate(ctx); err != nil {
		panic(err)
	}
	// второй раз тоже должен пройти
	if err := testDB.Migrate(ctx); err != nil {
		panic(err)
	}

	code := m.Run()

	testDB.Close()
	pgContainer.Terminate(ctx)

	os.Exit(code)
}

func truncate(t *testing.T) {
	t.Helper()
	_, err := testDB.Pool.Exec(context.Background(), `TRUNCATE manual_reviews`)
	require.NoError(t, err)
}

func newReview(reqID string) *domain.ManualReview {
	return &domain.ManualReview{
		RequestID:   reqID,
		SourceText:  "The quick brown fox",
		Output:      "Быстрая лиса",
		SourceLang:  "en",
		TargetLang:  "ru",
		Reason:      "quality gate rejected: preservation",
		FailureKind: string(failure.KindQualityTooLow),
	}
}

func TestReviewRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	truncate(t)

	ctx := context.Background()
	repo := pgRepo.NewReviewRepo(testDB)

	review := newReview("req-1")
	require.NoError(t, repo.Create(ctx, review))
	assert.NotEmpty(t, review.ID)
	assert.False(t, review.CreatedAt.IsZero())

	err := repo.Create(ctx, review)
	assert.ErrorIs(t, err, domain.ErrDuplicateReview)

	found, err := repo.GetByID(ctx, review.ID)
	require.NoError(t, err)
	assert.Equal(t, "req-1", found.RequestID)
	assert.Equal(t, domain.ReviewPending, found.Status)
	assert.Nil(t, found.ResolvedAt)

	_, err = repo.GetByID(ctx, "does-not-exist")
	assert.ErrorIs(t, err, domain.ErrReviewNotFound)

	second := newReview("req-2")
	require.NoError(t, repo.Create(ctx, second))

	pending, err := repo.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "req-1", pending[0].RequestID)

	resolved, err := repo.Resolve(ctx, review.ID, "translated by hand")
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = repo.Resolve(ctx, review.ID, "again")
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	cnt, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)
}

func TestReviewRepository_ConcurrentResolve(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	truncate(t)

	ctx := context.Background()
	repo := pgRepo.NewReviewRepo(testDB)

	review := newReview("req-race")
	require.NoError(t, repo.Create(ctx, review))

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.Resolve(ctx, review.ID, "done")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	}
	assert.Equal(t, 1, ok, "exactly one resolver should win")
}

func TestReviewRepository_StorageErrorsAreClassified(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	_, err := testDB.Pool.Exec(ctx, `ALTER TABLE manual_reviews RENAME TO manual_reviews_tmp`)
	require.NoError(t, err)
	defer testDB.Pool.Exec(ctx, `ALTER TABLE manual_reviews_tmp RENAME TO manual_reviews`)

	_, err = pgRepo.NewReviewRepo(testDB).CountPending(ctx)
	require.Error(t, err)

	kind, ok := failure.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, failure.KindStorageFailed, kind)
	assert.Equal(t, failure.KindStorageFailed, failure.NewClassifier(nil).Classify(err).Kind)
}
