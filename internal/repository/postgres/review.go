package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kitbuilder587/translation-pipeline/internal/domain"
	"github.com/kitbuilder587/translation-pipeline/internal/repository"
)

type ReviewRepo struct {
	db *DB
}

var _ repository.ManualReviewRepository = (*ReviewRepo)(nil)

func NewReviewRepo(db *DB) *ReviewRepo {
	return &ReviewRepo{db: db}
}

const reviewColumns = `id, request_id, source_text, output, source_lang, target_lang,
    reason, failure_kind, status, resolution, created_at, resolved_at`

func (r *ReviewRepo) Create(ctx context.Context, review *domain.ManualReview) error {
	if err := review.Validate(); err != nil {
		return err
	}
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	review.Status = domain.ReviewPending

	query := `
		INSERT INTO manual_reviews (id, request_id, source_text, output, source_lang, target_lang, reason, failure_kind, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		review.ID,
		review.RequestID,
		review.SourceText,
		review.Output,
		review.SourceLang,
		review.TargetLang,
		review.Reason,
		review.FailureKind,
		string(review.Status),
	).Scan(&review.CreatedAt)
	if err != nil {
		if isDuplicateError(err) {
			return domain.ErrDuplicateReview
		}
		return storageErr("create review", err)
	}

	return nil
}

func (r *ReviewRepo) GetByID(ctx context.Context, id string) (*domain.ManualReview, error) {
	query := `SELECT ` + reviewColumns + ` FROM manual_reviews WHERE id = $1`

	review, err := scanReview(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReviewNotFound
		}
		return nil, storageErr("get review", err)
	}
	return review, nil
}

func (r *ReviewRepo) ListPending(ctx context.Context, limit int) ([]domain.ManualReview, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + reviewColumns + `
		FROM manual_reviews
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, storageErr("list pending reviews", err)
	}
	defer rows.Close()

	var reviews []domain.ManualReview
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, storageErr("scan review", err)
		}
		reviews = append(reviews, *review)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("rows error", err)
	}

	return reviews, nil
}

func (r *ReviewRepo) CountPending(ctx context.Context) (int, error) {
	var cnt int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM manual_reviews WHERE status = 'pending'`).Scan(&cnt)
	if err != nil {
		return 0, storageErr("count pending reviews", err)
	}
	return cnt, nil
}

// Resolve в транзакции: блокируем строку, проверяем статус, обновляем
func (r *ReviewRepo) Resolve(ctx context.Context, id, resolution string) (*domain.ManualReview, error) {
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, domain.ErrEmptyResolution
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	review, err := scanReview(tx.QueryRow(ctx,
		`SELECT `+reviewColumns+` FROM manual_reviews WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReviewNotFound
		}
		return nil, storageErr("lock review", err)
	}

	if err := review.Resolve(resolution, time.Now().UTC()); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE manual_reviews SET status = $2, resolution = $3, resolved_at = $4 WHERE id = $1`,
		review.ID, string(review.Status), review.Resolution, review.ResolvedAt,
	)
	if err != nil {
		return nil, storageErr("resolve review", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, storageErr("commit transaction", err)
	}

	return review, nil
}

func scanReview(row pgx.Row) (*domain.ManualReview, error) {
	var review domain.ManualReview
	var status string
	err := row.Scan(
		&review.ID,
		&review.RequestID,
		&review.SourceText,
		&review.Output,
		&review.SourceLang,
		&review.TargetLang,
		&review.Reason,
		&review.FailureKind,
		&status,
		&review.Resolution,
		&review.CreatedAt,
		&review.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	review.Status = domain.ReviewStatus(status)
	return &review, nil
}
