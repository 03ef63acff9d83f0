package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kitbuilder587/translation-pipeline/internal/domain"
)

const DefaultParallelism = 4

// BatchItem - результат одного запроса пачки, порядок как у входа
type BatchItem struct {
	Result *domain.Result
	Err    error
}

// TranslateBatch переводит запросы параллельно, не больше parallelism
// одновременно. Ошибка одного запроса не отменяет остальные; ошибка
// возвращается только при отмене ctx.
func (p *Pipeline) TranslateBatch(ctx context.Context, reqs []domain.Request, parallelism int) ([]BatchItem, error) {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	items := make([]BatchItem, len(reqs))

	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, req := range reqs {
		if ctx.Err() != nil {
			items[i].Err = cancelledErr(ctx, ctx.Err())
			continue
		}
		g.Go(func() error {
			res, err := p.Translate(ctx, req)
			items[i] = BatchItem{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
		}
	}
	p.logger.Info("batch finished",
		zap.Int("total", len(reqs)),
		zap.Int("failed", failed),
		zap.Int("parallelism", parallelism),
	)

	if err := ctx.Err(); err != nil {
		return items, cancelledErr(ctx, err)
	}
	return items, nil
}
