package confidence

import (
	"context"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// Similarity - внешний поставщик семантической близости, значения в [0,1]
type Similarity interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// SimilarityFunc адаптер для функций
type SimilarityFunc func(ctx context.Context, a, b string) (float64, error)

func (f SimilarityFunc) Similarity(ctx context.Context, a, b string) (float64, error) {
	return f(ctx, a, b)
}

// Jaccard - пересечение множеств слов без учета регистра
func Jaccard(a, b string) float64 {
	wa, wb := words(a), words(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}

	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func words(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[w] = struct{}{}
	}
	return set
}

type Agreement struct {
	similarity Similarity
	logger     *zap.Logger
}

// NewAgreement: similarity может быть nil - тогда только Jaccard
func NewAgreement(similarity Similarity, logger *zap.Logger) *Agreement {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agreement{similarity: similarity, logger: logger.Named("agreement")}
}

// pair считает близость пары; ошибка провайдера откатывает на Jaccard
func (a *Agreement) pair(ctx context.Context, x, y string) float64 {
	if a.similarity != nil {
		v, err := a.similarity.Similarity(ctx, x, y)
		if err == nil {
			return clamp01(v)
		}
		a.logger.Warn("similarity provider failed, using word overlap", zap.Error(err))
	}
	return Jaccard(x, y)
}

// Matrix - симметричная матрица близостей, диагональ 1
func (a *Agreement) Matrix(ctx context.Context, outputs []string) ([][]float64, error) {
	n := len(outputs)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			v := a.pair(ctx, outputs[i], outputs[j])
			m[i][j], m[j][i] = v, v
		}
	}
	return m, nil
}

// Score - средняя попарная близость. Меньше двух кандидатов - согласие полное.
func (a *Agreement) Score(ctx context.Context, outputs []string) (float64, error) {
	if len(outputs) < 2 {
		return 1, nil
	}
	m, err := a.Matrix(ctx, outputs)
	if err != nil {
		return 0, err
	}

	sum, pairs := 0.0, 0
	for i := range m {
		for j := i + 1; j < len(m); j++ {
			sum += m[i][j]
			pairs++
		}
	}
	return sum / float64(pairs), nil
}

// Outliers - индексы кандидатов, чья средняя близость к остальным ниже threshold
func (a *Agreement) Outliers(ctx context.Context, outputs []string, threshold float64) ([]int, error) {
	if len(outputs) < 2 {
		return nil, nil
	}
	m, err := a.Matrix(ctx, outputs)
	if err != nil {
		return nil, err
	}

	var out []int
	for i := range m {
		sum := 0.0
		for j := range m[i] {
			if i != j {
				sum += m[i][j]
			}
		}
		if sum/float64(len(m)-1) < threshold {
			out = append(out, i)
		}
	}
	return out, nil
}
