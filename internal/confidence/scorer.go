package confidence

import (
	"math"
	"strings"
	"unicode"
)

const (
	DefaultFloor   = 0.1
	DefaultCeiling = 0.98

	baseScore       = 0.5
	structureWeight = 0.3
	fragmentStep    = 0.05
	fragmentCap     = 0.15
	missingPenalty  = 0.3
	errorMarkerMult = 0.3
	formattingMult  = 0.7
)

type Config struct {
	Floor   float64
	Ceiling float64
}

func DefaultConfig() Config {
	return Config{Floor: DefaultFloor, Ceiling: DefaultCeiling}
}

// Options - необязательные факторы для конкретного вызова
type Options struct {
	Glossary         map[string]string
	CheckPunctuation bool
	CheckFormatting  bool
	// SourceScript - письменность исходного языка, для поиска непереведенных кусков
	SourceScript *unicode.RangeTable
}

// Breakdown - значения всех факторов, из которых собран итог
type Breakdown struct {
	FragmentsFound     int
	FragmentsPreserved int
	FragmentAdjustment float64
	Structure          float64
	LengthRatio        float64
	LengthFactor       float64
	ErrorMarkers       bool
	TermCoverage       *float64
	Punctuation        *float64
	Formatting         *Formatting
	Raw                float64
	Score              float64
}

type Scorer struct {
	floor   float64
	ceiling float64
}

func NewScorer(cfg Config) *Scorer {
	if cfg.Floor <= 0 || cfg.Floor >= 1 {
		cfg.Floor = DefaultFloor
	}
	if cfg.Ceiling <= cfg.Floor || cfg.Ceiling >= 1 {
		cfg.Ceiling = DefaultCeiling
	}
	return &Scorer{floor: cfg.Floor, ceiling: cfg.Ceiling}
}

// Score никогда не возвращает ровно 0 или 1
func (s *Scorer) Score(output, source string, opts Options) float64 {
	return s.Breakdown(output, source, opts).Score
}

func (s *Scorer) Breakdown(output, source string, opts Options) Breakdown {
	var b Breakdown

	if strings.TrimSpace(output) == "" {
		b.Score = s.floor
		return b
	}

	b.FragmentsFound, b.FragmentsPreserved = PreservedFragments(output, source)
	b.FragmentAdjustment = fragmentAdjustment(b.FragmentsFound, b.FragmentsPreserved)

	b.Structure = StructureRatio(output)
	b.LengthRatio = LengthRatio(output, source)
	b.LengthFactor = LengthFactor(b.LengthRatio)
	b.ErrorMarkers = HasErrorMarkers(output)

	score := baseScore + structureWeight*b.Structure + b.FragmentAdjustment
	score *= b.LengthFactor
	if b.ErrorMarkers {
		score *= errorMarkerMult
	}

	if len(opts.Glossary) > 0 {
		if cov, ok := TermCoverage(output, source, opts.Glossary); ok {
			b.TermCoverage = &cov
			score *= 0.5 + 0.5*clamp01(cov)
		}
	}
	if opts.CheckPunctuation {
		p := PunctuationRatio(output, source)
		b.Punctuation = &p
		score *= 0.7 + 0.3*clamp01(p)
	}
	if opts.CheckFormatting {
		f := CheckFormatting(output, opts.SourceScript)
		b.Formatting = &f
		if !f.OK() {
			score *= formattingMult
		}
	}

	b.Raw = score
	b.Score = s.clamp(score)
	return b
}

// fragmentAdjustment: бонус за сохраненные фрагменты ограничен, потерянные штрафуются
func fragmentAdjustment(found, preserved int) float64 {
	if found == 0 {
		return 0
	}
	bonus := math.Min(float64(preserved)*fragmentStep, fragmentCap)
	missing := 1 - float64(preserved)/float64(found)
	return bonus - missingPenalty*missing
}

func (s *Scorer) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return s.floor
	}
	return math.Max(s.floor, math.Min(s.ceiling, v))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
