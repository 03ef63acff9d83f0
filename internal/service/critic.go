package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kitbuilder587/translation-pipeline/internal/domain"
	"github.com/kitbuilder587/translation-pipeline/internal/llm"
	"github.com/kitbuilder587/translation-pipeline/internal/quality"
)

const GateCritic = "critic"

const CriticSystemPrompt = `You are a critical reviewer of machine translations.

Your task: Evaluate if the translation is faithful, complete and fluent.

Check for:
1. ACCURACY: Is the meaning of the source preserved?
2. OMISSIONS: Is anything from the source missing or added?
3. TERMINOLOGY: Are glossary terms translated as required?
4. FORMAT: Are URLs, numbers, placeholders and markup unchanged?

Response format (JSON only):
{
  "approved": true/false,
  "issues": ["issue1", "issue2"],
  "suggestions": ["suggestion1"],
  "confidence": 0.0-1.0
}`

// CriticInput - что отдаем на проверку критику
type CriticInput struct {
	Source      string
	Translation string
	SourceLang  string
	TargetLang  string
	Glossary    map[string]string
}

type CriticService struct {
	llm    llm.Client
	logger *zap.Logger
	config domain.CriticConfig
}

func NewCriticService(llmClient llm.Client, logger *zap.Logger, config domain.CriticConfig) *CriticService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CriticService{
		llm:    llmClient,
		logger: logger.Named("critic"),
		config: config,
	}
}

func (s *CriticService) Review(ctx context.Context, in CriticInput) (*domain.CriticResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.logger.Debug("reviewing translation",
		zap.Int("source_length", len(in.Source)),
		zap.Int("translation_length", len(in.Translation)),
		zap.String("target_lang", in.TargetLang),
	)

	response, err := s.llm.CompleteWithSystem(ctx, CriticSystemPrompt, s.buildPrompt(in))
	if err != nil {
		s.logger.Warn("LLM review failed", zap.Error(err))
		return nil, err
	}

	result := s.parseResponse(response)

	s.logger.Info("review completed",
		zap.Bool("approved", result.Approved),
		zap.Int("issues_count", len(result.Issues)),
		zap.Float64("confidence", result.Confidence),
	)

	return result, nil
}

func (s *CriticService) buildPrompt(in CriticInput) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "=== LANGUAGES ===\n%s -> %s\n\n", langOrAuto(in.SourceLang), in.TargetLang)

	sb.WriteString("=== SOURCE TEXT ===\n")
	sb.WriteString(in.Source)
	sb.WriteString("\n\n")

	if len(in.Glossary) > 0 {
		sb.WriteString("=== GLOSSARY ===\n")
		terms := make([]string, 0, len(in.Glossary))
		for k := range in.Glossary {
			terms = append(terms, k)
		}
		sort.Strings(terms)
		for _, k := range terms {
			fmt.Fprintf(&sb, "%s -> %s\n", k, in.Glossary[k])
		}
		sb.WriteString("\n")
	}

	sb.WriteString("=== TRANSLATION TO REVIEW ===\n")
	sb.WriteString(in.Translation)
	sb.WriteString("\n\n")

	sb.WriteString("=== INSTRUCTIONS ===\n")
	sb.WriteString("Please evaluate the translation above against the source. ")
	if s.config.StrictMode {
		sb.WriteString("Report even minor stylistic problems as issues. ")
	}
	sb.WriteString("Respond with JSON only.")

	return sb.String()
}

func langOrAuto(lang string) string {
	if lang == "" {
		return "auto"
	}
	return lang
}

func (s *CriticService) parseResponse(llmResponse string) *domain.CriticResult {
	jsonStr := extractJSON(llmResponse)

	var result struct {
		Approved    bool     `json:"approved"`
		Issues      []string `json:"issues"`
		Suggestions []string `json:"suggestions"`
		Confidence  float64  `json:"confidence"`
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		s.logger.Warn("failed to parse critic response as JSON",
			zap.Error(err),
			zap.String("response", llmResponse),
		)

		return &domain.CriticResult{
			Approved:    true,
			Issues:      []string{"critic_parse_failed: could not parse LLM response"},
			Suggestions: nil,
			Confidence:  0.3,
		}
	}

	approved := result.Approved
	if approved && result.Confidence < s.config.MinConfidence {
		approved = false
	}

	return &domain.CriticResult{
		Approved:    approved,
		Issues:      result.Issues,
		Suggestions: result.Suggestions,
		Confidence:  result.Confidence,
	}
}

// Gate - проверка качества через критика. Работает только для запросов,
// профиль которых включает критика, иначе считается пройденной.
func (s *CriticService) Gate(threshold, weight float64) quality.Gate {
	return quality.Gate{
		Name:          GateCritic,
		Check:         s.check,
		Threshold:     threshold,
		Weight:        weight,
		FailureAction: quality.ActionWarn,
		Enabled:       true,
	}
}

func (s *CriticService) check(ctx context.Context, c quality.Candidate) (quality.CheckResult, error) {
	st := stateFrom(ctx)
	if st == nil || !st.critic {
		return quality.CheckResult{Passed: true, Score: 1, Message: "critic not requested"}, nil
	}

	res, err := s.Review(ctx, CriticInput{
		Source:      c.Source,
		Translation: c.Output,
		SourceLang:  st.sourceLang,
		TargetLang:  st.targetLang,
		Glossary:    c.Glossary,
	})
	if err != nil {
		return quality.CheckResult{}, fmt.Errorf("critic review: %w", err)
	}

	return quality.CheckResult{
		Passed:   res.Acceptable(s.config.StrictMode),
		Score:    res.Score(),
		Message:  res.Summary(),
		Metadata: map[string]any{"suggestions": res.Suggestions},
	}, nil
}

// extractJSON достает JSON из ответа LLM который может содержать текст вокруг
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return s
	}

	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return s[start:]
}
