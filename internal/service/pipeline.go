package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kitbuilder587/translation-pipeline/internal/cache"
	"github.com/kitbuilder587/translation-pipeline/internal/confidence"
	"github.com/kitbuilder587/translation-pipeline/internal/domain"
	"github.com/kitbuilder587/translation-pipeline/internal/failure"
	"github.com/kitbuilder587/translation-pipeline/internal/fallback"
	"github.com/kitbuilder587/translation-pipeline/internal/metrics"
	"github.com/kitbuilder587/translation-pipeline/internal/quality"
	"github.com/kitbuilder587/translation-pipeline/internal/ratelimit"
	"github.com/kitbuilder587/translation-pipeline/internal/repository"
	"github.com/kitbuilder587/translation-pipeline/internal/retry"
)

const (
	DefaultCacheTTL  = 24 * time.Hour
	DefaultMaxChunks = 4

	dispositionNeedsReview = "needs_review"
	dispositionFailed      = "failed"
)

type PipelineDeps struct {
	Providers *Providers
	Executor  *retry.Executor
	Gates     *quality.Runner

	// дальше все опционально
	Limiter  *ratelimit.Limiter
	Scorer   *confidence.Scorer
	Cache    cache.Cache
	CacheTTL time.Duration
	Reviews  repository.ManualReviewRepository
	Notifier Notifier
	Prompts  PromptBuilder
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	// AlternateModels - модели основного провайдера для alternate_model
	AlternateModels []string
	MaxChunks       int
	AttemptTimeout  time.Duration
}

type Pipeline struct {
	providers *Providers
	runner    *providerRunner
	cascade   *fallback.Cascade
	gates     *quality.Runner
	scorer    *confidence.Scorer
	cache     cache.Cache
	cacheTTL  time.Duration
	reviews   repository.ManualReviewRepository
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *zap.Logger
	models    []string
}

func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.Providers == nil || len(deps.Providers.Names()) == 0 {
		return nil, failure.Tag(failure.KindConfigurationInvalid, ErrNoProviders)
	}
	if deps.Executor == nil {
		return nil, failure.Tag(failure.KindConfigurationInvalid, errors.New("retry executor is required"))
	}
	if deps.Gates == nil {
		return nil, failure.Tag(failure.KindConfigurationInvalid, errors.New("quality gate runner is required"))
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Scorer == nil {
		deps.Scorer = confidence.NewScorer(confidence.DefaultConfig())
	}
	if deps.Prompts == nil {
		deps.Prompts = DefaultPromptBuilder{}
	}
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = DefaultCacheTTL
	}
	if deps.MaxChunks < 2 {
		deps.MaxChunks = DefaultMaxChunks
	}

	logger := deps.Logger.Named("pipeline")
	runner := &providerRunner{
		providers:      deps.Providers,
		exec:           deps.Executor,
		limiter:        deps.Limiter,
		prompts:        deps.Prompts,
		attemptTimeout: deps.AttemptTimeout,
		logger:         logger,
	}

	breakers := deps.Executor.Breakers()
	cascade := fallback.NewCascade(fallback.Config{
		Classifier: deps.Executor.Classifier(),
		Breakers:   breakers,
		Logger:     deps.Logger,
		Metrics:    deps.Metrics,
	}, []fallback.Strategy{
		fallback.ReducedContext{Runner: runner},
		fallback.AlternateProvider{Runner: runner, Providers: deps.Providers.Names(), Breakers: breakers},
		fallback.AlternateModel{Runner: runner, Models: deps.AlternateModels},
		fallback.StricterFormat{Runner: runner},
		fallback.SmallerChunks{Runner: runner, MaxChunks: deps.MaxChunks},
	})

	return &Pipeline{
		providers: deps.Providers,
		runner:    runner,
		cascade:   cascade,
		gates:     deps.Gates,
		scorer:    deps.Scorer,
		cache:     deps.Cache,
		cacheTTL:  deps.CacheTTL,
		reviews:   deps.Reviews,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    logger,
		models:    deps.AlternateModels,
	}, nil
}

// produced - вариант перевода и путь, которым он получен
type produced struct {
	output   string
	strategy string
	provider string
	model    string
}

// Translate возвращает ошибку только для некорректного запроса и отмены.
// Все остальное, включая полный провал, - это Result (needs_review).
func (p *Pipeline) Translate(ctx context.Context, req domain.Request) (*domain.Result, error) {
	start := time.Now()

	req.Sanitize()
	if err := req.Validate(); err != nil {
		p.recordTranslation(dispositionFailed, start)
		return nil, failure.Tag(inputKind(err), err)
	}

	if p.metrics != nil {
		p.metrics.IncInFlight()
		defer p.metrics.DecInFlight()
	}

	key := cache.Key(cache.KeyParts{
		Text:       req.Text,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		Profile:    string(req.Profile.Type),
		Glossary:   req.Glossary,
	})
	if res, ok := p.cached(key); ok {
		res.RequestID = req.ID
		res.Duration = time.Since(start)
		p.logger.Debug("translation served from cache", zap.String("request_id", req.ID))
		return res, nil
	}

	if req.Profile.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Profile.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	st := &requestState{
		attempts:   new(atomic.Int32),
		maxRetries: req.Profile.MaxRetries,
		critic:     req.Profile.UseCritic,
		sourceLang: req.SourceLang,
		targetLang: req.TargetLang,
	}
	ctx = withState(ctx, st)

	item := fallback.Item{
		ID:         req.ID,
		Text:       req.Text,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		Glossary:   req.Glossary,
		Context:    req.Context,
		Provider:   p.providers.Primary(),
	}

	res, err := p.translate(ctx, req, item, st)
	if err != nil {
		p.recordTranslation(dispositionFailed, start)
		return nil, err
	}
	res.Attempts = int(st.attempts.Load())
	res.Duration = time.Since(start)

	if res.Usable() {
		p.store(key, res)
	}

	disposition := dispositionNeedsReview
	if !res.NeedsReview() {
		disposition = string(res.Status)
	}
	p.recordTranslation(disposition, start)

	p.logger.Info("translation finished",
		zap.String("request_id", req.ID),
		zap.String("status", string(res.Status)),
		zap.String("strategy", res.Strategy),
		zap.String("provider", res.Provider),
		zap.Float64("confidence", res.Confidence),
		zap.Int("attempts", res.Attempts),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (p *Pipeline) translate(ctx context.Context, req domain.Request, item fallback.Item, st *requestState) (*domain.Result, error) {
	got, fb, err := p.produce(ctx, item)
	if err != nil {
		return nil, err
	}
	if got == nil {
		reason := "all fallback strategies failed"
		kind := failure.KindUnknown
		if fb.Err != nil {
			cls := p.runner.exec.Classifier().Classify(fb.Err)
			kind = cls.Kind
			reason = fmt.Sprintf("%s: %s", reason, fb.Err)
		}
		return p.needsReview(ctx, req, "", nil, reason, kind)
	}

	conf := p.score(got.output, req)
	alternatives := p.candidates(ctx, item, got, req.Profile.Candidates, st)
	rr := p.gates.Run(ctx, p.candidate(req, got, conf, alternatives))

	// один повтор по решению гейтов: тот же маршрут, строгий формат
	if rr.Disposition() == quality.DispositionRetry {
		p.logger.Info("quality gates requested retry",
			zap.String("request_id", req.ID),
			zap.Strings("reasons", rr.Actions.RetryReasons),
		)
		out, rerr := p.runner.Run(ctx, fallback.Call{
			Item:     item,
			Text:     item.Text,
			Provider: got.provider,
			Model:    got.model,
			Mode:     fallback.ModeStrict,
		})
		if rerr != nil {
			if isCancelled(ctx, rerr) {
				return nil, cancelledErr(ctx, rerr)
			}
			p.logger.Warn("gate-driven retry failed", zap.String("request_id", req.ID), zap.Error(rerr))
		} else {
			got = &produced{output: out, strategy: fallback.StricterFormat{}.Name(), provider: got.provider, model: got.model}
			conf = p.score(got.output, req)
			rr = p.gates.Run(ctx, p.candidate(req, got, conf, alternatives))
		}
	}

	res := &domain.Result{
		RequestID:    req.ID,
		Output:       got.output,
		Confidence:   conf,
		Strategy:     got.strategy,
		Provider:     got.provider,
		Model:        got.model,
		OverallScore: rr.OverallScore,
		Report:       quality.Report(rr),
	}

	switch rr.Disposition() {
	case quality.DispositionAccept:
		res.Status = domain.StatusAccepted
		return res, nil
	case quality.DispositionWarn:
		res.Status = domain.StatusWarned
		res.Warnings = rr.Actions.WarnReasons
		return res, nil
	case quality.DispositionRetry:
		return p.needsReview(ctx, req, got.output, res, strings.Join(rr.Actions.RetryReasons, "; "), failure.KindQualityTooLow)
	default:
		return p.needsReview(ctx, req, got.output, res, strings.Join(rr.Actions.RejectReasons, "; "), failure.KindQualityTooLow)
	}
}

// produce: основной провайдер, при провале - каскад. nil без ошибки значит
// ручную проверку.
func (p *Pipeline) produce(ctx context.Context, item fallback.Item) (*produced, fallback.Result, error) {
	out, err := p.runner.Run(ctx, fallback.Call{
		Item:     item,
		Text:     item.Text,
		Provider: item.Provider,
		Mode:     fallback.ModeStandard,
	})
	if err == nil {
		return &produced{output: out, strategy: domain.StrategyPrimary, provider: item.Provider}, fallback.Result{}, nil
	}
	if isCancelled(ctx, err) {
		return nil, fallback.Result{}, cancelledErr(ctx, err)
	}

	p.logger.Warn("primary provider failed, running fallback cascade",
		zap.String("request_id", item.ID),
		zap.String("provider", item.Provider),
		zap.Error(err),
	)

	fb := p.cascade.Execute(ctx, item, err)
	switch {
	case fb.Success:
		return &produced{output: fb.Output, strategy: fb.StrategyUsed, provider: fb.Provider, model: fb.Model}, fb, nil
	case fb.RequiresManualIntervention:
		return nil, fb, nil
	default:
		return nil, fb, cancelledErr(ctx, fb.Err)
	}
}

func (p *Pipeline) score(output string, req domain.Request) float64 {
	return p.scorer.Score(output, req.Text, confidence.Options{
		Glossary:         req.Glossary,
		CheckPunctuation: true,
		CheckFormatting:  true,
		SourceScript:     confidence.LeakScript(req.Text, req.TargetLang),
	})
}

func (p *Pipeline) candidate(req domain.Request, got *produced, conf float64, alternatives []string) quality.Candidate {
	return quality.Candidate{
		Output:       got.output,
		Source:       req.Text,
		Confidence:   conf,
		Alternatives: alternatives,
		Glossary:     req.Glossary,
		Provider:     got.provider,
		Model:        got.model,
	}
}

// candidates - дополнительные переводы для сверки. Без повторов, упавшие
// просто пропускаются: сверка не должна ронять запрос.
func (p *Pipeline) candidates(ctx context.Context, item fallback.Item, got *produced, n int, st *requestState) []string {
	if n <= 0 {
		return nil
	}
	routes := p.candidateRoutes(got, n)
	if len(routes) == 0 {
		return nil
	}

	cctx := withState(ctx, st.derive(0))
	outputs := make([]string, len(routes))

	var g errgroup.Group
	for i, rt := range routes {
		g.Go(func() error {
			out, err := p.runner.Run(cctx, fallback.Call{
				Item:     item,
				Text:     item.Text,
				Provider: rt.Provider,
				Model:    rt.Model,
				Mode:     fallback.ModeStandard,
			})
			if err != nil {
				p.logger.Debug("candidate generation failed",
					zap.String("provider", rt.Provider),
					zap.String("model", rt.Model),
					zap.Error(err),
				)
				return nil
			}
			outputs[i] = out
			return nil
		})
	}
	_ = g.Wait()

	alternatives := make([]string, 0, len(outputs))
	for _, out := range outputs {
		if out != "" {
			alternatives = append(alternatives, out)
		}
	}
	return alternatives
}

// candidateRoutes: сначала другие провайдеры, потом другие модели того же
func (p *Pipeline) candidateRoutes(got *produced, n int) []Route {
	var routes []Route
	for _, name := range p.providers.Names() {
		if len(routes) == n {
			return routes
		}
		if name != got.provider {
			routes = append(routes, Route{Provider: name})
		}
	}
	for _, m := range p.models {
		if len(routes) == n {
			return routes
		}
		if m != got.model {
			routes = append(routes, Route{Provider: got.provider, Model: m})
		}
	}
	return routes
}

// needsReview ставит заявку в очередь и оповещает операторов. Сбой
// хранилища не роняет запрос: результат уже needs_review.
func (p *Pipeline) needsReview(ctx context.Context, req domain.Request, output string, base *domain.Result, reason string, kind failure.Kind) (*domain.Result, error) {
	res := base
	if res == nil {
		res = &domain.Result{RequestID: req.ID, Strategy: "manual_intervention"}
	}
	res.Status = domain.StatusNeedsReview
	res.Warnings = append(res.Warnings, reason)

	review := &domain.ManualReview{
		RequestID:   req.ID,
		SourceText:  req.Text,
		Output:      output,
		SourceLang:  req.SourceLang,
		TargetLang:  req.TargetLang,
		Reason:      reason,
		FailureKind: string(kind),
	}

	// заявка должна сохраниться, даже если таймаут запроса уже истек
	sctx := context.WithoutCancel(ctx)
	if p.reviews != nil {
		if err := p.reviews.Create(sctx, review); err != nil {
			p.logger.Error("failed to persist manual review",
				zap.String("request_id", req.ID),
				zap.Error(err),
			)
		} else {
			res.ReviewID = review.ID
		}
	}

	p.logger.Warn("translation requires manual review",
		zap.String("request_id", req.ID),
		zap.String("review_id", res.ReviewID),
		zap.String("kind", string(kind)),
		zap.String("reason", reason),
	)

	if p.notifier != nil {
		nctx, cancel := context.WithTimeout(sctx, notifyTimeout)
		defer cancel()
		if err := p.notifier.NotifyReview(nctx, review); err != nil {
			p.logger.Warn("review notification failed", zap.String("request_id", req.ID), zap.Error(err))
		}
	}
	return res, nil
}

func (p *Pipeline) cached(key string) (*domain.Result, bool) {
	if p.cache == nil {
		return nil, false
	}
	v, ok := p.cache.Get(key)
	if !ok {
		if p.metrics != nil {
			p.metrics.RecordCacheMiss()
		}
		return nil, false
	}
	stored, ok := v.(*domain.Result)
	if !ok {
		p.cache.Delete(key)
		return nil, false
	}
	if p.metrics != nil {
		p.metrics.RecordCacheHit()
	}
	res := *stored
	res.Warnings = append([]string(nil), stored.Warnings...)
	res.Cached = true
	res.Attempts = 0
	return &res, true
}

func (p *Pipeline) store(key string, res *domain.Result) {
	if p.cache == nil {
		return
	}
	cp := *res
	cp.Warnings = append([]string(nil), res.Warnings...)
	p.cache.Set(key, &cp, p.cacheTTL)
}

func (p *Pipeline) recordTranslation(disposition string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordTranslation(disposition, time.Since(start))
	}
}

// Strategies - порядок каскада, для админских команд
func (p *Pipeline) Strategies() []string { return p.cascade.Strategies() }

func inputKind(err error) failure.Kind {
	switch {
	case errors.Is(err, domain.ErrEmptyText):
		return failure.KindEmptyInput
	case errors.Is(err, domain.ErrTextTooLong):
		return failure.KindUnsupportedInput
	default:
		return failure.KindInvalidInput
	}
}

func isCancelled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, failure.ErrCancelled) || errors.Is(err, context.Canceled)
}

func cancelledErr(ctx context.Context, err error) error {
	if errors.Is(err, failure.ErrCancelled) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", failure.ErrCancelled, ctxErr)
	}
	if err == nil {
		return failure.ErrCancelled
	}
	return fmt.Errorf("%w: %w", failure.ErrCancelled, err)
}
