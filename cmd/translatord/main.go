package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kitbuilder587/translation-pipeline/internal/cache/memory"
	"github.com/kitbuilder587/translation-pipeline/internal/circuit"
	"github.com/kitbuilder587/translation-pipeline/internal/confidence"
	"github.com/kitbuilder587/translation-pipeline/internal/config"
	"github.com/kitbuilder587/translation-pipeline/internal/domain"
	"github.com/kitbuilder587/translation-pipeline/internal/failure"
	"github.com/kitbuilder587/translation-pipeline/internal/llm"
	"github.com/kitbuilder587/translation-pipeline/internal/llm/gigachat"
	"github.com/kitbuilder587/translation-pipeline/internal/llm/mock"
	"github.com/kitbuilder587/translation-pipeline/internal/llm/openrouter"
	"github.com/kitbuilder587/translation-pipeline/internal/metrics"
	"github.com/kitbuilder587/translation-pipeline/internal/quality"
	"github.com/kitbuilder587/translation-pipeline/internal/ratelimit"
	"github.com/kitbuilder587/translation-pipeline/internal/repository"
	"github.com/kitbuilder587/translation-pipeline/internal/repository/postgres"
	"github.com/kitbuilder587/translation-pipeline/internal/retry"
	"github.com/kitbuilder587/translation-pipeline/internal/service"
	"github.com/kitbuilder587/translation-pipeline/internal/telegram"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	pipeline *service.Pipeline
	bot      *telegram.Bot
	limiter  *ratelimit.Limiter
	cache    *memory.Cache
	db       *postgres.DB
	registry *prometheus.Registry
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.registry)

	policies, err := buildPolicies(cfg.Retry.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("build policies: %w", err)
	}

	// бот появляется позже реестра, поэтому оповещения идут через ссылку
	notifier := &notifierRef{}
	breakers := circuit.NewRegistry(circuit.Config{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		SuccessThreshold: cfg.Circuit.SuccessThreshold,
		Timeout:          cfg.Circuit.Timeout,
	}, circuit.WithStateChange(service.CircuitHook(m, notifier, logger)))

	executor := retry.NewExecutor(retry.Config{
		Classifier: failure.NewClassifier(policies),
		Breakers:   breakers,
		Logger:     logger,
		Metrics:    m,
	})

	providers := service.NewProviders(m)
	for _, name := range cfg.Providers() {
		if err := providers.Register(name, newProviderClient(name, cfg.LLM, logger)); err != nil {
			return nil, fmt.Errorf("register provider %s: %w", name, err)
		}
	}

	a.limiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.Pipeline.RequestsPerMinute,
		OnWait:            m.RecordRateLimitWait,
	})
	a.cache = memory.NewWithContext(ctx, memory.Config{MaxEntries: cfg.Cache.MaxEntries})

	reviews, err := a.openReviews(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	gates, err := buildGates(cfg, providers, executor, a.limiter, logger, m)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build gates: %w", err)
	}

	a.pipeline, err = service.NewPipeline(service.PipelineDeps{
		Providers:       providers,
		Executor:        executor,
		Gates:           gates,
		Limiter:         a.limiter,
		Scorer:          confidence.NewScorer(confidence.DefaultConfig()),
		Cache:           a.cache,
		CacheTTL:        cfg.Cache.TTL,
		Reviews:         reviews,
		Notifier:        notifier,
		Metrics:         m,
		Logger:          logger,
		AlternateModels: cfg.LLM.AlternateModels,
		MaxChunks:       cfg.Pipeline.MaxChunks,
		AttemptTimeout:  cfg.Retry.AttemptTimeout,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	if cfg.TelegramEnabled() {
		a.bot, err = telegram.New(telegram.BotConfig{
			Token:             cfg.Telegram.Token,
			Debug:             cfg.Telegram.Debug,
			AdminChatIDs:      cfg.Telegram.AdminChatIDs,
			RequestsPerMinute: cfg.Telegram.RequestsPerMinute,
		}, telegram.Deps{
			Circuits: breakers,
			Gates:    gates,
			Reviews:  reviews,
		}, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create telegram bot: %w", err)
		}
		notifier.Set(a.bot)
	}

	logger.Info("pipeline ready",
		zap.Strings("providers", providers.Names()),
		zap.Strings("strategies", a.pipeline.Strategies()),
		zap.Bool("telegram", a.bot != nil),
		zap.Bool("postgres", a.db != nil),
	)
	return a, nil
}

func (a *app) openReviews(ctx context.Context) (repository.ManualReviewRepository, error) {
	if a.cfg.Database.URL == "" {
		a.logger.Warn("DATABASE_URL is not set, manual reviews are kept in memory")
		return repository.NewMockReviewRepository(), nil
	}

	db, err := postgres.New(ctx, a.cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	a.db = db
	return postgres.NewReviewRepo(db), nil
}

func (a *app) serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           metricsMux(a.registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		a.logger.Info("metrics server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.bot != nil {
		g.Go(func() error {
			if err := a.bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("telegram bot: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	a.logger.Info("shutting down")
	return err
}

func (a *app) translateOnce(ctx context.Context, req domain.Request, w io.Writer) error {
	res, err := a.pipeline.Translate(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func (a *app) close() {
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.cache != nil {
		a.cache.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func metricsMux(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(g))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newProviderClient(name string, cfg config.LLMConfig, logger *zap.Logger) llm.Client {
	switch name {
	case config.ProviderOpenRouter:
		return openrouter.New(openrouter.Config{
			APIKey:  cfg.OpenRouter.APIKey,
			Model:   cfg.OpenRouter.Model,
			BaseURL: cfg.OpenRouter.BaseURL,
			Timeout: cfg.Timeout,
		}, logger)
	case config.ProviderGigaChat:
		return gigachat.New(gigachat.Config{
			AuthKey:      cfg.GigaChat.AuthKey,
			ClientID:     cfg.GigaChat.ClientID,
			ClientSecret: cfg.GigaChat.ClientSecret,
			Scope:        cfg.GigaChat.Scope,
			Model:        cfg.GigaChat.Model,
			AuthURL:      cfg.GigaChat.AuthURL,
			BaseURL:      cfg.GigaChat.BaseURL,
			Timeout:      cfg.Timeout,
		}, logger)
	default:
		return mock.New().WithName(name)
	}
}

func buildGates(cfg *config.Config, providers *service.Providers, exec *retry.Executor, limiter *ratelimit.Limiter, logger *zap.Logger, m *metrics.Metrics) (*quality.Runner, error) {
	gates := quality.DefaultGates(quality.Thresholds{
		Confidence:   cfg.Quality.Confidence,
		Preservation: cfg.Quality.Preservation,
		Agreement:    cfg.Quality.Agreement,
	}, confidence.NewAgreement(nil, logger))

	if cfg.Quality.Critic {
		// критик ходит к основному провайдеру под тем же брейкером и лимитом
		client, err := providers.Guarded("", "", exec, limiter)
		if err != nil {
			return nil, err
		}
		critic := service.NewCriticService(client, logger, domain.CriticConfig{
			MinConfidence: cfg.Quality.CriticMinConfidence,
		})
		gates = append(gates, critic.Gate(cfg.Quality.CriticMinConfidence, 0.2))
	}

	return quality.NewRunner(quality.Config{Gates: gates, Logger: logger, Metrics: m})
}

// buildPolicies применяет общий лимит повторов ко всем повторяемым категориям
func buildPolicies(maxRetries int) (*failure.PolicyTable, error) {
	table := failure.DefaultPolicies()
	if maxRetries < 0 {
		return table, nil
	}
	for _, k := range failure.Kinds() {
		p := table.Lookup(k)
		if !p.Retryable() {
			continue
		}
		next, err := table.WithPolicy(k, p.Apply(failure.Override{MaxRetries: &maxRetries}))
		if err != nil {
			return nil, err
		}
		table = next
	}
	return table, nil
}
