package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kitbuilder587/translation-pipeline/internal/cache/memory"
	"github.com/kitbuilder587/translation-pipeline/internal/circuit"
	"github.com/kitbuilder587/translation-pipeline/internal/domain"
	"github.com/kitbuilder587/translation-pipeline/internal/failure"
	"github.com/kitbuilder587/translation-pipeline/internal/llm"
	llmMock "github.com/kitbuilder587/translation-pipeline/internal/llm/mock"
	"github.com/kitbuilder587/translation-pipeline/internal/metrics"
	"github.com/kitbuilder587/translation-pipeline/internal/quality"
	"github.com/kitbuilder587/translation-pipeline/internal/repository"
	"github.com/kitbuilder587/translation-pipeline/internal/retry"
)

// clientFunc - клиент из функции, для ответов, зависящих от промпта
type clientFunc func(ctx context.Context, system, prompt string) (string, error)

func (f clientFunc) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

type recordingNotifier struct {
	mu       sync.Mutex
	reviews  []*domain.ManualReview
	circuits []string
	done     chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{done: make(chan struct{}, 16)}
}

func (n *recordingNotifier) NotifyReview(_ context.Context, r *domain.ManualReview) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reviews = append(n.reviews, r)
	return nil
}

func (n *recordingNotifier) NotifyCircuit(_ context.Context, dep string, _, to circuit.State) error {
	n.mu.Lock()
	n.circuits = append(n.circuits, dep+":"+to.String())
	n.mu.Unlock()
	n.done <- struct{}{}
	return nil
}

type fixture struct {
	primary  *llmMock.Client
	backup   *llmMock.Client
	reviews  *repository.MockReviewRepository
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	breakers *circuit.Registry
	sleeps   []time.Duration
	pipeline *Pipeline
}

type fixtureOption func(*PipelineDeps)

func withGates(gates ...quality.Gate) fixtureOption {
	return func(d *PipelineDeps) {
		r, err := quality.NewRunner(quality.Config{Gates: gates})
		if err != nil {
			panic(err)
		}
		d.Gates = r
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		primary:  llmMock.New().WithName("openrouter").WithResponse("Привет, мир!"),
		backup:   llmMock.New().WithName("gigachat").WithResponse("Здравствуй, мир!"),
		reviews:  repository.NewMockReviewRepository(),
		notifier: newRecordingNotifier(),
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.breakers = circuit.NewRegistry(circuit.DefaultConfig())

	providers := NewProviders(f.metrics)
	require.NoError(t, providers.Register("openrouter", f.primary))
	require.NoError(t, providers.Register("gigachat", f.backup))

	var mu sync.Mutex
	exec := retry.NewExecutor(retry.Config{
		Breakers: f.breakers,
		Metrics:  f.metrics,
	}, retry.WithSleep(func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		f.sleeps = append(f.sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}))

	noGates, err := quality.NewRunner(quality.Config{Gates: []quality.Gate{}})
	require.NoError(t, err)

	deps := PipelineDeps{
		Providers: providers,
		Executor:  exec,
		Gates:     noGates,
		Cache:     memory.New(),
		Reviews:   f.reviews,
		Notifier:  f.notifier,
		Metrics:   f.metrics,
		Logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	f.pipeline, err = NewPipeline(deps)
	require.NoError(t, err)
	return f
}

func request(text string) domain.Request {
	return domain.Request{Text: text, SourceLang: "en", TargetLang: "ru"}
}

func rateLimited() error {
	return &llm.APIError{Provider: "openrouter", Status: 429, Message: "Rate limit exceeded", Err: llm.ErrRateLimit}
}

func unauthorized() error {
	return &llm.APIError{Provider: "openrouter", Status: 401, Message: "invalid api key", Err: llm.ErrAuthFailed}
}

func TestPipeline_PrimarySuccess(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Translate(context.Background(), request("Hello, world!"))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAccepted, res.Status)
	assert.Equal(t, "Привет, мир!", res.Output)
	assert.Equal(t, domain.StrategyPrimary, res.Strategy)
	assert.Equal(t, "openrouter", res.Provider)
	assert.Equal(t, 1, res.Attempts)
	assert.NotEmpty(t, res.RequestID)
	assert.False(t, res.Cached)
	assert.Equal(t, 0, f.backup.CallCount())

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TranslationsTotal.WithLabelValues(string(domain.StatusAccepted))))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LLMRequestsTotal.WithLabelValues("openrouter", "success")))
}

func TestPipeline_CacheHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.pipeline.Translate(ctx, request("Hello, world!"))
	require.NoError(t, err)

	second, err := f.pipeline.Translate(ctx, request("  Hello,   world! "))
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.Output, second.Output)
	assert.NotEqual(t, first.RequestID, second.RequestID)
	assert.Equal(t, 0, second.Attempts)
	assert.Equal(t, 1, f.primary.CallCount())

	// другой язык - другой ключ
	other := request("Hello, world!")
	other.TargetLang = "de"
	_, err = f.pipeline.Translate(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 2, f.primary.CallCount())
}

// 429 дважды, потом успех: три вызова, две паузы, каскад не нужен
func TestPipeline_RateLimitedTwiceThenSucceeds(t *testing.T) {
	f := newFixture(t)
	f.primary.Script(llmMock.Reply{Err: rateLimited()}, llmMock.Reply{Err: rateLimited()})

	res, err := f.pipeline.Translate(context.Background(), request("Hello, world!"))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAccepted, res.Status)
	assert.Equal(t, domain.StrategyPrimary, res.Strategy)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, f.primary.CallCount())
	assert.Len(t, f.sleeps, 2)
	assert.Equal(t, 0, f.backup.CallCount())
	assert.Equal(t, circuit.StateClosed, f.breakers.State("openrouter"))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.RetriesTotal.WithLabelValues("openrouter", string(failure.KindRateLimited))))
}

// 401 не повторяется, каскад уходит на другого провайдера
func TestPipeline_CredentialFailureFallsBackToAlternateProvider(t *testing.T) {
	f := newFixture(t)
	f.primary.WithError(unauthorized())

	res, err := f.pipeline.Translate(context.Background(), request("Hello, world!"))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAccepted, res.Status)
	assert.Equal(t, "alternate_provider", res.Strategy)
	assert.Equal(t, "gigachat", res.Provider)
	assert.Equal(t, "Здравствуй, мир!", res.Output)
	// фатальный сбой: к основному провайдеру больше не ходим
	assert.Equal(t, 1, f.primary.CallCount())
	assert.Empty(t, f.sleeps)
	assert.Equal(t, 1, f.backup.CallCount())
}

func TestPipeline_FatalFailureDoesNotReachPrimaryAgain(t *testing.T) {
	f := newFixture(t)
	f.primary.WithError(unauthorized())
	f.backup.WithError(unauthorized())

	res, err := f.pipeline.Translate(context.Background(), request("First sentence. Second sentence. Third sentence."))
	require.NoError(t, err)

	assert.True(t, res.NeedsReview())
	assert.Equal(t, "manual_intervention", res.Strategy)
	assert.Equal(t, 1, f.primary.CallCount())
	assert.Equal(t, 1, f.backup.CallCount())
	assert.Equal(t, 1, f.breakers.GetOrCreate("openrouter").Snapshot().ConsecutiveFailures)
}

func TestPipeline_ManualReviewWhenEverythingFails(t *testing.T) {
	f := newFixture(t)
	f.primary.WithError(unauthorized())
	f.backup.WithError(&llm.APIError{Provider: "gigachat", Status: 403, Err: llm.ErrAuthFailed})

	res, err := f.pipeline.Translate(context.Background(), request("Hello, world!"))
	require.NoError(t, err)

	assert.True(t, res.NeedsReview())
	assert.False(t, res.Usable())
	assert.Equal(t, "manual_intervention", res.Strategy)
	require.NotEmpty(t, res.ReviewID)

	review, err := f.reviews.GetByID(context.Background(), res.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, res.RequestID, review.RequestID)
	assert.Equal(t, "Hello, world!", review.SourceText)
	assert.Equal(t, string(failure.KindCredentialInvalid), review.FailureKind)
	assert.True(t, review.IsPending())

	f.notifier.mu.Lock()
	assert.Len(t, f.notifier.reviews, 1)
	f.notifier.mu.Unlock()

	// needs_review не кэшируется
	_, err = f.pipeline.Translate(context.Background(), request("Hello, world!"))
	require.NoError(t, err)
	n, _ := f.reviews.CountPending(context.Background())
	assert.Equal(t, 2, n)
}

func TestPipeline_ReviewStorageFailureKeepsResult(t *testing.T) {
	f := newFixture(t)
	f.primary.WithError(unauthorized())
	f.backup.WithError(unauthorized())
	f.reviews.Err = errors.New("db down")

	res, err := f.pipeline.Translate(context.Background(), request("Hello, world!"))
	require.NoError(t, err)
	assert.True(t, res.NeedsReview())
	assert.Empty(t, res.ReviewID)
}

func formatGate(action quality.Action) quality.Gate {
	return quality.Gate{
		Name: "format",
		Check: func(_ context.Context, c quality.Candidate) (quality.CheckResult, error) {
			if strings.HasPrefix(c.Output, "Here is") {
				return quality.CheckResult{Passed: false, Score: 0, Message: "meta preamble"}, nil
			}
			return quality.CheckResult{Passed: true, Score: 1}, nil
		},
		Threshold:     1,
		Weight:        1,
		FailureAction: action,
		Enabled:       true,
	}
}

func TestPipeline_GateRetryUsesStrictFormat(t *testing.T) {
	f := newFixture(t, withGates(formatGate(quality.ActionRetry)))
	f.primary.Script(llmMock.Reply{Text: "Here is the translation: Привет"})

	res, err := f.pipeline.Translate(context.Background(), request("Hello"))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAccepted, res.Status)
	assert.Equal(t, "stricter_format", res.Strategy)
	assert.Equal(t, "Привет, мир!", res.Output)
	assert.Equal(t, 2, res.Attempts)

	last, ok := f.primary.LastCall()
	require.True(t, ok)
	assert.Contains(t, last.System, "preamble")
}

func TestPipeline_GateRetryStillFailing(t *testing.T) {
	f := newFixture(t, withGates(formatGate(quality.ActionRetry)))
	f.primary.WithResponse("Here is the translation: Привет")

	res, err := f.pipeline.Translate(context.Background(), request("Hello"))
	require.NoError(t, err)

	assert.True(t, res.NeedsReview())
	assert.Equal(t, "Here is the translation: Привет", res.Output)
	assert.NotEmpty(t, res.ReviewID)
	assert.Equal(t, 2, f.primary.CallCount())
	assert.Contains(t, res.Report, "format")
}

func TestPipeline_GateReject(t *testing.T) {
	f := newFixture(t, withGates(formatGate(quality.ActionReject)))
	f.primary.WithResponse("Here is the translation: Привет")

	res, err := f.pipeline.Translate(context.Background(), request("Hello"))
	require.NoError(t, err)

	assert.True(t, res.NeedsReview())
	// reject не повторяется
	assert.Equal(t, 1, f.primary.CallCount())

	review, err := f.reviews.GetByID(context.Background(), res.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, string(failure.KindQualityTooLow), review.FailureKind)
	assert.Contains(t, review.Reason, "format")
}

func TestPipeline_GateWarn(t *testing.T) {
	f := newFixture(t, withGates(formatGate(quality.ActionWarn)))
	f.primary.WithResponse("Here is the translation: Привет")

	res, err := f.pipeline.Translate(context.Background(), request("Hello"))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusWarned, res.Status)
	assert.True(t, res.Usable())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "format")
}

func TestPipeline_CandidatesFeedAgreement(t *testing.T) {
	var got []string
	gate := quality.Gate{
		Name: "agreement",
		Check: func(_ context.Context, c quality.Candidate) (quality.CheckResult, error) {
			got = c.Alternatives
			return quality.CheckResult{Passed: true, Score: 1}, nil
		},
		Threshold:     0.5,
		Weight:        1,
		FailureAction: quality.ActionWarn,
		Enabled:       true,
	}
	f := newFixture(t, withGates(gate))

	req := request("Hello, world!")
	req.Profile = domain.Profile{Type: domain.ProfileStandard, Candidates: 1, MaxRetries: -1, TimeoutSeconds: 30}

	res, err := f.pipeline.Translate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAccepted, res.Status)
	assert.Equal(t, []string{"Здравствуй, мир!"}, got)
	assert.Equal(t, 1, f.backup.CallCount())
	assert.Equal(t, 2, res.Attempts)
}

func TestPipeline_FailedCandidateIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.backup.WithError(rateLimited())

	req := request("Hello, world!")
	req.Profile = domain.Profile{Type: domain.ProfileStandard, Candidates: 1, MaxRetries: -1, TimeoutSeconds: 30}

	res, err := f.pipeline.Translate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, res.Status)
	// кандидаты идут без повторов
	assert.Equal(t, 1, f.backup.CallCount())
}

func TestPipeline_QuickProfileLimitsRetries(t *testing.T) {
	f := newFixture(t)
	f.primary.Script(llmMock.Reply{Err: rateLimited()}, llmMock.Reply{Err: rateLimited()})

	req := request("Hello, world!")
	req.Profile = domain.QuickProfile()

	res, err := f.pipeline.Translate(context.Background(), req)
	require.NoError(t, err)

	// один повтор, затем каскад: reduced_context пропущен, ответ от gigachat
	assert.Equal(t, "alternate_provider", res.Strategy)
	assert.Equal(t, 2, f.primary.CallCount())
}

func TestPipeline_InvalidRequest(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		req      domain.Request
		wantErr  error
		wantKind failure.Kind
	}{
		{"empty text", domain.Request{Text: "  ", TargetLang: "ru"}, domain.ErrEmptyText, failure.KindEmptyInput},
		{"too long", domain.Request{Text: strings.Repeat("a", domain.MaxTextRunes+1), TargetLang: "ru"}, domain.ErrTextTooLong, failure.KindUnsupportedInput},
		{"no target", domain.Request{Text: "hi"}, domain.ErrMissingTargetLang, failure.KindInvalidInput},
		{"same language", domain.Request{Text: "hi", SourceLang: "EN", TargetLang: "en"}, domain.ErrSameLanguage, failure.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.pipeline.Translate(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			kind, ok := failure.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
	assert.Equal(t, 0, f.primary.CallCount())
}

func TestPipeline_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Translate(ctx, request("Hello"))
	require.ErrorIs(t, err, failure.ErrCancelled)
	assert.Equal(t, 0, f.backup.CallCount())

	n, _ := f.reviews.CountPending(context.Background())
	assert.Equal(t, 0, n)
}

func TestPipeline_OpenCircuitSkipsPrimary(t *testing.T) {
	f := newFixture(t)
	b := f.breakers.GetOrCreate("openrouter")
	for i := 0; i < circuit.DefaultConfig().FailureThreshold; i++ {
		b.RecordFailure()
	}
	require.Equal(t, circuit.StateOpen, f.breakers.State("openrouter"))

	res, err := f.pipeline.Translate(context.Background(), request("Hello, world!"))
	require.NoError(t, err)

	assert.Equal(t, "alternate_provider", res.Strategy)
	assert.Equal(t, 0, f.primary.CallCount())
}

func TestPipeline_AlternateModel(t *testing.T) {
	f := newFixture(t, func(d *PipelineDeps) {
		d.AlternateModels = []string{"qwen/qwen-2.5-72b-instruct"}
	})
	overloaded := &llm.APIError{Provider: "openrouter", Status: 529, Err: llm.ErrOverloaded}
	f.primary.WithError(overloaded)
	f.backup.WithError(unauthorized())
	f.primary.WithModel("qwen/qwen-2.5-72b-instruct")
	f.primary.Model("qwen/qwen-2.5-72b-instruct").WithError(nil).WithResponse("Привет от qwen")

	res, err := f.pipeline.Translate(context.Background(), request("Hello, world!"))
	require.NoError(t, err)

	assert.Equal(t, "alternate_model", res.Strategy)
	assert.Equal(t, "qwen/qwen-2.5-72b-instruct", res.Model)
	assert.Equal(t, "Привет от qwen", res.Output)
}

func TestPipeline_Strategies(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{
		"reduced_context", "alternate_provider", "alternate_model",
		"stricter_format", "smaller_chunks", "manual_intervention",
	}, f.pipeline.Strategies())
}

func TestNewPipeline_Validation(t *testing.T) {
	_, err := NewPipeline(PipelineDeps{Providers: NewProviders(nil)})
	assert.ErrorIs(t, err, ErrNoProviders)

	p := NewProviders(nil)
	require.NoError(t, p.Register("a", llmMock.New()))
	_, err = NewPipeline(PipelineDeps{Providers: p})
	kind, _ := failure.KindOf(err)
	assert.Equal(t, failure.KindConfigurationInvalid, kind)
}

func TestTranslateBatch_PreservesOrder(t *testing.T) {
	echo := clientFunc(func(_ context.Context, _, prompt string) (string, error) {
		return "T:" + prompt, nil
	})
	p := NewProviders(nil)
	require.NoError(t, p.Register("echo", echo))
	gates, err := quality.NewRunner(quality.Config{Gates: []quality.Gate{}})
	require.NoError(t, err)
	pipeline, err := NewPipeline(PipelineDeps{
		Providers: p,
		Executor:  retry.NewExecutor(retry.Config{}),
		Gates:     gates,
	})
	require.NoError(t, err)

	reqs := []domain.Request{
		request("one"), request("two"), {Text: "", TargetLang: "ru"}, request("four"), request("five"),
	}
	items, err := pipeline.TranslateBatch(context.Background(), reqs, 2)
	require.NoError(t, err)
	require.Len(t, items, len(reqs))

	for i, want := range []string{"T:one", "T:two", "", "T:four", "T:five"} {
		if want == "" {
			assert.ErrorIs(t, items[i].Err, domain.ErrEmptyText)
			continue
		}
		require.NoError(t, items[i].Err)
		assert.Equal(t, want, items[i].Result.Output)
	}
}

func TestTranslateBatch_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, err := f.pipeline.TranslateBatch(ctx, []domain.Request{request("a"), request("b")}, 0)
	require.ErrorIs(t, err, failure.ErrCancelled)
	for _, it := range items {
		assert.Error(t, it.Err)
	}
}

func TestCircuitHook(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	n := newRecordingNotifier()
	hook := CircuitHook(m, n, nil)

	reg := circuit.NewRegistry(circuit.Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute},
		circuit.WithStateChange(hook))
	reg.GetOrCreate("openrouter").RecordFailure()

	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("circuit notification not delivered")
	}

	assert.Equal(t, float64(circuit.StateOpen), testutil.ToFloat64(m.CircuitState.WithLabelValues("openrouter")))
	n.mu.Lock()
	assert.Equal(t, []string{"openrouter:" + circuit.StateOpen.String()}, n.circuits)
	n.mu.Unlock()
}
