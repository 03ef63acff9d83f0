package service

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kitbuilder587/translation-pipeline/internal/failure"
	"github.com/kitbuilder587/translation-pipeline/internal/llm"
	"github.com/kitbuilder587/translation-pipeline/internal/metrics"
)

var (
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrDuplicateProvider = errors.New("provider already registered")
	ErrNoProviders       = errors.New("no providers registered")
)

// Route - конкретный клиент и ключ зависимости для брейкера
type Route struct {
	Provider   string
	Model      string
	Dependency string
	Client     llm.Client
}

// Providers хранит клиентов в порядке регистрации; первый - основной
type Providers struct {
	mu      sync.RWMutex
	clients map[string]llm.Client
	order   []string
	metrics *metrics.Metrics
}

func NewProviders(m *metrics.Metrics) *Providers {
	return &Providers{
		clients: make(map[string]llm.Client),
		metrics: m,
	}
}

func (p *Providers) Register(name string, c llm.Client) error {
	if name == "" || c == nil {
		return failure.Tag(failure.KindConfigurationInvalid, fmt.Errorf("%w: empty name or client", ErrUnknownProvider))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.clients[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, name)
	}
	p.clients[name] = llm.WithMetrics(c, name, p.metrics)
	p.order = append(p.order, name)
	return nil
}

func (p *Providers) Primary() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.order) == 0 {
		return ""
	}
	return p.order[0]
}

func (p *Providers) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Resolve: пустой provider - основной. Явная модель получает свою цепь
// "provider/model", потому что перегрузка бывает у отдельной модели.
func (p *Providers) Resolve(provider, model string) (Route, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if provider == "" {
		if len(p.order) == 0 {
			return Route{}, failure.Tag(failure.KindConfigurationInvalid, ErrNoProviders)
		}
		provider = p.order[0]
	}
	client, ok := p.clients[provider]
	if !ok {
		return Route{}, failure.Tag(failure.KindConfigurationInvalid, fmt.Errorf("%w: %s", ErrUnknownProvider, provider))
	}

	route := Route{Provider: provider, Dependency: provider, Client: client}
	if model == "" {
		return route, nil
	}
	sw, ok := client.(llm.ModelSwitcher)
	if !ok {
		return Route{}, failure.Tag(failure.KindConfigurationInvalid,
			fmt.Errorf("provider %s does not support model selection", provider))
	}
	route.Model = model
	route.Dependency = provider + "/" + model
	route.Client = sw.WithModel(model)
	return route, nil
}
