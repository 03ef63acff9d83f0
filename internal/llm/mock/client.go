package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/kitbuilder587/translation-pipeline/internal/llm"
)

// Reply - один заготовленный ответ. Пустой Text и nil Err дают Response по умолчанию.
type Reply struct {
	Text string
	Err  error
}

type Client struct {
	Provider string
	Response string
	Error    error
	Delay    time.Duration

	mu      sync.Mutex
	script  []Reply
	models  map[string]*Client
	model   string
	calls   []LLMCall
	parent  *Client
	counter int
}

type LLMCall struct {
	Model  string
	System string
	Prompt string
}

func New() *Client {
	return &Client{
		Provider: "mock",
		Response: "Mock translation.",
	}
}

func (c *Client) WithResponse(response string) *Client {
	c.Response = response
	return c
}

func (c *Client) WithError(err error) *Client {
	c.Error = err
	return c
}

func (c *Client) WithDelay(delay time.Duration) *Client {
	c.Delay = delay
	return c
}

func (c *Client) WithName(name string) *Client {
	c.Provider = name
	return c
}

// Script - очередь ответов, по одному на вызов. Когда очередь кончилась,
// работают Response и Error.
func (c *Client) Script(replies ...Reply) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, replies...)
	return c
}

func (c *Client) Name() string { return c.Provider }

// WithModel возвращает отдельного мок-клиента на модель, вызовы
// записываются и в него, и в родителя.
func (c *Client) WithModel(model string) llm.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.models == nil {
		c.models = make(map[string]*Client)
	}
	if m, ok := c.models[model]; ok {
		return m
	}
	m := &Client{
		Provider: c.Provider,
		Response: c.Response,
		Error:    c.Error,
		Delay:    c.Delay,
		model:    model,
		parent:   c,
	}
	c.models[model] = m
	return m
}

// Model возвращает клиента модели, созданного через WithModel.
func (c *Client) Model(model string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.models[model]
}

func (c *Client) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	call := LLMCall{Model: c.model, System: system, Prompt: prompt}
	c.record(call)
	if c.parent != nil {
		c.parent.record(call)
	}

	if c.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if r, ok := c.next(); ok {
		if r.Err != nil {
			return "", r.Err
		}
		if r.Text != "" {
			return r.Text, nil
		}
	}

	if c.Error != nil {
		return "", c.Error
	}

	return c.Response, nil
}

func (c *Client) record(call LLMCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	c.calls = append(c.calls, call)
}

func (c *Client) next() (Reply, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.script) == 0 {
		return Reply{}, false
	}
	r := c.script[0]
	c.script = c.script[1:]
	return r, true
}

func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}

func (c *Client) AllCalls() []LLMCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LLMCall, len(c.calls))
	copy(out, c.calls)
	return out
}

func (c *Client) LastCall() (LLMCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return LLMCall{}, false
	}
	return c.calls[len(c.calls)-1], true
}

func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter = 0
	c.calls = nil
	c.script = nil
}

// HasCallWith - был ли вызов, в системном промпте которого есть substr
func (c *Client) HasCallWith(substr string) bool {
	for _, call := range c.AllCalls() {
		if strings.Contains(call.System, substr) {
			return true
		}
	}
	return false
}

var (
	_ llm.Client        = (*Client)(nil)
	_ llm.Named         = (*Client)(nil)
	_ llm.ModelSwitcher = (*Client)(nil)
)
