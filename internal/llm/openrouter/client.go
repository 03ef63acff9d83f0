package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kitbuilder587/translation-pipeline/internal/llm"
)

const ProviderName = "openrouter"

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
	// Temperature: для перевода лучше низкая, nil - значение провайдера
	Temperature *float64
}

type Client struct {
	apiKey      string
	model       string
	baseURL     string
	temperature *float64
	client      *http.Client
	logger      *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek/deepseek-chat"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     cfg.BaseURL,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      logger.Named(ProviderName),
	}
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) Model() string { return c.model }

// WithModel - тот же ключ и http-клиент, другая модель
func (c *Client) WithModel(model string) llm.Client {
	if model == "" || model == c.model {
		return c
	}
	clone := *c
	clone.model = model
	return &clone
}

type openRouterResponse struct {
	llm.ChatResponse
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code"`
}

func (c *Client) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	req := llm.NewChatRequest(c.model, system, prompt)
	req.Temperature = c.temperature

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://github.com/kitbuilder587/translation-pipeline")
	httpReq.Header.Set("X-Title", "Translation Pipeline")

	respBody, statusCode, header, err := llm.DoRequest(c.client, httpReq)
	if err != nil {
		return "", err
	}

	if statusCode != http.StatusOK {
		return "", llm.HandleHTTPError(statusCode, header, respBody, c.logger, ProviderName)
	}

	var chatResp openRouterResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	// OpenRouter иногда отдает ошибку апстрима с кодом 200
	if chatResp.Error != nil {
		_, code := llm.ParseErrorBody(respBody)
		return "", &llm.APIError{
			Provider: ProviderName,
			Code:     code,
			Message:  chatResp.Error.Message,
			Err:      llm.ErrRequestFailed,
		}
	}

	return llm.ExtractContent(&chatResp.ChatResponse)
}
