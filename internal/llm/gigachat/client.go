package gigachat

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitbuilder587/translation-pipeline/internal/llm"
)

const ProviderName = "gigachat"

type Config struct {
	AuthKey      string // готовый ключ авторизации (предпочтительно)
	ClientID     string // альтернатива: будет base64(id:secret)
	ClientSecret string
	Scope        string
	Model        string
	AuthURL      string
	BaseURL      string
	Timeout      time.Duration
	Temperature  *float64
}

type Client struct {
	authKey     string
	scope       string
	model       string
	authURL     string
	baseURL     string
	temperature *float64
	client      *http.Client
	logger      *zap.Logger

	tokens *tokenStore
}

// tokenStore общий для клиентов с разными моделями
type tokenStore struct {
	mu          sync.RWMutex
	accessToken string
	tokenExpiry time.Time
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://gigachat.devices.sberbank.ru/api/v1"
	}
	if cfg.Scope == "" {
		cfg.Scope = "GIGACHAT_API_PERS"
	}
	if cfg.Model == "" {
		cfg.Model = "GigaChat"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// У Сбера самоподписанный сертификат, приходится отключать проверку
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
		},
	}

	authKey := cfg.AuthKey
	if authKey == "" && cfg.ClientID != "" && cfg.ClientSecret != "" {
		authKey = base64.StdEncoding.EncodeToString([]byte(cfg.ClientID + ":" + cfg.ClientSecret))
	}

	return &Client{
		authKey:     authKey,
		scope:       cfg.Scope,
		model:       cfg.Model,
		authURL:     cfg.AuthURL,
		baseURL:     cfg.BaseURL,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout, Transport: transport},
		logger:      logger.Named(ProviderName),
		tokens:      &tokenStore{},
	}
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) Model() string { return c.model }

// WithModel - GigaChat, GigaChat-Pro, GigaChat-Max; токен общий
func (c *Client) WithModel(model string) llm.Client {
	if model == "" || model == c.model {
		return c
	}
	clone := *c
	clone.model = model
	return &clone
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

func (c *Client) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	return c.complete(ctx, system, prompt, false)
}

func (c *Client) complete(ctx context.Context, system, prompt string, isRetry bool) (string, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return "", err
	}

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
	httpReq.Header.Set("Authorization", "Bearer "+token)

	respBody, statusCode, header, err := llm.DoRequest(c.client, httpReq)
	if err != nil {
		return "", err
	}

	// при 401 пробуем обновить токен один раз, это не ошибка ключа
	if statusCode == http.StatusUnauthorized && !isRetry {
		c.invalidateToken()
		return c.complete(ctx, system, prompt, true)
	}

	if statusCode != http.StatusOK {
		return "", llm.HandleHTTPError(statusCode, header, respBody, c.logger, ProviderName)
	}

	chatResp, err := llm.ParseChatResponse(respBody)
	if err != nil {
		return "", err
	}

	return llm.ExtractContent(chatResp)
}

func (c *Client) getToken(ctx context.Context) (string, error) {
	c.tokens.mu.RLock()
	if c.tokens.accessToken != "" && time.Now().Before(c.tokens.tokenExpiry.Add(-5*time.Minute)) {
		token := c.tokens.accessToken
		c.tokens.mu.RUnlock()
		return token, nil
	}
	c.tokens.mu.RUnlock()

	return c.refreshToken(ctx)
}

func (c *Client) refreshToken(ctx context.Context) (string, error) {
	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()

	// double-check после захвата лока
	if c.tokens.accessToken != "" && time.Now().Before(c.tokens.tokenExpiry.Add(-5*time.Minute)) {
		return c.tokens.accessToken, nil
	}

	data := url.Values{}
	data.Set("scope", c.scope)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, bytes.NewBufferString(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("create auth request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Basic "+c.authKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("RqUID", uuid.New().String()) // Сбер требует уникальный id запроса

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// сеть недоступна - это не проблема ключа, пусть классификатор решит по причине
		return "", fmt.Errorf("%w: %w", llm.ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			message, code := llm.ParseErrorBody(body)
			c.logger.Error("gigachat auth failed",
				zap.Int("status", resp.StatusCode),
				zap.String("body", string(body)),
			)
			return "", &llm.APIError{
				Provider: ProviderName,
				Status:   resp.StatusCode,
				Code:     code,
				Message:  message,
				Err:      llm.ErrAuthFailed,
			}
		}
		return "", llm.HandleHTTPError(resp.StatusCode, resp.Header, body, c.logger, ProviderName)
	}

	var authResp authResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}

	c.tokens.accessToken = authResp.AccessToken
	c.tokens.tokenExpiry = time.UnixMilli(authResp.ExpiresAt)

	c.logger.Debug("gigachat token refreshed",
		zap.Time("expires", c.tokens.tokenExpiry),
	)

	return c.tokens.accessToken, nil
}

func (c *Client) invalidateToken() {
	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()
	c.tokens.accessToken = ""
	c.tokens.tokenExpiry = time.Time{}
}
