package llm

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

func NewChatRequest(model, system, prompt string) ChatRequest {
	return ChatRequest{
		Model: model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	}
}

// errorCode принимает и строку, и число: провайдеры пишут код по-разному
type errorCode string

func (c *errorCode) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = errorCode(s)
		return nil
	}
	*c = errorCode(strings.TrimSpace(string(b)))
	if *c == "null" {
		*c = ""
	}
	return nil
}

type errorDetail struct {
	Message string    `json:"message"`
	Type    string    `json:"type"`
	Code    errorCode `json:"code"`
}

// ParseErrorBody вытаскивает сообщение и код из тела ошибки.
// Понимает {"error":{...}}, {"error":"..."} и плоский {"message","code"}.
func ParseErrorBody(body []byte) (message, code string) {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Code    errorCode       `json:"code"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return strings.TrimSpace(truncate(string(body), 300)), ""
	}

	message, code = envelope.Message, string(envelope.Code)
	if len(envelope.Error) == 0 {
		return message, code
	}

	var detail errorDetail
	if err := json.Unmarshal(envelope.Error, &detail); err == nil {
		if detail.Message != "" {
			message = detail.Message
		}
		if detail.Code != "" {
			code = string(detail.Code)
		} else if detail.Type != "" && code == "" {
			code = detail.Type
		}
		return message, code
	}

	var s string
	if err := json.Unmarshal(envelope.Error, &s); err == nil && message == "" {
		message = s
	}
	return message, code
}

// ParseRetryAfter понимает секунды и HTTP-дату
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func HandleHTTPError(statusCode int, header http.Header, body []byte, logger *zap.Logger, provider string) error {
	message, code := ParseErrorBody(body)
	apiErr := &APIError{
		Provider: provider,
		Status:   statusCode,
		Code:     code,
		Message:  message,
	}
	if header != nil {
		apiErr.RetryAfter = ParseRetryAfter(header.Get("Retry-After"), time.Now())
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		apiErr.Err = ErrAuthFailed
	case http.StatusTooManyRequests:
		apiErr.Err = ErrRateLimit
	case http.StatusBadGateway:
		apiErr.Err = ErrUnavailable
	case http.StatusServiceUnavailable:
		// голый 503 - перегрузка, недоступность только если провайдер так и пишет
		if strings.Contains(strings.ToLower(message+" "+code), "unavailable") {
			apiErr.Err = ErrUnavailable
		} else {
			apiErr.Err = ErrOverloaded
		}
	case http.StatusInternalServerError, 529:
		apiErr.Err = ErrOverloaded
	default:
		apiErr.Err = ErrRequestFailed
	}

	logger.Error(provider+" request failed",
		zap.Int("status", statusCode),
		zap.String("code", code),
		zap.Duration("retry_after", apiErr.RetryAfter),
		zap.String("body", truncate(string(body), 500)),
	)
	return apiErr
}

func ParseChatResponse(body []byte) (*ChatResponse, error) {
	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

func ExtractContent(resp *ChatResponse) (string, error) {
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// DoRequest - сетевую ошибку оборачиваем через %w, чтобы классификатор
// видел net.Error и context.DeadlineExceeded
func DoRequest(client *http.Client, req *http.Request) ([]byte, int, http.Header, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, resp.Header, fmt.Errorf("read response: %w", err)
	}

	return body, resp.StatusCode, resp.Header, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
