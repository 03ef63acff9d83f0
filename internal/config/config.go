package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderOpenRouter = "openrouter"
	ProviderGigaChat   = "gigachat"
	ProviderMock       = "mock"
)

var (
	ErrMissingToken     = errors.New("TELEGRAM_BOT_TOKEN is required when TELEGRAM_ADMIN_CHAT_IDS is set")
	ErrInvalidAdminID   = errors.New("invalid telegram admin chat id")
	ErrUnknownProvider  = errors.New("unknown llm provider")
	ErrMissingAPIKey    = errors.New("OPENROUTER_API_KEY is required for openrouter provider")
	ErrMissingGigaChat  = errors.New("GIGACHAT_AUTH_KEY or GIGACHAT_CLIENT_ID/GIGACHAT_CLIENT_SECRET is required for gigachat provider")
	ErrInvalidThreshold = errors.New("quality thresholds must be within [0, 1]")
	ErrInvalidCircuit   = errors.New("circuit thresholds and timeout must be positive")
	ErrInvalidPipeline  = errors.New("pipeline parallelism and chunk limit must be positive")
)

type Config struct {
	LLM      LLMConfig
	Circuit  CircuitConfig
	Retry    RetryConfig
	Quality  QualityConfig
	Pipeline PipelineConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Telegram TelegramConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

type LLMConfig struct {
	Primary string
	// Fallbacks - запасные провайдеры в порядке предпочтения
	Fallbacks []string
	// AlternateModels - модели основного провайдера для alternate_model
	AlternateModels []string
	Timeout         time.Duration
	OpenRouter      OpenRouterConfig
	GigaChat        GigaChatConfig
}

type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type GigaChatConfig struct {
	AuthKey      string
	ClientID     string
	ClientSecret string
	Scope        string
	Model        string
	AuthURL      string
	BaseURL      string
}

type CircuitConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

type RetryConfig struct {
	// MaxRetries < 0 - как в таблице политик
	MaxRetries     int
	AttemptTimeout time.Duration
}

type QualityConfig struct {
	Confidence   float64
	Preservation float64
	Agreement    float64
	// Critic включает гейт с LLM-критиком
	Critic              bool
	CriticMinConfidence float64
}

type PipelineConfig struct {
	Parallelism int
	MaxChunks   int
	// RequestsPerMinute - клиентский лимит на каждого провайдера
	RequestsPerMinute int
}

type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

type DatabaseConfig struct {
	// URL пустой - очередь ручной проверки живет в памяти
	URL string
}

type TelegramConfig struct {
	Token             string
	Debug             bool
	AdminChatIDs      []int64
	RequestsPerMinute int
}

type MetricsConfig struct {
	Addr string
}

type LogConfig struct {
	Level string
	// File - если задан, логи дополнительно пишутся в файл с ротацией
	File      string
	MaxSizeMB int
}

func Load() (*Config, error) {
	admins, err := parseChatIDs(getEnvListOrDefault("TELEGRAM_ADMIN_CHAT_IDS", nil))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LLM: LLMConfig{
			Primary:         getEnvOrDefault("LLM_PROVIDER", ProviderMock),
			Fallbacks:       getEnvListOrDefault("LLM_FALLBACK_PROVIDERS", nil),
			AlternateModels: getEnvListOrDefault("LLM_ALTERNATE_MODELS", nil),
			Timeout:         time.Duration(getEnvIntOrDefault("LLM_TIMEOUT_SEC", 60)) * time.Second,
			OpenRouter: OpenRouterConfig{
				APIKey:  os.Getenv("OPENROUTER_API_KEY"),
				Model:   getEnvOrDefault("OPENROUTER_MODEL", "deepseek/deepseek-chat"),
				BaseURL: getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			},
			GigaChat: GigaChatConfig{
				AuthKey:      os.Getenv("GIGACHAT_AUTH_KEY"),
				ClientID:     os.Getenv("GIGACHAT_CLIENT_ID"),
				ClientSecret: os.Getenv("GIGACHAT_CLIENT_SECRET"),
				Scope:        getEnvOrDefault("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
				Model:        getEnvOrDefault("GIGACHAT_MODEL", "GigaChat"),
				AuthURL:      getEnvOrDefault("GIGACHAT_AUTH_URL", "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"),
				BaseURL:      getEnvOrDefault("GIGACHAT_BASE_URL", "https://gigachat.devices.sberbank.ru/api/v1"),
			},
		},
		Circuit: CircuitConfig{
			FailureThreshold: getEnvIntOrDefault("CIRCUIT_FAILURE_THRESHOLD", 5),
			SuccessThreshold: getEnvIntOrDefault("CIRCUIT_SUCCESS_THRESHOLD", 2),
			Timeout:          time.Duration(getEnvIntOrDefault("CIRCUIT_TIMEOUT_SEC", 60)) * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:     getEnvIntOrDefault("RETRY_MAX_RETRIES", -1),
			AttemptTimeout: time.Duration(getEnvIntOrDefault("ATTEMPT_TIMEOUT_SEC", 30)) * time.Second,
		},
		Quality: QualityConfig{
			Confidence:          getEnvFloatOrDefault("QUALITY_CONFIDENCE_THRESHOLD", 0.7),
			Preservation:        getEnvFloatOrDefault("QUALITY_PRESERVATION_THRESHOLD", 0.7),
			Agreement:           getEnvFloatOrDefault("QUALITY_AGREEMENT_THRESHOLD", 0.6),
			Critic:              getEnvOrDefault("QUALITY_CRITIC", "false") == "true",
			CriticMinConfidence: getEnvFloatOrDefault("QUALITY_CRITIC_MIN_CONFIDENCE", 0.6),
		},
		Pipeline: PipelineConfig{
			Parallelism:       getEnvIntOrDefault("PIPELINE_PARALLELISM", 4),
			MaxChunks:         getEnvIntOrDefault("PIPELINE_MAX_CHUNKS", 4),
			RequestsPerMinute: getEnvIntOrDefault("PROVIDER_RATE_LIMIT_PER_MINUTE", 60),
		},
		Cache: CacheConfig{
			TTL:        time.Duration(getEnvIntOrDefault("CACHE_TTL_SEC", 86400)) * time.Second,
			MaxEntries: getEnvIntOrDefault("CACHE_MAX_ENTRIES", 10000),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Telegram: TelegramConfig{
			Token:             os.Getenv("TELEGRAM_BOT_TOKEN"),
			Debug:             getEnvOrDefault("TELEGRAM_DEBUG", "false") == "true",
			AdminChatIDs:      admins,
			RequestsPerMinute: getEnvIntOrDefault("RATE_LIMIT_PER_MINUTE", 10),
		},
		Metrics: MetricsConfig{
			Addr: getEnvOrDefault("METRICS_ADDR", ":9090"),
		},
		Log: LogConfig{
			Level:     getEnvOrDefault("LOG_LEVEL", "info"),
			File:      os.Getenv("LOG_FILE"),
			MaxSizeMB: getEnvIntOrDefault("LOG_FILE_MAX_SIZE_MB", 100),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	for _, p := range c.Providers() {
		if err := c.LLM.validateProvider(p); err != nil {
			return err
		}
	}
	if len(c.Telegram.AdminChatIDs) > 0 && c.Telegram.Token == "" {
		return ErrMissingToken
	}
	for _, v := range []float64{c.Quality.Confidence, c.Quality.Preservation, c.Quality.Agreement, c.Quality.CriticMinConfidence} {
		if v < 0 || v > 1 {
			return ErrInvalidThreshold
		}
	}
	if c.Circuit.FailureThreshold < 1 || c.Circuit.SuccessThreshold < 1 || c.Circuit.Timeout <= 0 {
		return ErrInvalidCircuit
	}
	if c.Pipeline.Parallelism < 1 || c.Pipeline.MaxChunks < 1 {
		return ErrInvalidPipeline
	}
	return nil
}

// Providers - основной и запасные провайдеры без повторов, основной первым
func (c *Config) Providers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range append([]string{c.LLM.Primary}, c.LLM.Fallbacks...) {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// TelegramEnabled - бот запускается только при наличии токена
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.Token != ""
}

func (l LLMConfig) validateProvider(name string) error {
	switch name {
	case ProviderMock:
		return nil
	case ProviderOpenRouter:
		if l.OpenRouter.APIKey == "" {
			return ErrMissingAPIKey
		}
		return nil
	case ProviderGigaChat:
		if l.GigaChat.AuthKey == "" && (l.GigaChat.ClientID == "" || l.GigaChat.ClientSecret == "") {
			return ErrMissingGigaChat
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}

func parseChatIDs(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAdminID, v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvListOrDefault - значения через запятую, пустые элементы отбрасываются
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
