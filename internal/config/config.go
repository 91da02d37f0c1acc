package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	ServerPort string

	BackendProvider    string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	GeminiAPIKey       string
	BackendModel       string
	BackendTimeout     time.Duration
	BackendTemperature float64
	BackendMaxTokens   int

	UsageLimit     int
	UsageWindow    time.Duration
	SweepSchedule  string
	HistoryLimit   int
	HistoryContext int
	PromptsFile    string

	RedisURL    string
	CacheTTL    time.Duration
	DatabaseURL string

	AdminJWTSecret string
	AdminAPIKey    string
	TrustProxy     bool

	LogLevel  string
	LogFormat string
}

// Load reads .env (when present) and the environment. A missing credential
// for the selected provider and any malformed value are errors.
func Load() (*Config, error) {
	godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	var p parser
	cfg := &Config{
		ServerPort: getEnv("SERVER_PORT", "3001"),

		BackendProvider:    strings.ToLower(getEnv("BACKEND_PROVIDER", ProviderOpenAI)),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		BackendModel:       getEnv("BACKEND_MODEL", ""),
		BackendTimeout:     p.durationVal("BACKEND_TIMEOUT", 30*time.Second),
		BackendTemperature: p.floatVal("BACKEND_TEMPERATURE", 0.7),
		BackendMaxTokens:   p.intVal("BACKEND_MAX_TOKENS", 1200),

		UsageLimit:     p.intVal("USAGE_LIMIT", 10),
		UsageWindow:    p.durationVal("USAGE_WINDOW", 24*time.Hour),
		SweepSchedule:  getEnv("SWEEP_SCHEDULE", "@every 24h"),
		HistoryLimit:   p.intVal("HISTORY_LIMIT", 10),
		HistoryContext: p.intVal("HISTORY_CONTEXT", 3),
		PromptsFile:    getEnv("PROMPTS_FILE", ""),

		RedisURL:    getEnv("REDIS_URL", ""),
		CacheTTL:    p.durationVal("CACHE_TTL", 24*time.Hour),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
		AdminAPIKey:    getEnv("ADMIN_API_KEY", ""),
		TrustProxy:     p.boolVal("TRUST_PROXY", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	switch cfg.BackendProvider {
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			p.fail(errors.New("OPENAI_API_KEY is required when BACKEND_PROVIDER=openai"))
		}
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			p.fail(errors.New("GEMINI_API_KEY is required when BACKEND_PROVIDER=gemini"))
		}
	default:
		p.fail(fmt.Errorf("BACKEND_PROVIDER: unknown provider %q", cfg.BackendProvider))
	}
	if cfg.UsageLimit <= 0 {
		p.fail(errors.New("USAGE_LIMIT must be positive"))
	}
	if cfg.UsageWindow <= 0 {
		p.fail(errors.New("USAGE_WINDOW must be positive"))
	}
	if cfg.BackendTimeout <= 0 {
		p.fail(errors.New("BACKEND_TIMEOUT must be positive"))
	}
	if cfg.HistoryLimit <= 0 {
		p.fail(errors.New("HISTORY_LIMIT must be positive"))
	}
	if cfg.AdminAPIKey != "" && cfg.AdminJWTSecret == "" {
		p.fail(errors.New("ADMIN_API_KEY requires ADMIN_JWT_SECRET"))
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// AdminEnabled reports whether operator routes should be mounted.
func (c *Config) AdminEnabled() bool { return c.AdminJWTSecret != "" }

func getEnv(key, defaultVal string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultVal
}

// parser collects every malformed value instead of stopping at the first.
type parser struct {
	errs []error
}

func (p *parser) fail(err error) { p.errs = append(p.errs, err) }

func (p *parser) intVal(key string, defaultVal int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return v
}

func (p *parser) floatVal(key string, defaultVal float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return v
}

func (p *parser) durationVal(key string, defaultVal time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return v
}

func (p *parser) boolVal(key string, defaultVal bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(fmt.Errorf("%s: %w", key, err))
		return defaultVal
	}
	return v
}
