package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	DBPath     string `env:"DB_PATH" envDefault:"/data/freshloop.db"`

	LLMBackend         string `env:"LLM_BACKEND" envDefault:"gemini"`
	GeminiAPIKey       string `env:"GEMINI_API_KEY"`
	GoogleGeminiAPIKey string `env:"GOOGLE_GEMINI_API_KEY"`
	GeminiModel        string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	ClaudeAPIKey       string `env:"CLAUDE_API_KEY"`
	ClaudeModel        string `env:"CLAUDE_MODEL" envDefault:"claude-sonnet-4-5"`
	OllamaHost         string `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	OllamaModel        string `env:"OLLAMA_MODEL" envDefault:"llama3.1"`

	MatchTimeout         time.Duration `env:"MATCH_TIMEOUT" envDefault:"45s"`
	MatchMode            string        `env:"MATCH_MODE" envDefault:"batch"`
	MaxMatchesPerRequest int           `env:"MAX_MATCHES_PER_REQUEST" envDefault:"5"`

	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173,http://localhost:8080"`
	RateLimitPerMin  int      `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	MaxBodyBytes     int64    `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	// RequestTimeout bounds one HTTP request across all of its model calls.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"100s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogFile   string `env:"LOG_FILE"`
}

// Load parses the environment into a Config and rejects unknown enum values.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// An explicitly empty DB_PATH runs without a store; envDefault would
	// otherwise fill it in.
	if v, ok := os.LookupEnv("DB_PATH"); ok && v == "" {
		cfg.DBPath = ""
	}
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = cfg.GoogleGeminiAPIKey
	}

	switch cfg.LLMBackend {
	case "gemini", "claude", "ollama":
	default:
		return nil, fmt.Errorf("LLM_BACKEND must be gemini, claude or ollama, got %q", cfg.LLMBackend)
	}
	switch cfg.MatchMode {
	case "batch", "sequential":
	default:
		return nil, fmt.Errorf("MATCH_MODE must be batch or sequential, got %q", cfg.MatchMode)
	}
	if cfg.MaxMatchesPerRequest <= 0 {
		return nil, fmt.Errorf("MAX_MATCHES_PER_REQUEST must be positive, got %d", cfg.MaxMatchesPerRequest)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", cfg.RequestTimeout)
	}
	return cfg, nil
}
