package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/freshloop/freshloop/internal/config"
	"github.com/freshloop/freshloop/internal/db"
	"github.com/freshloop/freshloop/internal/llm"
	"github.com/freshloop/freshloop/internal/llm/claude"
	"github.com/freshloop/freshloop/internal/llm/gemini"
	"github.com/freshloop/freshloop/internal/llm/ollama"
	"github.com/freshloop/freshloop/internal/logging"
	"github.com/freshloop/freshloop/internal/matcher"
)

// app holds the process-wide dependencies shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
	close  func()
}

// newApp loads configuration, installs the logger and, when DB_PATH is set,
// opens the database.
func newApp(withDB bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, cleanup, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, close: cleanup}

	if withDB && cfg.DBPath != "" {
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			cleanup()
			return nil, err
		}
		a.db = database
		a.close = func() {
			if err := database.Close(); err != nil {
				logger.Error("failed to close database", "error", err)
			}
			cleanup()
		}
	}
	return a, nil
}

// newGenerator builds the text-generation backend named by LLM_BACKEND. A
// missing credential is a *domain.ConfigurationError.
func newGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llm.Generator, error) {
	switch cfg.LLMBackend {
	case "claude":
		g, err := claude.NewClaudeGenerator(cfg.ClaudeAPIKey, cfg.ClaudeModel)
		if err != nil {
			return nil, err
		}
		logger.Info("using Claude text backend", "model", cfg.ClaudeModel)
		return g, nil
	case "ollama":
		g, err := ollama.NewOllamaGenerator(cfg.OllamaHost, cfg.OllamaModel)
		if err != nil {
			return nil, err
		}
		logger.Info("using Ollama text backend", "host", cfg.OllamaHost, "model", cfg.OllamaModel)
		return g, nil
	default:
		g, err := gemini.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		logger.Info("using Gemini text backend", "model", cfg.GeminiModel)
		return g, nil
	}
}

func newEngine(gen llm.Generator, cfg *config.Config, logger *slog.Logger) (*matcher.Engine, error) {
	return matcher.NewEngine(gen,
		matcher.WithTimeout(cfg.MatchTimeout),
		matcher.WithMaxPerRequest(cfg.MaxMatchesPerRequest),
		matcher.WithLogger(logger),
	)
}
