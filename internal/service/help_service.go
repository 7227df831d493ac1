package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/freshloop/freshloop/internal/domain"
	"github.com/freshloop/freshloop/internal/llm"
	"github.com/freshloop/freshloop/internal/metrics"
)

const helpSystemPrompt = `You are a friendly community cooking assistant.
You write short, warm and polite help requests for a neighbourhood food-sharing app.

Rules:
- Keep it under 15 words.
- Sound human and natural, not robotic.
- Be friendly and appreciative.
- No emojis.
- No explanations.
- Reply with the message text only.`

// helpRepository is the subset of store.HelpStore that HelpService requires.
type helpRepository interface {
	Create(ctx context.Context, req domain.HelpRequest) (*domain.HelpMessage, error)
	List(ctx context.Context) ([]*domain.HelpMessage, error)
}

type GeneratedHelp struct {
	Message     string
	Request     domain.HelpRequest
	GeneratedAt time.Time
}

type HelpService struct {
	gen     llm.Generator
	repo    helpRepository
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

func NewHelpService(gen llm.Generator, repo helpRepository, timeout time.Duration, logger *slog.Logger) *HelpService {
	return &HelpService{
		gen:     gen,
		repo:    repo,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}
}

// Generate asks the model for a short neighbour-facing help request.
func (s *HelpService) Generate(ctx context.Context, req domain.HelpRequest) (*GeneratedHelp, error) {
	if err := validateHelpRequest(req); err != nil {
		return nil, err
	}
	if s.gen == nil {
		return nil, fmt.Errorf("help message generator not initialized: %w", domain.ErrUnavailable)
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = s.now().UTC()
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := s.gen.Generate(ctx, helpPrompt(req))
	elapsed := time.Since(start)
	if err != nil {
		if _, ok := domain.AsUpstream(err); !ok {
			err = llm.UpstreamFailure(ctx, s.gen.Name(), err)
		}
		outcome := "error"
		if ue, _ := domain.AsUpstream(err); ue.Timeout {
			outcome = "timeout"
		}
		metrics.ObserveAIRequest(s.gen.Name(), "help_message", outcome, elapsed)
		s.logger.Warn("help message generation failed", "backend", s.gen.Name(), "error", err)
		return nil, err
	}
	metrics.ObserveAIRequest(s.gen.Name(), "help_message", "ok", elapsed)

	msg := cleanHelpMessage(reply)
	if msg == "" {
		return nil, &domain.UpstreamError{Service: s.gen.Name(), Err: llm.ErrEmptyResponse}
	}

	return &GeneratedHelp{Message: msg, Request: req, GeneratedAt: s.now().UTC()}, nil
}

// Post stores a help request that already carries its message.
func (s *HelpService) Post(ctx context.Context, req domain.HelpRequest) (*domain.HelpMessage, error) {
	if err := validateHelpRequest(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, &domain.ValidationError{Field: "message", Message: "message is required"}
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = s.now().UTC()
	}

	msg, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to save help message: %w", err)
	}
	s.logger.Info("help message posted", "id", msg.ID, "recipe", req.RecipeName, "need", req.NeedIngredient)
	return msg, nil
}

func (s *HelpService) List(ctx context.Context) ([]*domain.HelpMessage, error) {
	msgs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list help messages: %w", err)
	}
	if msgs == nil {
		msgs = []*domain.HelpMessage{}
	}
	return msgs, nil
}

func validateHelpRequest(req domain.HelpRequest) error {
	if strings.TrimSpace(req.RecipeName) == "" {
		return &domain.ValidationError{Field: "recipe_name", Message: "recipe_name is required"}
	}
	if strings.TrimSpace(req.NeedIngredient) == "" {
		return &domain.ValidationError{Field: "need_ingredient", Message: "need_ingredient is required"}
	}
	return nil
}

func helpPrompt(req domain.HelpRequest) string {
	have := "no ingredients yet"
	if len(req.HaveIngredients) > 0 {
		have = strings.Join(req.HaveIngredients, ", ")
	}
	return fmt.Sprintf(`%s

Write a friendly help request for:

Recipe I'm making: %s
Ingredient I need: %s
What I already have: %s

Ask neighbours, conversationally, whether they can spare the missing ingredient.`,
		helpSystemPrompt, req.RecipeName, req.NeedIngredient, have)
}

// cleanHelpMessage trims whitespace and one layer of wrapping quotes.
func cleanHelpMessage(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range []string{`"`, `'`, "“"} {
		closeQ := q
		if q == "“" {
			closeQ = "”"
		}
		if len(s) >= len(q)+len(closeQ) && strings.HasPrefix(s, q) && strings.HasSuffix(s, closeQ) {
			s = strings.TrimSpace(s[len(q) : len(s)-len(closeQ)])
		}
	}
	return s
}
