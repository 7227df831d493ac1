package matcher

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/freshloop/freshloop/internal/domain"
	"github.com/freshloop/freshloop/internal/llm"
	"github.com/freshloop/freshloop/internal/metrics"
)

const (
	DefaultTimeout       = 45 * time.Second
	DefaultMaxPerRequest = 5

	minScore = 60
	maxScore = 100
)

// Matches maps a request post id to its ranked matches. Every request passed
// to the engine has a key, possibly with an empty slice.
type Matches map[string][]domain.Match

func (m Matches) Total() int {
	n := 0
	for _, ms := range m {
		n += len(ms)
	}
	return n
}

// RequestsWithMatches counts requests that received at least one match.
func (m Matches) RequestsWithMatches() int {
	n := 0
	for _, ms := range m {
		if len(ms) > 0 {
			n++
		}
	}
	return n
}

// Engine turns active requests and offers into ranked matches using one
// text-generation backend.
type Engine struct {
	gen           llm.Generator
	timeout       time.Duration
	maxPerRequest int
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds each model call. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxPerRequest caps the matches kept per request. Non-positive values are ignored.
func WithMaxPerRequest(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPerRequest = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an Engine over gen, or a ConfigurationError when gen is nil.
func NewEngine(gen llm.Generator, opts ...Option) (*Engine, error) {
	if gen == nil {
		return nil, &domain.ConfigurationError{Setting: "generator", Reason: "no text-generation backend configured"}
	}
	e := &Engine{
		gen:           gen,
		timeout:       DefaultTimeout,
		maxPerRequest: DefaultMaxPerRequest,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Backend() string { return e.gen.Name() }

// Match dispatches to MatchBatch or MatchSequential.
func (e *Engine) Match(ctx context.Context, mode domain.MatchMode, requests, offers []domain.Post) (Matches, error) {
	switch mode {
	case domain.MatchModeBatch, "":
		return e.MatchBatch(ctx, requests, offers)
	case domain.MatchModeSequential:
		return e.MatchSequential(ctx, requests, offers)
	default:
		return nil, &domain.ValidationError{Field: "mode", Message: "must be batch or sequential"}
	}
}

// MatchBatch pairs all requests with all offers using one model call.
func (e *Engine) MatchBatch(ctx context.Context, requests, offers []domain.Post) (Matches, error) {
	out := emptyMatches(requests)
	if len(requests) == 0 || len(offers) == 0 {
		return out, nil
	}

	raw, err := e.generate(ctx, "match_batch", BuildBatchPrompt(requests, offers, e.maxPerRequest))
	if err != nil {
		return nil, err
	}

	res := e.parse(raw, domain.MatchModeBatch)
	if res.Kind == KindUnparsed {
		return out, nil
	}

	e.assemble(out, requests, offers, res.Candidates, 0)
	e.finalize(out, domain.MatchModeBatch)
	return out, nil
}

// MatchSequential makes one model call per request, each against the offers
// not posted by that request's user. It stops at the first request reached
// after ctx is done.
func (e *Engine) MatchSequential(ctx context.Context, requests, offers []domain.Post) (Matches, error) {
	out := emptyMatches(requests)
	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("sequential matching stopped", "request_id", req.ID, "error", err)
			return nil, llm.UpstreamFailure(ctx, e.gen.Name(), err)
		}
		valid := ExcludeUser(offers, req.UserID)
		if len(valid) == 0 {
			e.logger.Debug("no offers from other users", "request_id", req.ID, "user_id", req.UserID)
			continue
		}

		ms, err := e.matchOne(ctx, "match_sequential", req, valid)
		if err != nil {
			return nil, err
		}
		out[req.ID] = append(out[req.ID], ms...)
	}
	e.finalize(out, domain.MatchModeSequential)
	return out, nil
}

// MatchSingle ranks offers for one request. The result is never nil.
func (e *Engine) MatchSingle(ctx context.Context, request domain.Post, offers []domain.Post) ([]domain.Match, error) {
	valid := ExcludeUser(offers, request.UserID)
	if len(valid) == 0 {
		return []domain.Match{}, nil
	}

	ms, err := e.matchOne(ctx, "match_single", request, valid)
	if err != nil {
		return nil, err
	}
	out := Matches{request.ID: ms}
	e.finalize(out, domain.MatchModeSingle)
	return out[request.ID], nil
}

func (e *Engine) matchOne(ctx context.Context, op string, request domain.Post, offers []domain.Post) ([]domain.Match, error) {
	raw, err := e.generate(ctx, op, BuildSinglePrompt(request, offers, e.maxPerRequest))
	if err != nil {
		return nil, err
	}

	res := e.parse(raw, domain.MatchModeSingle)
	out := Matches{request.ID: {}}
	if res.Kind == KindUnparsed {
		return out[request.ID], nil
	}

	e.assemble(out, []domain.Post{request}, offers, res.Candidates, 1)
	return out[request.ID], nil
}

func (e *Engine) generate(ctx context.Context, op, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	raw, err := e.gen.Generate(ctx, prompt)
	elapsed := time.Since(start)

	if err != nil {
		if _, ok := domain.AsUpstream(err); !ok {
			err = llm.UpstreamFailure(ctx, e.gen.Name(), err)
		}
		outcome := "error"
		if ue, _ := domain.AsUpstream(err); ue.Timeout {
			outcome = "timeout"
		}
		metrics.ObserveAIRequest(e.gen.Name(), op, outcome, elapsed)
		e.logger.Warn("text generation failed",
			"backend", e.gen.Name(), "operation", op, "outcome", outcome,
			"duration_ms", elapsed.Milliseconds(), "error", err)
		return "", err
	}

	metrics.ObserveAIRequest(e.gen.Name(), op, "ok", elapsed)
	e.logger.Debug("text generation complete",
		"backend", e.gen.Name(), "operation", op,
		"duration_ms", elapsed.Milliseconds(), "reply_bytes", len(raw))
	return raw, nil
}

func (e *Engine) parse(raw string, mode domain.MatchMode) Result {
	res := Parse(raw)
	metrics.ObserveParse(string(res.Stage), string(res.Kind))

	switch res.Kind {
	case KindUnparsed:
		var pe *domain.ParseError
		snippet := ""
		if errors.As(res.Err, &pe) {
			snippet = pe.Raw
		}
		e.logger.Warn("failed to parse model reply, returning no matches",
			"mode", mode, "error", res.Err, "reply", snippet)
	case KindPartiallyParsed:
		e.logger.Warn("model reply partially parsed",
			"mode", mode, "stage", res.Stage, "candidates", len(res.Candidates), "malformed", res.Malformed)
	default:
		e.logger.Debug("model reply parsed", "mode", mode, "stage", res.Stage, "candidates", len(res.Candidates))
	}
	return res
}

type pair struct{ req, off int }

// assemble resolves candidate ordinals against requests and offers and appends
// the surviving matches to out. A non-zero fixedRequest overrides each
// candidate's request ordinal.
func (e *Engine) assemble(out Matches, requests, offers []domain.Post, cands []Candidate, fixedRequest int) {
	seen := make(map[pair]bool, len(cands))
	matchedAt := e.now().UTC()
	var unresolved, selfMatches, outOfRange, duplicates int

	for _, c := range cands {
		ri := c.RequestIndex
		if fixedRequest > 0 {
			ri = fixedRequest
		}
		oi := c.OfferIndex
		if ri < 1 || ri > len(requests) || oi < 1 || oi > len(offers) {
			unresolved++
			continue
		}

		req, off := requests[ri-1], offers[oi-1]
		if req.UserID == off.UserID {
			selfMatches++
			continue
		}
		if c.Score < minScore || c.Score > maxScore {
			outOfRange++
			continue
		}
		p := pair{ri, oi}
		if seen[p] {
			duplicates++
			continue
		}
		seen[p] = true

		out[req.ID] = append(out[req.ID], domain.Match{
			Request: domain.MatchRequestSide{
				UserID:             req.UserID,
				IngredientsSummary: IngredientsSummary(req),
				PostID:             req.ID,
			},
			Offer: domain.MatchOfferSide{
				UserID:             off.UserID,
				IngredientsSummary: IngredientsSummary(off),
				Location:           off.Location,
				PostID:             off.ID,
			},
			MatchScore:         c.Score,
			MatchedIngredients: dedupe(c.MatchedIngredients),
			Reason:             c.Reason,
			MatchedAt:          matchedAt,
		})
	}

	metrics.AddMatchesDropped("unresolved_index", unresolved)
	metrics.AddMatchesDropped("self_match", selfMatches)
	metrics.AddMatchesDropped("score_out_of_range", outOfRange)
	metrics.AddMatchesDropped("duplicate", duplicates)
	if dropped := unresolved + selfMatches + outOfRange + duplicates; dropped > 0 {
		e.logger.Info("discarded model-proposed matches",
			"unresolved_index", unresolved, "self_match", selfMatches,
			"score_out_of_range", outOfRange, "duplicate", duplicates)
	}
}

// finalize sorts each request's matches by score, highest first with ties in
// arrival order, and applies the per-request cap.
func (e *Engine) finalize(out Matches, mode domain.MatchMode) {
	capped := 0
	for id, ms := range out {
		sort.SliceStable(ms, func(i, j int) bool { return ms[i].MatchScore > ms[j].MatchScore })
		if len(ms) > e.maxPerRequest {
			capped += len(ms) - e.maxPerRequest
			ms = ms[:e.maxPerRequest]
		}
		out[id] = ms
	}
	metrics.AddMatchesDropped("over_cap", capped)
	metrics.AddMatchesReturned(string(mode), out.Total())
}

func emptyMatches(requests []domain.Post) Matches {
	out := make(Matches, len(requests))
	for _, r := range requests {
		out[r.ID] = []domain.Match{}
	}
	return out
}

// dedupe drops repeated ingredient names, case-insensitively, keeping the
// first spelling. The result is never nil.
func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(n))
	}
	return out
}
