package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/freshloop/freshloop/internal/domain"
	"github.com/freshloop/freshloop/internal/matcher"
	"github.com/freshloop/freshloop/internal/store"
)

// postRepository is the subset of store.PostStore that MatchService requires.
type postRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Post, error)
	List(ctx context.Context, f store.PostFilter) ([]domain.Post, error)
	Count(ctx context.Context, f store.PostFilter) (int, error)
}

// matchEngine is the subset of matcher.Engine that MatchService requires.
type matchEngine interface {
	Match(ctx context.Context, mode domain.MatchMode, requests, offers []domain.Post) (matcher.Matches, error)
	MatchSingle(ctx context.Context, request domain.Post, offers []domain.Post) ([]domain.Match, error)
	Backend() string
}

type MatchStats struct {
	TotalRequests         int              `json:"total_requests"`
	TotalOffers           int              `json:"total_offers"`
	TotalMatches          int              `json:"total_matches"`
	RequestsWithMatches   int              `json:"requests_with_matches"`
	ProcessingTimeSeconds float64          `json:"processing_time_seconds"`
	Mode                  domain.MatchMode `json:"mode"`
}

type MatchAllResult struct {
	Matches matcher.Matches
	Stats   MatchStats
	// Message explains an empty result caused by missing requests or offers.
	Message string
}

type SingleStats struct {
	TotalMatches    int `json:"total_matches"`
	AvailableOffers int `json:"available_offers"`
}

type MatchOneResult struct {
	RequestPostID string
	Matches       []domain.Match
	Stats         SingleStats
	Message       string
}

type PostStats struct {
	TotalPosts   int `json:"total_posts"`
	RequestPosts int `json:"request_posts"`
	OfferPosts   int `json:"offer_posts"`
}

type Status struct {
	Initialized bool       `json:"initialized"`
	Backend     string     `json:"backend,omitempty"`
	Store       string     `json:"store"`
	Stats       *PostStats `json:"stats,omitempty"`
}

type MatchService struct {
	engine      matchEngine
	posts       postRepository
	defaultMode domain.MatchMode
	logger      *slog.Logger
}

// NewMatchService wires the engine and the optional post store. A nil engine
// makes every operation report domain.ErrUnavailable.
func NewMatchService(engine matchEngine, posts postRepository, defaultMode domain.MatchMode, logger *slog.Logger) *MatchService {
	if defaultMode == "" {
		defaultMode = domain.MatchModeBatch
	}
	return &MatchService{
		engine:      engine,
		posts:       posts,
		defaultMode: defaultMode,
		logger:      logger,
	}
}

// MatchAll matches every active request against every active offer. posts
// from the caller take precedence over the post store.
func (s *MatchService) MatchAll(ctx context.Context, posts []domain.Post, mode domain.MatchMode) (*MatchAllResult, error) {
	if s.engine == nil {
		return nil, fmt.Errorf("matcher not initialized: %w", domain.ErrUnavailable)
	}
	if mode == "" {
		mode = s.defaultMode
	}
	if mode != domain.MatchModeBatch && mode != domain.MatchModeSequential {
		return nil, &domain.ValidationError{Field: "mode", Message: "must be batch or sequential"}
	}

	part, err := s.partition(ctx, posts)
	if err != nil {
		return nil, err
	}

	res := &MatchAllResult{
		Matches: matcher.Matches{},
		Stats: MatchStats{
			TotalRequests: len(part.Requests),
			TotalOffers:   len(part.Offers),
			Mode:          mode,
		},
	}
	switch {
	case len(part.Requests) == 0:
		res.Message = "No request posts found"
		return res, nil
	case len(part.Offers) == 0:
		res.Message = "No offer posts found"
		return res, nil
	}

	start := time.Now()
	matches, err := s.engine.Match(ctx, mode, part.Requests, part.Offers)
	if err != nil {
		return nil, err
	}

	res.Matches = matches
	res.Stats.TotalMatches = matches.Total()
	res.Stats.RequestsWithMatches = matches.RequestsWithMatches()
	res.Stats.ProcessingTimeSeconds = time.Since(start).Seconds()

	s.logger.Info("matching complete",
		"mode", mode,
		"backend", s.engine.Backend(),
		"requests", res.Stats.TotalRequests,
		"offers", res.Stats.TotalOffers,
		"matches", res.Stats.TotalMatches,
		"requests_with_matches", res.Stats.RequestsWithMatches,
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// MatchOne ranks offers for a single active request identified by requestPostID.
func (s *MatchService) MatchOne(ctx context.Context, requestPostID string, posts []domain.Post) (*MatchOneResult, error) {
	if s.engine == nil {
		return nil, fmt.Errorf("matcher not initialized: %w", domain.ErrUnavailable)
	}
	if requestPostID == "" {
		return nil, &domain.ValidationError{Field: "request_post_id", Message: "request_post_id is required"}
	}

	request, offers, err := s.singleInputs(ctx, requestPostID, posts)
	if err != nil {
		return nil, err
	}

	valid := matcher.ExcludeUser(offers, request.UserID)
	res := &MatchOneResult{
		RequestPostID: requestPostID,
		Matches:       []domain.Match{},
		Stats:         SingleStats{AvailableOffers: len(valid)},
	}
	if len(valid) == 0 {
		res.Message = "No offers available"
		return res, nil
	}

	matches, err := s.engine.MatchSingle(ctx, *request, valid)
	if err != nil {
		return nil, err
	}
	res.Matches = matches
	res.Stats.TotalMatches = len(matches)

	s.logger.Info("single request matched",
		"request_post_id", requestPostID,
		"available_offers", len(valid),
		"matches", len(matches))
	return res, nil
}

// singleInputs resolves the request post and candidate offers for MatchOne.
// With no posts in the call the request is looked up by id in the store.
func (s *MatchService) singleInputs(ctx context.Context, requestPostID string, posts []domain.Post) (*domain.Post, []domain.Post, error) {
	if len(posts) == 0 && s.posts != nil {
		request, err := s.posts.GetByID(ctx, requestPostID)
		if err != nil {
			return nil, nil, &domain.UpstreamError{Service: "post store", Err: err}
		}
		if request == nil || !request.IsActive() || request.Type != domain.PostTypeRequest {
			return nil, nil, fmt.Errorf("request post %q: %w", requestPostID, domain.ErrNotFound)
		}
		offers, err := s.posts.List(ctx, store.PostFilter{Type: domain.PostTypeOffer, Status: domain.PostStatusActive})
		if err != nil {
			return nil, nil, &domain.UpstreamError{Service: "post store", Err: err}
		}
		return request, offers, nil
	}

	part, err := s.partition(ctx, posts)
	if err != nil {
		return nil, nil, err
	}
	for i := range part.Requests {
		if part.Requests[i].ID == requestPostID {
			return &part.Requests[i], part.Offers, nil
		}
	}
	return nil, nil, fmt.Errorf("request post %q: %w", requestPostID, domain.ErrNotFound)
}

// Status reports whether matching is available, plus post counts when a store
// is configured.
func (s *MatchService) Status(ctx context.Context) (*Status, error) {
	st := &Status{Store: "none"}
	if s.engine == nil {
		return st, fmt.Errorf("matcher not initialized: %w", domain.ErrUnavailable)
	}
	st.Initialized = true
	st.Backend = s.engine.Backend()

	if s.posts == nil {
		return st, nil
	}
	st.Store = "sqlite"

	var stats PostStats
	counts := []struct {
		filter store.PostFilter
		dst    *int
	}{
		{store.PostFilter{}, &stats.TotalPosts},
		{store.PostFilter{Type: domain.PostTypeRequest, Status: domain.PostStatusActive}, &stats.RequestPosts},
		{store.PostFilter{Type: domain.PostTypeOffer, Status: domain.PostStatusActive}, &stats.OfferPosts},
	}
	for _, c := range counts {
		n, err := s.posts.Count(ctx, c.filter)
		if err != nil {
			return nil, &domain.UpstreamError{Service: "post store", Err: err}
		}
		*c.dst = n
	}
	st.Stats = &stats
	return st, nil
}

func (s *MatchService) partition(ctx context.Context, posts []domain.Post) (matcher.Partitioned, error) {
	if len(posts) > 0 {
		if err := checkUniqueIDs(posts); err != nil {
			return matcher.Partitioned{}, err
		}
		part := matcher.Partition(posts)
		s.logger.Debug("using posts from request body",
			"posts", len(posts), "requests", len(part.Requests), "offers", len(part.Offers))
		return part, nil
	}

	if s.posts == nil {
		return matcher.Partitioned{}, &domain.ValidationError{Message: "No posts provided and database not available"}
	}

	requests, err := s.posts.List(ctx, store.PostFilter{Type: domain.PostTypeRequest, Status: domain.PostStatusActive})
	if err != nil {
		return matcher.Partitioned{}, &domain.UpstreamError{Service: "post store", Err: err}
	}
	offers, err := s.posts.List(ctx, store.PostFilter{Type: domain.PostTypeOffer, Status: domain.PostStatusActive})
	if err != nil {
		return matcher.Partitioned{}, &domain.UpstreamError{Service: "post store", Err: err}
	}
	s.logger.Debug("using posts from store", "requests", len(requests), "offers", len(offers))
	return matcher.Partitioned{Requests: requests, Offers: offers}, nil
}

// checkUniqueIDs rejects a post list in which two posts share an id, since
// matches are keyed by request id.
func checkUniqueIDs(posts []domain.Post) error {
	seen := make(map[string]int, len(posts))
	details := map[string]string{}
	for i, p := range posts {
		if first, ok := seen[p.ID]; ok {
			details[fmt.Sprintf("posts[%d].id", i)] = fmt.Sprintf("duplicate of posts[%d]", first)
			continue
		}
		seen[p.ID] = i
	}
	if len(details) > 0 {
		return &domain.ValidationError{Field: "posts", Message: "duplicate post ids", Details: details}
	}
	return nil
}
