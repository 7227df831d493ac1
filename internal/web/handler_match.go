package web

import (
	"net/http"

	"github.com/freshloop/freshloop/internal/domain"
	"github.com/freshloop/freshloop/internal/matcher"
	"github.com/freshloop/freshloop/internal/service"
)

type matchIngredientsRequest struct {
	Posts []domain.Post    `json:"posts" validate:"max=5000,dive"`
	Mode  domain.MatchMode `json:"mode" validate:"omitempty,oneof=batch sequential"`
}

type matchIngredientsResponse struct {
	Success bool               `json:"success"`
	Matches matcher.Matches    `json:"matches"`
	Stats   service.MatchStats `json:"stats"`
	Message string             `json:"message,omitempty"`
}

type matchSingleRequest struct {
	RequestPostID string        `json:"request_post_id" validate:"required,max=200"`
	Posts         []domain.Post `json:"posts" validate:"max=5000,dive"`
}

type matchSingleResponse struct {
	Success       bool                `json:"success"`
	RequestPostID string              `json:"request_post_id"`
	Matches       []domain.Match      `json:"matches"`
	Stats         service.SingleStats `json:"stats"`
	Message       string              `json:"message,omitempty"`
}

type statusResponse struct {
	Success bool `json:"success"`
	*service.Status
	Error string `json:"error,omitempty"`
}

func (s *Server) handleMatchIngredients(w http.ResponseWriter, r *http.Request) {
	var req matchIngredientsRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.matches.MatchAll(r.Context(), req.Posts, req.Mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchIngredientsResponse{
		Success: true,
		Matches: res.Matches,
		Stats:   res.Stats,
		Message: res.Message,
	})
}

func (s *Server) handleMatchSingleRequest(w http.ResponseWriter, r *http.Request) {
	var req matchSingleRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.matches.MatchOne(r.Context(), req.RequestPostID, req.Posts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchSingleResponse{
		Success:       true,
		RequestPostID: res.RequestPostID,
		Matches:       res.Matches,
		Stats:         res.Stats,
		Message:       res.Message,
	})
}

// handleMatcherStatus answers 200 when the generator is ready and 503 otherwise.
func (s *Server) handleMatcherStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.matches.Status(r.Context())
	if err != nil {
		code := statusFor(err)
		s.loggerFrom(r).Warn("matcher status check failed", "status", code, "error", err)
		if st == nil {
			st = &service.Status{}
		}
		writeJSON(w, code, statusResponse{Status: st, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Status: st})
}
