package web

import (
	"net/http"
	"time"

	"github.com/freshloop/freshloop/internal/domain"
)

type generateHelpResponse struct {
	Success     bool               `json:"success"`
	Message     string             `json:"message"`
	RequestData domain.HelpRequest `json:"request_data"`
	GeneratedAt time.Time          `json:"generated_at"`
}

type postHelpResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	RequestID int64     `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

type listHelpResponse struct {
	Success  bool                  `json:"success"`
	Messages []*domain.HelpMessage `json:"messages"`
	Count    int                   `json:"count"`
}

func (s *Server) handleGenerateHelpMessage(w http.ResponseWriter, r *http.Request) {
	var req domain.HelpRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	gen, err := s.help.Generate(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generateHelpResponse{
		Success:     true,
		Message:     gen.Message,
		RequestData: gen.Request,
		GeneratedAt: gen.GeneratedAt,
	})
}

func (s *Server) handlePostHelpMessage(w http.ResponseWriter, r *http.Request) {
	var req domain.HelpRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	msg, err := s.help.Post(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, postHelpResponse{
		Success:   true,
		Message:   "Help message posted successfully",
		RequestID: msg.ID,
		Timestamp: msg.Timestamp,
	})
}

func (s *Server) handleListHelpMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.help.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listHelpResponse{Success: true, Messages: msgs, Count: len(msgs)})
}
