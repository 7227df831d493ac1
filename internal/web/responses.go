package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/freshloop/freshloop/internal/domain"
)

var errBodyTooLarge = errors.New("request body too large")

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	if ue, ok := domain.AsUpstream(err); ok {
		if ue.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}

	var ve *domain.ValidationError
	if errors.As(err, &ve) && len(ve.Details) > 0 {
		body.Details = ve.Details
	}
	if code == http.StatusInternalServerError {
		s.loggerFrom(r).Error("request failed", "path", r.URL.Path, "error", err)
		body.Error = "internal server error"
	} else {
		s.loggerFrom(r).Warn("request rejected", "path", r.URL.Path, "status", code, "error", err)
	}
	writeJSON(w, code, body)
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

// getValidator reports field errors under their JSON names.
func getValidator() *validator.Validate {
	vldOnce.Do(func() {
		vld = validator.New()
		vld.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return vld
}

// decodeJSON reads a size-capped, strictly decoded JSON body into dst and
// validates it. An empty body leaves dst at its zero value.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, mbe.Limit)
		}
		return &domain.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	if dec.More() {
		return &domain.ValidationError{Field: "body", Message: "invalid JSON: unexpected data after object"}
	}

	if err := getValidator().Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &domain.ValidationError{Field: "body", Message: err.Error()}
		}
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			// Drop the leading Go type name: "posts[0].id", not "matchSingleRequest.posts[0].id".
			field := fe.Namespace()
			if _, rest, ok := strings.Cut(field, "."); ok {
				field = rest
			}
			details[field] = fe.Tag()
		}
		return &domain.ValidationError{Message: "validation failed", Details: details}
	}
	return nil
}
