package llm

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/freshloop/freshloop/internal/domain"
)

// Generator sends a prompt to a hosted text model and returns its raw reply.
// Implementations perform exactly one upstream call per Generate and do not retry.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

var ErrEmptyResponse = errors.New("empty response")

// UpstreamFailure wraps err as a *domain.UpstreamError for service, marking it
// as a timeout when ctx expired or the transport reported one.
func UpstreamFailure(ctx context.Context, service string, err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		timeout = true
	}
	return &domain.UpstreamError{Service: service, Timeout: timeout, Err: err}
}

// CheckReply rejects blank replies, which every backend treats as a failed call.
func CheckReply(service, reply string) (string, error) {
	if strings.TrimSpace(reply) == "" {
		return "", &domain.UpstreamError{Service: service, Err: ErrEmptyResponse}
	}
	return reply, nil
}
