package services

import (
	"context"
	"errors"
	"livon-client/internal/core/contracts"
	"livon-client/internal/core/domain"
	"livon-client/pkg/logging"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// InspectToken reads the identity carried by a JWT without verifying its
// signature; the broker does that. Opaque tokens yield an empty identity.
func InspectToken(token string, now time.Time) (domain.Identity, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return domain.Identity{}, nil
	}
	id := domain.Identity{UserID: claims.Subject}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
		if !id.ExpiresAt.After(now) {
			return id, domain.WrapError(domain.CodeAuthRejected, "credential expired", errors.New("exp "+id.ExpiresAt.UTC().Format(time.RFC3339)))
		}
	}
	return id, nil
}

// StaticTokenSource serves a bearer token supplied at startup. Once the
// broker rejects it, every later request fails, which ends the session.
type StaticTokenSource struct {
	log   *slog.Logger
	now   func() time.Time
	mu    sync.Mutex
	token string
	err   error
}

var _ contracts.TokenSource = (*StaticTokenSource)(nil)

func NewStaticTokenSource(log *slog.Logger, token string) *StaticTokenSource {
	return &StaticTokenSource{log: logging.OrDiscard(log), now: time.Now, token: strings.TrimSpace(token)}
}

func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if s.token == "" {
		return "", domain.WrapError(domain.CodeAuthRejected, "token - no credential configured", nil)
	}
	if _, err := InspectToken(s.token, s.now()); err != nil {
		s.log.WarnContext(ctx, "token - token - credential expired")
		return "", err
	}
	return s.token, nil
}

func (s *StaticTokenSource) OnAuthRejected(ctx context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = domain.WrapError(domain.CodeAuthRejected, "token - credential revoked", err)
	}
	s.log.WarnContext(ctx, "token - auth rejected - credential discarded", logging.Err(err))
}

// Identity returns what the token says about its holder.
func (s *StaticTokenSource) Identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := InspectToken(s.token, s.now())
	return id
}
