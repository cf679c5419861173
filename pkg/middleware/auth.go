package middleware

import (
	"context"
	"fmt"
	"net/http"
)

// TokenProvider yields the bearer credential for a request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// BearerAuth sets "Authorization: Bearer <token>" on every request that does
// not carry its own Authorization header.
func BearerAuth(tokens TokenProvider) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if r.Header.Get("Authorization") != "" {
				return next.RoundTrip(r)
			}
			token, err := tokens.Token(r.Context())
			if err != nil {
				return nil, fmt.Errorf("bearer auth: %w", err)
			}
			// a RoundTripper must not modify the caller's request
			r = r.Clone(r.Context())
			r.Header.Set("Authorization", "Bearer "+token)
			return next.RoundTrip(r)
		})
	}
}
