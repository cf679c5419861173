package services_test

import (
	"context"
	"testing"
	"time"

	"livon-client/internal/core/domain"
	"livon-client/internal/core/services"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestInspectToken(t *testing.T) {
	now := time.Now()

	id, err := services.InspectToken(signed(t, "alice", now.Add(time.Hour)), now)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)

	_, err = services.InspectToken(signed(t, "alice", now.Add(-time.Minute)), now)
	assert.ErrorIs(t, err, domain.ErrAuthRejected)

	id, err = services.InspectToken("opaque-session-token", now)
	require.NoError(t, err)
	assert.Empty(t, id.UserID)
}

func TestStaticTokenSource(t *testing.T) {
	ctx := context.Background()
	src := services.NewStaticTokenSource(nil, signed(t, "alice", time.Now().Add(time.Hour)))

	tok, err := src.Token(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.Equal(t, "alice", src.Identity().UserID)

	src.OnAuthRejected(ctx, domain.ErrAuthRejected)
	_, err = src.Token(ctx)
	assert.ErrorIs(t, err, domain.ErrAuthRejected)
}

func TestStaticTokenSource_Empty(t *testing.T) {
	_, err := services.NewStaticTokenSource(nil, "  ").Token(context.Background())
	assert.ErrorIs(t, err, domain.ErrAuthRejected)
}
