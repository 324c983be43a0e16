package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 30)

	token, err := issuer.Issue("user-1", "student@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "student@example.com", claims.Email)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a", 30).Issue("user-1", "a@b.c")
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret-b", 30).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("secret", 30)
	issuer.ttl = -time.Minute

	token, err := issuer.Issue("user-1", "a@b.c")
	require.NoError(t, err)

	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := NewTokenIssuer("secret", 30).Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
