package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nvoloshin/callmeter/internal/models"
)

func TestAuthenticator(t *testing.T) {
	authenticator, err := New("test-secret")
	require.NoError(t, err)

	user := models.User{ID: uuid.New(), Username: "alice", Role: models.RoleClient}

	t.Run("empty secret rejected", func(t *testing.T) {
		_, err := New("")
		require.Error(t, err)
	})

	t.Run("issue and parse roundtrip", func(t *testing.T) {
		token, err := authenticator.IssueToken(user, 0)
		require.NoError(t, err)

		parsed, err := authenticator.ParseToken(token)
		require.NoError(t, err)
		require.Equal(t, user.ID, parsed.ID)
		require.Equal(t, user.Username, parsed.Username)
		require.Equal(t, models.RoleClient, parsed.Role)
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		other, err := New("other-secret")
		require.NoError(t, err)

		token, err := other.IssueToken(user, 0)
		require.NoError(t, err)

		_, err = authenticator.ParseToken(token)
		require.Error(t, err)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token, err := authenticator.IssueToken(user, -time.Minute)
		require.NoError(t, err)

		_, err = authenticator.ParseToken(token)
		require.Error(t, err)
	})

	t.Run("user from request", func(t *testing.T) {
		token, err := authenticator.IssueToken(user, 0)
		require.NoError(t, err)

		r := httptest.NewRequest("GET", "/api/balance", nil)
		r.Header.Set("Authorization", "Bearer "+token)

		parsed, err := authenticator.UserFromRequest(r)
		require.NoError(t, err)
		require.Equal(t, user.ID, parsed.ID)
	})

	t.Run("request without token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/balance", nil)

		_, err := authenticator.UserFromRequest(r)
		require.ErrorIs(t, err, ErrNoToken)
	})
}
