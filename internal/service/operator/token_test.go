package operator

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
)

func Test_TokenManager(t *testing.T) {
	t.Parallel()

	op := models.Operator{ID: "op-42", Name: "Alice"}

	t.Run("new defaults", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err, "token manager should be created without errors")

		require.Len(t, m.key, signingKeyLen, "signing key should be derived from secret")
		require.NotEqual(t, []byte("secret"), m.key, "secret must not be used as is")
		require.Equal(t, defaultTokenTTL, m.ttl, "default ttl should be set")
		require.Equal(t, defaultSigningMethod, m.alg.Alg(), "default signing method should be set")
	})

	t.Run("new fails", func(t *testing.T) {
		_, err := New(Config{})
		require.Error(t, err, "secret key is required")

		_, err = New(Config{SecretKey: "secret", Alg: "nope"})
		require.Error(t, err, "unknown algorithm must fail")
	})

	t.Run("issue and parse", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret", TTL: time.Hour})
		require.NoError(t, err)

		token, err := m.Issue(op)
		require.NoError(t, err)
		assert.NotEmpty(t, token.Value)
		assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, time.Second)

		parsed, err := m.Parse(token.Value)
		require.NoError(t, err)
		require.Equal(t, op, parsed)
	})

	t.Run("issue requires operator id", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)

		_, err = m.Issue(models.Operator{Name: "Nobody"})
		require.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})

	t.Run("parse fails", func(t *testing.T) {
		m, err := New(Config{SecretKey: "secret"})
		require.NoError(t, err)
		other, err := New(Config{SecretKey: "other-secret"})
		require.NoError(t, err)

		expiredManager, err := New(Config{SecretKey: "secret", TTL: -time.Minute})
		require.NoError(t, err)
		expired, err := expiredManager.Issue(op)
		require.NoError(t, err)

		foreign, err := other.Issue(op)
		require.NoError(t, err)

		noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: op.ID},
		}).SignedString(m.key)
		require.NoError(t, err)

		tests := []struct {
			name  string
			token string
		}{
			{"garbage", "not-a-token"},
			{"expired", expired.Value},
			{"foreign key", foreign.Value},
			{"no expiration", noExpiry},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := m.Parse(tt.token)
				require.ErrorIs(t, err, apperrors.ErrOperatorTokenInvalid)
			})
		}
	})
}
