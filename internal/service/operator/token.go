// Package operator issues and verifies tokens of back-office operators.
package operator

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/nkiryanov/coinledger/internal/apperrors"
	"github.com/nkiryanov/coinledger/internal/models"
)

const (
	defaultTokenTTL      = 8 * time.Hour
	defaultSigningMethod = "HS256"

	signingKeyLen  = 32
	signingKeyInfo = "coinledger operator token"
)

type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
}

type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Token lifetime
	// If not set than default is used
	TTL time.Duration
}

type TokenManager struct {
	// HMAC key derived from the secret key with HKDF
	key []byte
	alg jwt.SigningMethod
	ttl time.Duration
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if alg == nil {
		return nil, fmt.Errorf("unknown signing method %q", cfg.Alg)
	}

	if cfg.TTL == 0 {
		cfg.TTL = defaultTokenTTL
	}

	key, err := deriveKey(cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	return &TokenManager{
		key: key,
		alg: alg,
		ttl: cfg.TTL,
	}, nil
}

// Issue signed token for the operator; operator id goes to the subject claim
func (m *TokenManager) Issue(op models.Operator) (models.IssuedToken, error) {
	if op.ID == "" {
		return models.IssuedToken{}, fmt.Errorf("%w: operator id is required", apperrors.ErrInvalidArgument)
	}

	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(m.ttl)

	token := jwt.NewWithClaims(
		m.alg,
		Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   op.ID,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			Name: op.Name,
		},
	)

	signed, err := token.SignedString(m.key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing operator token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Parse and validate token
func (m *TokenManager) Parse(token string) (models.Operator, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) {
			return m.key, nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return models.Operator{}, fmt.Errorf("%w: %w", apperrors.ErrOperatorTokenInvalid, err)
	}

	if claims.Subject == "" {
		return models.Operator{}, fmt.Errorf("%w: subject is empty", apperrors.ErrOperatorTokenInvalid)
	}

	return models.Operator{ID: claims.Subject, Name: claims.Name}, nil
}

func deriveKey(secret string) ([]byte, error) {
	key := make([]byte, signingKeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(signingKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("error while deriving signing key. Err: %w", err)
	}
	return key, nil
}
