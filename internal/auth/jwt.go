package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/isdelr/blog-be/internal/apperror"
)

// Claims defines the JWT claims structure. Only the subject (user ID) is
// carried; the role is looked up again on every request.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 session tokens.
type TokenManager struct {
	key    []byte
	expiry time.Duration
	now    func() time.Time
}

// NewTokenManager creates a TokenManager signing with secret.
func NewTokenManager(secret string, expiry time.Duration) *TokenManager {
	return &TokenManager{key: []byte(secret), expiry: expiry, now: time.Now}
}

// Expiry is the lifetime of issued tokens.
func (m *TokenManager) Expiry() time.Duration {
	return m.expiry
}

// GenerateJWT creates a new JWT for the given user ID.
func (m *TokenManager) GenerateJWT(userID string) (string, error) {
	now := m.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.key)
}

// ValidateJWT parses and validates a JWT string. Any failure (malformed,
// expired, wrong signature or algorithm, missing subject) is Unauthorized.
func (m *TokenManager) ValidateJWT(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, &apperror.Error{Kind: apperror.KindUnauthorized, Message: "Not authorized, token failed", Err: err}
	}
	if !token.Valid || claims.Subject == "" {
		return nil, &apperror.Error{Kind: apperror.KindUnauthorized, Message: "Not authorized, token failed", Err: errors.New("invalid token")}
	}
	return claims, nil
}
