package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/erazemk/zaloga/internal/model"
)

// Claims carries the session identity. Role and department are reloaded from
// the users table on every request, so a stale token cannot keep a revoked
// role.
type Claims struct {
	UserID   int64      `json:"user_id"`
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenExpiry is the default token lifetime.
const TokenExpiry = 7 * 24 * time.Hour

// Issuer is stamped into every token.
const Issuer = "zaloga"

// ErrInvalidToken wraps every rejection from ValidateToken.
var ErrInvalidToken = errors.New("invalid token")

// GenerateToken signs a session token for a user. Each token gets a random
// UUID as its ID so a logout can revoke exactly that session.
func GenerateToken(secret string, userID int64, username string, role model.Role) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	issued := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   fmt.Sprint(userID),
			ExpiresAt: jwt.NewNumericDate(issued.Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issued),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature, issuer and expiry and returns the claims.
// Tokens without an ID or expiry are rejected since they cannot be revoked.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
