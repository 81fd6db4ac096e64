package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/erazemk/zaloga/internal/model"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, 1, "ana", model.RoleStorageMaster)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.UserID != 1 {
		t.Errorf("expected user_id 1, got %d", claims.UserID)
	}
	if claims.Username != "ana" {
		t.Errorf("expected username 'ana', got %q", claims.Username)
	}
	if claims.Role != model.RoleStorageMaster {
		t.Errorf("expected role %q, got %q", model.RoleStorageMaster, claims.Role)
	}
	if claims.ID == "" {
		t.Error("expected a JTI")
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", 1, "admin", model.RoleAdmin)

	_, err := ValidateToken("secret2", token)
	if err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	_, err := ValidateToken("secret", "not-a-token")
	if err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestValidateTokenForeignIssuer(t *testing.T) {
	claims := Claims{
		UserID: 1,
		Role:   model.RoleSuperadmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	if _, err := ValidateToken("secret", signed); err == nil {
		t.Error("expected error for token from another issuer")
	}
}

func TestTokenExpiry(t *testing.T) {
	secret := "test"
	token, _ := GenerateToken(secret, 1, "test", model.RoleUser)
	claims, _ := ValidateToken(secret, token)

	expiresAt := claims.ExpiresAt.Time
	expectedExpiry := time.Now().Add(TokenExpiry)

	// Should be within a few seconds.
	diff := expectedExpiry.Sub(expiresAt)
	if diff < -5*time.Second || diff > 5*time.Second {
		t.Errorf("token expiry too far from expected: diff=%v", diff)
	}
}

func TestValidateTokenRejectsUnrevocable(t *testing.T) {
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	tests := []struct {
		name   string
		method jwt.SigningMethod
		claims jwt.RegisteredClaims
	}{
		{"no expiry", jwt.SigningMethodHS256, jwt.RegisteredClaims{ID: "a", Issuer: Issuer}},
		{"no id", jwt.SigningMethodHS256, jwt.RegisteredClaims{Issuer: Issuer, ExpiresAt: future}},
		{"other algorithm", jwt.SigningMethodHS512, jwt.RegisteredClaims{ID: "a", Issuer: Issuer, ExpiresAt: future}},
		{"expired", jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ID: "a", Issuer: Issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := jwt.NewWithClaims(tt.method, Claims{UserID: 1, RegisteredClaims: tt.claims}).
				SignedString([]byte("secret"))
			if err != nil {
				t.Fatalf("signing: %v", err)
			}
			if _, err := ValidateToken("secret", signed); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("got %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestTokensHaveDistinctIDs(t *testing.T) {
	a, _ := GenerateToken("s", 1, "ana", model.RoleUser)
	b, _ := GenerateToken("s", 1, "ana", model.RoleUser)
	ca, err := ValidateToken("s", a)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := ValidateToken("s", b)
	if err != nil {
		t.Fatal(err)
	}
	if ca.ID == cb.ID {
		t.Errorf("two sessions share id %s", ca.ID)
	}
	if ca.Subject != "1" {
		t.Errorf("subject = %q, want 1", ca.Subject)
	}
}

func TestGenerateTokenNeedsSecret(t *testing.T) {
	if _, err := GenerateToken("", 1, "ana", model.RoleUser); err == nil {
		t.Error("expected error for empty secret")
	}
}
