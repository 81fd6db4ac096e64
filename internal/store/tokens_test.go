package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erazemk/zaloga/internal/db"
)

func TestTokenRevocation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	if err := RevokeToken(ctx, database, "session-a", exp); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if err := RevokeToken(ctx, database, "session-a", exp); err != nil {
		t.Fatalf("second RevokeToken: %v", err)
	}

	for jti, want := range map[string]bool{"session-a": true, "session-b": false} {
		got, err := IsTokenRevoked(ctx, database, jti)
		if err != nil {
			t.Fatalf("IsTokenRevoked(%s): %v", jti, err)
		}
		if got != want {
			t.Errorf("IsTokenRevoked(%s) = %v, want %v", jti, got, want)
		}
	}
}

func TestRevokeTokenRejectsEmptyID(t *testing.T) {
	database := db.NewTestDB(t)
	err := RevokeToken(context.Background(), database, "  ", time.Now().Add(time.Hour))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestRevokeExpiredTokenIsNoop(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	if err := RevokeToken(ctx, database, "stale", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if revoked, _ := IsTokenRevoked(ctx, database, "stale"); revoked {
		t.Error("expired token was stored")
	}
}

func TestPurgeRevokedTokens(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if err := RevokeToken(ctx, database, "live", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := database.ExecContext(ctx,
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?)`,
		"old", time.Now().Add(-time.Hour).UTC()); err != nil {
		t.Fatal(err)
	}

	n, err := PurgeRevokedTokens(ctx, database)
	if err != nil {
		t.Fatalf("PurgeRevokedTokens: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}
	if revoked, _ := IsTokenRevoked(ctx, database, "live"); !revoked {
		t.Error("live revocation was purged")
	}
}
