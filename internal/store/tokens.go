package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// RevokeToken blacklists a session token until it would have expired
// anyway. Revoking twice is harmless.
func RevokeToken(ctx context.Context, db *sqlx.DB, jti string, expiresAt time.Time) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return invalid("token id required")
	}
	if !expiresAt.After(now()) {
		return nil
	}
	_, err := exec(ctx, db,
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?) ON CONFLICT (jti) DO NOTHING`,
		jti, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// IsTokenRevoked reports whether jti is on the blacklist.
func IsTokenRevoked(ctx context.Context, db *sqlx.DB, jti string) (bool, error) {
	var count int
	if err := get(ctx, db, &count, `SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`, jti); err != nil {
		return false, fmt.Errorf("checking token revocation: %w", err)
	}
	return count > 0, nil
}

// PurgeRevokedTokens drops blacklist entries whose tokens have expired and
// returns how many were removed.
func PurgeRevokedTokens(ctx context.Context, db *sqlx.DB) (int64, error) {
	res, err := exec(ctx, db, `DELETE FROM revoked_tokens WHERE expires_at < ?`, now())
	if err != nil {
		return 0, fmt.Errorf("purging revoked tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
