package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const settingJWTSecret = "jwt_secret"

// GetSetting returns a value from the settings table.
func GetSetting(ctx context.Context, db *sqlx.DB, key string) (string, error) {
	var value string
	err := get(ctx, db, &value, `SELECT value FROM settings WHERE key = ?`, key)
	if isNoRows(err) {
		return "", notFound("setting %s not found", key)
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, nil
}

// ensureSetting stores candidate under key unless a value is already there
// and returns whichever value won. Concurrent first starts agree on one value.
func ensureSetting(ctx context.Context, db *sqlx.DB, key, candidate string) (string, error) {
	_, err := exec(ctx, db,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO NOTHING`,
		key, candidate)
	if err != nil {
		return "", fmt.Errorf("storing setting %s: %w", key, err)
	}
	return GetSetting(ctx, db, key)
}

// GetJWTSecret returns the token signing secret, generating one on first use.
func GetJWTSecret(ctx context.Context, db *sqlx.DB) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	return ensureSetting(ctx, db, settingJWTSecret, hex.EncodeToString(buf))
}
