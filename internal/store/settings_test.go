package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/zaloga/internal/db"
)

func TestJWTSecretIsStable(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 64 {
		t.Fatalf("secret has %d hex chars, want 64", len(first))
	}
	again, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if again != first {
		t.Fatal("secret changed between calls")
	}
	stored, err := GetSetting(ctx, database, settingJWTSecret)
	if err != nil || stored != first {
		t.Fatalf("GetSetting = %q, %v", stored, err)
	}
}

func TestMissingSetting(t *testing.T) {
	database := db.NewTestDB(t)
	_, err := GetSetting(context.Background(), database, "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
