package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/erazemk/zaloga/internal/db"
	"github.com/erazemk/zaloga/internal/model"
	"github.com/erazemk/zaloga/internal/store"
)

func TestLevelRouterSplitsByLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	logger := slog.New(&levelRouter{
		stdout: slog.NewTextHandler(&out, nil),
		stderr: slog.NewTextHandler(&errOut, nil),
	}).With("component", "test")

	logger.Info("hello")
	logger.Warn("careful")
	logger.Error("broken")
	logger.Debug("hidden")

	if !strings.Contains(out.String(), "hello") || !strings.Contains(out.String(), "careful") {
		t.Errorf("stdout missing info/warn: %q", out.String())
	}
	if strings.Contains(out.String(), "broken") || !strings.Contains(errOut.String(), "broken") {
		t.Errorf("error not routed to stderr: stdout=%q stderr=%q", out.String(), errOut.String())
	}
	if strings.Contains(out.String()+errOut.String(), "hidden") {
		t.Error("debug should be filtered")
	}
	if !strings.Contains(errOut.String(), "component=test") {
		t.Errorf("attrs not carried: %q", errOut.String())
	}
}

func TestGeneratePassword(t *testing.T) {
	a, err := generatePassword(16)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := generatePassword(16)
	if len(a) != 16 || a == b {
		t.Errorf("passwords %q and %q", a, b)
	}
}

func TestEnsureSuperadminOnlyOnce(t *testing.T) {
	ctx := context.Background()
	database := db.NewTestDB(t)

	if err := ensureSuperadmin(ctx, database, "root"); err != nil {
		t.Fatalf("ensureSuperadmin: %v", err)
	}
	if err := ensureSuperadmin(ctx, database, "other"); err != nil {
		t.Fatalf("second ensureSuperadmin: %v", err)
	}

	users, err := store.ListUsers(ctx, database)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].Username != "root" || users[0].Role != model.RoleSuperadmin {
		t.Errorf("users = %+v", users)
	}
}
