package telemetry

import (
	"context"
	"testing"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), "", "dev")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := shutdown(ctx); err != nil {
		t.Errorf("noop shutdown: %v", err)
	}
}

func TestSetupWithEndpoint(t *testing.T) {
	// Non-routable address; nothing is exported before shutdown.
	shutdown, err := Setup(context.Background(), "http://192.0.2.1:4318", "dev")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
