package tracing

import (
	"context"
	"testing"

	"github.com/m4xw311/codeloop/config"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.Tracing{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetupRejectsUnknownProtocol(t *testing.T) {
	_, err := Setup(context.Background(), config.Tracing{Endpoint: "localhost:4317", Protocol: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown protocol")
	}
}
