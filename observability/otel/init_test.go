package otel

import (
	"context"
	"testing"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "rewardsd", Traces: true, Metrics: true})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders("x-api-key = secret, broken, =empty,tenant=rewards")
	if len(headers) != 2 || headers["x-api-key"] != "secret" || headers["tenant"] != "rewards" {
		t.Fatalf("unexpected headers %v", headers)
	}
}
