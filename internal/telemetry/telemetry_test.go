package telemetry

import (
	"context"
	"math"
	"testing"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "seedwarden"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown must never be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"":                        "",
		"   ":                     "",
		"http://otel:4318":        "otel:4318",
		"https://collector:4318/": "collector:4318",
		"jaeger:4318":             "jaeger:4318",
	}
	for in, want := range tests {
		if got := normalizeEndpoint(in); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSampleRate(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{-0.1, defaultSampleRate},
		{1.5, defaultSampleRate},
		{math.NaN(), defaultSampleRate},
	}
	for _, tt := range tests {
		if got := sampleRate(tt.in); got != tt.want {
			t.Errorf("sampleRate(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
