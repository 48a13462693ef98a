package main

import (
	"testing"

	"birddex/internal/config"
)

func TestParseListenAddr(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
	}{
		{":8080", "", 8080},
		{"127.0.0.1:9000", "127.0.0.1", 9000},
		{"7000", "", 7000},
		{"example.local", "example.local", 0},
		{"", "", 0},
	}
	for _, tc := range cases {
		host, port := parseListenAddr(tc.in)
		if host != tc.host || port != tc.port {
			t.Fatalf("parseListenAddr(%q) = %q, %d; want %q, %d", tc.in, host, port, tc.host, tc.port)
		}
	}
}

func TestJoinListenAddr(t *testing.T) {
	if got := joinListenAddr("", 0); got != ":8080" {
		t.Fatalf("joinListenAddr() = %q, want :8080", got)
	}
	if got := joinListenAddr("0.0.0.0", 9090); got != "0.0.0.0:9090" {
		t.Fatalf("joinListenAddr() = %q, want 0.0.0.0:9090", got)
	}
}

func TestNewRecorderDefaultsToInProcess(t *testing.T) {
	if rec := newRecorder(config.Config{}); rec != nil {
		t.Fatalf("expected nil recorder without endpoint, got %T", rec)
	}
	if rec := newRecorder(config.Config{CaptureEndpoint: "http://backend.local/api/v1/pokedex/capture"}); rec == nil {
		t.Fatalf("expected HTTP recorder when endpoint is set")
	}
}

func TestSafeKeyMeta(t *testing.T) {
	if got := safeKeyMeta("  "); got != "empty=true" {
		t.Fatalf("safeKeyMeta() = %q", got)
	}
	if got := safeKeyMeta("'abc'"); got != "empty=false,len=5,has_quotes=true,has_whitespace=false" {
		t.Fatalf("safeKeyMeta() = %q", got)
	}
}
