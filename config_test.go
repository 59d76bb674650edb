package main

import (
	"testing"
	"time"
)

func TestRedisOptionsURL(t *testing.T) {
	opts := redisOptions("redis://:secret@localhost:6380/2")
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestRedisOptionsAzureForm(t *testing.T) {
	opts := redisOptions("cache.example.net:6380,password=abc=,ssl=True,abortConnect=False")
	if opts.Addr != "cache.example.net:6380" {
		t.Fatalf("unexpected addr %q", opts.Addr)
	}
	if opts.Password != "abc=" {
		t.Fatalf("password must keep trailing '=': %q", opts.Password)
	}
	if opts.TLSConfig == nil {
		t.Fatalf("expected TLS for ssl=True")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("LISTEN_PORT", "")
	if got := envString("LISTEN_PORT", "8080"); got != "8080" {
		t.Fatalf("expected default port, got %q", got)
	}
	t.Setenv("CACHE_TTL", "bogus")
	if got := envDur("CACHE_TTL", time.Minute); got != time.Minute {
		t.Fatalf("invalid duration must fall back, got %v", got)
	}
	t.Setenv("CACHE_TTL", "90s")
	if got := envDur("CACHE_TTL", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
}
