package httpserver

import (
	"testing"
	"time"
)

func (l *clientRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func TestClientRateLimiter_RefillsOverTime(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l := newClientRateLimiter(2, 1, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("a") {
		t.Fatal("expected first request allowed")
	}
	if l.Allow("a") {
		t.Fatal("expected bucket exhausted")
	}

	now = now.Add(500 * time.Millisecond)
	if !l.Allow("a") {
		t.Error("expected token after refill")
	}
}

func TestClientRateLimiter_SweepsIdleClients(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	l := newClientRateLimiter(10, 10, time.Minute)
	l.now = func() time.Time { return now }
	l.lastSweep = now

	l.Allow("a")
	l.Allow("b")
	if got := l.size(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	now = now.Add(2 * time.Minute)
	l.Allow("c")
	if got := l.size(); got != 1 {
		t.Errorf("expected idle clients swept, got %d", got)
	}
}

func TestNewClientRateLimiter_Defaults(t *testing.T) {
	l := newClientRateLimiter(5, 0, 0)
	if l.burst != 1 {
		t.Errorf("expected burst 1, got %d", l.burst)
	}
	if l.idleTTL != defaultLimiterIdleTTL {
		t.Errorf("expected idle ttl %s, got %s", defaultLimiterIdleTTL, l.idleTTL)
	}
}
