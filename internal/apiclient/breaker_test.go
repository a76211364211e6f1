package apiclient

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

var errProviderDown = errors.New("provider returned 503")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProviderBreaker_TripThresholdsDifferByProvider(t *testing.T) {
	anthropicBreaker := newProviderBreaker("anthropic", testLogger())
	openaiBreaker := newProviderBreaker("openai", testLogger())

	if anthropicBreaker.tripThreshold != providerTripThreshold["anthropic"] {
		t.Fatalf("anthropic tripThreshold = %d, want %d", anthropicBreaker.tripThreshold, providerTripThreshold["anthropic"])
	}
	if openaiBreaker.tripThreshold != providerTripThreshold["openai"] {
		t.Fatalf("openai tripThreshold = %d, want %d", openaiBreaker.tripThreshold, providerTripThreshold["openai"])
	}
	if anthropicBreaker.tripThreshold == openaiBreaker.tripThreshold {
		t.Fatal("expected anthropic and openai to carry distinct trip thresholds")
	}
}

func TestProviderBreaker_UnknownProviderGetsDefaults(t *testing.T) {
	b := newProviderBreaker("bedrock", testLogger())
	if b.tripThreshold != defaultTripThreshold {
		t.Fatalf("tripThreshold = %d, want default %d", b.tripThreshold, defaultTripThreshold)
	}
	if b.coolDown != defaultCoolDown {
		t.Fatalf("coolDown = %v, want default %v", b.coolDown, defaultCoolDown)
	}
}

func TestProviderBreaker_ClosedStateAllowsCalls(t *testing.T) {
	b := newProviderBreaker("openai", testLogger())
	called := false
	err := b.attempt(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestProviderBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := newProviderBreaker("openai", testLogger())

	for i := 0; i < b.tripThreshold; i++ {
		_ = b.attempt(func() error { return errProviderDown })
	}

	err := b.attempt(func() error { return nil })
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestProviderBreaker_HalfOpenAfterCoolDown(t *testing.T) {
	now := time.Now()
	b := newProviderBreaker("anthropic", testLogger())
	b.now = func() time.Time { return now }

	for i := 0; i < b.tripThreshold; i++ {
		_ = b.attempt(func() error { return errProviderDown })
	}

	if err := b.attempt(func() error { return nil }); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable while still open, got %v", err)
	}

	now = now.Add(b.coolDown)

	called := false
	err := b.attempt(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error once half-open, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called in half-open state")
	}

	b.mu.Lock()
	if b.state != breakerClosed {
		t.Fatalf("expected state closed after half-open success, got %d", b.state)
	}
	b.mu.Unlock()
}

func TestProviderBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := newProviderBreaker("anthropic", testLogger())
	b.now = func() time.Time { return now }

	for i := 0; i < b.tripThreshold; i++ {
		_ = b.attempt(func() error { return errProviderDown })
	}
	now = now.Add(b.coolDown)

	_ = b.attempt(func() error { return errProviderDown })

	b.mu.Lock()
	if b.state != breakerOpen {
		t.Fatalf("expected state open after half-open failure, got %d", b.state)
	}
	b.mu.Unlock()

	if err := b.attempt(func() error { return nil }); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable after reopen, got %v", err)
	}
}

func TestProviderBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newProviderBreaker("openai", testLogger())

	_ = b.attempt(func() error { return errProviderDown })
	_ = b.attempt(func() error { return errProviderDown })
	_ = b.attempt(func() error { return nil }) // resets consecutiveFailures to 0
	_ = b.attempt(func() error { return errProviderDown })
	_ = b.attempt(func() error { return errProviderDown })

	called := false
	err := b.attempt(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called; breaker should not have tripped")
	}
}
