package resilience

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var errBrokerDown = errors.New("broker unavailable")

func publishBreaker(trip int) *Breaker {
	return NewBreaker("announcement publish", trip, time.Second)
}

func TestBreakerClosedPassesThrough(t *testing.T) {
	b := publishBreaker(3)

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("closed breaker must pass the call through: %v", err)
	}
	if !called {
		t.Fatal("expected the guarded call to run")
	}
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := publishBreaker(3)

	for range 3 {
		_ = b.Execute(func() error { return errBrokerDown })
	}

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after three straight failures, got %v", err)
	}
	if !strings.Contains(err.Error(), "announcement publish") {
		t.Errorf("rejection should name the guarded call, got %q", err)
	}
}

func TestBreakerRetriesAfterCoolOff(t *testing.T) {
	now := time.Now()
	b := publishBreaker(2)
	b.now = func() time.Time { return now }

	for range 2 {
		_ = b.Execute(func() error { return errBrokerDown })
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected rejection inside the cool-off, got %v", err)
	}

	now = now.Add(2 * time.Second)

	reached := false
	if err := b.Execute(func() error { reached = true; return nil }); err != nil {
		t.Fatalf("trial call after cool-off must run: %v", err)
	}
	if !reached {
		t.Fatal("expected the trial call to reach the broker")
	}

	// The successful trial closes the breaker again.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("breaker should be closed after a good trial call: %v", err)
	}
}

func TestBreakerTrialFailureReopens(t *testing.T) {
	now := time.Now()
	b := publishBreaker(2)
	b.now = func() time.Time { return now }

	for range 2 {
		_ = b.Execute(func() error { return errBrokerDown })
	}
	now = now.Add(2 * time.Second)

	_ = b.Execute(func() error { return errBrokerDown })

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("failed trial call must re-open the breaker, got %v", err)
	}
}

func TestBreakerSuccessResetsTheRun(t *testing.T) {
	b := publishBreaker(3)

	_ = b.Execute(func() error { return errBrokerDown })
	_ = b.Execute(func() error { return errBrokerDown })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errBrokerDown })
	_ = b.Execute(func() error { return errBrokerDown })

	// Two failures since the last success: still under the trip count.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("interleaved success must reset the failure run: %v", err)
	}
}
