// Package resilience guards calls to downstream infrastructure that
// fails fast and recovers on its own, like the governance event broker.
package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen rejects calls while a tripped breaker waits out its
// cool-off window.
var ErrCircuitOpen = errors.New("circuit open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// Breaker trips after a run of consecutive failures and rejects calls
// until a cool-off elapses, then admits a trial call. Publishing a
// governance announcement through one means a dead broker costs the
// caller one quick error instead of a stacked timeout per verdict.
type Breaker struct {
	name    string
	trip    int
	coolOff time.Duration

	mu       sync.Mutex
	st       state
	run      int // consecutive failures
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker creates a breaker named for the call it guards; the name
// shows up in rejection errors. trip is the consecutive-failure count
// that opens it, coolOff how long it stays open before probing.
func NewBreaker(name string, trip int, coolOff time.Duration) *Breaker {
	return &Breaker{name: name, trip: trip, coolOff: coolOff, now: time.Now}
}

// Execute runs fn unless the breaker is open. A failure during the
// half-open trial re-opens immediately; a success closes.
func (b *Breaker) Execute(fn func() error) error {
	if !b.admit() {
		return fmt.Errorf("%w: %s suspended for %s", ErrCircuitOpen, b.name, b.coolOff)
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.run++
		if b.st == stateHalfOpen || b.run >= b.trip {
			b.st = stateOpen
			b.openedAt = b.now()
		}
		return err
	}
	b.run = 0
	b.st = stateClosed
	return nil
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.st == stateOpen {
		if b.now().Sub(b.openedAt) < b.coolOff {
			return false
		}
		b.st = stateHalfOpen
	}
	return true
}
