package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrOpen = errors.New("circuit breaker is open")

type state int

const (
	closed state = iota
	open
	halfOpen
)

func (s state) String() string {
	switch s {
	case open:
		return "open"
	case halfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker fails fast after a run of consecutive counted failures and lets a
// single probe through once the cool-down has passed.
type Breaker struct {
	name        string
	mu          sync.Mutex
	state       state
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	counts      func(error) bool
	now         func() time.Time
}

// New returns a breaker that opens after maxFailures consecutive errors for
// which counts returns true. A nil counts treats every error as a failure.
func New(name string, maxFailures int, cooldown time.Duration, counts func(error) bool) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if counts == nil {
		counts = func(error) bool { return true }
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		counts:      counts,
		now:         time.Now,
	}
}

// Do runs fn unless the circuit is open, in which case it returns ErrOpen.
func (b *Breaker) Do(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil && b.counts(err) {
		b.failures++
		if b.state == halfOpen || b.failures >= b.maxFailures {
			b.transition(open)
			b.openedAt = b.now()
		}
		return err
	}
	b.failures = 0
	b.transition(closed)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.transition(halfOpen)
		return true
	case halfOpen:
		// a probe is already in flight
		return false
	default:
		return true
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to state) {
	if b.state == to {
		return
	}
	log.Warn().
		Str("breaker", b.name).
		Str("from", b.state.String()).
		Str("to", to.String()).
		Msg("Circuit breaker state change")
	b.state = to
}
