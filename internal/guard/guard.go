// Package guard implements the admission checks the coordinator runs
// before launching a new pipeline: per-user cooldown, concurrency cap,
// and system RAM headroom.
package guard

import (
	"fmt"
	"sync"
	"time"
)

// Guard holds the mutable state behind the three admission checks: one
// mutex-protected struct guarding a shared resource, checked by every
// incoming task submission.
type Guard struct {
	mu sync.Mutex

	maxInFlight int
	inFlight    int

	ramThresholdPct float64
	ramReader       func() (usedPct float64, err error)

	cooldown     time.Duration
	lastSubmit   map[string]time.Time
}

// Option configures a Guard at construction.
type Option func(*Guard)

// WithRAMReader overrides the default /proc/meminfo reader, for tests.
func WithRAMReader(f func() (float64, error)) Option {
	return func(g *Guard) { g.ramReader = f }
}

func New(maxInFlight int, ramThresholdPct float64, cooldown time.Duration, opts ...Option) *Guard {
	g := &Guard{
		maxInFlight:     maxInFlight,
		ramThresholdPct: ramThresholdPct,
		cooldown:        cooldown,
		lastSubmit:      make(map[string]time.Time),
		ramReader:       ReadRAMUsedPct,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admit runs all three checks for userID and, if they all pass, reserves
// one concurrency slot (the caller must call Release when the pipeline
// finishes). Returns a descriptive error naming which guard rejected the
// submission, since that string is shown to the operator verbatim.
func (g *Guard) Admit(userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.lastSubmit[userID]; ok {
		if remaining := g.cooldown - time.Since(last); remaining > 0 {
			return fmt.Errorf("%w: %s remaining", ErrCooldown, remaining.Round(time.Second))
		}
	}

	if g.inFlight >= g.maxInFlight {
		return fmt.Errorf("%w: %d/%d tasks in flight", ErrConcurrencyCap, g.inFlight, g.maxInFlight)
	}

	usedPct, err := g.ramReader()
	if err == nil && usedPct >= g.ramThresholdPct {
		return fmt.Errorf("%w: system RAM at %.0f%%", ErrRAMPressure, usedPct*100)
	}

	g.inFlight++
	g.lastSubmit[userID] = time.Now()
	return nil
}

// Release frees the concurrency slot reserved by a successful Admit.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight > 0 {
		g.inFlight--
	}
}

// InFlight reports the current number of admitted, unreleased tasks.
func (g *Guard) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}
