// Package backoff computes reconnect delays: exponential growth to a fixed
// cap, plus bounded random jitter so many sessions dropped by the same
// server outage do not reconnect in lockstep.
package backoff

import (
	"math/rand"
	"time"
)

const (
	DefaultBase        = 500 * time.Millisecond
	DefaultCap         = 8 * time.Second
	DefaultJitter      = 0.25
	DefaultMaxAttempts = 10
)

// Policy decides how long to wait before reconnect attempt N and when to
// give up entirely. The zero value is not usable; construct with NewPolicy.
type Policy struct {
	Base        time.Duration
	Cap         time.Duration
	Jitter      float64 // fraction of the delay added at most, e.g. 0.25
	MaxAttempts int

	// Rand returns a value in [0, 1). Overridable for deterministic tests.
	Rand func() float64
}

// NewPolicy creates a policy with the default tuning.
func NewPolicy() *Policy {
	return &Policy{
		Base:        DefaultBase,
		Cap:         DefaultCap,
		Jitter:      DefaultJitter,
		MaxAttempts: DefaultMaxAttempts,
		Rand:        rand.Float64,
	}
}

// Delay returns the wait before reconnect attempt (0-based). The result is
// within [d, d*(1+Jitter)] where d = min(Cap, Base*2^attempt).
func (p *Policy) Delay(attempt int) time.Duration {
	d := p.Base
	// Shift with an explicit bound instead of overflowing.
	for i := 0; i < attempt && d < p.Cap; i++ {
		d *= 2
	}
	if d > p.Cap {
		d = p.Cap
	}
	r := rand.Float64
	if p.Rand != nil {
		r = p.Rand
	}
	return d + time.Duration(float64(d)*p.Jitter*r())
}

// Exhausted reports whether the retry budget is spent after the given
// number of failed attempts.
func (p *Policy) Exhausted(attempts int) bool {
	return attempts > p.MaxAttempts
}
