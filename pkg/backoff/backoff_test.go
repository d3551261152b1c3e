package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelay(t *testing.T) {
	t.Run("grows exponentially to the cap without jitter", func(t *testing.T) {
		p := &Policy{Base: 500 * time.Millisecond, Cap: 8 * time.Second, Jitter: 0, MaxAttempts: 10}

		testCases := []struct {
			attempt int
			want    time.Duration
		}{
			{0, 500 * time.Millisecond},
			{1, 1 * time.Second},
			{2, 2 * time.Second},
			{3, 4 * time.Second},
			{4, 8 * time.Second},
			{5, 8 * time.Second},
			{50, 8 * time.Second},
		}
		for _, tc := range testCases {
			assert.Equal(t, tc.want, p.Delay(tc.attempt), "attempt %d", tc.attempt)
		}
	})

	t.Run("consecutive delays are non-decreasing", func(t *testing.T) {
		p := NewPolicy()
		p.Rand = func() float64 { return 0 }
		prev := time.Duration(0)
		for attempt := 0; attempt < 12; attempt++ {
			d := p.Delay(attempt)
			assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
			prev = d
		}
	})

	t.Run("jitter stays within the documented bound", func(t *testing.T) {
		p := NewPolicy()
		for attempt := 0; attempt < 12; attempt++ {
			base := (&Policy{Base: p.Base, Cap: p.Cap, Jitter: 0}).Delay(attempt)
			for i := 0; i < 100; i++ {
				d := p.Delay(attempt)
				assert.GreaterOrEqual(t, d, base)
				assert.LessOrEqual(t, d, base+time.Duration(float64(base)*p.Jitter))
			}
		}
	})

	t.Run("jitter uses the injected source", func(t *testing.T) {
		p := &Policy{Base: time.Second, Cap: 8 * time.Second, Jitter: 0.25,
			Rand: func() float64 { return 0.5 }}
		// 1s + 1s*0.25*0.5 = 1.125s
		assert.Equal(t, 1125*time.Millisecond, p.Delay(0))
	})
}

func TestExhausted(t *testing.T) {
	p := NewPolicy()
	assert.False(t, p.Exhausted(0))
	assert.False(t, p.Exhausted(DefaultMaxAttempts))
	assert.True(t, p.Exhausted(DefaultMaxAttempts+1))
}
