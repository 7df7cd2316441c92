package core

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultStaleBuffer = 300 * time.Second

// IsStale reports whether a token expiring at expiresAt must be refreshed at
// now. A nil expiry is treated as durable. The boundary is inclusive: a token
// expiring exactly buffer from now is stale.
func IsStale(now time.Time, expiresAt *time.Time, buffer time.Duration) bool {
	if expiresAt == nil {
		return false
	}
	if buffer <= 0 {
		buffer = DefaultStaleBuffer
	}
	return !now.Before(expiresAt.Add(-buffer))
}

type ExpiryPolicy struct {
	Buffer time.Duration
	Clock  clockwork.Clock
}

func NewExpiryPolicy(buffer time.Duration, clock clockwork.Clock) ExpiryPolicy {
	if buffer <= 0 {
		buffer = DefaultStaleBuffer
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return ExpiryPolicy{Buffer: buffer, Clock: clock}
}

func (p ExpiryPolicy) IsStale(expiresAt *time.Time) bool {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return IsStale(clock.Now().UTC(), expiresAt, p.Buffer)
}
