package llm

import (
	"sync"
	"time"
)

// RequestFailureBackoff is how long a backend rejects requests after a failure.
const RequestFailureBackoff = 30 * time.Second

// Backoff is a penalty box entered after a failed request.
type Backoff struct {
	mu     sync.RWMutex
	until  time.Time
	period time.Duration
	now    func() time.Time
}

// NewBackoff creates a backoff with the given penalty period.
func NewBackoff(period time.Duration) *Backoff {
	return &Backoff{period: period, now: time.Now}
}

// Active reports whether requests are in the penalty box.
func (b *Backoff) Active() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.until.After(b.now())
}

// Trip starts a new penalty period.
func (b *Backoff) Trip() {
	if b.period <= 0 {
		return
	}
	b.mu.Lock()
	b.until = b.now().Add(b.period)
	b.mu.Unlock()
}

// Until returns the end of the current penalty period.
func (b *Backoff) Until() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.until
}
