package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with a name and run accounting
type Limiter struct {
	limiter *rate.Limiter
	name    string

	mu      sync.Mutex
	granted int
	denied  int
}

// NewLimiter creates a new rate limiter
// perMinute specifies the number of runs allowed per minute; <= 0 disables limiting
func NewLimiter(name string, perMinute int) *Limiter {
	if perMinute <= 0 {
		return &Limiter{
			limiter: rate.NewLimiter(rate.Inf, 1),
			name:    name,
		}
	}

	// Convert per-minute rate to per-second
	rps := float64(perMinute) / 60.0
	// Allow burst of up to 5 runs or 1/10th of per-minute limit
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 5 {
		burst = 5
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    name,
	}
}

// Wait blocks until a token is available or context is cancelled
func (l *Limiter) Wait(ctx context.Context) error {
	err := l.limiter.Wait(ctx)
	l.record(err == nil)
	return err
}

// Allow reports whether a run may start now
func (l *Limiter) Allow() bool {
	ok := l.limiter.Allow()
	l.record(ok)
	return ok
}

func (l *Limiter) record(ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ok {
		l.granted++
	} else {
		l.denied++
	}
}

// Stats returns how many tokens were granted and denied so far
func (l *Limiter) Stats() (granted, denied int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.granted, l.denied
}

// Name returns the limiter name
func (l *Limiter) Name() string {
	return l.name
}
