// Package limiter throttles repeated login failures per email and
// client address pair.
package limiter

import (
	"context"
	"time"
)

// Limiter gates login attempts and applies temporary lockouts.
type Limiter interface {
	// Allow reports whether a login attempt may proceed; when blocked it
	// also returns how long until the block lifts.
	Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, email string, ipHash []byte) error
	// Failure records a failed attempt and reports whether it tripped a block.
	Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error)
}
