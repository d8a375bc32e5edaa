package upload

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ChunkLimiter paces chunk requests with a token bucket. A nil limiter or a
// zero rate never blocks.
type ChunkLimiter struct {
	limiter *rate.Limiter
}

// NewChunkLimiter creates a limiter allowing chunksPerSecond requests with a
// burst of one. Zero or negative means unlimited.
func NewChunkLimiter(chunksPerSecond float64) *ChunkLimiter {
	if chunksPerSecond <= 0 {
		return &ChunkLimiter{}
	}
	return &ChunkLimiter{limiter: rate.NewLimiter(rate.Limit(chunksPerSecond), 1)}
}

// Wait blocks until the next chunk may be sent or ctx is done.
func (cl *ChunkLimiter) Wait(ctx context.Context) error {
	if cl == nil || cl.limiter == nil {
		return nil
	}
	if cl.limiter.Allow() {
		return nil
	}

	reservation := cl.limiter.Reserve()
	if !reservation.OK() {
		return fmt.Errorf("chunk limiter: cannot reserve token")
	}

	timer := time.NewTimer(reservation.Delay())
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	}
}

// Limit returns the configured rate, or 0 when unlimited.
func (cl *ChunkLimiter) Limit() float64 {
	if cl == nil || cl.limiter == nil {
		return 0
	}
	return float64(cl.limiter.Limit())
}
