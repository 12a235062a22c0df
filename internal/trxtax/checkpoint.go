package trxtax

import (
	"context"
	"runtime"
	"time"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/apperrors"
)

const checkpointInterval = time.Second

// checkpoint yields the processor to other goroutines after every interval of
// continuous work and reports cancellation at that point.
type checkpoint struct {
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

func newCheckpoint(interval time.Duration) *checkpoint {
	return &checkpoint{
		interval: interval,
		last:     time.Now(),
		now:      time.Now,
	}
}

// yield returns apperrors.ErrInterrupted when ctx is done at a scheduling point.
func (c *checkpoint) yield(ctx context.Context) error {
	now := c.now()
	if now.Sub(c.last) < c.interval {
		return nil
	}

	runtime.Gosched()
	c.last = c.now()

	if ctx.Err() != nil {
		return apperrors.ErrInterrupted
	}
	return nil
}
