// Package clock provides the timing primitive for story playback.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Errors
var (
	ErrDisposed       = errors.New("clock is disposed")
	ErrAlreadyStarted = errors.New("clock already started")
)

// DefaultTick is the tick granularity used when none is configured.
const DefaultTick = 50 * time.Millisecond

// Clock tracks elapsed time against a fixed duration and fires a completion
// callback exactly once when elapsed reaches the duration. A clock is
// single-shot: one Start per instance. Stop halts timing without firing;
// Dispose guarantees no firing afterwards and is idempotent.
type Clock struct {
	mu sync.Mutex

	tick     time.Duration
	duration time.Duration

	startedAt      time.Time // wall time of Start
	deadline       time.Time // wall time at which onFinished fires
	stoppedElapsed time.Duration

	// Fast-forward window, set by FastForward. Progress interpolates from
	// ffFrom to 1.0 across ffWindow so a progress bar can animate to the end.
	ffAt     time.Time
	ffFrom   float64
	ffWindow time.Duration

	running  bool
	started  bool
	finished bool
	disposed bool

	onFinished func()
	cancel     context.CancelFunc
}

// New creates a clock with the given tick granularity.
func New(tick time.Duration) *Clock {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Clock{tick: tick}
}

// Start begins timing the given duration. onFinished is invoked exactly once
// when elapsed reaches the duration, unless Stop or Dispose intervenes.
func (c *Clock) Start(duration time.Duration, onFinished func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return ErrDisposed
	}
	if c.started {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())

	now := toWallTime(time.Now())
	c.started = true
	c.running = true
	c.duration = duration
	c.startedAt = now
	c.deadline = now.Add(duration)
	c.onFinished = onFinished
	c.cancel = cancel

	go c.run(ctx)
	return nil
}

// run polls the wall clock until the deadline passes or the clock is
// cancelled. Manual wall-clock comparison avoids monotonic clock drift.
func (c *Clock) run(ctx context.Context) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.fireIfDue() {
				return
			}
		}
	}
}

// fireIfDue fires onFinished if the deadline has passed. It returns true when
// the run loop should exit. The finished flag makes the firing exactly-once.
func (c *Clock) fireIfDue() bool {
	c.mu.Lock()
	if c.disposed || !c.running {
		c.mu.Unlock()
		return true
	}
	if toWallTime(time.Now()).Before(c.deadline) {
		c.mu.Unlock()
		return false
	}
	c.finished = true
	c.running = false
	cb := c.onFinished
	c.mu.Unlock()

	if cb != nil {
		cb()
	}
	return true
}

// Stop halts timing without firing onFinished. Elapsed time up to the stop
// is retained and remains readable.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.stoppedElapsed = c.elapsedLocked(toWallTime(time.Now()))
	c.running = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// FastForward moves the deadline so that completion fires within the given
// window. Progress animates from its current fraction to 1.0 over the window
// rather than jumping.
func (c *Clock) FastForward(within time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed || !c.running {
		return
	}
	if within < 0 {
		within = 0
	}
	now := toWallTime(time.Now())
	c.ffAt = now
	c.ffFrom = c.progressLocked(now)
	c.ffWindow = within
	c.deadline = now.Add(within)
}

// Dispose releases the clock. No onFinished firing is possible afterwards.
// Safe to call multiple times.
func (c *Clock) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	c.disposed = true
	if c.running {
		c.stoppedElapsed = c.elapsedLocked(toWallTime(time.Now()))
		c.running = false
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Elapsed returns the elapsed time, capped at the clock's duration.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsedLocked(toWallTime(time.Now()))
}

func (c *Clock) elapsedLocked(now time.Time) time.Duration {
	if c.finished {
		return c.duration
	}
	if !c.running {
		return c.stoppedElapsed
	}
	elapsed := now.Sub(c.startedAt)
	if elapsed > c.duration {
		return c.duration
	}
	return elapsed
}

// Progress returns the completion fraction in [0, 1].
func (c *Clock) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressLocked(toWallTime(time.Now()))
}

func (c *Clock) progressLocked(now time.Time) float64 {
	if c.finished {
		return 1
	}
	if c.duration <= 0 {
		return 1
	}
	if c.running && !c.ffAt.IsZero() {
		if c.ffWindow <= 0 {
			return 1
		}
		frac := float64(now.Sub(c.ffAt)) / float64(c.ffWindow)
		if frac > 1 {
			frac = 1
		}
		return c.ffFrom + (1-c.ffFrom)*frac
	}
	p := float64(c.elapsedLocked(now)) / float64(c.duration)
	if p > 1 {
		return 1
	}
	if p < 0 {
		return 0
	}
	return p
}

// Running reports whether the clock is currently timing.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// toWallTime returns the time with the monotonic clock reading stripped, so
// differences are computed on the wall clock.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
