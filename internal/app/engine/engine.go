package engine

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/tm038/storyline/internal/app/clock"
	"github.com/tm038/storyline/internal/app/control"
	"github.com/tm038/storyline/internal/domain/story"
)

// Source is a provider of playback commands. The engine subscribes at
// construction and owns the subscription until Dispose.
type Source interface {
	Subscribe() (<-chan control.Command, func())
}

// Config holds engine configuration. Immutable after construction.
type Config struct {
	Repeat      bool          // Restart the sequence after it completes
	ResumeHold  time.Duration // Resume suppression window after a pause
	Tick        time.Duration // Clock tick granularity
	FastForward time.Duration // Window for fast-forwarding the last item

	// OnItemShown is invoked exactly once each time an item becomes current.
	// OnComplete is invoked once per completed cycle. Both are called from
	// engine goroutines and must not call back into the engine.
	OnItemShown func(item *story.Item, index int)
	OnComplete  func()
}

const (
	defaultResumeHold  = 500 * time.Millisecond
	defaultFastForward = 300 * time.Millisecond
)

// Engine drives sequential timed playback of a story sequence. It owns at
// most one live clock, bound to the current item, and reacts to clock
// completion and to commands from its Source. A superseded clock is disposed
// before a new one starts, so a stale completion can never advance playback.
type Engine struct {
	mu sync.Mutex

	seq    *story.Sequence
	config Config

	// Current item state
	state       State
	activeItem  *story.Item
	activeIndex int
	clk         *clock.Clock
	consumed    time.Duration // Elapsed time accumulated across pauses

	// Resume suppression. holdActive is the explicit guard raised by Pause
	// and cleared by the next command or by the hold timer.
	holdActive bool
	holdTimer  *time.Timer

	// Events
	eventCh chan Event

	// Subscription lifecycle
	unsubscribe func()
	done        chan struct{}
	disposed    bool
}

// New creates an engine bound to the given sequence and command source. The
// engine subscribes to src immediately and dispatches commands strictly in
// arrival order. Playback does not begin until Start.
func New(seq *story.Sequence, cfg Config, src Source) *Engine {
	if cfg.ResumeHold <= 0 {
		cfg.ResumeHold = defaultResumeHold
	}
	if cfg.FastForward <= 0 {
		cfg.FastForward = defaultFastForward
	}
	if cfg.Tick <= 0 {
		cfg.Tick = clock.DefaultTick
	}

	e := &Engine{
		seq:         seq,
		config:      cfg,
		state:       StateIdle,
		activeIndex: -1,
		eventCh:     make(chan Event, 16),
		done:        make(chan struct{}),
	}

	ch, unsubscribe := src.Subscribe()
	e.unsubscribe = unsubscribe
	go e.dispatch(ch)

	return e
}

// dispatch feeds subscribed commands to the engine in arrival order.
func (e *Engine) dispatch(ch <-chan control.Command) {
	for {
		select {
		case <-e.done:
			return
		case cmd, ok := <-ch:
			if !ok {
				return
			}
			e.Apply(cmd)
		}
	}
}

// Events returns the event channel.
func (e *Engine) Events() <-chan Event {
	return e.eventCh
}

// Start begins playback of the first unshown item. Calling Start when
// playback is already underway is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed || e.state != StateIdle {
		return
	}
	e.playNextLocked()
}

// Apply performs the transition for a single command. Inapplicable commands
// are absorbed as no-ops.
func (e *Engine) Apply(cmd control.Command) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return
	}

	zlog.Debug().Msgf("engine: command %s in state %s", cmd, e.state)

	switch cmd {
	case control.Play:
		if e.holdActive {
			zlog.Debug().Msg("engine: play arrived within pause hold, cancelling hold")
		}
		e.cancelHoldLocked()
		switch e.state {
		case StatePaused:
			e.resumeLocked()
		case StateIdle:
			e.playNextLocked()
		default:
			// Already playing or completed
		}
	case control.Pause:
		if e.state != StatePlaying {
			return
		}
		e.pauseLocked()
	case control.Next:
		e.cancelHoldLocked()
		e.nextLocked()
	case control.Previous:
		e.cancelHoldLocked()
		e.previousLocked()
	}
}

// GetState returns the current playback state.
func (e *Engine) GetState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CurrentItem returns the item currently bound to the engine and its index.
func (e *Engine) CurrentItem() (*story.Item, int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activeItem == nil {
		return nil, -1, false
	}
	return e.activeItem, e.activeIndex, true
}

// Progress returns the current item's payload and its completion fraction in
// [0, 1]. The fraction is continuous across pauses: consumed time before the
// last pause is added to the live clock's share of the remainder.
func (e *Engine) Progress() (any, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activeItem == nil {
		return nil, 0
	}
	if e.state == StateCompleted {
		return e.activeItem.Payload, 1
	}

	d := e.activeItem.Duration
	if d <= 0 {
		return e.activeItem.Payload, 1
	}

	frac := float64(e.consumed) / float64(d)
	if e.clk != nil {
		remainder := float64(d-e.consumed) / float64(d)
		frac += e.clk.Progress() * remainder
	}
	if frac > 1 {
		frac = 1
	}
	return e.activeItem.Payload, frac
}

// Dispose tears the engine down: cancels the command subscription, disposes
// the active clock, and cancels any pending hold timer. Idempotent.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return
	}
	e.disposed = true

	e.cancelHoldLocked()
	if e.clk != nil {
		e.clk.Dispose()
		e.clk = nil
	}
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	close(e.done)
	close(e.eventCh)
}

// playNextLocked binds a fresh clock to the first unshown item and starts it.
// If every item is shown the engine completes instead. Must be called with
// the lock held.
func (e *Engine) playNextLocked() {
	if e.clk != nil {
		e.clk.Dispose()
		e.clk = nil
	}

	if e.seq.AllShown() {
		e.completeLocked()
		return
	}

	item, idx := e.seq.Current()
	e.activeItem = item
	e.activeIndex = idx
	e.consumed = 0
	e.state = StatePlaying

	zlog.Debug().Msgf("engine: showing item %s (index=%d, duration=%v)", item.ID, idx, item.Duration)

	if e.config.OnItemShown != nil {
		e.config.OnItemShown(item, idx)
	}
	e.sendEventLocked(Event{
		Type:  EventItemShown,
		Item:  item,
		Index: idx,
		State: e.state,
	})

	e.startClockLocked(item.Duration)
}

// startClockLocked disposes any previous clock and starts a new one for the
// given duration. The completion callback captures the clock instance so a
// superseded clock's firing can be identified and dropped.
func (e *Engine) startClockLocked(d time.Duration) {
	if e.clk != nil {
		e.clk.Dispose()
	}
	c := clock.New(e.config.Tick)
	e.clk = c
	_ = c.Start(d, func() {
		e.onClockFinished(c)
	})
}

// onClockFinished handles natural or fast-forwarded completion of a clock.
func (e *Engine) onClockFinished(c *clock.Clock) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.disposed {
		return
	}
	if c != e.clk {
		zlog.Debug().Msg("engine: dropping completion from superseded clock")
		return
	}
	e.finishActiveLocked()
}

// finishActiveLocked marks the current item shown and either completes the
// sequence or advances to the next unshown item.
func (e *Engine) finishActiveLocked() {
	if e.activeItem == nil {
		return
	}
	if e.clk != nil {
		e.clk.Dispose()
		e.clk = nil
	}

	e.seq.MarkShown(e.activeIndex)
	e.sendEventLocked(Event{
		Type:  EventItemEnded,
		Item:  e.activeItem,
		Index: e.activeIndex,
		State: e.state,
	})

	if e.activeIndex == e.seq.Len()-1 {
		e.completeLocked()
		return
	}
	e.playNextLocked()
}

// pauseLocked stops the active clock, retains the consumed time, and raises
// the resume suppression guard.
func (e *Engine) pauseLocked() {
	if e.clk != nil {
		e.consumed += e.clk.Elapsed()
		e.clk.Dispose()
		e.clk = nil
	}
	e.state = StatePaused

	e.startHoldLocked()

	e.sendEventLocked(Event{
		Type:  EventStateChanged,
		Item:  e.activeItem,
		Index: e.activeIndex,
		State: e.state,
	})
}

// resumeLocked resumes the current item for its remaining duration. The item
// does not change and no item-shown notification fires.
func (e *Engine) resumeLocked() {
	if e.activeItem == nil {
		return
	}

	remaining := e.activeItem.Duration - e.consumed
	e.state = StatePlaying
	if remaining <= 0 {
		e.finishActiveLocked()
		return
	}

	e.startClockLocked(remaining)
	e.sendEventLocked(Event{
		Type:  EventStateChanged,
		Item:  e.activeItem,
		Index: e.activeIndex,
		State: e.state,
	})
}

// nextLocked advances past the current item. On the last item the active
// clock is fast-forwarded so the completion goes through the normal
// clock-finished path instead of cutting away abruptly.
func (e *Engine) nextLocked() {
	if e.activeItem == nil || e.state == StateCompleted {
		return
	}

	if e.activeIndex < e.seq.Len()-1 {
		e.seq.MarkShown(e.activeIndex)
		e.playNextLocked()
		return
	}

	if e.clk != nil && e.state == StatePlaying {
		e.clk.FastForward(e.config.FastForward)
		return
	}
	// Paused on the last item: no clock to fast-forward, finish directly.
	e.finishActiveLocked()
}

// previousLocked goes back one step. Resetting the current item and its
// predecessor makes the first-unshown scan land on the predecessor.
func (e *Engine) previousLocked() {
	if e.activeItem == nil {
		return
	}

	if e.seq.AllShown() {
		e.seq.Reset(e.seq.Len() - 1)
		e.playNextLocked()
		return
	}

	_, idx := e.seq.Current()
	if idx == 0 {
		// Already at the first item: restart it.
		e.playNextLocked()
		return
	}

	e.seq.Reset(idx)
	e.seq.Reset(idx - 1)
	e.playNextLocked()
}

// completeLocked enters the terminal state, notifies the completion observer,
// and, when repeat is configured, resets the sequence and starts over.
func (e *Engine) completeLocked() {
	if e.clk != nil {
		e.clk.Dispose()
		e.clk = nil
	}

	last := e.seq.Len() - 1
	if it, err := e.seq.At(last); err == nil {
		e.activeItem = it
		e.activeIndex = last
		e.consumed = it.Duration
	}
	e.state = StateCompleted

	zlog.Debug().Msgf("engine: sequence completed (repeat=%v)", e.config.Repeat)

	e.sendEventLocked(Event{
		Type:  EventCompleted,
		Item:  e.activeItem,
		Index: e.activeIndex,
		State: e.state,
	})
	if e.config.OnComplete != nil {
		e.config.OnComplete()
	}

	if e.config.Repeat {
		e.seq.ResetAll()
		e.sendEventLocked(Event{
			Type:  EventRepeated,
			Index: -1,
			State: e.state,
		})
		e.playNextLocked()
	}
}

// startHoldLocked raises the resume suppression guard and arms its expiry
// timer. The guard is also cleared by the next Play/Next/Previous command.
func (e *Engine) startHoldLocked() {
	e.cancelHoldLocked()
	e.holdActive = true
	e.holdTimer = time.AfterFunc(e.config.ResumeHold, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.holdActive = false
		e.holdTimer = nil
	})
}

// cancelHoldLocked clears the resume suppression guard. Safe when no hold is
// pending.
func (e *Engine) cancelHoldLocked() {
	e.holdActive = false
	if e.holdTimer != nil {
		e.holdTimer.Stop()
		e.holdTimer = nil
	}
}

// sendEventLocked sends an event without blocking. Must be called with the
// lock held.
func (e *Engine) sendEventLocked(ev Event) {
	select {
	case e.eventCh <- ev:
		// Successfully sent
	case <-e.done:
		// Engine disposed, don't send
	default:
		// Channel full, drop event
	}
}
