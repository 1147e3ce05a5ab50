package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm038/storyline/internal/app/control"
	"github.com/tm038/storyline/internal/domain/story"
)

const (
	testTick        = 5 * time.Millisecond
	testFastForward = 30 * time.Millisecond
	waitTimeout     = 3 * time.Second
)

// recorder collects observer callbacks for assertions.
type recorder struct {
	mu          sync.Mutex
	shown       []string
	completions int
}

func (r *recorder) onItemShown(item *story.Item, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, item.ID)
}

func (r *recorder) onComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions++
}

func (r *recorder) shownIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.shown))
	copy(out, r.shown)
	return out
}

func (r *recorder) shownCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shown)
}

func (r *recorder) completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completions
}

func testItems(t *testing.T, durations map[string]time.Duration, order ...string) []*story.Item {
	t.Helper()
	items := make([]*story.Item, 0, len(order))
	for _, id := range order {
		d, ok := durations[id]
		require.True(t, ok, "missing duration for %s", id)
		items = append(items, &story.Item{ID: id, Kind: story.KindText, Duration: d, Payload: story.TextPayload{Text: id}})
	}
	return items
}

func newTestEngine(t *testing.T, items []*story.Item, repeat bool, rec *recorder) *Engine {
	t.Helper()
	seq, err := story.NewSequence(items, 0)
	require.NoError(t, err)

	hub := control.NewHub()
	t.Cleanup(hub.Close)

	eng := New(seq, Config{
		Repeat:      repeat,
		ResumeHold:  50 * time.Millisecond,
		Tick:        testTick,
		FastForward: testFastForward,
		OnItemShown: rec.onItemShown,
		OnComplete:  rec.onComplete,
	}, hub)
	t.Cleanup(eng.Dispose)
	return eng
}

func waitShown(t *testing.T, rec *recorder, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return rec.shownCount() >= n
	}, waitTimeout, testTick, "expected at least %d item-shown callbacks, got %d", n, rec.shownCount())
}

func waitState(t *testing.T, eng *Engine, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return eng.GetState() == want
	}, waitTimeout, testTick, "expected state %s, got %s", want, eng.GetState())
}

func TestEngine_PlaysSequenceToCompletion(t *testing.T) {
	rec := &recorder{}
	items := testItems(t, map[string]time.Duration{
		"a": 60 * time.Millisecond,
		"b": 60 * time.Millisecond,
		"c": 60 * time.Millisecond,
	}, "a", "b", "c")
	eng := newTestEngine(t, items, false, rec)

	eng.Start()
	waitState(t, eng, StateCompleted)

	assert.Equal(t, []string{"a", "b", "c"}, rec.shownIDs())
	assert.Equal(t, 1, rec.completed(), "completion fires exactly once")

	// Current item defaults to the last item once all are shown
	item, idx, ok := eng.CurrentItem()
	require.True(t, ok)
	assert.Equal(t, "c", item.ID)
	assert.Equal(t, 2, idx)

	_, frac := eng.Progress()
	assert.Equal(t, 1.0, frac)

	// No further transitions occur
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.completed())
	assert.Equal(t, 3, rec.shownCount())
}

func TestEngine_PauseResume_SameItem(t *testing.T) {
	rec := &recorder{}
	items := testItems(t, map[string]time.Duration{
		"a": 500 * time.Millisecond,
		"b": 500 * time.Millisecond,
	}, "a", "b")
	eng := newTestEngine(t, items, false, rec)

	eng.Start()
	waitShown(t, rec, 1)

	time.Sleep(50 * time.Millisecond)
	eng.Apply(control.Pause)
	assert.Equal(t, StatePaused, eng.GetState())

	pausedItem, _, ok := eng.CurrentItem()
	require.True(t, ok)
	_, pausedFrac := eng.Progress()
	assert.Greater(t, pausedFrac, 0.0, "progress is retained across pause")
	assert.Less(t, pausedFrac, 1.0)

	// Paused clock never fires on its own
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StatePaused, eng.GetState())

	eng.Apply(control.Play)
	assert.Equal(t, StatePlaying, eng.GetState())

	resumedItem, _, ok := eng.CurrentItem()
	require.True(t, ok)
	assert.Same(t, pausedItem, resumedItem, "item does not change on resume")
	assert.Equal(t, 1, rec.shownCount(), "onItemShown is not re-fired on resume")

	// The item resumes its remaining duration and finishes
	waitShown(t, rec, 2)
	assert.Equal(t, []string{"a", "b"}, rec.shownIDs())
}

func TestEngine_RedundantCommandsAreNoops(t *testing.T) {
	rec := &recorder{}
	items := testItems(t, map[string]time.Duration{"a": 10 * time.Second}, "a")
	eng := newTestEngine(t, items, false, rec)

	// Commands before Start are absorbed
	eng.Apply(control.Pause)
	eng.Apply(control.Next)
	eng.Apply(control.Previous)
	assert.Equal(t, StateIdle, eng.GetState())

	eng.Start()
	waitShown(t, rec, 1)

	// Play while playing
	eng.Apply(control.Play)
	assert.Equal(t, StatePlaying, eng.GetState())
	assert.Equal(t, 1, rec.shownCount())

	// Pause twice: the second is a no-op
	eng.Apply(control.Pause)
	eng.Apply(control.Pause)
	assert.Equal(t, StatePaused, eng.GetState())

	// Pause immediately followed by Play resumes exactly once
	eng.Apply(control.Play)
	assert.Equal(t, StatePlaying, eng.GetState())
	assert.Equal(t, 1, rec.shownCount())
}

func TestEngine_NextSkipsThroughSequence(t *testing.T) {
	rec := &recorder{}
	items := testItems(t, map[string]time.Duration{
		"a": 10 * time.Second,
		"b": 10 * time.Second,
		"c": 10 * time.Second,
	}, "a", "b", "c")
	eng := newTestEngine(t, items, false, rec)

	eng.Start()
	waitShown(t, rec, 1)

	eng.Apply(control.Next)
	assert.Equal(t, 2, rec.shownCount())
	eng.Apply(control.Next)
	assert.Equal(t, 3, rec.shownCount())

	// Next on the last item fast-forwards the clock instead of cutting away
	eng.Apply(control.Next)
	assert.Equal(t, StatePlaying, eng.GetState())
	waitState(t, eng, StateCompleted)

	assert.Equal(t, []string{"a", "b", "c"}, rec.shownIDs())
	assert.Equal(t, 1, rec.completed())
}

func TestEngine_PreviousOnFirstRestartsIt(t *testing.T) {
	rec := &recorder{}
	items := testItems(t, map[string]time.Duration{
		"a": 10 * time.Second,
		"b": 10 * time.Second,
	}, "a", "b")
	eng := newTestEngine(t, items, false, rec)

	eng.Start()
	waitShown(t, rec, 1)

	eng.Apply(control.Previous)

	assert.Equal(t, []string{"a", "a"}, rec.shownIDs(), "first item restarts and re-fires onItemShown")
	item, idx, ok := eng.CurrentItem()
	require.True(t, ok)
	assert.Equal(t, "a", item.ID)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 10*time.Second, item.Duration)
	assert.Equal(t, StatePlaying, eng.GetState())
}

func TestEngine_PreviousGoesBackOneStep(t *testing.T) {
	rec := &recorder{}
	items := testItems(t, map[string]time.Duration{
		"a": 10 * time.Second,
		"b": 10 * time.Second,
		"c": 10 * time.Second,
	}, "a", "b", "c")
	eng := newTestEngine(t, items, false, rec)

	eng.Start()
	waitShown(t, rec, 1)

	eng.Apply(control.Next) // now on b
	eng.Apply(control.Next) // now on c
	eng.Apply(control.Previous)

	assert.Equal(t, []string{"a", "b", "c", "b"}, rec.shownIDs())
}

func TestEngine_PreviousWhenExhausted(t *testing.T) {
	rec := &recorder{}
	items := testItems(t, map[string]time.Duration{
		"a": 40 * time.Millisecond,
		"b": 40 * time.Millisecond,
	}, "a", "b")
	eng := newTestEngine(t, items, false, rec)

	eng.Start()
	waitState(t, eng, StateCompleted)

	eng.Apply(control.Previous)

	item, _, ok := eng.CurrentItem()
	require.True(t, ok)
	assert.Equal(t, "b", item.ID, "the last item is reset and replayed")
	assert.Equal(t, StatePlaying, eng.GetState())
}

func TestEngine_Repeat(t *testing.T) {
	rec := &recorder{}
	items := testItems(t, map[string]time.Duration{
		"a": 40 * time.Millisecond,
		"b": 40 * time.Millisecond,
	}, "a", "b")
	eng := newTestEngine(t, items, true, rec)

	eng.Start()

	// The cycle does not terminate on its own: the first item shows again
	// after each completion, and completion fires once per cycle.
	require.Eventually(t, func() bool {
		return rec.completed() >= 2 && rec.shownCount() >= 5
	}, waitTimeout, testTick)

	shown := rec.shownIDs()
	assert.Equal(t, []string{"a", "b", "a", "b", "a"}, shown[:5])

	eng.Dispose()
}

func TestEngine_DisposeIsIdempotent(t *testing.T) {
	rec := &recorder{}
	items := testItems(t, map[string]time.Duration{"a": time.Second}, "a")

	t.Run("dispose without playback", func(t *testing.T) {
		eng := newTestEngine(t, items, false, rec)
		eng.Dispose()
		eng.Dispose()
	})

	t.Run("dispose during playback", func(t *testing.T) {
		rec := &recorder{}
		eng := newTestEngine(t, items, false, rec)
		eng.Start()
		waitShown(t, rec, 1)

		eng.Dispose()
		eng.Dispose()

		// No pending timer or clock fires afterwards
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, 1, rec.shownCount())
		assert.Equal(t, 0, rec.completed())

		// Commands after dispose are absorbed
		eng.Apply(control.Next)
		eng.Start()
	})
}

func TestEngine_CommandsViaSource(t *testing.T) {
	rec := &recorder{}
	items := testItems(t, map[string]time.Duration{
		"a": 10 * time.Second,
		"b": 10 * time.Second,
	}, "a", "b")
	seq, err := story.NewSequence(items, 0)
	require.NoError(t, err)

	hub := control.NewHub()
	defer hub.Close()

	eng := New(seq, Config{
		Tick:        testTick,
		FastForward: testFastForward,
		OnItemShown: rec.onItemShown,
		OnComplete:  rec.onComplete,
	}, hub)
	defer eng.Dispose()

	eng.Start()
	waitShown(t, rec, 1)

	hub.Publish(control.Pause)
	waitState(t, eng, StatePaused)

	hub.Publish(control.Play)
	waitState(t, eng, StatePlaying)

	hub.Publish(control.Next)
	waitShown(t, rec, 2)
	assert.Equal(t, []string{"a", "b"}, rec.shownIDs())
}

func TestEngine_Events(t *testing.T) {
	rec := &recorder{}
	items := testItems(t, map[string]time.Duration{"a": 40 * time.Millisecond}, "a")
	eng := newTestEngine(t, items, false, rec)

	eng.Start()

	seen := make(map[EventType]int)
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev, ok := <-eng.Events():
			if !ok {
				t.Fatal("event channel closed before completion")
			}
			seen[ev.Type]++
			if ev.Type == EventCompleted {
				assert.Equal(t, StateCompleted, ev.State)
				assert.Equal(t, 1, seen[EventItemShown])
				assert.Equal(t, 1, seen[EventItemEnded])
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for completion event, saw %v", seen)
		}
	}
}

func TestEngine_ExampleScenario(t *testing.T) {
	// Items [A, B, C]: A finishes naturally, B is skipped via Next,
	// C finishes naturally, then exactly one completion.
	rec := &recorder{}
	items := testItems(t, map[string]time.Duration{
		"A": 60 * time.Millisecond,
		"B": 10 * time.Second,
		"C": 60 * time.Millisecond,
	}, "A", "B", "C")
	eng := newTestEngine(t, items, false, rec)

	eng.Start()
	waitShown(t, rec, 2) // A finished naturally, B is showing

	eng.Apply(control.Next) // skip B
	waitState(t, eng, StateCompleted)

	assert.Equal(t, []string{"A", "B", "C"}, rec.shownIDs())
	assert.Equal(t, 1, rec.completed())
}
