// Package stability debounces noisy per-frame verification results into a
// stable multi-frame verdict, one bounded window per medication.
package stability

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Defaults match the session engine's decision gates.
const (
	DefaultCapacity          = 5
	DefaultMajority          = 3
	DefaultPositiveThreshold = 0.6
)

// observation is one buffered frame result.
type observation struct {
	at         time.Time
	confidence float64
	positive   bool
}

// window is a fixed-capacity ring of recent observations for one subject.
type window struct {
	mu      sync.Mutex
	entries []observation
	start   int
	count   int
}

// Verdict is the debounced state of one subject's window.
type Verdict struct {
	IsStable      bool
	PositiveCount int
	TotalCount    int
}

// Tracker holds per-subject windows. Subjects are independent: windows for
// different medications never contend on a shared lock, while concurrent
// records for the same medication serialize on that window's own mutex.
type Tracker struct {
	mu                sync.RWMutex
	windows           map[string]*window
	capacity          int
	majority          int
	positiveThreshold float64
}

// Options tunes a Tracker. Zero values fall back to package defaults.
type Options struct {
	Capacity          int
	Majority          int
	PositiveThreshold float64
}

// NewTracker creates a Tracker with the given options.
func NewTracker(opts Options) *Tracker {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Majority <= 0 {
		opts.Majority = DefaultMajority
	}
	if opts.PositiveThreshold <= 0 {
		opts.PositiveThreshold = DefaultPositiveThreshold
	}
	return &Tracker{
		windows:           make(map[string]*window),
		capacity:          opts.Capacity,
		majority:          opts.Majority,
		positiveThreshold: opts.PositiveThreshold,
	}
}

// Record appends one frame result to the subject's window, evicting the
// oldest entry when full, and returns the resulting verdict. An entry counts
// as positive only when it is positive AND its confidence clears the
// positive threshold.
func (t *Tracker) Record(subjectID string, isPositive bool, confidence float64) Verdict {
	w := t.getOrCreateWindow(subjectID)

	w.mu.Lock()
	defer w.mu.Unlock()

	obs := observation{
		at:         time.Now(),
		confidence: confidence,
		positive:   isPositive && confidence > t.positiveThreshold,
	}
	if w.count < t.capacity {
		w.entries[(w.start+w.count)%t.capacity] = obs
		w.count++
	} else {
		w.entries[w.start] = obs
		w.start = (w.start + 1) % t.capacity
	}

	positives := 0
	for i := 0; i < w.count; i++ {
		if w.entries[(w.start+i)%t.capacity].positive {
			positives++
		}
	}

	if positives < 0 || positives > w.count {
		// Window bookkeeping is corrupt. Refuse stability rather than
		// accept a dose on broken state.
		if strictInvariants {
			panic("stability: positive count out of range")
		}
		log.Error().
			Str("subjectId", subjectID).
			Int("positives", positives).
			Int("total", w.count).
			Msg("Stability window invariant violated, treating as non-stable")
		return Verdict{IsStable: false, PositiveCount: 0, TotalCount: w.count}
	}

	return Verdict{
		IsStable:      positives >= t.majority,
		PositiveCount: positives,
		TotalCount:    w.count,
	}
}

// Clear resets the subject's window. Called on acceptance so a completed
// verification never bleeds into the next attempt for the same medication.
func (t *Tracker) Clear(subjectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.windows, subjectID)
}

// Subjects returns the number of tracked windows.
func (t *Tracker) Subjects() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.windows)
}

// getOrCreateWindow returns the subject's window, creating it on first use.
func (t *Tracker) getOrCreateWindow(subjectID string) *window {
	t.mu.RLock()
	w, ok := t.windows[subjectID]
	t.mu.RUnlock()
	if ok {
		return w
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok = t.windows[subjectID]; ok {
		return w
	}
	w = &window{entries: make([]observation, t.capacity)}
	t.windows[subjectID] = w
	return w
}
