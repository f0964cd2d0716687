package plan

import (
	"context"
	"sync"
	"time"
)

const defaultDebounce = 500 * time.Millisecond

// Mutator applies debounced case-limit changes to one plan. Rapid calls
// within the quiet period coalesce into a single remote update carrying the
// last requested value, and at most one update is in flight at a time.
type Mutator struct {
	updater        Updater
	debounce       time.Duration
	requestTimeout time.Duration

	// OnApplied is called with a snapshot of the plan after a successful
	// remote update, along with the round-trip time of that update.
	// OnError is called with the failure message; the last requested
	// value is not reverted, so the caller's displayed value stands.
	OnApplied func(Data, time.Duration)
	OnError   func(string)

	mu        sync.Mutex
	data      Data
	timer     *time.Timer
	pending   int
	updating  bool
	lastError string
}

func NewMutator(updater Updater, data Data, debounce time.Duration) *Mutator {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Mutator{
		updater:        updater,
		debounce:       debounce,
		requestTimeout: 15 * time.Second,
		data:           data.Clone(),
	}
}

// Plan returns a snapshot of the current plan.
func (m *Mutator) Plan() Data {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.Clone()
}

// IsUpdating reports whether a remote update is in flight.
func (m *Mutator) IsUpdating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updating
}

// LastError returns the message of the most recent failed update, if any.
func (m *Mutator) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// AdjustCaseLimit clamps newValue into [min(1, original), original] and
// (re)starts the quiet-period timer. A value equal to the current total, or a
// plan with no cases at all, cancels any pending update and makes no call.
func (m *Mutator) AdjustCaseLimit(newValue int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	orig := m.data.OriginalTotalCases
	if orig == 0 {
		m.stopTimerLocked()
		return
	}
	minCases := 1
	if orig < minCases {
		minCases = orig
	}
	clamped := newValue
	if clamped < minCases {
		clamped = minCases
	}
	if clamped > orig {
		clamped = orig
	}
	if clamped == m.data.TotalCases {
		m.stopTimerLocked()
		return
	}

	m.pending = clamped
	m.stopTimerLocked()
	m.timer = time.AfterFunc(m.debounce, m.fire)
}

// Cancel stops any pending debounce timer. In-flight updates are left to
// finish; their outcome still lands through the callbacks.
func (m *Mutator) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
}

func (m *Mutator) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Mutator) fire() {
	m.mu.Lock()
	if m.updating {
		// One update in flight at a time; try again after another
		// quiet period.
		m.timer = time.AfterFunc(m.debounce, m.fire)
		m.mu.Unlock()
		return
	}
	m.timer = nil
	value := m.pending
	planID := m.data.PlanID
	m.updating = true
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.requestTimeout)
	defer cancel()
	started := time.Now()
	update, err := m.updater.UpdatePlan(ctx, planID, value)
	elapsed := time.Since(started)

	m.mu.Lock()
	m.updating = false
	if err != nil {
		m.lastError = err.Error()
		onError := m.OnError
		m.mu.Unlock()
		if onError != nil {
			onError(err.Error())
		}
		return
	}
	m.lastError = ""
	m.data.TotalCases = update.TotalCases
	m.data.TotalChunks = update.TotalChunks
	m.data.EstimatedTimeSeconds = update.EstimatedTimeSeconds
	snapshot := m.data.Clone()
	onApplied := m.OnApplied
	m.mu.Unlock()
	if onApplied != nil {
		onApplied(snapshot, elapsed)
	}
}
