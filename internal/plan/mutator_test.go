package plan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeUpdater struct {
	mu    sync.Mutex
	calls []int
	err   error
	delay time.Duration
}

func (u *fakeUpdater) UpdatePlan(_ context.Context, planID string, caseCount int) (Update, error) {
	if u.delay > 0 {
		time.Sleep(u.delay)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, caseCount)
	if u.err != nil {
		return Update{}, u.err
	}
	return Update{
		TotalCases:           caseCount,
		TotalChunks:          caseCount / 10,
		EstimatedTimeSeconds: caseCount * 2,
		OriginalTotalCases:   50,
	}, nil
}

func (u *fakeUpdater) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

func (u *fakeUpdater) lastCall() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.calls) == 0 {
		return -1
	}
	return u.calls[len(u.calls)-1]
}

func testPlan() Data {
	return Data{
		PlanID:             "plan-1",
		TotalCases:         50,
		TotalChunks:        5,
		OriginalTotalCases: 50,
	}
}

func waitApplied(t *testing.T, ch <-chan Data) Data {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatalf("update never applied")
		return Data{}
	}
}

func TestAdjustCaseLimitClampsLow(t *testing.T) {
	updater := &fakeUpdater{}
	m := NewMutator(updater, testPlan(), 10*time.Millisecond)
	applied := make(chan Data, 1)
	m.OnApplied = func(d Data, _ time.Duration) { applied <- d }

	m.AdjustCaseLimit(0)
	got := waitApplied(t, applied)

	if updater.lastCall() != 1 {
		t.Fatalf("UpdatePlan called with %d, want 1", updater.lastCall())
	}
	if got.TotalCases != 1 {
		t.Fatalf("TotalCases = %d, want 1", got.TotalCases)
	}
	if got.PlanID != "plan-1" {
		t.Fatalf("PlanID = %q, want stable id", got.PlanID)
	}
}

func TestAdjustCaseLimitClampsHigh(t *testing.T) {
	updater := &fakeUpdater{}
	data := testPlan()
	data.TotalCases = 20
	m := NewMutator(updater, data, 10*time.Millisecond)
	applied := make(chan Data, 1)
	m.OnApplied = func(d Data, _ time.Duration) { applied <- d }

	m.AdjustCaseLimit(1000)
	got := waitApplied(t, applied)

	if updater.lastCall() != 50 {
		t.Fatalf("UpdatePlan called with %d, want 50", updater.lastCall())
	}
	if got.TotalCases != 50 {
		t.Fatalf("TotalCases = %d, want 50", got.TotalCases)
	}
}

func TestAdjustCaseLimitEqualCurrentMakesNoCall(t *testing.T) {
	updater := &fakeUpdater{}
	m := NewMutator(updater, testPlan(), 10*time.Millisecond)

	m.AdjustCaseLimit(50)
	time.Sleep(50 * time.Millisecond)

	if updater.callCount() != 0 {
		t.Fatalf("UpdatePlan calls = %d, want 0", updater.callCount())
	}
}

func TestAdjustCaseLimitZeroOriginalMakesNoCall(t *testing.T) {
	updater := &fakeUpdater{}
	m := NewMutator(updater, Data{PlanID: "plan-empty"}, 10*time.Millisecond)

	m.AdjustCaseLimit(10)
	time.Sleep(50 * time.Millisecond)

	if updater.callCount() != 0 {
		t.Fatalf("UpdatePlan calls = %d, want 0", updater.callCount())
	}
}

func TestAdjustCaseLimitCoalescesToLastValue(t *testing.T) {
	updater := &fakeUpdater{}
	m := NewMutator(updater, testPlan(), 50*time.Millisecond)
	applied := make(chan Data, 1)
	m.OnApplied = func(d Data, _ time.Duration) { applied <- d }

	m.AdjustCaseLimit(10)
	m.AdjustCaseLimit(20)
	m.AdjustCaseLimit(30)
	waitApplied(t, applied)

	// Allow any stray timer to fire before counting.
	time.Sleep(100 * time.Millisecond)
	if updater.callCount() != 1 {
		t.Fatalf("UpdatePlan calls = %d, want exactly 1", updater.callCount())
	}
	if updater.lastCall() != 30 {
		t.Fatalf("UpdatePlan called with %d, want last value 30", updater.lastCall())
	}
}

func TestAdjustCaseLimitReportsRoundTripTime(t *testing.T) {
	updater := &fakeUpdater{delay: 30 * time.Millisecond}
	m := NewMutator(updater, testPlan(), 10*time.Millisecond)
	elapsed := make(chan time.Duration, 1)
	m.OnApplied = func(_ Data, d time.Duration) { elapsed <- d }

	m.AdjustCaseLimit(10)
	select {
	case d := <-elapsed:
		// The reported duration must cover the remote call itself, not
		// just callback dispatch.
		if d < 30*time.Millisecond {
			t.Fatalf("elapsed = %v, want at least the updater round trip", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("update never applied")
	}
}

func TestAdjustCaseLimitFailureKeepsRequestedValue(t *testing.T) {
	updater := &fakeUpdater{err: errors.New("plan expired")}
	m := NewMutator(updater, testPlan(), 10*time.Millisecond)
	failed := make(chan string, 1)
	m.OnError = func(msg string) { failed <- msg }

	m.AdjustCaseLimit(10)
	select {
	case msg := <-failed:
		if msg != "plan expired" {
			t.Fatalf("error = %q, want %q", msg, "plan expired")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("OnError never fired")
	}

	// Plan counts stay untouched on failure.
	if got := m.Plan().TotalCases; got != 50 {
		t.Fatalf("TotalCases after failure = %d, want 50", got)
	}
	if m.LastError() != "plan expired" {
		t.Fatalf("LastError = %q, want %q", m.LastError(), "plan expired")
	}
}

func TestCancelStopsPendingUpdate(t *testing.T) {
	updater := &fakeUpdater{}
	m := NewMutator(updater, testPlan(), 30*time.Millisecond)

	m.AdjustCaseLimit(10)
	m.Cancel()
	time.Sleep(100 * time.Millisecond)

	if updater.callCount() != 0 {
		t.Fatalf("UpdatePlan calls = %d, want 0 after Cancel", updater.callCount())
	}
}
