package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type scriptedStreamer struct {
	ticks []StatusUpdate
	err   error
}

func (s *scriptedStreamer) StreamJobStatus(ctx context.Context, jobID string, onTick func(StatusUpdate)) error {
	for _, tick := range s.ticks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		tick.JobID = jobID
		onTick(tick)
	}
	return s.err
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription did not finish")
	}
}

func TestSubscribeInlineResultIsTerminal(t *testing.T) {
	streamer := &scriptedStreamer{
		ticks: []StatusUpdate{
			{Status: StatusQueued, Position: 3, Total: 5},
			{Status: StatusProcessing},
			{Status: StatusCompleted, Result: json.RawMessage(`{"success":true}`)},
			{Status: StatusProcessing}, // must be ignored after completion
		},
	}

	var mu sync.Mutex
	var statuses []Status
	var terminal *Completion
	completeFired := false

	h := Subscribe(context.Background(), streamer, "job-1", Handlers{
		OnStatus: func(u StatusUpdate) {
			mu.Lock()
			statuses = append(statuses, u.Status)
			mu.Unlock()
		},
		OnTerminal: func(c Completion) {
			mu.Lock()
			terminal = &c
			mu.Unlock()
		},
		OnComplete: func() {
			mu.Lock()
			completeFired = true
			mu.Unlock()
		},
	})
	waitDone(t, h)

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 3 {
		t.Fatalf("statuses len = %d, want 3 (tick after completion must be dropped)", len(statuses))
	}
	if terminal == nil {
		t.Fatalf("OnTerminal never fired")
	}
	if terminal.Kind != CompletionInlineResult {
		t.Fatalf("terminal.Kind = %d, want CompletionInlineResult", terminal.Kind)
	}
	if completeFired {
		t.Fatalf("OnComplete fired despite inline delivery")
	}
}

func TestSubscribeInlineErrorIsTerminal(t *testing.T) {
	streamer := &scriptedStreamer{
		ticks: []StatusUpdate{
			{Status: StatusProcessing},
			{Status: StatusError, Error: "no cases matched"},
		},
	}

	var mu sync.Mutex
	var terminal *Completion
	h := Subscribe(context.Background(), streamer, "job-2", Handlers{
		OnTerminal: func(c Completion) {
			mu.Lock()
			terminal = &c
			mu.Unlock()
		},
	})
	waitDone(t, h)

	mu.Lock()
	defer mu.Unlock()
	if terminal == nil {
		t.Fatalf("OnTerminal never fired")
	}
	if terminal.Kind != CompletionInlineError {
		t.Fatalf("terminal.Kind = %d, want CompletionInlineError", terminal.Kind)
	}
	if terminal.Error != "no cases matched" {
		t.Fatalf("terminal.Error = %q, want %q", terminal.Error, "no cases matched")
	}
}

func TestSubscribeCleanEndFiresOnComplete(t *testing.T) {
	streamer := &scriptedStreamer{
		ticks: []StatusUpdate{
			{Status: StatusQueued},
			{Status: StatusProcessing},
		},
	}

	var mu sync.Mutex
	completeCount := 0
	h := Subscribe(context.Background(), streamer, "job-3", Handlers{
		OnComplete: func() {
			mu.Lock()
			completeCount++
			mu.Unlock()
		},
	})
	waitDone(t, h)

	mu.Lock()
	defer mu.Unlock()
	if completeCount != 1 {
		t.Fatalf("OnComplete count = %d, want 1", completeCount)
	}
}

func TestSubscribeTransportErrorFiresOnError(t *testing.T) {
	wantErr := errors.New("connection reset")
	streamer := &scriptedStreamer{
		ticks: []StatusUpdate{{Status: StatusProcessing}},
		err:   wantErr,
	}

	var mu sync.Mutex
	var gotErr error
	completeFired := false
	h := Subscribe(context.Background(), streamer, "job-4", Handlers{
		OnError: func(err error) {
			mu.Lock()
			gotErr = err
			mu.Unlock()
		},
		OnComplete: func() {
			mu.Lock()
			completeFired = true
			mu.Unlock()
		},
	})
	waitDone(t, h)

	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(gotErr, wantErr) {
		t.Fatalf("OnError err = %v, want %v", gotErr, wantErr)
	}
	if completeFired {
		t.Fatalf("OnComplete fired on transport error")
	}
}

func TestHandleCloseIsIdempotent(t *testing.T) {
	streamer := &scriptedStreamer{}
	h := Subscribe(context.Background(), streamer, "job-5", Handlers{})
	waitDone(t, h)

	h.Close()
	h.Close()
	h.Close()
}

func TestCompletionOfPendingTickIsNotTerminal(t *testing.T) {
	for _, status := range []Status{StatusQueued, StatusProcessing} {
		if _, terminal := CompletionOf(StatusUpdate{Status: status}); terminal {
			t.Fatalf("CompletionOf(%q) terminal = true, want false", status)
		}
	}
	// Completed without an inline payload still needs the confirmatory
	// fetch; the stream-end path handles it.
	if _, terminal := CompletionOf(StatusUpdate{Status: StatusCompleted}); terminal {
		t.Fatalf("CompletionOf(completed, no result) terminal = true, want false")
	}
}
