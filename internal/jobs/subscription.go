package jobs

import (
	"context"
	"sync"
)

// Streamer is the push side of the job status channel.
type Streamer interface {
	// StreamJobStatus delivers ticks until the stream ends. A nil return
	// means clean end-of-stream; an error means transport failure.
	StreamJobStatus(ctx context.Context, jobID string, onTick func(StatusUpdate)) error
}

// Handlers receive subscription callbacks. All three are optional.
type Handlers struct {
	// OnStatus fires for every tick, including the terminal one.
	OnStatus func(StatusUpdate)
	// OnTerminal fires at most once when a tick carries an inline result
	// or error; the handle self-closes afterwards.
	OnTerminal func(Completion)
	// OnComplete fires at most once when the stream ends cleanly without
	// inline delivery; the consumer must confirm via a status pull.
	OnComplete func()
	// OnError fires on transport failure. The underlying job may still be
	// completing server-side, so this is informational.
	OnError func(error)
}

// Handle owns the lifecycle of one job subscription.
type Handle struct {
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	terminal bool
	done     chan struct{}
}

// Subscribe opens a subscription for jobID and dispatches ticks to h from a
// background goroutine. Callbacks stop permanently once the handle is closed
// or a terminal tick is seen; any later tick is a no-op.
func Subscribe(ctx context.Context, streamer Streamer, jobID string, h Handlers) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	handle := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(handle.done)
		err := streamer.StreamJobStatus(ctx, jobID, func(u StatusUpdate) {
			handle.mu.Lock()
			if handle.closed || handle.terminal {
				handle.mu.Unlock()
				return
			}
			completion, terminal := CompletionOf(u)
			if terminal {
				handle.terminal = true
			}
			handle.mu.Unlock()

			if h.OnStatus != nil {
				h.OnStatus(u)
			}
			if terminal {
				if h.OnTerminal != nil {
					h.OnTerminal(completion)
				}
				cancel()
			}
		})

		handle.mu.Lock()
		delivered := handle.closed || handle.terminal
		handle.mu.Unlock()
		if delivered {
			return
		}

		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			return
		}
		if h.OnComplete != nil {
			h.OnComplete()
		}
	}()

	return handle
}

// Close tears the subscription down. It is idempotent; closing an already
// closed handle is a no-op, never an error.
func (s *Handle) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

// Done reports when the delivery goroutine has exited.
func (s *Handle) Done() <-chan struct{} {
	return s.done
}
