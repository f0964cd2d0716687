package workflow

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/mlauria/lexflow/internal/jobs"
	"github.com/mlauria/lexflow/internal/plan"
	"github.com/mlauria/lexflow/internal/research"
)

const confirmFetchTimeout = 10 * time.Second

// openSubscriptionLocked opens the status stream for jobID. Any previous
// subscription is closed first; there is never more than one open.
func (c *Controller) openSubscriptionLocked(jobID string, kind jobKind) {
	c.closeSubscriptionLocked()
	c.subGen++
	gen := c.subGen
	c.sub = jobs.Subscribe(context.Background(), c.client, jobID, jobs.Handlers{
		OnStatus: func(u jobs.StatusUpdate) {
			c.onJobTick(gen, kind, u)
		},
		OnTerminal: func(comp jobs.Completion) {
			c.onJobTerminal(gen, kind, comp)
		},
		OnComplete: func() {
			c.onStreamEnded(gen, kind, jobID)
		},
		OnError: func(err error) {
			c.metrics.ObserveStreamError("transport")
			log.Printf("workflow %s: job %s stream: %v", c.id, jobID, err)
			c.onStreamEnded(gen, kind, jobID)
		},
	})
}

func (c *Controller) closeSubscriptionLocked() {
	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}
}

// currentLocked reports whether gen still names the live subscription.
// Callbacks from a superseded stream are dropped.
func (c *Controller) currentLocked(gen uint64) bool {
	return c.sub != nil && c.subGen == gen
}

func (c *Controller) onJobTick(gen uint64, kind jobKind, u jobs.StatusUpdate) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.jobProgress = u
	c.notifyLocked()
	c.mu.Unlock()

	c.metrics.ObserveJobEvent(string(u.Status))

	// Batch jobs mutate per-task state server-side as they grind through
	// the queue; keep the mirror fresh so watchers see task progress.
	if kind == jobBatchPlan || kind == jobBatchExecute {
		ctx, cancel := context.WithTimeout(context.Background(), confirmFetchTimeout)
		defer cancel()
		if err := c.tasks.Refresh(ctx); err != nil {
			log.Printf("workflow %s: queue refresh on tick: %v", c.id, err)
		}
	}
}

func (c *Controller) onJobTerminal(gen uint64, kind jobKind, comp jobs.Completion) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.sub = nil
	c.mu.Unlock()

	switch comp.Kind {
	case jobs.CompletionInlineResult:
		c.settleSuccess(kind, comp.Result)
	case jobs.CompletionInlineError:
		c.settleFailure(kind, comp.Error)
	}
}

// onStreamEnded handles a stream that closed without delivering a terminal
// status: confirm the outcome with one authoritative fetch. A job found
// still pending gets a fresh subscription; a fetch failure lands back on
// the interactive step so the workflow is never stuck loading.
func (c *Controller) onStreamEnded(gen uint64, kind jobKind, jobID string) {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		return
	}
	c.sub = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), confirmFetchTimeout)
	defer cancel()
	status, err := c.client.GetJobStatus(ctx, jobID)
	if err != nil {
		c.metrics.ObserveStreamError("confirm_fetch")
		c.settleFailure(kind, "could not confirm job outcome: "+err.Error())
		return
	}

	switch status.Status {
	case jobs.StatusCompleted:
		c.settleSuccess(kind, status.Result)
	case jobs.StatusError:
		msg := status.Error
		if msg == "" {
			msg = "job failed"
		}
		c.settleFailure(kind, msg)
	default:
		c.mu.Lock()
		if c.sub == nil && c.jobID == jobID {
			c.openSubscriptionLocked(jobID, kind)
		}
		c.mu.Unlock()
	}
}

// settleSuccess applies a successful terminal outcome for kind.
func (c *Controller) settleSuccess(kind jobKind, raw json.RawMessage) {
	switch kind {
	case jobPlan:
		data, ok, msg := research.DecodePlanResult(raw)
		if !ok {
			c.settleFailure(kind, msg)
			return
		}
		c.mu.Lock()
		c.installPlanLocked(data)
		if to, err := nextPhase(c.phase, EventPlanReady); err == nil {
			c.setPhaseLocked(to)
		}
		c.lastError = ""
		c.jobID = ""
		c.persistLocked()
		c.notifyLocked()
		c.mu.Unlock()

	case jobExecute:
		if ok, msg := research.DecodeResultEnvelope(raw); !ok {
			c.settleFailure(kind, msg)
			return
		}
		c.mu.Lock()
		c.result = append(json.RawMessage(nil), raw...)
		c.lastError = ""
		c.jobID = ""
		c.persistLocked()
		c.notifyLocked()
		c.mu.Unlock()

	case jobBatchPlan:
		c.refreshTasks()
		c.mu.Lock()
		if to, err := nextPhase(c.phase, EventBatchPlansReady); err == nil {
			c.setPhaseLocked(to)
		}
		c.lastError = ""
		c.jobID = ""
		c.persistLocked()
		c.notifyLocked()
		c.mu.Unlock()

	case jobBatchExecute:
		c.refreshTasks()
		c.mu.Lock()
		c.queueDone = true
		c.lastError = ""
		c.jobID = ""
		c.persistLocked()
		c.notifyLocked()
		c.mu.Unlock()
	}
}

// settleFailure applies a failed terminal outcome: record the message and
// fall back to the interactive step the job was launched from.
func (c *Controller) settleFailure(kind jobKind, msg string) {
	if msg == "" {
		msg = "job failed"
	}
	if kind == jobBatchPlan || kind == jobBatchExecute {
		c.refreshTasks()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = msg
	c.jobID = ""

	var event Event
	switch kind {
	case jobPlan:
		event = EventPlanFailed
	case jobExecute:
		event = EventExecuteFailed
	case jobBatchPlan:
		event = EventBatchPlansFailed
	case jobBatchExecute:
		event = EventBatchExecuteFailed
	}
	if to, err := nextPhase(c.phase, event); err == nil {
		c.setPhaseLocked(to)
	} else {
		c.setPhaseLocked(interactiveFallback(kind))
	}
	c.persistLocked()
	c.notifyLocked()
}

func (c *Controller) refreshTasks() {
	ctx, cancel := context.WithTimeout(context.Background(), confirmFetchTimeout)
	defer cancel()
	if err := c.tasks.Refresh(ctx); err != nil {
		log.Printf("workflow %s: queue refresh: %v", c.id, err)
	}
}

// installPlanLocked wires a fresh mutator around data, with cost updates
// persisted and pushed to watchers as they apply.
func (c *Controller) installPlanLocked(data plan.Data) {
	if c.mutator != nil {
		c.mutator.Cancel()
	}
	m := plan.NewMutator(c.client, data, c.debounce)
	m.OnApplied = func(updated plan.Data, elapsed time.Duration) {
		c.metrics.ObservePlanAdjustLatency(elapsed)
		c.mu.Lock()
		if c.mutator == m {
			c.lastError = ""
			c.persistLocked()
			c.notifyLocked()
		}
		c.mu.Unlock()
	}
	m.OnError = func(msg string) {
		c.mu.Lock()
		if c.mutator == m {
			c.lastError = msg
			c.notifyLocked()
		}
		c.mu.Unlock()
	}
	c.mutator = m
}
