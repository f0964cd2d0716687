package workflow

import (
	"context"
	"log"

	"github.com/mlauria/lexflow/internal/jobs"
)

// Restore rebuilds the workflow from its persisted session, then reconciles
// any referenced job against the server: a finished job lands on its display
// or fallback step, a still-pending one gets a fresh subscription on the
// persisted step.
func (c *Controller) Restore(ctx context.Context) error {
	sess, err := c.persistence.Restore(ctx, c.id)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	c.metrics.ObserveSessionOp("restore")

	c.mu.Lock()
	c.query = sess.Query
	c.isQueueMode = sess.IsQueueMode
	if sess.PlanData != nil {
		c.installPlanLocked(*sess.PlanData)
	}
	if len(sess.Result) > 0 {
		c.result = append(c.result[:0], sess.Result...)
	}
	if ValidPhase(sess.CurrentStep) {
		c.setPhaseLocked(Phase(sess.CurrentStep))
	} else {
		c.setPhaseLocked(PhaseInput)
	}
	if c.phase == PhaseQueueResults {
		c.queueDone = true
	}
	kind := jobKindForStep(c.phase, c.isQueueMode)
	jobID := sess.JobID
	c.jobID = jobID
	c.mu.Unlock()

	if c.tasksRelevant() {
		if rerr := c.tasks.Refresh(ctx); rerr != nil {
			log.Printf("workflow %s: queue refresh on restore: %v", c.id, rerr)
		}
	}

	if jobID == "" {
		c.mu.Lock()
		c.notifyLocked()
		c.mu.Unlock()
		return nil
	}

	status, err := c.client.GetJobStatus(ctx, jobID)
	if err != nil {
		c.metrics.ObserveStreamError("reconcile")
		c.settleFailure(kind, "could not reconcile job on restore: "+err.Error())
		return nil
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
		c.openSubscriptionLocked(jobID, kind)
		c.notifyLocked()
		c.mu.Unlock()
	}
	return nil
}

func (c *Controller) tasksRelevant() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isQueueMode
}

// jobKindForStep infers which operation a persisted job belonged to from
// the step it was persisted on.
func jobKindForStep(p Phase, queueMode bool) jobKind {
	switch p {
	case PhaseCreatingPlan:
		if queueMode {
			return jobBatchPlan
		}
		return jobPlan
	case PhaseExecuting:
		return jobExecute
	case PhaseExecutingQueue:
		return jobBatchExecute
	default:
		if queueMode {
			return jobBatchPlan
		}
		return jobPlan
	}
}
