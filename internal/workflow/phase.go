package workflow

import "fmt"

// Phase is the workflow's current step. The controller owns it exclusively;
// the presentation layer only ever reads it through Snapshot.
type Phase string

const (
	PhaseInput           Phase = "input"
	PhaseCreatingPlan    Phase = "creating_plan"
	PhasePreview         Phase = "preview"
	PhasePreviewBatch    Phase = "preview_batch"
	PhaseExecuting       Phase = "executing"
	PhaseExecutingQueue  Phase = "executing_queue"
	PhaseQueueManagement Phase = "queue_management"
	PhaseQueueResults    Phase = "queue_results"
)

// Event is something that happened to the workflow: a user action or a
// terminal job outcome.
type Event string

const (
	EventPlanRequested         Event = "plan_requested"
	EventPlanReady             Event = "plan_ready"
	EventPlanFailed            Event = "plan_failed"
	EventExecuteRequested      Event = "execute_requested"
	EventExecuteFailed         Event = "execute_failed"
	EventQueueEntered          Event = "queue_entered"
	EventBatchPlanRequested    Event = "batch_plan_requested"
	EventBatchPlansReady       Event = "batch_plans_ready"
	EventBatchPlansFailed      Event = "batch_plans_failed"
	EventBatchExecuteRequested Event = "batch_execute_requested"
	EventBatchExecuteFailed    Event = "batch_execute_failed"
	EventResultsRequested      Event = "results_requested"
)

type transition struct {
	from  Phase
	event Event
}

// transitions is the one canonical {phase, event} → next-phase table. All
// control flow goes through it; there are no per-operation phase branches.
// Execution success and batch-execution completion deliberately have no
// entry: the phase holds (results show in place, and queue results wait for
// an explicit request).
var transitions = map[transition]Phase{
	{PhaseInput, EventPlanRequested}:     PhaseCreatingPlan,
	{PhaseCreatingPlan, EventPlanReady}:  PhasePreview,
	{PhaseCreatingPlan, EventPlanFailed}: PhaseInput,

	{PhasePreview, EventExecuteRequested}: PhaseExecuting,
	{PhaseExecuting, EventExecuteFailed}:  PhasePreview,

	{PhaseInput, EventQueueEntered}:           PhaseQueueManagement,
	{PhasePreview, EventQueueEntered}:         PhaseQueueManagement,
	{PhasePreviewBatch, EventQueueEntered}:    PhaseQueueManagement,
	{PhaseQueueManagement, EventQueueEntered}: PhaseQueueManagement,

	{PhaseQueueManagement, EventBatchPlanRequested}: PhaseCreatingPlan,
	{PhaseCreatingPlan, EventBatchPlansReady}:       PhasePreviewBatch,
	{PhaseCreatingPlan, EventBatchPlansFailed}:      PhaseQueueManagement,

	{PhasePreviewBatch, EventBatchExecuteRequested}: PhaseExecutingQueue,
	{PhaseExecutingQueue, EventBatchExecuteFailed}:  PhasePreviewBatch,
	{PhaseExecutingQueue, EventResultsRequested}:    PhaseQueueResults,
}

func nextPhase(from Phase, event Event) (Phase, error) {
	to, ok := transitions[transition{from, event}]
	if !ok {
		return "", fmt.Errorf("%w: %s is not valid in %s", ErrInvalidPhase, event, from)
	}
	return to, nil
}

// ValidPhase reports whether s names a known phase, for restoring persisted
// sessions.
func ValidPhase(s string) bool {
	switch Phase(s) {
	case PhaseInput, PhaseCreatingPlan, PhasePreview, PhasePreviewBatch,
		PhaseExecuting, PhaseExecutingQueue, PhaseQueueManagement, PhaseQueueResults:
		return true
	default:
		return false
	}
}

// interactiveFallback is the nearest step a user can act on when a job of
// the given kind fails; the UI must never be left on a loading phase.
func interactiveFallback(kind jobKind) Phase {
	switch kind {
	case jobExecute:
		return PhasePreview
	case jobBatchPlan:
		return PhaseQueueManagement
	case jobBatchExecute:
		return PhasePreviewBatch
	default:
		return PhaseInput
	}
}
