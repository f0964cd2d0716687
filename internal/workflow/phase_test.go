package workflow

import (
	"errors"
	"testing"
)

func TestNextPhase(t *testing.T) {
	cases := []struct {
		from  Phase
		event Event
		want  Phase
	}{
		{PhaseInput, EventPlanRequested, PhaseCreatingPlan},
		{PhaseCreatingPlan, EventPlanReady, PhasePreview},
		{PhaseCreatingPlan, EventPlanFailed, PhaseInput},
		{PhasePreview, EventExecuteRequested, PhaseExecuting},
		{PhaseExecuting, EventExecuteFailed, PhasePreview},
		{PhaseInput, EventQueueEntered, PhaseQueueManagement},
		{PhasePreview, EventQueueEntered, PhaseQueueManagement},
		{PhaseQueueManagement, EventBatchPlanRequested, PhaseCreatingPlan},
		{PhaseCreatingPlan, EventBatchPlansReady, PhasePreviewBatch},
		{PhaseCreatingPlan, EventBatchPlansFailed, PhaseQueueManagement},
		{PhasePreviewBatch, EventBatchExecuteRequested, PhaseExecutingQueue},
		{PhaseExecutingQueue, EventBatchExecuteFailed, PhasePreviewBatch},
		{PhaseExecutingQueue, EventResultsRequested, PhaseQueueResults},
	}
	for _, tc := range cases {
		got, err := nextPhase(tc.from, tc.event)
		if err != nil {
			t.Fatalf("nextPhase(%s, %s): %v", tc.from, tc.event, err)
		}
		if got != tc.want {
			t.Fatalf("nextPhase(%s, %s) = %s, want %s", tc.from, tc.event, got, tc.want)
		}
	}
}

func TestNextPhaseRejectsInvalid(t *testing.T) {
	invalid := []struct {
		from  Phase
		event Event
	}{
		{PhaseInput, EventExecuteRequested},
		{PhasePreview, EventPlanRequested},
		{PhaseQueueResults, EventResultsRequested},
		{PhaseExecuting, EventBatchExecuteRequested},
	}
	for _, tc := range invalid {
		if _, err := nextPhase(tc.from, tc.event); !errors.Is(err, ErrInvalidPhase) {
			t.Fatalf("nextPhase(%s, %s): got %v, want ErrInvalidPhase", tc.from, tc.event, err)
		}
	}
}

func TestValidPhase(t *testing.T) {
	for _, p := range []Phase{
		PhaseInput, PhaseCreatingPlan, PhasePreview, PhasePreviewBatch,
		PhaseExecuting, PhaseExecutingQueue, PhaseQueueManagement, PhaseQueueResults,
	} {
		if !ValidPhase(string(p)) {
			t.Fatalf("ValidPhase(%q) = false", p)
		}
	}
	if ValidPhase("daydreaming") {
		t.Fatal(`ValidPhase("daydreaming") = true`)
	}
}
