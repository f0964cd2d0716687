package research

import (
	"encoding/json"
	"strings"

	"github.com/mlauria/lexflow/internal/plan"
)

// PlanJobResult is the payload a planning job delivers on completion.
type PlanJobResult struct {
	Success bool       `json:"success"`
	Error   string     `json:"error,omitempty"`
	Plan    *plan.Data `json:"plan,omitempty"`
}

// DecodePlanResult parses a planning job result. A payload that cannot be
// parsed, reports failure, or carries no plan yields ok=false with a
// user-facing message.
func DecodePlanResult(raw json.RawMessage) (plan.Data, bool, string) {
	var out PlanJobResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return plan.Data{}, false, "planning returned an unreadable result"
	}
	if !out.Success {
		return plan.Data{}, false, fallbackMessage(out.Error)
	}
	if out.Plan == nil {
		return plan.Data{}, false, "planning completed without a plan"
	}
	return out.Plan.Clone(), true, ""
}

// DecodeResultEnvelope extracts the success flag and error message common to
// all job result payloads. Payloads without a success field count as
// successful; the result body itself stays opaque to the orchestrator.
func DecodeResultEnvelope(raw json.RawMessage) (bool, string) {
	var envelope struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return true, ""
	}
	if envelope.Success != nil && !*envelope.Success {
		msg := strings.TrimSpace(envelope.Error)
		if msg == "" {
			msg = "job reported failure"
		}
		return false, msg
	}
	return true, ""
}
