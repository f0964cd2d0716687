package plan

import "context"

// PreviewRow is one sample row of the cases a plan would analyze.
type PreviewRow struct {
	CaseID   string `json:"case_id"`
	Caption  string `json:"caption"`
	Decided  string `json:"decided,omitempty"`
	Court    string `json:"court,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
	Strategy string `json:"strategy,omitempty"`
}

// Data is a server-computed execution strategy and cost estimate for a query.
// PlanID is stable for the lifetime of the plan; case-limit mutation updates
// the counts in place and never issues a new id. OriginalTotalCases is set
// once at creation and is immutable thereafter.
type Data struct {
	PlanID               string         `json:"plan_id"`
	TotalCases           int            `json:"total_cases"`
	TotalChunks          int            `json:"total_chunks"`
	EstimatedTimeSeconds int            `json:"estimated_time_seconds"`
	PreviewRows          []PreviewRow   `json:"preview_rows,omitempty"`
	StrategySummary      string         `json:"strategy_summary,omitempty"`
	OriginalTotalCases   int            `json:"original_total_cases"`
	StrategiesUsed       []string       `json:"strategies_used,omitempty"`
	StrategyBreakdown    map[string]int `json:"strategy_breakdown,omitempty"`
}

func (d Data) Clone() Data {
	out := d
	if d.PreviewRows != nil {
		out.PreviewRows = make([]PreviewRow, len(d.PreviewRows))
		copy(out.PreviewRows, d.PreviewRows)
	}
	if d.StrategiesUsed != nil {
		out.StrategiesUsed = make([]string, len(d.StrategiesUsed))
		copy(out.StrategiesUsed, d.StrategiesUsed)
	}
	if d.StrategyBreakdown != nil {
		out.StrategyBreakdown = make(map[string]int, len(d.StrategyBreakdown))
		for k, v := range d.StrategyBreakdown {
			out.StrategyBreakdown[k] = v
		}
	}
	return out
}

// Update carries the recomputed cost fields after a case-limit change.
type Update struct {
	TotalCases           int `json:"total_cases"`
	TotalChunks          int `json:"total_chunks"`
	EstimatedTimeSeconds int `json:"estimated_time_seconds"`
	OriginalTotalCases   int `json:"original_total_cases"`
}

// Updater is the remote plan-update endpoint.
type Updater interface {
	UpdatePlan(ctx context.Context, planID string, caseCount int) (Update, error)
}
