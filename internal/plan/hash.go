package plan

import (
	"sort"

	"github.com/restorecp/rcs/internal/canon"
)

// planHashInput is the exact shape hashed into PlanHash. Rows are sorted by
// row_id and conflicts by conflict_id so two requests differing only in
// element order still hash identically; every other field is taken verbatim
// from the request.
type planHashInput struct {
	TenantID         string           `json:"tenant_id"`
	InstanceID       string           `json:"instance_id"`
	Source           string           `json:"source"`
	PIT              pitHashView      `json:"pit"`
	Scope            Scope            `json:"scope"`
	ExecutionOptions ExecutionOptions `json:"execution_options"`
	Rows             []Row            `json:"rows"`
	Conflicts        []Conflict       `json:"conflicts"`
}

type pitHashView struct {
	RestoreTime         string   `json:"restore_time"`
	RestoreTimezone     string   `json:"restore_timezone"`
	PitAlgorithmVersion string   `json:"pit_algorithm_version"`
	TieBreaker          []string `json:"tie_breaker"`
	TieBreakerFallback  []string `json:"tie_breaker_fallback"`
}

// buildHashInput normalizes a request into its canonical hash-input shape:
// rows sorted by row_id, conflicts sorted by conflict_id, restore_time
// normalized to UTC ISO-8601 millis, and tie-breaker lists preserved in their
// declared (priority) order.
func buildHashInput(req CreateDryRunPlanRequest) planHashInput {
	rows := make([]Row, len(req.Rows))
	copy(rows, req.Rows)
	sort.Slice(rows, func(i, j int) bool { return rows[i].RowID < rows[j].RowID })

	conflicts := make([]Conflict, len(req.Conflicts))
	copy(conflicts, req.Conflicts)
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].ConflictID < conflicts[j].ConflictID })

	return planHashInput{
		TenantID:   req.TenantID,
		InstanceID: req.InstanceID,
		Source:     req.Source,
		PIT: pitHashView{
			RestoreTime:         canon.NormalizeISO(req.PIT.RestoreTime.UTC()),
			RestoreTimezone:     req.PIT.RestoreTimezone,
			PitAlgorithmVersion: req.PIT.PitAlgorithmVersion,
			TieBreaker:          req.PIT.TieBreaker,
			TieBreakerFallback:  req.PIT.TieBreakerFallback,
		},
		Scope:            req.Scope,
		ExecutionOptions: req.ExecutionOptions,
		Rows:             rows,
		Conflicts:        conflicts,
	}
}

// computePlanHash returns the sha256 hex digest of the canonical JSON
// encoding of input, the plan_hash persisted and returned to callers.
func computePlanHash(input planHashInput) (string, error) {
	return canon.SHA256Hex(input)
}
