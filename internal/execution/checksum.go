package execution

import (
	"sort"

	"github.com/restorecp/rcs/internal/canon"
	"github.com/restorecp/rcs/internal/plan"
)

// planChecksum recomputes the plan's content hash directly from its stored
// plan_hash_input, independent of the plan_hash the Plan service already
// persisted — an execution-time integrity check, not a duplicate definition.
func planChecksum(p *plan.DryRunPlan) (string, error) {
	return canon.SHA256Hex(p.PlanHashInput)
}

// preconditionView is the canonicalized shape hashed into precondition_checksum.
type preconditionView struct {
	Gate             plan.Gate              `json:"gate"`
	DeleteCandidates []plan.DeleteCandidate `json:"delete_candidates"`
	Conflicts        []plan.Conflict        `json:"conflicts"`
	Watermarks       []plan.WatermarkView   `json:"watermarks"`
}

// preconditionChecksum hashes the plan's gate, delete candidates, conflicts,
// and watermarks, each sorted by their natural id so two equivalent plans
// checksum identically regardless of slice order.
func preconditionChecksum(p *plan.DryRunPlan) (string, error) {
	deleteCandidates := append([]plan.DeleteCandidate(nil), p.DeleteCandidates...)
	sort.Slice(deleteCandidates, func(i, j int) bool { return deleteCandidates[i].CandidateID < deleteCandidates[j].CandidateID })

	conflicts := append([]plan.Conflict(nil), p.Conflicts...)
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].ConflictID < conflicts[j].ConflictID })

	watermarks := append([]plan.WatermarkView(nil), p.Watermarks...)
	sort.Slice(watermarks, func(i, j int) bool {
		if watermarks[i].Topic != watermarks[j].Topic {
			return watermarks[i].Topic < watermarks[j].Topic
		}
		return watermarks[i].Partition < watermarks[j].Partition
	})

	return canon.SHA256Hex(preconditionView{
		Gate:             p.Gate,
		DeleteCandidates: deleteCandidates,
		Conflicts:        conflicts,
		Watermarks:       watermarks,
	})
}
