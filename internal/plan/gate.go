package plan

import "github.com/restorecp/rcs/internal/freshness"

// deriveGate applies the executability priority order from the plan's own
// watermarks, delete/media candidates, and unresolved conflicts: the first
// blocking condition found wins, in this fixed order —
//
//  1. any watermark unknown          -> blocked_freshness_unknown
//  2. any watermark stale            -> blocked_freshness_stale (preview_only)
//  3. an unresolved delete candidate -> blocked_unresolved_delete_candidates
//  4. an unresolved media candidate  -> blocked_unresolved_media_candidates
//  5. an unresolved reference conflict, or any conflict resolved
//     abort_and_replan                 -> blocked_reference_conflict
//  6. otherwise                      -> executable / none
func deriveGate(watermarks []freshness.Watermark, deleteCandidates []DeleteCandidate, mediaCandidates []MediaCandidate, conflicts []Conflict) Gate {
	for _, w := range watermarks {
		if w.Freshness == freshness.FreshnessUnknown {
			return Gate{Executability: string(freshness.ExecutabilityBlocked), ReasonCode: "blocked_freshness_unknown"}
		}
	}
	for _, w := range watermarks {
		if w.Freshness == freshness.FreshnessStale {
			return Gate{Executability: string(freshness.ExecutabilityPreviewOnly), ReasonCode: "blocked_freshness_stale"}
		}
	}
	for _, d := range deleteCandidates {
		if d.Decision == "" {
			return Gate{Executability: string(freshness.ExecutabilityBlocked), ReasonCode: "blocked_unresolved_delete_candidates"}
		}
	}
	for _, m := range mediaCandidates {
		if m.Decision == "" {
			return Gate{Executability: string(freshness.ExecutabilityBlocked), ReasonCode: "blocked_unresolved_media_candidates"}
		}
	}
	for _, c := range conflicts {
		if (c.Class == ConflictClassReference && !c.IsResolved()) || c.Resolution == "abort_and_replan" {
			return Gate{Executability: string(freshness.ExecutabilityBlocked), ReasonCode: "blocked_reference_conflict"}
		}
	}
	return Gate{Executability: string(freshness.ExecutabilityExecutable), ReasonCode: "none"}
}
