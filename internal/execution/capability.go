package execution

import (
	"fmt"

	"github.com/restorecp/rcs/internal/plan"
)

// CapabilityLimits are the operator-tunable thresholds that trigger
// restore_override_caps.
type CapabilityLimits struct {
	MaxRows                 int
	ElevatedSkipRatioPercent float64
	MediaMaxItems            int
	MediaMaxBytes            int64
}

const (
	CapabilityExecute        = "restore_execute"
	CapabilityDelete         = "restore_delete"
	CapabilitySchemaOverride = "restore_schema_override"
	CapabilityOverrideCaps   = "restore_override_caps"
)

// requiredCapabilities computes the closed set of capabilities required to
// execute p under req, plus the human-readable reasons restore_override_caps
// was triggered (empty when it was not).
func requiredCapabilities(p *plan.DryRunPlan, req ExecuteJobRequest, runtimeConflictRowCount int, limits CapabilityLimits) (caps []string, overrideReasons []string) {
	caps = append(caps, CapabilityExecute)

	needsDelete := false
	for _, r := range p.Rows {
		if r.Action == "delete" {
			needsDelete = true
			break
		}
	}
	if !needsDelete {
		for _, d := range p.DeleteCandidates {
			if d.Decision == "allow_deletion" {
				needsDelete = true
				break
			}
		}
	}
	if needsDelete {
		caps = append(caps, CapabilityDelete)
	}

	if p.ExecutionOptions.SchemaCompatibilityMode == "manual_override" {
		caps = append(caps, CapabilitySchemaOverride)
	}

	plannedRows := len(p.Rows)
	if plannedRows > limits.MaxRows {
		overrideReasons = append(overrideReasons, fmt.Sprintf("planned row count %d exceeds max_rows %d", plannedRows, limits.MaxRows))
	}

	plannedSkipRows := 0
	for _, r := range p.Rows {
		if r.Action == "skip" {
			plannedSkipRows++
		}
	}
	if plannedRows > 0 {
		skipRatio := float64(plannedSkipRows+runtimeConflictRowCount) / float64(plannedRows) * 100
		if skipRatio > limits.ElevatedSkipRatioPercent {
			overrideReasons = append(overrideReasons, fmt.Sprintf("predicted skip ratio %.2f%% exceeds elevated_skip_ratio_percent %.2f%%", skipRatio, limits.ElevatedSkipRatioPercent))
		}
	}

	mediaCount := len(p.MediaCandidates)
	if mediaCount > limits.MediaMaxItems {
		overrideReasons = append(overrideReasons, fmt.Sprintf("media item count %d exceeds media_max_items %d", mediaCount, limits.MediaMaxItems))
	}

	var totalMediaBytes int64
	for _, m := range p.MediaCandidates {
		totalMediaBytes += m.SizeBytes
	}
	if totalMediaBytes > limits.MediaMaxBytes {
		overrideReasons = append(overrideReasons, fmt.Sprintf("total media bytes %d exceeds media_max_bytes %d", totalMediaBytes, limits.MediaMaxBytes))
	}

	if len(overrideReasons) > 0 {
		caps = append(caps, CapabilityOverrideCaps)
	}

	return caps, overrideReasons
}

// grantedCapabilities reports whether granted is a superset of required.
func grantedCapabilities(required, granted []string) bool {
	grantedSet := make(map[string]struct{}, len(granted))
	for _, c := range granted {
		grantedSet[c] = struct{}{}
	}
	for _, c := range required {
		if _, ok := grantedSet[c]; !ok {
			return false
		}
	}
	return true
}

func hasOverrideCaps(required []string) bool {
	for _, c := range required {
		if c == CapabilityOverrideCaps {
			return true
		}
	}
	return false
}

func validElevatedConfirmation(c *ElevatedConfirmation) bool {
	return c != nil && c.Confirmed && c.Confirmation == "I UNDERSTAND" && c.Reason != ""
}
