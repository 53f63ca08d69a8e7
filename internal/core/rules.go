package core

import "alignercore/pkg/domain"

type (
	Rule        = domain.Rule
	RulesEngine = domain.RulesEngine
)

// NewRulesEngine constructs an engine with no rules registered.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// These rules re-check at commit time what the operations already enforce,
// so a buggy or future code path cannot persist a violating document.
func NewDefaultRulesEngine() *RulesEngine {
	return domain.NewRulesEngine(
		TrayRegressionRule(),
		PlanQuotaRule(),
		ReplenishmentUniqueRule(),
		FinalizedPhaseRule(),
	)
}

func changedCases(changes []Change) map[string]struct{ before, after *Case } {
	out := make(map[string]struct{ before, after *Case })
	for _, change := range changes {
		if change.Entity != EntityCase {
			continue
		}
		after, ok := change.After.(Case)
		if !ok {
			continue
		}
		entry := out[after.ID]
		if before, ok := change.Before.(Case); ok && entry.before == nil {
			entry.before = &before
		}
		entry.after = &after
		out[after.ID] = entry
	}
	return out
}

func touchedLabCases(changes []Change) map[string]struct{} {
	out := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != EntityLabItem {
			continue
		}
		for _, payload := range []any{change.Before, change.After} {
			if item, ok := payload.(LabItem); ok && item.CaseID != "" {
				out[item.CaseID] = struct{}{}
			}
		}
	}
	return out
}
