package core

import (
	"alignercore/pkg/domain"
	"context"
	"fmt"
	"sort"
)

// FinalizedPhaseRule blocks cases whose stored phase disagrees with their
// trays: finalized exactly when every tray is delivered.
func FinalizedPhaseRule() domain.Rule {
	return finalizedPhaseRule{}
}

type finalizedPhaseRule struct{}

func (finalizedPhaseRule) Name() string { return "finalized_phase" }

func (r finalizedPhaseRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	cases := changedCases(changes)
	ids := make([]string, 0, len(cases))
	for id := range cases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := cases[id].after
		finalized := c.Phase == domain.PhaseFinalized
		if finalized == domain.AllTraysDelivered(c.Trays) {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("case %s has phase %s inconsistent with its trays", c.TreatmentCode, c.Phase),
			Entity:   domain.EntityCase,
			EntityID: id,
		})
	}
	return res, nil
}
