package core

import (
	"alignercore/pkg/domain"
	"context"
	"fmt"
	"sort"
)

// PlanQuotaRule blocks commits where the planned quantities of a case's
// production orders exceed its per-arch totals, or where any single rework or
// replenishment order plans more than the case has.
func PlanQuotaRule() domain.Rule {
	return planQuotaRule{}
}

type planQuotaRule struct{}

func (planQuotaRule) Name() string { return "plan_quota" }

func (r planQuotaRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	touched := touchedLabCases(changes)
	for id := range changedCases(changes) {
		touched[id] = struct{}{}
	}
	if len(touched) == 0 {
		return res, nil
	}
	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	items := view.ListLabItems()
	for _, id := range ids {
		c, ok := view.FindCase(id)
		if !ok {
			continue
		}
		upper, lower := domain.PlanUsage(items, id, "")
		if upper > c.TotalUpper || lower > c.TotalLower {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message: fmt.Sprintf("case %s plans %d/%d trays against totals %d/%d",
					c.TreatmentCode, upper, lower, c.TotalUpper, c.TotalLower),
				Entity:   domain.EntityCase,
				EntityID: id,
			})
		}
		for _, item := range items {
			if item.CaseID != id || item.CountsAgainstPlan() || !domain.ExceedsCaseTotals(c, item) {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message: fmt.Sprintf("%s order %s plans %d/%d trays against totals %d/%d",
					item.RequestKind, item.RequestCode, item.PlannedUpperQty, item.PlannedLowerQty, c.TotalUpper, c.TotalLower),
				Entity:   domain.EntityLabItem,
				EntityID: item.ID,
			})
		}
	}
	return res, nil
}
