package core

import (
	"alignercore/pkg/domain"
	"context"
	"fmt"
	"sort"
)

// ReplenishmentUniqueRule blocks a second programmed replenishment for the
// same case, tray, and expected day.
func ReplenishmentUniqueRule() domain.Rule {
	return replenishmentUniqueRule{}
}

type replenishmentUniqueRule struct{}

func (replenishmentUniqueRule) Name() string { return "replenishment_unique" }

func (r replenishmentUniqueRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	touched := touchedLabCases(changes)
	if len(touched) == 0 {
		return res, nil
	}
	type slot struct {
		caseID string
		tray   int
		day    string
	}
	seen := make(map[slot]int)
	for _, item := range view.ListLabItems() {
		if item.RequestKind != domain.RequestProgrammedReplenishment || item.ExpectedDate == nil {
			continue
		}
		if _, ok := touched[item.CaseID]; !ok {
			continue
		}
		seen[slot{item.CaseID, item.TrayNumber, item.ExpectedDate.UTC().Format("2006-01-02")}]++
	}
	dups := make([]slot, 0)
	for key, n := range seen {
		if n > 1 {
			dups = append(dups, key)
		}
	}
	sort.Slice(dups, func(i, j int) bool {
		if dups[i].caseID != dups[j].caseID {
			return dups[i].caseID < dups[j].caseID
		}
		return dups[i].tray < dups[j].tray
	})
	for _, key := range dups {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("duplicate replenishment for tray %d expected %s", key.tray, key.day),
			Entity:   domain.EntityLabItem,
			EntityID: key.caseID,
		})
	}
	return res, nil
}
