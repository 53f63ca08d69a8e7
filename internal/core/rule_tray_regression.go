package core

import (
	"alignercore/pkg/domain"
	"context"
	"fmt"
	"sort"
)

// TrayRegressionRule blocks commits that move a delivered tray anywhere but
// rework.
func TrayRegressionRule() domain.Rule {
	return trayRegressionRule{}
}

type trayRegressionRule struct{}

func (trayRegressionRule) Name() string { return "tray_regression" }

func (r trayRegressionRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	cases := changedCases(changes)
	ids := make([]string, 0, len(cases))
	for id := range cases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		entry := cases[id]
		if entry.before == nil {
			continue
		}
		for _, prev := range entry.before.Trays {
			if prev.State != domain.TrayDelivered {
				continue
			}
			next := entry.after.Tray(prev.TrayNumber)
			if next == nil || next.State == domain.TrayDelivered || next.State == domain.TrayRework {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("case %s tray %d regressed from delivered to %s", entry.after.TreatmentCode, prev.TrayNumber, next.State),
				Entity:   domain.EntityTray,
				EntityID: id,
			})
		}
	}
	return res, nil
}
