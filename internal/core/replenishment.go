package core

import (
	"alignercore/pkg/domain"
	"context"
	"sort"
	"time"
)

// AdvanceOrderInput carries the quantities of an advance production order.
type AdvanceOrderInput struct {
	PlannedUpperQty int
	PlannedLowerQty int
	DueDate         *time.Time
}

// RunReplenishment schedules a programmed replenishment for every case whose
// next pending tray is coming due. Running it twice on the same day creates
// nothing new.
func (s *Service) RunReplenishment(ctx context.Context) ([]LabItem, Result, error) {
	var created []LabItem
	res, err := s.run(ctx, OpRunReplenishment, func(tx Transaction) (string, error) {
		created = created[:0]
		today := s.clock.Now()
		view := tx.Snapshot()
		for _, c := range view.ListCases() {
			items := tx.Snapshot().ListLabItems()
			tray, ok := domain.ReplenishmentTarget(c, today)
			if !ok || domain.HasReplenishment(items, c.ID, tray.TrayNumber, *tray.DueDate) {
				continue
			}
			item, err := tx.CreateLabItem(LabItem{
				CaseID:       c.ID,
				RequestCode:  domain.NextRequestCode(c.TreatmentCode, domain.RequestProgrammedReplenishment, items),
				RequestKind:  domain.RequestProgrammedReplenishment,
				TrayNumber:   tray.TrayNumber,
				DueDate:      timePtr(*tray.DueDate),
				ExpectedDate: timePtr(*tray.DueDate),
				Status:       domain.LabAwaitingStart,
				Priority:     domain.PriorityMedium,
			})
			if err != nil {
				return "", err
			}
			created = append(created, item)
		}
		return "", nil
	})
	if err != nil {
		return nil, res, err
	}
	for _, item := range created {
		s.logger.Info("replenishment scheduled", "case_id", item.CaseID, "request_code", item.RequestCode, "tray", item.TrayNumber)
	}
	return created, res, nil
}

// CreateAdvanceLabOrder turns a work order into an urgent production order
// for the case's next unproduced tray. A programmed replenishment of the same
// treatment is consumed in the process.
func (s *Service) CreateAdvanceLabOrder(ctx context.Context, sourceID string, in AdvanceOrderInput) (LabItem, Result, error) {
	var created LabItem
	res, err := s.run(ctx, OpCreateAdvanceLabOrder, func(tx Transaction) (string, error) {
		source, err := loadLabItem(tx, sourceID)
		if err != nil {
			return sourceID, err
		}
		if source.CaseID == "" {
			return sourceID, invalid(EntityLabItem, sourceID, "lab item %s is not linked to a case", source.RequestCode)
		}
		c, err := loadCase(tx, source.CaseID)
		if err != nil {
			return sourceID, err
		}
		if err := requireContract(c); err != nil {
			return sourceID, err
		}
		if in.PlannedUpperQty < 0 || in.PlannedLowerQty < 0 || in.PlannedUpperQty+in.PlannedLowerQty == 0 {
			return sourceID, invalid(EntityLabItem, sourceID, "advance order needs a positive quantity")
		}

		items := tx.Snapshot().ListLabItems()
		code := domain.NextRequestCode(c.TreatmentCode, domain.RequestProduction, items)
		consume := false
		if source.RequestKind == domain.RequestProgrammedReplenishment {
			if rc, ok := domain.ParseRequestCode(source.RequestCode); ok && rc.Base() == c.TreatmentCode {
				consume = true
			}
		}
		exclude := ""
		if consume {
			exclude = sourceID
		}

		var target *domain.Tray
		for i := range c.Trays {
			t := c.Trays[i]
			if t.State == domain.TrayPending && !domain.TrayCoveredByProduction(items, c.ID, t.TrayNumber, exclude) {
				target = &t
				break
			}
		}
		if target == nil {
			return sourceID, domain.Errorf(domain.ErrNoPendingTray, EntityCase, c.ID, "case %s has no pending tray left to produce", c.TreatmentCode)
		}
		item := LabItem{
			CaseID:          c.ID,
			RequestCode:     code,
			RequestKind:     domain.RequestProduction,
			PlannedUpperQty: in.PlannedUpperQty,
			PlannedLowerQty: in.PlannedLowerQty,
			TrayNumber:      target.TrayNumber,
			Status:          domain.LabAwaitingStart,
			Priority:        domain.PriorityUrgent,
			Notes:           source.Notes,
		}
		switch {
		case in.DueDate != nil:
			item.DueDate = timePtr(*in.DueDate)
		case target.DueDate != nil:
			item.DueDate = timePtr(*target.DueDate)
		}
		if consume {
			if err := tx.DeleteLabItem(sourceID); err != nil {
				return sourceID, err
			}
			items = tx.Snapshot().ListLabItems()
		}
		if err := domain.CheckPlan(c, items, item); err != nil {
			return sourceID, err
		}
		created, err = tx.CreateLabItem(item)
		return created.ID, err
	})
	return created, res, err
}

// ListAlerts returns the active due-date alerts of the cases visible to
// actor, most pressing first.
func (s *Service) ListAlerts(ctx context.Context, actor Actor) ([]Alert, error) {
	out := []Alert{}
	today := s.clock.Now()
	err := s.view(ctx, "list_alerts", func(v TransactionView) error {
		for _, c := range NewScope(v, actor).Cases(v.ListCases()) {
			if alert, ok := domain.AlertFor(c, today); ok {
				out = append(out, alert)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DaysLeft != out[j].DaysLeft {
			return out[i].DaysLeft < out[j].DaysLeft
		}
		return out[i].TreatmentCode < out[j].TreatmentCode
	})
	return out, err
}
