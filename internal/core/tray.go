package core

import (
	"alignercore/pkg/domain"
	"context"
)

// SetTrayState moves one tray through its state machine. Delivering a tray
// requires a dentist lot covering it; sending a tray to rework opens a rework
// order and its production counterpart unless one is already open.
func (s *Service) SetTrayState(ctx context.Context, caseID string, tray int, next domain.TrayState) (Case, Result, error) {
	var updated Case
	res, err := s.run(ctx, OpSetTrayState, func(tx Transaction) (string, error) {
		c, err := loadCase(tx, caseID)
		if err != nil {
			return caseID, err
		}
		if !domain.ValidTrayState(next) {
			return caseID, invalid(EntityTray, caseID, "unknown tray state %q", next)
		}
		current := c.Tray(tray)
		if current == nil {
			return caseID, domain.Errorf(domain.ErrTrayNotFound, EntityTray, caseID, "case %s has no tray %d", c.TreatmentCode, tray)
		}
		if err := domain.CheckTrayTransition(caseID, *current, next); err != nil {
			return caseID, err
		}
		if current.State == next {
			updated = c
			return caseID, nil
		}
		if next == domain.TrayDelivered && !domain.LotCovers(c, tray) {
			return caseID, domain.Errorf(domain.ErrDeliveryLotRequired, EntityTray, caseID,
				"tray %d of case %s is not in any delivery lot", tray, c.TreatmentCode)
		}
		previous := current.State
		updated, err = tx.UpdateCase(caseID, func(c *Case) error {
			t := c.Tray(tray)
			t.State = next
			if next == domain.TrayDelivered {
				t.DeliveredAt = timePtr(tx.Now())
			} else {
				t.DeliveredAt = nil
			}
			return nil
		})
		if err != nil {
			return caseID, err
		}
		if next == domain.TrayRework && previous != domain.TrayRework {
			if err := ensureReworkOrders(tx, updated, tray); err != nil {
				return caseID, err
			}
		}
		return caseID, nil
	})
	return updated, res, err
}

// ensureReworkOrders opens a rework order for tray and a production
// counterpart linked to it. Both re-make existing trays and are kept out of
// the case's planned quota.
func ensureReworkOrders(tx Transaction, c Case, tray int) error {
	items := tx.Snapshot().ListLabItems()
	for _, item := range items {
		if item.CaseID == c.ID && item.RequestKind == domain.RequestRework &&
			item.TrayNumber == tray && item.Status != domain.LabReady {
			return nil
		}
	}
	var upper, lower int
	if c.Arch.Covers(domain.ArchUpper) {
		upper = 1
	}
	if c.Arch.Covers(domain.ArchLower) {
		lower = 1
	}
	rework := LabItem{
		CaseID:          c.ID,
		RequestCode:     domain.NextRequestCode(c.TreatmentCode, domain.RequestRework, items),
		RequestKind:     domain.RequestRework,
		PlannedUpperQty: upper,
		PlannedLowerQty: lower,
		TrayNumber:      tray,
		Status:          domain.LabAwaitingStart,
		Priority:        domain.PriorityHigh,
	}
	if t := c.Tray(tray); t != nil && t.DueDate != nil {
		rework.DueDate = timePtr(*t.DueDate)
	}
	created, err := tx.CreateLabItem(rework)
	if err != nil {
		return err
	}
	items = tx.Snapshot().ListLabItems()
	counterpart := rework
	counterpart.ID = ""
	counterpart.RequestKind = domain.RequestProduction
	counterpart.RequestCode = domain.NextRequestCode(c.TreatmentCode, domain.RequestRework, items)
	counterpart.ReworkItemID = created.ID
	_, err = tx.CreateLabItem(counterpart)
	return err
}

// UpdateTrayNote replaces the note attached to one tray.
func (s *Service) UpdateTrayNote(ctx context.Context, caseID string, tray int, note string) (Case, Result, error) {
	var updated Case
	res, err := s.run(ctx, OpUpdateTrayNote, func(tx Transaction) (string, error) {
		c, err := loadCase(tx, caseID)
		if err != nil {
			return caseID, err
		}
		if c.Tray(tray) == nil {
			return caseID, domain.Errorf(domain.ErrTrayNotFound, EntityTray, caseID, "case %s has no tray %d", c.TreatmentCode, tray)
		}
		updated, err = tx.UpdateCase(caseID, func(c *Case) error {
			c.Tray(tray).Note = note
			return nil
		})
		return caseID, err
	})
	return updated, res, err
}
