package core

import (
	"alignercore/pkg/domain"
	"context"
	"strings"
)

// CreateLabItem adds a work order. Case-linked orders need an approved
// contract, an existing tray, and room in the case's planned quota; their
// request code is allocated from the treatment code. Unlinked orders must
// carry their own request code.
func (s *Service) CreateLabItem(ctx context.Context, item LabItem) (LabItem, Result, error) {
	var created LabItem
	res, err := s.run(ctx, OpCreateLabItem, func(tx Transaction) (string, error) {
		if item.RequestKind == "" {
			item.RequestKind = domain.RequestProduction
		}
		switch item.RequestKind {
		case domain.RequestProduction, domain.RequestRework, domain.RequestProgrammedReplenishment:
		default:
			return "", invalid(EntityLabItem, item.ID, "unknown request kind %q", item.RequestKind)
		}
		if item.Priority == "" {
			item.Priority = domain.PriorityMedium
		}
		if !validPriority(item.Priority) {
			return "", invalid(EntityLabItem, item.ID, "unknown priority %q", item.Priority)
		}
		item.Status = domain.LabAwaitingStart
		item.ReworkItemID = ""
		if item.PlannedUpperQty < 0 || item.PlannedLowerQty < 0 {
			return "", invalid(EntityLabItem, item.ID, "planned quantities cannot be negative")
		}

		if item.CaseID == "" {
			if strings.TrimSpace(item.RequestCode) == "" {
				return "", invalid(EntityLabItem, item.ID, "request code is required for orders without a case")
			}
			var err error
			created, err = tx.CreateLabItem(item)
			return created.ID, err
		}

		c, err := loadCase(tx, item.CaseID)
		if err != nil {
			return "", err
		}
		if err := requireContract(c); err != nil {
			return "", err
		}
		if item.TrayNumber == 0 {
			item.TrayNumber = 1
		}
		tray := c.Tray(item.TrayNumber)
		if tray == nil {
			return "", domain.Errorf(domain.ErrTrayNotFound, EntityTray, c.ID, "case %s has no tray %d", c.TreatmentCode, item.TrayNumber)
		}
		items := tx.Snapshot().ListLabItems()
		if err := domain.CheckPlan(c, items, item); err != nil {
			return "", err
		}
		item.RequestCode = domain.NextRequestCode(c.TreatmentCode, item.RequestKind, items)
		if item.DueDate == nil && tray.DueDate != nil {
			item.DueDate = timePtr(*tray.DueDate)
		}
		created, err = tx.CreateLabItem(item)
		return created.ID, err
	})
	return created, res, err
}

func validPriority(p domain.Priority) bool {
	switch p {
	case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh, domain.PriorityUrgent:
		return true
	}
	return false
}

// UpdateLabItem edits the planning fields of a work order. Identity, linkage,
// request code, kind, and status cannot be changed here; status moves go
// through MoveLabItem.
func (s *Service) UpdateLabItem(ctx context.Context, id string, mutator func(*LabItem) error) (LabItem, Result, error) {
	var updated LabItem
	res, err := s.run(ctx, OpUpdateLabItem, func(tx Transaction) (string, error) {
		current, err := loadLabItem(tx, id)
		if err != nil {
			return id, err
		}
		candidate := current
		if err := mutator(&candidate); err != nil {
			return id, err
		}
		if candidate.ID != current.ID || candidate.CaseID != current.CaseID ||
			candidate.RequestCode != current.RequestCode || candidate.RequestKind != current.RequestKind ||
			candidate.ReworkItemID != current.ReworkItemID || candidate.Status != current.Status {
			return id, invalid(EntityLabItem, id, "identity, linkage, kind, code, and status are immutable")
		}
		if !validPriority(candidate.Priority) {
			return id, invalid(EntityLabItem, id, "unknown priority %q", candidate.Priority)
		}
		if candidate.CaseID != "" {
			c, err := loadCase(tx, candidate.CaseID)
			if err != nil {
				return id, err
			}
			if err := requireContract(c); err != nil {
				return id, err
			}
			if c.Tray(candidate.TrayNumber) == nil {
				return id, domain.Errorf(domain.ErrTrayNotFound, EntityTray, c.ID, "case %s has no tray %d", c.TreatmentCode, candidate.TrayNumber)
			}
			if err := domain.CheckPlan(c, tx.Snapshot().ListLabItems(), candidate); err != nil {
				return id, err
			}
		} else if candidate.PlannedUpperQty < 0 || candidate.PlannedLowerQty < 0 {
			return id, invalid(EntityLabItem, id, "planned quantities cannot be negative")
		}
		updated, err = tx.UpdateLabItem(id, func(l *LabItem) error {
			*l = candidate
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// MoveLabItem moves a work order one step along the lab pipeline. Production
// orders carry their trays along: starting production starts pending and
// rework trays, and finishing makes them ready.
func (s *Service) MoveLabItem(ctx context.Context, id string, status domain.LabStatus) (LabItem, Result, error) {
	var moved LabItem
	res, err := s.run(ctx, OpMoveLabItem, func(tx Transaction) (string, error) {
		item, err := loadLabItem(tx, id)
		if err != nil {
			return id, err
		}
		if domain.LabStatusIndex(status) < 0 {
			return id, invalid(EntityLabItem, id, "unknown lab status %q", status)
		}
		if !domain.CanMoveLab(item.Status, status) {
			return id, domain.Errorf(domain.ErrInvalidTransition, EntityLabItem, id,
				"lab item %s cannot move from %s to %s", item.RequestCode, item.Status, status)
		}
		var c Case
		linked := item.CaseID != ""
		if linked {
			if c, err = loadCase(tx, item.CaseID); err != nil {
				return id, err
			}
			if err := requireContract(c); err != nil {
				return id, err
			}
		}
		if item.Status == status {
			moved = item
			return id, nil
		}
		if linked {
			if t := c.Tray(item.TrayNumber); t != nil && t.State == domain.TrayDelivered {
				return id, domain.Errorf(domain.ErrDeliveredLocked, EntityLabItem, id,
					"tray %d of case %s is already delivered", item.TrayNumber, c.TreatmentCode)
			}
		}
		if item.Status == domain.LabAwaitingStart && status == domain.LabInProduction && item.PlannedTotal() == 0 {
			return id, domain.Errorf(domain.ErrBlindProduction, EntityLabItem, id,
				"lab item %s has no planned quantities", item.RequestCode)
		}
		moved, err = tx.UpdateLabItem(id, func(l *LabItem) error {
			l.Status = status
			return nil
		})
		if err != nil {
			return id, err
		}
		if linked && item.RequestKind == domain.RequestProduction {
			if err := syncTrays(tx, c, moved); err != nil {
				return id, err
			}
		}
		return id, nil
	})
	return moved, res, err
}

// syncTrays applies the tray side effects of a production order's move.
// Trays the state machine would refuse are left untouched.
func syncTrays(tx Transaction, c Case, item LabItem) error {
	var from []domain.TrayState
	var to domain.TrayState
	switch item.Status {
	case domain.LabInProduction:
		from, to = []domain.TrayState{domain.TrayPending, domain.TrayRework}, domain.TrayInProduction
	case domain.LabReady:
		from, to = []domain.TrayState{domain.TrayInProduction, domain.TrayRework}, domain.TrayReady
	default:
		return nil
	}
	first, last := item.CoveredTrays()
	changed := false
	for i := range c.Trays {
		t := c.Trays[i]
		if t.TrayNumber < first || t.TrayNumber > last {
			continue
		}
		for _, state := range from {
			if t.State == state && domain.CanTransitionTray(t.State, to) {
				changed = true
			}
		}
	}
	if !changed {
		return nil
	}
	_, err := tx.UpdateCase(c.ID, func(c *Case) error {
		for i := range c.Trays {
			t := &c.Trays[i]
			if t.TrayNumber < first || t.TrayNumber > last {
				continue
			}
			for _, state := range from {
				if t.State == state && domain.CanTransitionTray(t.State, to) {
					t.State = to
					break
				}
			}
		}
		return nil
	})
	return err
}

// DeleteLabItem removes a work order on behalf of an admin. Deleting a rework
// order also removes its production counterparts that have not started.
func (s *Service) DeleteLabItem(ctx context.Context, actor Actor, id string) (Result, error) {
	return s.run(ctx, OpDeleteLabItem, func(tx Transaction) (string, error) {
		if actor.Role != domain.RoleAdmin {
			return id, domain.Errorf(domain.ErrForbidden, EntityLabItem, id, "only admins may delete lab items")
		}
		item, err := loadLabItem(tx, id)
		if err != nil {
			return id, err
		}
		if err := tx.DeleteLabItem(id); err != nil {
			return id, err
		}
		if item.RequestKind != domain.RequestRework {
			return id, nil
		}
		for _, other := range tx.Snapshot().ListLabItems() {
			if other.ReworkItemID == id && other.Status == domain.LabAwaitingStart {
				if err := tx.DeleteLabItem(other.ID); err != nil {
					return id, err
				}
			}
		}
		return id, nil
	})
}

// ListLabItems runs the replenishment sweep and returns the work orders
// visible to actor.
func (s *Service) ListLabItems(ctx context.Context, actor Actor) ([]LabItem, error) {
	if _, _, err := s.RunReplenishment(ctx); err != nil {
		return nil, err
	}
	var out []LabItem
	err := s.view(ctx, "list_lab_items", func(v TransactionView) error {
		out = NewScope(v, actor).LabItems(v.ListLabItems())
		return nil
	})
	return out, err
}
