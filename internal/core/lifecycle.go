package core

import (
	"alignercore/pkg/domain"
	"context"
	"time"
)

// LabOrderInput carries the optional planned quantities of the first
// production order.
type LabOrderInput struct {
	PlannedUpperQty int
	PlannedLowerQty int
	Priority        domain.Priority
	Notes           string
}

// LabOrder is the outcome of GenerateLabOrder. AlreadyExists is set when the
// case already had a production order and nothing was created.
type LabOrder struct {
	Item          LabItem
	AlreadyExists bool
}

func requirePhase(c Case, want domain.CasePhase) error {
	if got := domain.DeriveLifecycle(c).Phase; got != want {
		return domain.Errorf(domain.ErrInvalidPhase, EntityCase, c.ID, "case %s is in phase %s, need %s", c.TreatmentCode, got, want)
	}
	return nil
}

func requireContract(c Case) error {
	if !c.ContractApproved() {
		return domain.Errorf(domain.ErrContractNotApproved, EntityCase, c.ID, "case %s has no approved contract", c.TreatmentCode)
	}
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }

// ConcludePlanning moves a case from planning to budget.
func (s *Service) ConcludePlanning(ctx context.Context, caseID string) (Case, Result, error) {
	var updated Case
	res, err := s.run(ctx, OpConcludePlanning, func(tx Transaction) (string, error) {
		c, err := loadCase(tx, caseID)
		if err != nil {
			return caseID, err
		}
		if err := requirePhase(c, domain.PhasePlanning); err != nil {
			return caseID, err
		}
		updated, err = tx.UpdateCase(caseID, func(c *Case) error {
			c.PlanningConcludedAt = timePtr(tx.Now())
			return nil
		})
		return caseID, err
	})
	return updated, res, err
}

// CloseBudget records the quote and opens a pending contract.
func (s *Service) CloseBudget(ctx context.Context, caseID string, value float64) (Case, Result, error) {
	var updated Case
	res, err := s.run(ctx, OpCloseBudget, func(tx Transaction) (string, error) {
		c, err := loadCase(tx, caseID)
		if err != nil {
			return caseID, err
		}
		if err := requirePhase(c, domain.PhaseBudget); err != nil {
			return caseID, err
		}
		if value <= 0 {
			return caseID, invalid(EntityCase, caseID, "budget value must be positive")
		}
		updated, err = tx.UpdateCase(caseID, func(c *Case) error {
			c.Budget = &domain.Budget{Value: value, ClosedAt: timePtr(tx.Now())}
			c.Contract = &domain.Contract{Status: domain.ContractPending}
			return nil
		})
		return caseID, err
	})
	return updated, res, err
}

// ApproveContract approves the pending contract, unlocking production.
func (s *Service) ApproveContract(ctx context.Context, caseID string) (Case, Result, error) {
	var updated Case
	res, err := s.run(ctx, OpApproveContract, func(tx Transaction) (string, error) {
		c, err := loadCase(tx, caseID)
		if err != nil {
			return caseID, err
		}
		if err := requirePhase(c, domain.PhaseContractPending); err != nil {
			return caseID, err
		}
		updated, err = tx.UpdateCase(caseID, func(c *Case) error {
			c.Contract.Status = domain.ContractApproved
			c.Contract.ApprovedAt = timePtr(tx.Now())
			return nil
		})
		return caseID, err
	})
	return updated, res, err
}

// GenerateLabOrder creates the first production order of a case. Calling it
// again returns the existing order without writing anything.
func (s *Service) GenerateLabOrder(ctx context.Context, caseID string, in LabOrderInput) (LabOrder, Result, error) {
	var out LabOrder
	res, err := s.run(ctx, OpGenerateLabOrder, func(tx Transaction) (string, error) {
		c, err := loadCase(tx, caseID)
		if err != nil {
			return caseID, err
		}
		items := tx.Snapshot().ListLabItems()
		if existing, ok := domain.FirstProductionOrder(items, caseID); ok {
			out = LabOrder{Item: existing, AlreadyExists: true}
			return existing.ID, nil
		}
		if !domain.CanGenerateLabOrder(c) {
			if err := requireContract(c); err != nil {
				return caseID, err
			}
			return caseID, domain.Errorf(domain.ErrInvalidPhase, EntityCase, caseID, "case %s is in phase %s", c.TreatmentCode, c.Phase)
		}
		priority := in.Priority
		if priority == "" {
			priority = domain.PriorityMedium
		}
		item := LabItem{
			CaseID:          caseID,
			RequestCode:     domain.NextRequestCode(c.TreatmentCode, domain.RequestProduction, items),
			RequestKind:     domain.RequestProduction,
			PlannedUpperQty: in.PlannedUpperQty,
			PlannedLowerQty: in.PlannedLowerQty,
			TrayNumber:      1,
			Status:          domain.LabAwaitingStart,
			Priority:        priority,
			Notes:           in.Notes,
		}
		if t := c.Tray(1); t != nil && t.DueDate != nil {
			item.DueDate = timePtr(*t.DueDate)
		}
		if err := domain.CheckPlan(c, items, item); err != nil {
			return caseID, err
		}
		created, err := tx.CreateLabItem(item)
		out = LabOrder{Item: created}
		return created.ID, err
	})
	return out, res, err
}
