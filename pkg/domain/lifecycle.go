package domain

// Lifecycle is the derived status/phase pair of a case.
type Lifecycle struct {
	Status CaseStatus
	Phase  CasePhase
}

// LadderPhase returns the explicit phase reached on the planning ladder,
// derived from planning, budget, and contract sub-state.
func LadderPhase(c Case) CasePhase {
	switch {
	case c.Contract != nil && c.Contract.Status == ContractApproved:
		return PhaseContractApproved
	case c.Contract != nil && c.Contract.Status == ContractPending:
		return PhaseContractPending
	case c.PlanningConcludedAt != nil:
		return PhaseBudget
	default:
		return PhasePlanning
	}
}

// DeriveLifecycle computes status and phase from the case's ladder sub-state,
// its trays, its delivery lots, and its installation. It is recomputed after
// every mutation and never cached.
func DeriveLifecycle(c Case) Lifecycle {
	if AllTraysDelivered(c.Trays) {
		return Lifecycle{Status: CaseStatusFinalized, Phase: PhaseFinalized}
	}
	if len(c.DeliveryLots) > 0 || c.Installation != nil {
		return Lifecycle{Status: CaseStatusInDelivery, Phase: PhaseInProduction}
	}
	for _, t := range c.Trays {
		switch t.State {
		case TrayInProduction, TrayReady, TrayRework:
			return Lifecycle{Status: CaseStatusInProduction, Phase: PhaseInProduction}
		}
	}
	phase := LadderPhase(c)
	if phase == PhaseContractApproved {
		return Lifecycle{Status: CaseStatusInProduction, Phase: phase}
	}
	return Lifecycle{Status: CaseStatusPlanning, Phase: phase}
}

// ApplyLifecycle rewrites c.Status and c.Phase from DeriveLifecycle.
func ApplyLifecycle(c *Case) {
	lc := DeriveLifecycle(*c)
	c.Status = lc.Status
	c.Phase = lc.Phase
}

// CanGenerateLabOrder reports whether the case phase allows production orders.
func CanGenerateLabOrder(c Case) bool {
	switch DeriveLifecycle(c).Phase {
	case PhaseContractApproved, PhaseInProduction:
		return true
	}
	return false
}
