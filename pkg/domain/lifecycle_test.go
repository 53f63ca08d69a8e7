package domain

import (
	"testing"
	"time"
)

func TestDeriveLifecycleLadderAndOverlays(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	base := Case{Trays: ScheduleTrays(2, 7, now)}

	planning := base
	if lc := DeriveLifecycle(planning); lc.Phase != PhasePlanning || lc.Status != CaseStatusPlanning {
		t.Fatalf("expected planning, got %+v", lc)
	}

	budget := base
	budget.PlanningConcludedAt = &now
	if lc := DeriveLifecycle(budget); lc.Phase != PhaseBudget {
		t.Fatalf("expected budget, got %+v", lc)
	}

	pending := budget
	pending.Contract = &Contract{Status: ContractPending}
	if lc := DeriveLifecycle(pending); lc.Phase != PhaseContractPending || lc.Status != CaseStatusPlanning {
		t.Fatalf("expected contract_pending/planning, got %+v", lc)
	}

	approved := budget
	approved.Contract = &Contract{Status: ContractApproved, ApprovedAt: &now}
	if lc := DeriveLifecycle(approved); lc.Phase != PhaseContractApproved || lc.Status != CaseStatusInProduction {
		t.Fatalf("expected contract_approved/in_production, got %+v", lc)
	}
	if !CanGenerateLabOrder(approved) || CanGenerateLabOrder(pending) {
		t.Fatalf("unexpected lab order gate")
	}

	producing := approved
	producing.Trays = []Tray{{TrayNumber: 1, State: TrayRework}, {TrayNumber: 2, State: TrayPending}}
	if lc := DeriveLifecycle(producing); lc.Phase != PhaseInProduction || lc.Status != CaseStatusInProduction {
		t.Fatalf("expected in_production, got %+v", lc)
	}

	delivering := producing
	delivering.DeliveryLots = []DeliveryLot{{Arch: ArchBoth, FromTray: 1, ToTray: 1}}
	if lc := DeriveLifecycle(delivering); lc.Status != CaseStatusInDelivery || lc.Phase != PhaseInProduction {
		t.Fatalf("expected in_delivery, got %+v", lc)
	}

	finalized := delivering
	finalized.Trays = []Tray{{TrayNumber: 1, State: TrayDelivered}, {TrayNumber: 2, State: TrayDelivered}}
	if lc := DeriveLifecycle(finalized); lc.Phase != PhaseFinalized || lc.Status != CaseStatusFinalized {
		t.Fatalf("expected finalized, got %+v", lc)
	}
	if CanGenerateLabOrder(finalized) {
		t.Fatalf("finalized cases cannot generate lab orders")
	}
}

func TestApplyLifecycleOverwritesStoredPhase(t *testing.T) {
	c := Case{Phase: PhaseFinalized, Status: CaseStatusFinalized, Trays: []Tray{{TrayNumber: 1, State: TrayPending}}}
	ApplyLifecycle(&c)
	if c.Phase != PhasePlanning || c.Status != CaseStatusPlanning {
		t.Fatalf("expected stale finalized phase to be corrected, got %s/%s", c.Status, c.Phase)
	}
}
