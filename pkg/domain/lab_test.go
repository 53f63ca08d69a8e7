package domain

import (
	"errors"
	"testing"
)

func TestCanMoveLabAdjacentOnly(t *testing.T) {
	cases := []struct {
		from, to LabStatus
		want     bool
	}{
		{LabAwaitingStart, LabAwaitingStart, true},
		{LabAwaitingStart, LabInProduction, true},
		{LabAwaitingStart, LabQualityControl, false},
		{LabAwaitingStart, LabReady, false},
		{LabInProduction, LabAwaitingStart, true},
		{LabQualityControl, LabReady, true},
		{LabReady, LabInProduction, false},
		{LabReady, LabQualityControl, true},
		{LabStatus("bogus"), LabReady, false},
	}
	for _, tc := range cases {
		if got := CanMoveLab(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanMoveLab(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCheckPlanAgainstRemainingQuota(t *testing.T) {
	c := Case{Base: Base{ID: "c1"}, TreatmentCode: "A-0001", TotalUpper: 10, TotalLower: 8}
	items := []LabItem{
		{Base: Base{ID: "l1"}, CaseID: "c1", RequestKind: RequestProduction, PlannedUpperQty: 6, PlannedLowerQty: 6},
		{Base: Base{ID: "rw"}, CaseID: "c1", RequestKind: RequestRework, PlannedUpperQty: 5, PlannedLowerQty: 5},
		{Base: Base{ID: "cp"}, CaseID: "c1", RequestKind: RequestProduction, ReworkItemID: "rw", PlannedUpperQty: 5},
		{Base: Base{ID: "other"}, CaseID: "c2", RequestKind: RequestProduction, PlannedUpperQty: 9},
	}
	upper, lower := RemainingPlan(c, items, "")
	if upper != 4 || lower != 2 {
		t.Fatalf("expected remaining 4/2, got %d/%d", upper, lower)
	}
	ok := LabItem{Base: Base{ID: "new"}, CaseID: "c1", RequestKind: RequestProduction, PlannedUpperQty: 4, PlannedLowerQty: 2}
	if err := CheckPlan(c, items, ok); err != nil {
		t.Fatalf("expected plan within quota: %v", err)
	}
	over := ok
	over.PlannedLowerQty = 3
	if err := CheckPlan(c, items, over); !errors.Is(err, ErrPlanExceedsCase) {
		t.Fatalf("expected plan exceeds case, got %v", err)
	}
	// editing l1 excludes its own quantities
	edit := items[0]
	edit.PlannedUpperQty = 10
	if err := CheckPlan(c, items, edit); err != nil {
		t.Fatalf("expected edit within quota: %v", err)
	}
	negative := LabItem{CaseID: "c1", RequestKind: RequestProduction, PlannedUpperQty: -1}
	if err := CheckPlan(c, items, negative); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCheckPlanBoundsOrdersOutsideQuota(t *testing.T) {
	c := Case{Base: Base{ID: "c1"}, TreatmentCode: "A-0001", TotalUpper: 12, TotalLower: 12}
	full := []LabItem{{Base: Base{ID: "l1"}, CaseID: "c1", RequestKind: RequestProduction, PlannedUpperQty: 12, PlannedLowerQty: 12}}
	kinds := []LabItem{
		{Base: Base{ID: "rw"}, CaseID: "c1", RequestKind: RequestRework},
		{Base: Base{ID: "rp"}, CaseID: "c1", RequestKind: RequestProgrammedReplenishment},
		{Base: Base{ID: "cp"}, CaseID: "c1", RequestKind: RequestProduction, ReworkItemID: "rw"},
	}
	for _, item := range kinds {
		item.PlannedUpperQty, item.PlannedLowerQty = 12, 12
		if err := CheckPlan(c, full, item); err != nil {
			t.Fatalf("%s: a full case still allows reworking every tray: %v", item.ID, err)
		}
		item.PlannedUpperQty, item.PlannedLowerQty = 999, 999
		if err := CheckPlan(c, full, item); !errors.Is(err, ErrPlanExceedsCase) {
			t.Fatalf("%s: expected plan exceeds case, got %v", item.ID, err)
		}
		item.PlannedUpperQty, item.PlannedLowerQty = 0, 13
		if err := CheckPlan(c, full, item); !errors.Is(err, ErrPlanExceedsCase) {
			t.Fatalf("%s: lower arch over total must fail, got %v", item.ID, err)
		}
	}
}

func TestCoveredTraysAndProductionLookup(t *testing.T) {
	item := LabItem{Base: Base{ID: "l1"}, CaseID: "c1", RequestKind: RequestProduction, TrayNumber: 3, PlannedUpperQty: 4, PlannedLowerQty: 2}
	from, to := item.CoveredTrays()
	if from != 3 || to != 6 {
		t.Fatalf("expected trays 3-6, got %d-%d", from, to)
	}
	blind := LabItem{TrayNumber: 2}
	if from, to := blind.CoveredTrays(); from != 2 || to != 2 {
		t.Fatalf("expected zero-quantity item to cover its own tray, got %d-%d", from, to)
	}
	items := []LabItem{item}
	if !TrayCoveredByProduction(items, "c1", 5, "") {
		t.Fatalf("expected tray 5 covered")
	}
	if TrayCoveredByProduction(items, "c1", 5, "l1") {
		t.Fatalf("excluded item must not count")
	}
	if TrayCoveredByProduction(items, "c1", 7, "") {
		t.Fatalf("tray 7 is outside the range")
	}
	if !HasProductionOrder(items, "c1") || HasProductionOrder(items, "c2") {
		t.Fatalf("unexpected production order lookup")
	}
}
