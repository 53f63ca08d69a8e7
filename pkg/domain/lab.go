package domain

var labPipeline = []LabStatus{LabAwaitingStart, LabInProduction, LabQualityControl, LabReady}

// LabStatusIndex returns the position of s in the pipeline, or -1.
func LabStatusIndex(s LabStatus) int {
	for i, v := range labPipeline {
		if v == s {
			return i
		}
	}
	return -1
}

// CanMoveLab reports whether a work order may move from a to b. Only adjacent
// moves, including staying put, are legal.
func CanMoveLab(a, b LabStatus) bool {
	ia, ib := LabStatusIndex(a), LabStatusIndex(b)
	if ia < 0 || ib < 0 {
		return false
	}
	d := ib - ia
	return d >= -1 && d <= 1
}

// PlannedTotal returns the sum of planned quantities.
func (l LabItem) PlannedTotal() int {
	return l.PlannedUpperQty + l.PlannedLowerQty
}

// PlanUsage sums the planned quantities that count against a case's quota,
// skipping the item with excludeID.
func PlanUsage(items []LabItem, caseID, excludeID string) (upper, lower int) {
	for _, item := range items {
		if item.CaseID != caseID || item.ID == excludeID || !item.CountsAgainstPlan() {
			continue
		}
		upper += item.PlannedUpperQty
		lower += item.PlannedLowerQty
	}
	return upper, lower
}

// RemainingPlan returns how many trays per arch are still unplanned for c.
func RemainingPlan(c Case, items []LabItem, excludeID string) (upper, lower int) {
	usedUpper, usedLower := PlanUsage(items, c.ID, excludeID)
	return c.TotalUpper - usedUpper, c.TotalLower - usedLower
}

// CheckPlan rejects planned quantities that are negative or exceed the case's
// remaining quota. Orders outside the shared quota are still bounded by the
// case totals.
func CheckPlan(c Case, items []LabItem, item LabItem) error {
	if item.PlannedUpperQty < 0 || item.PlannedLowerQty < 0 {
		return Errorf(ErrInvalidInput, EntityLabItem, item.ID, "planned quantities cannot be negative")
	}
	if !item.CountsAgainstPlan() {
		if ExceedsCaseTotals(c, item) {
			return Errorf(ErrPlanExceedsCase, EntityLabItem, item.ID,
				"%s order plans %d/%d against totals %d/%d for case %s", item.RequestKind,
				item.PlannedUpperQty, item.PlannedLowerQty, c.TotalUpper, c.TotalLower, c.TreatmentCode)
		}
		return nil
	}
	upper, lower := RemainingPlan(c, items, item.ID)
	if item.PlannedUpperQty > upper {
		return Errorf(ErrPlanExceedsCase, EntityLabItem, item.ID,
			"planned upper %d exceeds remaining %d for case %s", item.PlannedUpperQty, upper, c.TreatmentCode)
	}
	if item.PlannedLowerQty > lower {
		return Errorf(ErrPlanExceedsCase, EntityLabItem, item.ID,
			"planned lower %d exceeds remaining %d for case %s", item.PlannedLowerQty, lower, c.TreatmentCode)
	}
	return nil
}

// ExceedsCaseTotals reports whether a single item plans more trays on either
// arch than the case has.
func ExceedsCaseTotals(c Case, item LabItem) bool {
	return item.PlannedUpperQty > c.TotalUpper || item.PlannedLowerQty > c.TotalLower
}

// HasProductionOrder reports whether caseID has at least one production order.
func HasProductionOrder(items []LabItem, caseID string) bool {
	_, ok := FirstProductionOrder(items, caseID)
	return ok
}

// FirstProductionOrder returns the oldest quota-counting production order of a case.
func FirstProductionOrder(items []LabItem, caseID string) (LabItem, bool) {
	var found LabItem
	ok := false
	for _, item := range items {
		if item.CaseID != caseID || !item.CountsAgainstPlan() {
			continue
		}
		if !ok || item.CreatedAt.Before(found.CreatedAt) {
			found, ok = item, true
		}
	}
	return found, ok
}

// TrayCoveredByProduction reports whether any production order of the case,
// other than excludeID, already covers tray.
func TrayCoveredByProduction(items []LabItem, caseID string, tray int, excludeID string) bool {
	for _, item := range items {
		if item.CaseID != caseID || item.ID == excludeID || item.RequestKind != RequestProduction {
			continue
		}
		from, to := item.CoveredTrays()
		if tray >= from && tray <= to {
			return true
		}
	}
	return false
}
