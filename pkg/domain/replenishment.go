package domain

import "time"

// ReplenishmentLeadDays is how far ahead of a tray's due date the lab starts
// producing its batch.
const ReplenishmentLeadDays = 10

// Alert thresholds in days before the next due date.
const (
	AlertWarnDays   = 15
	AlertUrgentDays = 10
)

// AlertKind names the bracket an alert falls in.
type AlertKind string

// Alert brackets, least to most specific.
const (
	AlertDueIn15Days AlertKind = "due_in_15_days"
	AlertDueIn10Days AlertKind = "due_in_10_days"
	AlertOverdue     AlertKind = "overdue"
)

// Alert flags an installed case whose next batch is coming due.
type Alert struct {
	CaseID        string    `json:"case_id"`
	TreatmentCode string    `json:"treatment_code"`
	TrayNumber    int       `json:"tray_number"`
	DueDate       time.Time `json:"due_date"`
	DaysLeft      int       `json:"days_left"`
	Kind          AlertKind `json:"kind"`
	Priority      Priority  `json:"priority"`
}

// NextDueTray returns the first tray not yet delivered that has a due date.
func NextDueTray(c Case) (Tray, bool) {
	for _, t := range c.Trays {
		if t.State != TrayDelivered && t.DueDate != nil {
			return t, true
		}
	}
	return Tray{}, false
}

func anyTrayDelivered(c Case) bool {
	for _, t := range c.Trays {
		if t.State == TrayDelivered {
			return true
		}
	}
	return false
}

// ReplenishmentTarget returns the pending tray whose batch should be
// scheduled today, if any. The case must have an approved contract and at
// least one delivered tray. The first pending tray with a due date is the
// target once that date is within ReplenishmentLeadDays of today, whether or
// not a production order already plans it.
func ReplenishmentTarget(c Case, today time.Time) (Tray, bool) {
	if !c.ContractApproved() || !anyTrayDelivered(c) {
		return Tray{}, false
	}
	for _, t := range c.Trays {
		if t.State != TrayPending || t.DueDate == nil {
			continue
		}
		if DaysBetween(today, *t.DueDate) > ReplenishmentLeadDays {
			return Tray{}, false
		}
		return t, true
	}
	return Tray{}, false
}

// HasReplenishment reports whether a programmed replenishment already exists
// for (case, tray, expected date).
func HasReplenishment(items []LabItem, caseID string, tray int, expected time.Time) bool {
	for _, item := range items {
		if item.CaseID != caseID || item.RequestKind != RequestProgrammedReplenishment || item.TrayNumber != tray {
			continue
		}
		if item.ExpectedDate != nil && sameDay(*item.ExpectedDate, expected) {
			return true
		}
	}
	return false
}

// AlertFor returns the active alert of an installed case, if any.
func AlertFor(c Case, today time.Time) (Alert, bool) {
	if c.Installation == nil {
		return Alert{}, false
	}
	tray, ok := NextDueTray(c)
	if !ok {
		return Alert{}, false
	}
	days := DaysBetween(today, *tray.DueDate)
	alert := Alert{
		CaseID:        c.ID,
		TreatmentCode: c.TreatmentCode,
		TrayNumber:    tray.TrayNumber,
		DueDate:       *tray.DueDate,
		DaysLeft:      days,
	}
	switch {
	case days < 0:
		alert.Kind, alert.Priority = AlertOverdue, PriorityUrgent
	case days <= AlertUrgentDays:
		alert.Kind, alert.Priority = AlertDueIn10Days, PriorityHigh
	case days <= AlertWarnDays:
		alert.Kind, alert.Priority = AlertDueIn15Days, PriorityMedium
	default:
		return Alert{}, false
	}
	return alert, true
}
