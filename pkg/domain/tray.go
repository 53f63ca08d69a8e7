package domain

import "time"

var trayTransitions = map[TrayState]map[TrayState]struct{}{
	TrayPending:      toSet(TrayPending, TrayInProduction),
	TrayInProduction: toSet(TrayInProduction, TrayReady, TrayRework),
	TrayReady:        toSet(TrayReady, TrayDelivered, TrayRework),
	TrayDelivered:    toSet(TrayDelivered, TrayRework),
	TrayRework:       toSet(TrayRework, TrayInProduction, TrayReady),
}

func toSet[T comparable](values ...T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// ValidTrayState reports whether s is a known tray state.
func ValidTrayState(s TrayState) bool {
	_, ok := trayTransitions[s]
	return ok
}

// CanTransitionTray reports whether a tray may move from current to next.
func CanTransitionTray(current, next TrayState) bool {
	allowed, ok := trayTransitions[current]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

// CheckTrayTransition returns a state-machine error when the move is illegal.
// Leaving delivered for anything but delivered or rework is a regression.
func CheckTrayTransition(caseID string, tray Tray, next TrayState) error {
	if tray.State == TrayDelivered && next != TrayDelivered && next != TrayRework {
		return Errorf(ErrRegressionDenied, EntityTray, caseID,
			"tray %d is delivered and cannot move to %s", tray.TrayNumber, next)
	}
	if !CanTransitionTray(tray.State, next) {
		return Errorf(ErrInvalidTransition, EntityTray, caseID,
			"tray %d cannot move from %s to %s", tray.TrayNumber, tray.State, next)
	}
	return nil
}

// ScheduleTrays allocates pending trays 1..total with due dates spaced by the
// replacement cadence starting at start.
func ScheduleTrays(total, changeEveryDays int, start time.Time) []Tray {
	trays := make([]Tray, 0, total)
	for n := 1; n <= total; n++ {
		due := TrayDueDate(start, n, changeEveryDays)
		trays = append(trays, Tray{TrayNumber: n, State: TrayPending, DueDate: &due})
	}
	return trays
}

// TrayDueDate returns the day tray n is due when tray 1 starts at start.
func TrayDueDate(start time.Time, n, changeEveryDays int) time.Time {
	return StartOfDay(start).AddDate(0, 0, (n-1)*changeEveryDays)
}

// StartOfDay truncates t to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	a, b = StartOfDay(a.UTC()), StartOfDay(b.UTC())
	return int(b.Sub(a).Hours() / 24)
}

// AllTraysDelivered reports whether every tray of the case is delivered.
func AllTraysDelivered(trays []Tray) bool {
	if len(trays) == 0 {
		return false
	}
	for _, t := range trays {
		if t.State != TrayDelivered {
			return false
		}
	}
	return true
}
