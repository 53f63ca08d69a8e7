package domain

import "time"

// DentistDelivered returns the highest tray handed to the dentist per arch.
// Lots are contiguous per arch, so the maximum ToTray is the delivered count.
func DentistDelivered(c Case) (upper, lower int) {
	for _, lot := range c.DeliveryLots {
		if lot.Arch.Covers(ArchUpper) && lot.ToTray > upper {
			upper = lot.ToTray
		}
		if lot.Arch.Covers(ArchLower) && lot.ToTray > lower {
			lower = lot.ToTray
		}
	}
	return upper, lower
}

// PatientDelivered returns the cumulative per-arch counts handed to the patient.
func PatientDelivered(c Case) (upper, lower int) {
	if c.Installation == nil {
		return 0, 0
	}
	return c.Installation.DeliveredUpper, c.Installation.DeliveredLower
}

// PairedCount is the number of trays the patient can wear on every arch the
// case treats.
func PairedCount(arch Arch, upper, lower int) int {
	switch arch {
	case ArchUpper:
		return upper
	case ArchLower:
		return lower
	}
	return min(upper, lower)
}

// LotCovers reports whether any dentist delivery lot includes tray.
func LotCovers(c Case, tray int) bool {
	for _, lot := range c.DeliveryLots {
		if tray >= lot.FromTray && tray <= lot.ToTray {
			return true
		}
	}
	return false
}

func lotArches(arch Arch) []Arch {
	if arch == ArchBoth {
		return []Arch{ArchUpper, ArchLower}
	}
	return []Arch{arch}
}

func sameDay(a, b time.Time) bool {
	return StartOfDay(a.UTC()).Equal(StartOfDay(b.UTC()))
}

// CheckDeliveryLot validates a new dentist lot against the case ledger:
// arch compatibility, range bounds, duplicates, per-arch contiguity, and tray
// readiness.
func CheckDeliveryLot(c Case, lot DeliveryLot) error {
	if !lot.Arch.Valid() {
		return Errorf(ErrInvalidInput, EntityDeliveryLot, c.ID, "unknown arch %q", lot.Arch)
	}
	if c.Arch != ArchBoth && lot.Arch != c.Arch {
		return Errorf(ErrInvalidInput, EntityDeliveryLot, c.ID, "lot arch %s does not match case arch %s", lot.Arch, c.Arch)
	}
	if lot.DeliveredAt.IsZero() {
		return Errorf(ErrInvalidInput, EntityDeliveryLot, c.ID, "delivery date is required")
	}
	if lot.FromTray < 1 || lot.ToTray < lot.FromTray {
		return Errorf(ErrInvalidRange, EntityDeliveryLot, c.ID, "invalid tray range %d-%d", lot.FromTray, lot.ToTray)
	}
	for _, arch := range lotArches(lot.Arch) {
		if total := c.TotalFor(arch); lot.ToTray > total {
			return Errorf(ErrInvalidRange, EntityDeliveryLot, c.ID, "tray %d exceeds %s total %d", lot.ToTray, arch, total)
		}
	}
	for _, existing := range c.DeliveryLots {
		if existing.Arch == lot.Arch && existing.FromTray == lot.FromTray && existing.ToTray == lot.ToTray && sameDay(existing.DeliveredAt, lot.DeliveredAt) {
			return Errorf(ErrDuplicateLot, EntityDeliveryLot, c.ID, "lot %s %d-%d already registered", lot.Arch, lot.FromTray, lot.ToTray)
		}
	}
	upper, lower := DentistDelivered(c)
	for _, arch := range lotArches(lot.Arch) {
		next := upper + 1
		if arch == ArchLower {
			next = lower + 1
		}
		if lot.FromTray != next {
			return Errorf(ErrInvalidRange, EntityDeliveryLot, c.ID, "%s lot must start at tray %d", arch, next)
		}
	}
	for n := lot.FromTray; n <= lot.ToTray; n++ {
		tray := c.Tray(n)
		if tray == nil {
			return Errorf(ErrTrayNotFound, EntityTray, c.ID, "tray %d not found", n)
		}
		if tray.State != TrayReady && tray.State != TrayDelivered {
			return Errorf(ErrTrayNotReady, EntityTray, c.ID, "tray %d is %s", n, tray.State)
		}
	}
	return nil
}
