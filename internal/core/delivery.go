package core

import (
	"alignercore/pkg/domain"
	"context"
	"sort"
	"strings"
	"time"
)

// InstallationInput carries one patient hand-off. Delivered counts are
// cumulative; lower values than already recorded are ignored.
type InstallationInput struct {
	InstalledAt    *time.Time
	Note           string
	DeliveredUpper int
	DeliveredLower int
}

// DeliveryBalance reports how many trays per arch are still owed to the
// dentist and to the patient.
type DeliveryBalance struct {
	CaseID        string `json:"case_id"`
	TreatmentCode string `json:"treatment_code"`
	DentistUpper  int    `json:"dentist_upper"`
	DentistLower  int    `json:"dentist_lower"`
	PatientUpper  int    `json:"patient_upper"`
	PatientLower  int    `json:"patient_lower"`
}

// RegisterCaseDeliveryLot records a contiguous tray range handed to the
// dentist and marks those trays delivered.
func (s *Service) RegisterCaseDeliveryLot(ctx context.Context, caseID string, lot DeliveryLot) (Case, Result, error) {
	var updated Case
	res, err := s.run(ctx, OpRegisterDeliveryLot, func(tx Transaction) (string, error) {
		c, err := loadCase(tx, caseID)
		if err != nil {
			return caseID, err
		}
		if err := requireContract(c); err != nil {
			return caseID, err
		}
		if !domain.HasProductionOrder(tx.Snapshot().ListLabItems(), caseID) {
			return caseID, domain.Errorf(domain.ErrNoProductionOrder, EntityCase, caseID, "case %s has no production order", c.TreatmentCode)
		}
		if err := domain.CheckDeliveryLot(c, lot); err != nil {
			return caseID, err
		}
		lot.ID = tx.NewID()
		lot.CreatedAt = tx.Now()
		deliveredAt := lot.DeliveredAt
		updated, err = tx.UpdateCase(caseID, func(c *Case) error {
			for n := lot.FromTray; n <= lot.ToTray; n++ {
				t := c.Tray(n)
				if t.State != domain.TrayDelivered {
					t.State = domain.TrayDelivered
					t.DeliveredAt = timePtr(deliveredAt)
				}
			}
			c.DeliveryLots = append(c.DeliveryLots, lot)
			return nil
		})
		return caseID, err
	})
	return updated, res, err
}

// RegisterCaseInstallation records trays handed to the patient. The first
// call fits the treatment and re-bases the due dates of undelivered trays on
// the installation day.
func (s *Service) RegisterCaseInstallation(ctx context.Context, caseID string, in InstallationInput) (Case, Result, error) {
	var updated Case
	res, err := s.run(ctx, OpRegisterInstallation, func(tx Transaction) (string, error) {
		c, err := loadCase(tx, caseID)
		if err != nil {
			return caseID, err
		}
		if !domain.HasProductionOrder(tx.Snapshot().ListLabItems(), caseID) {
			return caseID, domain.Errorf(domain.ErrNoProductionOrder, EntityCase, caseID, "case %s has no production order", c.TreatmentCode)
		}
		if len(c.DeliveryLots) == 0 {
			return caseID, domain.Errorf(domain.ErrNoDentistDelivery, EntityCase, caseID, "case %s has no trays delivered to the dentist", c.TreatmentCode)
		}
		if in.DeliveredUpper < 0 || in.DeliveredLower < 0 {
			return caseID, invalid(domain.EntityInstallation, caseID, "delivered counts cannot be negative")
		}

		prevUpper, prevLower := domain.PatientDelivered(c)
		upper, lower := max(prevUpper, in.DeliveredUpper), max(prevLower, in.DeliveredLower)
		if upper > c.TotalUpper || lower > c.TotalLower {
			return caseID, domain.Errorf(domain.ErrExceedsCaseTotal, domain.EntityInstallation, caseID,
				"patient counts %d/%d exceed case totals %d/%d", upper, lower, c.TotalUpper, c.TotalLower)
		}
		dentistUpper, dentistLower := domain.DentistDelivered(c)
		if upper > dentistUpper || lower > dentistLower {
			return caseID, domain.Errorf(domain.ErrExceedsDentistDelivery, domain.EntityInstallation, caseID,
				"patient counts %d/%d exceed dentist deliveries %d/%d", upper, lower, dentistUpper, dentistLower)
		}

		first := c.Installation == nil
		prevPaired := domain.PairedCount(c.Arch, prevUpper, prevLower)
		paired := domain.PairedCount(c.Arch, upper, lower)
		if (first || paired > prevPaired) && in.InstalledAt == nil {
			return caseID, invalid(domain.EntityInstallation, caseID, "installation date is required")
		}

		updated, err = tx.UpdateCase(caseID, func(c *Case) error {
			if first {
				at := *in.InstalledAt
				c.Installation = &domain.Installation{InstalledAt: at}
				rebaseDueDates(c, at)
			}
			inst := c.Installation
			if paired > prevPaired {
				inst.PatientDeliveryLots = append(inst.PatientDeliveryLots, domain.PatientDeliveryLot{
					FromTray:    prevPaired + 1,
					ToTray:      paired,
					DeliveredAt: *in.InstalledAt,
					Upper:       upper - prevUpper,
					Lower:       lower - prevLower,
				})
			}
			inst.DeliveredUpper = upper
			inst.DeliveredLower = lower
			if strings.TrimSpace(in.Note) != "" {
				inst.Note = in.Note
			}
			if inst.CompletedAt == nil && upper >= c.TotalUpper && lower >= c.TotalLower {
				inst.CompletedAt = timePtr(tx.Now())
			}
			return nil
		})
		return caseID, err
	})
	return updated, res, err
}

// rebaseDueDates reschedules every tray not yet delivered so that tray 1
// falls on the installation day.
func rebaseDueDates(c *Case, installedAt time.Time) {
	for i := range c.Trays {
		t := &c.Trays[i]
		if t.State == domain.TrayDelivered {
			continue
		}
		due := domain.TrayDueDate(installedAt, t.TrayNumber, c.ChangeEveryDays)
		t.DueDate = &due
	}
}

// RemainingToDeliver reports per-arch balances for the cases visible to
// actor, ordered by treatment code.
func (s *Service) RemainingToDeliver(ctx context.Context, actor Actor) ([]DeliveryBalance, error) {
	var out []DeliveryBalance
	err := s.view(ctx, "remaining_to_deliver", func(v TransactionView) error {
		for _, c := range NewScope(v, actor).Cases(v.ListCases()) {
			du, dl := domain.DentistDelivered(c)
			pu, pl := domain.PatientDelivered(c)
			out = append(out, DeliveryBalance{
				CaseID:        c.ID,
				TreatmentCode: c.TreatmentCode,
				DentistUpper:  c.TotalUpper - du,
				DentistLower:  c.TotalLower - dl,
				PatientUpper:  c.TotalUpper - pu,
				PatientLower:  c.TotalLower - pl,
			})
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].TreatmentCode < out[j].TreatmentCode })
	return out, err
}
