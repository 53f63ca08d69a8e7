package core

import (
	"alignercore/pkg/domain"
	"context"
	"sort"
)

// createCase validates c, allocates its treatment code, and schedules its
// trays from the transaction time. Planning sub-state, lots, and installation
// always start empty.
func createCase(tx Transaction, c Case) (Case, error) {
	view := tx.Snapshot()
	if c.PatientID == "" {
		return Case{}, invalid(EntityCase, c.ID, "patient is required")
	}
	patient, ok := view.FindPatient(c.PatientID)
	if !ok {
		return Case{}, domain.Errorf(domain.ErrRecordNotFound, EntityPatient, c.PatientID, "patient %q not found", c.PatientID)
	}
	for _, id := range []string{c.DentistID, c.RequestingDentistID} {
		if id == "" {
			continue
		}
		if _, ok := view.FindDentist(id); !ok {
			return Case{}, domain.Errorf(domain.ErrRecordNotFound, EntityDentist, id, "dentist %q not found", id)
		}
	}
	if err := checkCaseTotals(c); err != nil {
		return Case{}, err
	}
	if c.ChangeEveryDays <= 0 {
		return Case{}, invalid(EntityCase, c.ID, "change cadence must be positive, got %d", c.ChangeEveryDays)
	}
	switch c.Origin {
	case "":
		c.Origin = domain.OriginInternal
	case domain.OriginInternal, domain.OriginExternal:
	default:
		return Case{}, invalid(EntityCase, c.ID, "unknown origin %q", c.Origin)
	}
	if c.DentistID == "" {
		c.DentistID = patient.PrimaryDentistID
	}
	if c.ClinicID == "" {
		c.ClinicID = patient.ClinicID
	}

	c.TreatmentCode = domain.NextTreatmentCode(domain.PrefixFor(c.Origin), view.ListCases(), view.ListLabItems())
	c.TotalTrays = max(c.TotalUpper, c.TotalLower)
	c.Trays = domain.ScheduleTrays(c.TotalTrays, c.ChangeEveryDays, tx.Now())
	c.PlanningConcludedAt = nil
	c.Budget = nil
	c.Contract = nil
	c.DeliveryLots = nil
	c.Installation = nil
	return tx.CreateCase(c)
}

func checkCaseTotals(c Case) error {
	if !c.Arch.Valid() {
		return invalid(EntityCase, c.ID, "unknown arch %q", c.Arch)
	}
	if c.TotalUpper < 0 || c.TotalLower < 0 {
		return invalid(EntityCase, c.ID, "tray totals cannot be negative")
	}
	switch c.Arch {
	case domain.ArchUpper:
		if c.TotalUpper == 0 || c.TotalLower != 0 {
			return invalid(EntityCase, c.ID, "upper-arch case needs upper trays only, got %d/%d", c.TotalUpper, c.TotalLower)
		}
	case domain.ArchLower:
		if c.TotalLower == 0 || c.TotalUpper != 0 {
			return invalid(EntityCase, c.ID, "lower-arch case needs lower trays only, got %d/%d", c.TotalUpper, c.TotalLower)
		}
	case domain.ArchBoth:
		if c.TotalUpper == 0 || c.TotalLower == 0 {
			return invalid(EntityCase, c.ID, "two-arch case needs trays on both arches, got %d/%d", c.TotalUpper, c.TotalLower)
		}
	}
	return nil
}

// CreateCase opens a treatment case directly, without an intake scan.
func (s *Service) CreateCase(ctx context.Context, c Case) (Case, Result, error) {
	var created Case
	res, err := s.run(ctx, OpCreateCase, func(tx Transaction) (string, error) {
		var err error
		created, err = createCase(tx, c)
		return created.ID, err
	})
	return created, res, err
}

// GetCase returns a case visible to actor. Cases outside the actor's scope
// are reported as not found.
func (s *Service) GetCase(ctx context.Context, actor Actor, id string) (Case, error) {
	var out Case
	err := s.view(ctx, "get_case", func(v TransactionView) error {
		c, ok := v.FindCase(id)
		if !ok || !NewScope(v, actor).CaseVisible(c) {
			return domain.Errorf(domain.ErrCaseNotFound, EntityCase, id, "case %q not found", id)
		}
		out = c
		return nil
	})
	return out, err
}

// ListCases returns the cases visible to actor ordered by treatment code.
func (s *Service) ListCases(ctx context.Context, actor Actor) ([]Case, error) {
	var out []Case
	err := s.view(ctx, "list_cases", func(v TransactionView) error {
		out = NewScope(v, actor).Cases(v.ListCases())
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].TreatmentCode < out[j].TreatmentCode })
	return out, err
}

// UpdateCaseNotes replaces the free-text notes of a case.
func (s *Service) UpdateCaseNotes(ctx context.Context, id, notes string) (Case, Result, error) {
	var updated Case
	res, err := s.run(ctx, OpUpdateCaseNotes, func(tx Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateCase(id, func(c *Case) error {
			c.Notes = notes
			return nil
		})
		return id, err
	})
	return updated, res, err
}
