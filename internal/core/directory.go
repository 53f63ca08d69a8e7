package core

import (
	"context"
	"strings"
)

// CreateClinic persists a partner clinic.
func (s *Service) CreateClinic(ctx context.Context, clinic Clinic) (Clinic, Result, error) {
	var created Clinic
	res, err := s.run(ctx, OpCreateClinic, func(tx Transaction) (string, error) {
		if strings.TrimSpace(clinic.Name) == "" {
			return "", invalid(EntityClinic, clinic.ID, "clinic name is required")
		}
		var err error
		created, err = tx.CreateClinic(clinic)
		return created.ID, err
	})
	return created, res, err
}

// CreateDentist persists a dentist, optionally attached to a clinic.
func (s *Service) CreateDentist(ctx context.Context, dentist Dentist) (Dentist, Result, error) {
	var created Dentist
	res, err := s.run(ctx, OpCreateDentist, func(tx Transaction) (string, error) {
		if strings.TrimSpace(dentist.Name) == "" {
			return "", invalid(EntityDentist, dentist.ID, "dentist name is required")
		}
		var err error
		created, err = tx.CreateDentist(dentist)
		return created.ID, err
	})
	return created, res, err
}

// CreatePatient persists a patient. A patient without a clinic inherits the
// clinic of its primary dentist.
func (s *Service) CreatePatient(ctx context.Context, patient Patient) (Patient, Result, error) {
	var created Patient
	res, err := s.run(ctx, OpCreatePatient, func(tx Transaction) (string, error) {
		if strings.TrimSpace(patient.Name) == "" {
			return "", invalid(EntityPatient, patient.ID, "patient name is required")
		}
		if patient.ClinicID == "" && patient.PrimaryDentistID != "" {
			if d, ok := tx.Snapshot().FindDentist(patient.PrimaryDentistID); ok {
				patient.ClinicID = d.ClinicID
			}
		}
		var err error
		created, err = tx.CreatePatient(patient)
		return created.ID, err
	})
	return created, res, err
}

// ListPatients returns the patients visible to actor.
func (s *Service) ListPatients(ctx context.Context, actor Actor) ([]Patient, error) {
	var out []Patient
	err := s.view(ctx, "list_patients", func(v TransactionView) error {
		out = NewScope(v, actor).Patients(v.ListPatients())
		return nil
	})
	return out, err
}
