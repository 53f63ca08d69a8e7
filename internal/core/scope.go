package core

import (
	blobcore "alignercore/internal/blob/core"
	"alignercore/pkg/domain"
	"context"
	"time"
)

// Scope filters reads down to what one actor may see. Admin and lab actors
// see everything; dentists see their patients and the scans and cases that
// name them; clinics see records of the clinic or of its dentists. An
// external actor without a linked dentist or clinic sees nothing.
type Scope struct {
	actor    Actor
	view     TransactionView
	dentists map[string]struct{}
	patients map[string]struct{}
	cases    map[string]bool
}

// NewScope builds a scope for actor over view.
func NewScope(view TransactionView, actor Actor) *Scope {
	s := &Scope{actor: actor, view: view, dentists: map[string]struct{}{}, patients: map[string]struct{}{}}
	switch actor.Role {
	case domain.RoleDentist:
		if actor.DentistID != "" {
			s.dentists[actor.DentistID] = struct{}{}
		}
	case domain.RoleClinic:
		if actor.ClinicID != "" {
			for _, d := range view.ListDentists() {
				if d.ClinicID == actor.ClinicID {
					s.dentists[d.ID] = struct{}{}
				}
			}
		}
	}
	for _, p := range view.ListPatients() {
		if s.patientVisible(p) {
			s.patients[p.ID] = struct{}{}
		}
	}
	return s
}

func (s *Scope) linked() bool {
	switch s.actor.Role {
	case domain.RoleDentist:
		return s.actor.DentistID != ""
	case domain.RoleClinic:
		return s.actor.ClinicID != ""
	}
	return false
}

func (s *Scope) dentist(id string) bool {
	_, ok := s.dentists[id]
	return id != "" && ok
}

func (s *Scope) clinic(id string) bool {
	return s.actor.Role == domain.RoleClinic && id != "" && id == s.actor.ClinicID
}

func (s *Scope) patientVisible(p Patient) bool {
	if s.actor.Unrestricted() {
		return true
	}
	if !s.linked() {
		return false
	}
	return s.dentist(p.PrimaryDentistID) || s.clinic(p.ClinicID)
}

// CaseVisible reports whether the actor may see c.
func (s *Scope) CaseVisible(c Case) bool {
	if s.actor.Unrestricted() {
		return true
	}
	if !s.linked() {
		return false
	}
	if _, ok := s.patients[c.PatientID]; ok {
		return true
	}
	return s.dentist(c.DentistID) || s.dentist(c.RequestingDentistID) || s.clinic(c.ClinicID)
}

func (s *Scope) scanVisible(sc Scan) bool {
	if s.actor.Unrestricted() {
		return true
	}
	if !s.linked() {
		return false
	}
	if _, ok := s.patients[sc.PatientID]; ok {
		return true
	}
	return s.dentist(sc.DentistID) || s.dentist(sc.RequestingDentistID) || s.clinic(sc.ClinicID)
}

func (s *Scope) caseIDVisible(id string) bool {
	if s.cases == nil {
		s.cases = make(map[string]bool)
	}
	if visible, ok := s.cases[id]; ok {
		return visible
	}
	c, ok := s.view.FindCase(id)
	visible := ok && s.CaseVisible(c)
	s.cases[id] = visible
	return visible
}

// Cases keeps the visible cases.
func (s *Scope) Cases(in []Case) []Case {
	return filter(in, s.CaseVisible)
}

// Patients keeps the visible patients.
func (s *Scope) Patients(in []Patient) []Patient {
	return filter(in, s.patientVisible)
}

// Scans keeps the visible scans.
func (s *Scope) Scans(in []Scan) []Scan {
	return filter(in, s.scanVisible)
}

// LabItems keeps work orders whose case is visible. Orders without a case
// are internal to the lab.
func (s *Scope) LabItems(in []LabItem) []LabItem {
	return filter(in, func(item LabItem) bool {
		if item.CaseID == "" {
			return s.actor.Unrestricted()
		}
		return s.caseIDVisible(item.CaseID)
	})
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// CaseAttachmentURL returns a time-limited download link for one of a case's
// attachments.
func (s *Service) CaseAttachmentURL(ctx context.Context, actor Actor, caseID, key string, expiry time.Duration) (string, error) {
	if s.blobs == nil {
		return "", ErrNoBlobStore
	}
	var found bool
	err := s.view(ctx, "case_attachment_url", func(v TransactionView) error {
		c, ok := v.FindCase(caseID)
		if !ok || !NewScope(v, actor).CaseVisible(c) {
			return domain.Errorf(domain.ErrCaseNotFound, EntityCase, caseID, "case %q not found", caseID)
		}
		for _, k := range c.AttachmentKeys {
			if k == key {
				found = true
			}
		}
		if !found {
			return domain.Errorf(domain.ErrRecordNotFound, EntityCase, caseID, "attachment %q not found", key)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return s.blobs.PresignURL(ctx, key, blobcore.SignedURLOptions{Method: "GET", Expiry: expiry})
}
