package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic load/mutate/save scope.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	CreateCase(Case) (Case, error)
	UpdateCase(id string, mutator func(*Case) error) (Case, error)
	CreateLabItem(LabItem) (LabItem, error)
	UpdateLabItem(id string, mutator func(*LabItem) error) (LabItem, error)
	DeleteLabItem(id string) error
	CreateScan(Scan) (Scan, error)
	UpdateScan(id string, mutator func(*Scan) error) (Scan, error)
	CreateClinic(Clinic) (Clinic, error)
	CreateDentist(Dentist) (Dentist, error)
	CreatePatient(Patient) (Patient, error)
	NewID() string
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListCases() []Case
	ListLabItems() []LabItem
	ListScans() []Scan
	ListPatients() []Patient
	ListDentists() []Dentist
	ListClinics() []Clinic
	FindCase(id string) (Case, bool)
	FindLabItem(id string) (LabItem, bool)
	FindScan(id string) (Scan, bool)
	FindPatient(id string) (Patient, bool)
	FindDentist(id string) (Dentist, bool)
	Revision() uint64
}

// PersistentStore is the load/save substrate. RunInTransaction loads the whole
// document, applies fn, evaluates rules, and saves it back; nothing is visible
// to readers unless the save succeeds.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
