package core

import (
	"alignercore/pkg/domain"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// testClock is a settable clock shared by the service and its store.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: testEpoch} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

var admin = Actor{ID: "admin", Role: domain.RoleAdmin}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	svc     *Service
	clock   *testClock
	clinic  Clinic
	dentist Dentist
	patient Patient
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	clock := newTestClock()
	opts = append([]ServiceOption{WithClock(clock)}, opts...)
	f := &fixture{t: t, ctx: context.Background(), svc: NewInMemoryService(nil, opts...), clock: clock}
	var err error
	if f.clinic, _, err = f.svc.CreateClinic(f.ctx, Clinic{Name: "Downtown Ortho"}); err != nil {
		t.Fatalf("create clinic: %v", err)
	}
	if f.dentist, _, err = f.svc.CreateDentist(f.ctx, Dentist{Name: "Dr. Reyes", ClinicID: f.clinic.ID}); err != nil {
		t.Fatalf("create dentist: %v", err)
	}
	if f.patient, _, err = f.svc.CreatePatient(f.ctx, Patient{Name: "Jo Park", PrimaryDentistID: f.dentist.ID}); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return f
}

// openCase creates a case in planning.
func (f *fixture) openCase(arch domain.Arch, upper, lower int) Case {
	f.t.Helper()
	c, _, err := f.svc.CreateCase(f.ctx, Case{
		PatientID:       f.patient.ID,
		Arch:            arch,
		TotalUpper:      upper,
		TotalLower:      lower,
		ChangeEveryDays: 14,
	})
	if err != nil {
		f.t.Fatalf("create case: %v", err)
	}
	return c
}

// approvedCase creates a case and walks it to an approved contract.
func (f *fixture) approvedCase(arch domain.Arch, upper, lower int) Case {
	f.t.Helper()
	c := f.openCase(arch, upper, lower)
	if _, _, err := f.svc.ConcludePlanning(f.ctx, c.ID); err != nil {
		f.t.Fatalf("conclude planning: %v", err)
	}
	if _, _, err := f.svc.CloseBudget(f.ctx, c.ID, 3200); err != nil {
		f.t.Fatalf("close budget: %v", err)
	}
	approved, _, err := f.svc.ApproveContract(f.ctx, c.ID)
	if err != nil {
		f.t.Fatalf("approve contract: %v", err)
	}
	return approved
}

// produce generates the first order for qty trays per arch and moves it to
// ready.
func (f *fixture) produce(c Case, upper, lower int) LabItem {
	f.t.Helper()
	order, _, err := f.svc.GenerateLabOrder(f.ctx, c.ID, LabOrderInput{PlannedUpperQty: upper, PlannedLowerQty: lower})
	if err != nil {
		f.t.Fatalf("generate lab order: %v", err)
	}
	item := order.Item
	for _, status := range []domain.LabStatus{domain.LabInProduction, domain.LabQualityControl, domain.LabReady} {
		if item, _, err = f.svc.MoveLabItem(f.ctx, item.ID, status); err != nil {
			f.t.Fatalf("move lab item to %s: %v", status, err)
		}
	}
	return item
}

func (f *fixture) getCase(id string) Case {
	f.t.Helper()
	c, err := f.svc.GetCase(f.ctx, admin, id)
	if err != nil {
		f.t.Fatalf("get case: %v", err)
	}
	return c
}

func (f *fixture) labItems() []LabItem {
	f.t.Helper()
	var out []LabItem
	_ = f.svc.Store().View(f.ctx, func(v TransactionView) error {
		out = v.ListLabItems()
		return nil
	})
	return out
}

func expectErr(t *testing.T, err error, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
