package memory

import (
	"alignercore/pkg/domain"
	"context"
	"errors"
	"testing"
	"time"
)

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{Rule: "block", Severity: domain.SeverityBlock, Message: "blocked"}}}, nil
}

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, ok := tx.Snapshot().FindCase("missing"); ok {
			t.Fatalf("expected missing case lookup")
		}
		created, err := tx.CreateCase(domain.Case{TreatmentCode: "A-0001", Arch: domain.ArchBoth})
		if err != nil {
			return err
		}
		if created.ID == "" {
			t.Fatalf("expected generated ID")
		}
		if created.Trays == nil || created.DeliveryLots == nil {
			t.Fatalf("expected normalized slices")
		}
		if len(tx.Snapshot().ListCases()) != 1 {
			t.Fatalf("snapshot mismatch")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if len(store.ListCases()) != 1 {
		t.Fatalf("expected persisted case")
	}
	if store.Revision() != 1 {
		t.Fatalf("expected revision 1, got %d", store.Revision())
	}
	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ListCases()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.ListCases()) != 1 {
		t.Fatalf("expected restored state")
	}
	if store.RulesEngine() == nil {
		t.Fatalf("expected rules engine")
	}
}

func TestStoreRuleViolationDiscardsChanges(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	store.RulesEngine().Register(blockingRule{})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateCase(domain.Case{TreatmentCode: "A-0001"})
		return e
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if len(store.ListCases()) != 0 {
		t.Fatalf("expected blocked transaction to leave no case")
	}
	if store.Revision() != 0 {
		t.Fatalf("expected revision unchanged")
	}
}

func TestStoreFailedCallbackDiscardsChanges(t *testing.T) {
	store := NewStore(nil)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateCase(domain.Case{TreatmentCode: "A-0001"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if len(store.ListCases()) != 0 {
		t.Fatalf("expected no committed case")
	}
}

func TestStoreCommitHookFailureAbortsCommit(t *testing.T) {
	store := NewStore(nil)
	var saved []Snapshot
	store.SetCommitHook(func(_ context.Context, s Snapshot) error {
		saved = append(saved, s)
		if len(saved) > 1 {
			return errors.New("disk full")
		}
		return nil
	})
	ctx := context.Background()
	create := func(code string) error {
		_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, e := tx.CreateCase(domain.Case{TreatmentCode: code})
			return e
		})
		return err
	}
	if err := create("A-0001"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := create("A-0002"); err == nil {
		t.Fatalf("expected save failure")
	}
	if got := len(store.ListCases()); got != 1 {
		t.Fatalf("expected only the saved case to be visible, got %d", got)
	}
	if store.Revision() != 1 {
		t.Fatalf("expected revision 1 after failed save, got %d", store.Revision())
	}
	if saved[1].Revision != 2 {
		t.Fatalf("expected candidate snapshot to carry revision 2, got %d", saved[1].Revision)
	}
}

func TestStoreReadOnlyTransactionKeepsRevision(t *testing.T) {
	store := NewStore(nil)
	calls := 0
	store.SetCommitHook(func(context.Context, Snapshot) error {
		calls++
		return nil
	})
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_ = tx.Snapshot().ListLabItems()
		return nil
	}); err != nil {
		t.Fatalf("read-only transaction: %v", err)
	}
	if store.Revision() != 0 || calls != 0 {
		t.Fatalf("expected no commit for read-only transaction, revision=%d calls=%d", store.Revision(), calls)
	}
}

func TestTransactionNotFoundErrors(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.UpdateCase("missing", func(*domain.Case) error { return nil }); !errors.Is(err, domain.ErrCaseNotFound) {
			t.Fatalf("expected case not found, got %v", err)
		}
		if _, err := tx.UpdateLabItem("missing", func(*domain.LabItem) error { return nil }); !errors.Is(err, domain.ErrLabItemNotFound) {
			t.Fatalf("expected lab item not found, got %v", err)
		}
		if err := tx.DeleteLabItem("missing"); !errors.Is(err, domain.ErrLabItemNotFound) {
			t.Fatalf("expected lab item not found on delete, got %v", err)
		}
		if _, err := tx.UpdateScan("missing", func(*domain.Scan) error { return nil }); !errors.Is(err, domain.ErrScanNotFound) {
			t.Fatalf("expected scan not found, got %v", err)
		}
		if _, err := tx.CreateLabItem(domain.LabItem{CaseID: "missing"}); !errors.Is(err, domain.ErrCaseNotFound) {
			t.Fatalf("expected dangling case reference rejected, got %v", err)
		}
		if _, err := tx.CreateDentist(domain.Dentist{Name: "Dr", ClinicID: "missing"}); !errors.Is(err, domain.ErrRecordNotFound) {
			t.Fatalf("expected dangling clinic reference rejected, got %v", err)
		}
		if _, err := tx.CreatePatient(domain.Patient{Name: "P", PrimaryDentistID: "missing"}); !errors.Is(err, domain.ErrRecordNotFound) {
			t.Fatalf("expected dangling dentist reference rejected, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestUpdateCaseRederivesLifecycleAndStampsTime(t *testing.T) {
	store := NewStore(nil)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start
	store.SetNowFunc(func() time.Time { return now })
	ctx := context.Background()

	var id string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		c, err := tx.CreateCase(domain.Case{TreatmentCode: "A-0001", Arch: domain.ArchBoth})
		id = c.ID
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	now = start.Add(time.Hour)
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateCase(id, func(c *domain.Case) error {
			approved := now
			c.Contract = &domain.Contract{Status: domain.ContractApproved, ApprovedAt: &approved}
			c.Phase = domain.PhasePlanning
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok := store.GetCase(id)
	if !ok {
		t.Fatalf("expected case")
	}
	if got.Phase != domain.PhaseContractApproved {
		t.Fatalf("expected derived contract_approved phase, got %s", got.Phase)
	}
	if got.Status != domain.CaseStatusInProduction {
		t.Fatalf("expected derived in_production status, got %s", got.Status)
	}
	if !got.CreatedAt.Equal(start) || !got.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected timestamps created=%v updated=%v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestViewIsIsolatedFromCommittedState(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateCase(domain.Case{TreatmentCode: "A-0001", Trays: []domain.Tray{{TrayNumber: 1, State: domain.TrayPending}}})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.View(ctx, func(v domain.TransactionView) error {
		cases := v.ListCases()
		cases[0].Trays[0].State = domain.TrayDelivered
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if store.ListCases()[0].Trays[0].State != domain.TrayPending {
		t.Fatalf("expected view mutation not to leak into committed state")
	}
}
