// Package memory provides an in-memory implementation of the workflow
// persistence store used for tests and ephemeral environments.
package memory

import (
	"alignercore/pkg/domain"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Case aliases domain.Case for in-memory persistence operations.
	Case = domain.Case
	// LabItem aliases domain.LabItem.
	LabItem = domain.LabItem
	// Scan aliases domain.Scan.
	Scan = domain.Scan
	// Patient aliases domain.Patient.
	Patient = domain.Patient
	// Dentist aliases domain.Dentist.
	Dentist = domain.Dentist
	// Clinic aliases domain.Clinic.
	Clinic = domain.Clinic
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	revision uint64
	cases    map[string]Case
	labItems map[string]LabItem
	scans    map[string]Scan
	patients map[string]Patient
	dentists map[string]Dentist
	clinics  map[string]Clinic
}

// Snapshot captures a point-in-time clone of the whole workflow document.
type Snapshot struct {
	Revision uint64             `json:"revision"`
	Cases    map[string]Case    `json:"cases"`
	LabItems map[string]LabItem `json:"lab_items"`
	Scans    map[string]Scan    `json:"scans"`
	Patients map[string]Patient `json:"patients"`
	Dentists map[string]Dentist `json:"dentists"`
	Clinics  map[string]Clinic  `json:"clinics"`
}

func newMemoryState() memoryState {
	return memoryState{
		cases:    make(map[string]Case),
		labItems: make(map[string]LabItem),
		scans:    make(map[string]Scan),
		patients: make(map[string]Patient),
		dentists: make(map[string]Dentist),
		clinics:  make(map[string]Clinic),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Revision: state.revision,
		Cases:    make(map[string]Case, len(state.cases)),
		LabItems: make(map[string]LabItem, len(state.labItems)),
		Scans:    make(map[string]Scan, len(state.scans)),
		Patients: make(map[string]Patient, len(state.patients)),
		Dentists: make(map[string]Dentist, len(state.dentists)),
		Clinics:  make(map[string]Clinic, len(state.clinics)),
	}
	for k, v := range state.cases {
		s.Cases[k] = cloneCase(v)
	}
	for k, v := range state.labItems {
		s.LabItems[k] = cloneLabItem(v)
	}
	for k, v := range state.scans {
		s.Scans[k] = cloneScan(v)
	}
	for k, v := range state.patients {
		s.Patients[k] = v
	}
	for k, v := range state.dentists {
		s.Dentists[k] = v
	}
	for k, v := range state.clinics {
		s.Clinics[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	state.revision = s.Revision
	for k, v := range s.Cases {
		state.cases[k] = migrateCase(cloneCase(v))
	}
	for k, v := range s.LabItems {
		state.labItems[k] = cloneLabItem(v)
	}
	for k, v := range s.Scans {
		state.scans[k] = cloneScan(v)
	}
	for k, v := range s.Patients {
		state.patients[k] = v
	}
	for k, v := range s.Dentists {
		state.dentists[k] = v
	}
	for k, v := range s.Clinics {
		state.clinics[k] = v
	}
	return state
}

// migrateCase normalizes cases written by older snapshots: required slices are
// never nil and status/phase are always rederived from their inputs.
func migrateCase(c Case) Case {
	if c.Trays == nil {
		c.Trays = []domain.Tray{}
	}
	if c.DeliveryLots == nil {
		c.DeliveryLots = []domain.DeliveryLot{}
	}
	if c.Installation != nil && c.Installation.PatientDeliveryLots == nil {
		c.Installation.PatientDeliveryLots = []domain.PatientDeliveryLot{}
	}
	domain.ApplyLifecycle(&c)
	return c
}

func (s memoryState) clone() memoryState {
	return memoryStateFromSnapshot(snapshotFromMemoryState(s))
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func cloneCase(c Case) Case {
	cp := c
	cp.PlanningConcludedAt = cloneTime(c.PlanningConcludedAt)
	if c.Budget != nil {
		b := *c.Budget
		b.ClosedAt = cloneTime(c.Budget.ClosedAt)
		cp.Budget = &b
	}
	if c.Contract != nil {
		ct := *c.Contract
		ct.ApprovedAt = cloneTime(c.Contract.ApprovedAt)
		cp.Contract = &ct
	}
	if c.Trays != nil {
		cp.Trays = make([]domain.Tray, len(c.Trays))
		for i, t := range c.Trays {
			t.DueDate = cloneTime(t.DueDate)
			t.DeliveredAt = cloneTime(t.DeliveredAt)
			cp.Trays[i] = t
		}
	}
	if c.DeliveryLots != nil {
		cp.DeliveryLots = append([]domain.DeliveryLot(nil), c.DeliveryLots...)
	}
	if c.Installation != nil {
		inst := *c.Installation
		inst.CompletedAt = cloneTime(c.Installation.CompletedAt)
		if c.Installation.PatientDeliveryLots != nil {
			inst.PatientDeliveryLots = append([]domain.PatientDeliveryLot(nil), c.Installation.PatientDeliveryLots...)
		}
		cp.Installation = &inst
	}
	if c.AttachmentKeys != nil {
		cp.AttachmentKeys = append([]string(nil), c.AttachmentKeys...)
	}
	return cp
}

func cloneLabItem(l LabItem) LabItem {
	cp := l
	cp.DueDate = cloneTime(l.DueDate)
	cp.ExpectedDate = cloneTime(l.ExpectedDate)
	return cp
}

func cloneScan(s Scan) Scan {
	cp := s
	if s.AttachmentKeys != nil {
		cp.AttachmentKeys = append([]string(nil), s.AttachmentKeys...)
	}
	return cp
}

// Store provides an in-memory transactional store for the workflow document.
// Mutations are serialized: RunInTransaction holds the write lock across the
// whole load/mutate/save cycle.
type Store struct {
	mu       sync.RWMutex
	state    memoryState
	engine   *RulesEngine
	nowFn    func() time.Time
	onCommit CommitHook
}

// CommitHook saves the candidate snapshot of a transaction. A hook error aborts
// the commit, leaving the previous state in place.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the time provider used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

// SetCommitHook installs the save step run before a transaction becomes visible.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = hook
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Revision returns the number of committed transactions.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.revision
}

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func sortedValues[T any](m map[string]T, clone func(T) T, less func(a, b T) bool) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, clone(v))
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func identity[T any](v T) T { return v }

func byCreated(a, b domain.Base) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// ListCases returns all cases in creation order.
func (v transactionView) ListCases() []Case {
	return sortedValues(v.state.cases, cloneCase, func(a, b Case) bool { return byCreated(a.Base, b.Base) })
}

// ListLabItems returns all lab items in creation order.
func (v transactionView) ListLabItems() []LabItem {
	return sortedValues(v.state.labItems, cloneLabItem, func(a, b LabItem) bool { return byCreated(a.Base, b.Base) })
}

// ListScans returns all scans in creation order.
func (v transactionView) ListScans() []Scan {
	return sortedValues(v.state.scans, cloneScan, func(a, b Scan) bool { return byCreated(a.Base, b.Base) })
}

// ListPatients returns all patients.
func (v transactionView) ListPatients() []Patient {
	return sortedValues(v.state.patients, identity[Patient], func(a, b Patient) bool { return byCreated(a.Base, b.Base) })
}

// ListDentists returns all dentists.
func (v transactionView) ListDentists() []Dentist {
	return sortedValues(v.state.dentists, identity[Dentist], func(a, b Dentist) bool { return byCreated(a.Base, b.Base) })
}

// ListClinics returns all clinics.
func (v transactionView) ListClinics() []Clinic {
	return sortedValues(v.state.clinics, identity[Clinic], func(a, b Clinic) bool { return byCreated(a.Base, b.Base) })
}

// FindCase retrieves a case by ID from the snapshot.
func (v transactionView) FindCase(id string) (Case, bool) {
	c, ok := v.state.cases[id]
	if !ok {
		return Case{}, false
	}
	return cloneCase(c), true
}

// FindLabItem retrieves a lab item by ID from the snapshot.
func (v transactionView) FindLabItem(id string) (LabItem, bool) {
	l, ok := v.state.labItems[id]
	if !ok {
		return LabItem{}, false
	}
	return cloneLabItem(l), true
}

// FindScan retrieves a scan by ID from the snapshot.
func (v transactionView) FindScan(id string) (Scan, bool) {
	s, ok := v.state.scans[id]
	if !ok {
		return Scan{}, false
	}
	return cloneScan(s), true
}

// FindPatient retrieves a patient by ID.
func (v transactionView) FindPatient(id string) (Patient, bool) {
	p, ok := v.state.patients[id]
	return p, ok
}

// FindDentist retrieves a dentist by ID.
func (v transactionView) FindDentist(id string) (Dentist, bool) {
	d, ok := v.state.dentists[id]
	return d, ok
}

// Revision returns the revision the view was taken at.
func (v transactionView) Revision() uint64 {
	return v.state.revision
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the committed state only when fn succeeds and no blocking
// rule fires.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if len(tx.changes) == 0 {
		return result, nil
	}
	tx.state.revision++
	if s.onCommit != nil {
		if err := s.onCommit(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, fmt.Errorf("save snapshot: %w", err)
		}
	}
	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp fixed at transaction start.
func (tx *transaction) Now() time.Time {
	return tx.now
}

// NewID allocates a fresh record identifier.
func (tx *transaction) NewID() string {
	return uuid.NewString()
}

// CreateCase stores a new case within the transaction.
func (tx *transaction) CreateCase(c Case) (Case, error) {
	if c.ID == "" {
		c.ID = tx.NewID()
	}
	if _, exists := tx.state.cases[c.ID]; exists {
		return Case{}, fmt.Errorf("case %q already exists", c.ID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	c = migrateCase(c)
	tx.state.cases[c.ID] = cloneCase(c)
	tx.recordChange(Change{Entity: domain.EntityCase, Action: domain.ActionCreate, After: cloneCase(c)})
	return cloneCase(c), nil
}

// UpdateCase mutates a case and rederives its lifecycle before storing it.
func (tx *transaction) UpdateCase(id string, mutator func(*Case) error) (Case, error) {
	current, ok := tx.state.cases[id]
	if !ok {
		return Case{}, domain.Errorf(domain.ErrCaseNotFound, domain.EntityCase, id, "case %q not found", id)
	}
	before := cloneCase(current)
	if err := mutator(&current); err != nil {
		return Case{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current = migrateCase(current)
	tx.state.cases[id] = cloneCase(current)
	tx.recordChange(Change{Entity: domain.EntityCase, Action: domain.ActionUpdate, Before: before, After: cloneCase(current)})
	return cloneCase(current), nil
}

// CreateLabItem stores a new lab item.
func (tx *transaction) CreateLabItem(l LabItem) (LabItem, error) {
	if l.ID == "" {
		l.ID = tx.NewID()
	}
	if _, exists := tx.state.labItems[l.ID]; exists {
		return LabItem{}, fmt.Errorf("lab item %q already exists", l.ID)
	}
	if l.CaseID != "" {
		if _, ok := tx.state.cases[l.CaseID]; !ok {
			return LabItem{}, domain.Errorf(domain.ErrCaseNotFound, domain.EntityCase, l.CaseID, "case %q not found", l.CaseID)
		}
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	tx.state.labItems[l.ID] = cloneLabItem(l)
	tx.recordChange(Change{Entity: domain.EntityLabItem, Action: domain.ActionCreate, After: cloneLabItem(l)})
	return cloneLabItem(l), nil
}

// UpdateLabItem mutates an existing lab item.
func (tx *transaction) UpdateLabItem(id string, mutator func(*LabItem) error) (LabItem, error) {
	current, ok := tx.state.labItems[id]
	if !ok {
		return LabItem{}, domain.Errorf(domain.ErrLabItemNotFound, domain.EntityLabItem, id, "lab item %q not found", id)
	}
	before := cloneLabItem(current)
	if err := mutator(&current); err != nil {
		return LabItem{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.labItems[id] = cloneLabItem(current)
	tx.recordChange(Change{Entity: domain.EntityLabItem, Action: domain.ActionUpdate, Before: before, After: cloneLabItem(current)})
	return cloneLabItem(current), nil
}

// DeleteLabItem removes a lab item from the transaction state.
func (tx *transaction) DeleteLabItem(id string) error {
	current, ok := tx.state.labItems[id]
	if !ok {
		return domain.Errorf(domain.ErrLabItemNotFound, domain.EntityLabItem, id, "lab item %q not found", id)
	}
	delete(tx.state.labItems, id)
	tx.recordChange(Change{Entity: domain.EntityLabItem, Action: domain.ActionDelete, Before: cloneLabItem(current)})
	return nil
}

// CreateScan stores a new scan.
func (tx *transaction) CreateScan(s Scan) (Scan, error) {
	if s.ID == "" {
		s.ID = tx.NewID()
	}
	if _, exists := tx.state.scans[s.ID]; exists {
		return Scan{}, fmt.Errorf("scan %q already exists", s.ID)
	}
	s.CreatedAt = tx.now
	s.UpdatedAt = tx.now
	tx.state.scans[s.ID] = cloneScan(s)
	tx.recordChange(Change{Entity: domain.EntityScan, Action: domain.ActionCreate, After: cloneScan(s)})
	return cloneScan(s), nil
}

// UpdateScan mutates an existing scan.
func (tx *transaction) UpdateScan(id string, mutator func(*Scan) error) (Scan, error) {
	current, ok := tx.state.scans[id]
	if !ok {
		return Scan{}, domain.Errorf(domain.ErrScanNotFound, domain.EntityScan, id, "scan %q not found", id)
	}
	before := cloneScan(current)
	if err := mutator(&current); err != nil {
		return Scan{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.scans[id] = cloneScan(current)
	tx.recordChange(Change{Entity: domain.EntityScan, Action: domain.ActionUpdate, Before: before, After: cloneScan(current)})
	return cloneScan(current), nil
}

// CreateClinic stores a clinic record.
func (tx *transaction) CreateClinic(c Clinic) (Clinic, error) {
	if c.ID == "" {
		c.ID = tx.NewID()
	}
	if _, exists := tx.state.clinics[c.ID]; exists {
		return Clinic{}, fmt.Errorf("clinic %q already exists", c.ID)
	}
	c.CreatedAt, c.UpdatedAt = tx.now, tx.now
	tx.state.clinics[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityClinic, Action: domain.ActionCreate, After: c})
	return c, nil
}

// CreateDentist stores a dentist record; a clinic reference must resolve.
func (tx *transaction) CreateDentist(d Dentist) (Dentist, error) {
	if d.ID == "" {
		d.ID = tx.NewID()
	}
	if _, exists := tx.state.dentists[d.ID]; exists {
		return Dentist{}, fmt.Errorf("dentist %q already exists", d.ID)
	}
	if d.ClinicID != "" {
		if _, ok := tx.state.clinics[d.ClinicID]; !ok {
			return Dentist{}, domain.Errorf(domain.ErrRecordNotFound, domain.EntityClinic, d.ClinicID, "clinic %q not found", d.ClinicID)
		}
	}
	d.CreatedAt, d.UpdatedAt = tx.now, tx.now
	tx.state.dentists[d.ID] = d
	tx.recordChange(Change{Entity: domain.EntityDentist, Action: domain.ActionCreate, After: d})
	return d, nil
}

// CreatePatient stores a patient record; clinic and dentist references must resolve.
func (tx *transaction) CreatePatient(p Patient) (Patient, error) {
	if p.ID == "" {
		p.ID = tx.NewID()
	}
	if _, exists := tx.state.patients[p.ID]; exists {
		return Patient{}, fmt.Errorf("patient %q already exists", p.ID)
	}
	if p.ClinicID != "" {
		if _, ok := tx.state.clinics[p.ClinicID]; !ok {
			return Patient{}, domain.Errorf(domain.ErrRecordNotFound, domain.EntityClinic, p.ClinicID, "clinic %q not found", p.ClinicID)
		}
	}
	if p.PrimaryDentistID != "" {
		if _, ok := tx.state.dentists[p.PrimaryDentistID]; !ok {
			return Patient{}, domain.Errorf(domain.ErrRecordNotFound, domain.EntityDentist, p.PrimaryDentistID, "dentist %q not found", p.PrimaryDentistID)
		}
	}
	p.CreatedAt, p.UpdatedAt = tx.now, tx.now
	tx.state.patients[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityPatient, Action: domain.ActionCreate, After: p})
	return p, nil
}

// Read helpers ---------------------------------------------------------------

// GetCase retrieves a case by ID from committed state.
func (s *Store) GetCase(id string) (Case, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.cases[id]
	if !ok {
		return Case{}, false
	}
	return cloneCase(c), true
}

// ListCases returns all committed cases.
func (s *Store) ListCases() []Case {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListCases()
}

// ListLabItems returns all committed lab items.
func (s *Store) ListLabItems() []LabItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListLabItems()
}
