// Package domain defines the persistent entities, value types, and rule
// evaluation primitives of the aligner treatment workflow.
package domain

import "time"

// EntityType identifies the type of record stored in the workflow document.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityCase identifies a treatment case record.
	EntityCase EntityType = "case"
	// EntityTray identifies a tray inside a case. Trays are stored inline with
	// their case; the identifier is used for audit and error reporting.
	EntityTray EntityType = "tray"
	// EntityLabItem identifies a lab work order.
	EntityLabItem EntityType = "lab_item"
	// EntityScan identifies an intake scan.
	EntityScan EntityType = "scan"
	// EntityPatient identifies a patient record.
	EntityPatient EntityType = "patient"
	// EntityDentist identifies a dentist record.
	EntityDentist EntityType = "dentist"
	// EntityClinic identifies a clinic record.
	EntityClinic EntityType = "clinic"
	// EntityDeliveryLot identifies a dentist-side delivery lot.
	EntityDeliveryLot EntityType = "delivery_lot"
	// EntityInstallation identifies the patient-side installation record.
	EntityInstallation EntityType = "installation"
)

// Arch identifies which jaw a case, lot, or plan applies to.
type Arch string

// Supported arches.
const (
	ArchUpper Arch = "upper"
	ArchLower Arch = "lower"
	ArchBoth  Arch = "both"
)

// Valid reports whether the arch is one of the known values.
func (a Arch) Valid() bool {
	switch a {
	case ArchUpper, ArchLower, ArchBoth:
		return true
	}
	return false
}

// Covers reports whether a covers the single arch other.
func (a Arch) Covers(other Arch) bool {
	return a == ArchBoth || a == other
}

// CaseOrigin tells whether a case was opened internally or by an external partner.
type CaseOrigin string

// Case origins map onto treatment code prefixes.
const (
	OriginInternal CaseOrigin = "internal"
	OriginExternal CaseOrigin = "external"
)

// CaseStatus is the coarse workflow status shown in listings.
type CaseStatus string

// Coarse case statuses.
const (
	CaseStatusPlanning     CaseStatus = "planning"
	CaseStatusInProduction CaseStatus = "in_production"
	CaseStatusInDelivery   CaseStatus = "in_delivery"
	CaseStatusFinalized    CaseStatus = "finalized"
)

// CasePhase is the fine-grained workflow step of a case.
type CasePhase string

// Phase ladder, in order.
const (
	PhasePlanning         CasePhase = "planning"
	PhaseBudget           CasePhase = "budget"
	PhaseContractPending  CasePhase = "contract_pending"
	PhaseContractApproved CasePhase = "contract_approved"
	PhaseInProduction     CasePhase = "in_production"
	PhaseFinalized        CasePhase = "finalized"
)

// ContractStatus tracks contract approval.
type ContractStatus string

// Contract statuses.
const (
	ContractPending  ContractStatus = "pending"
	ContractApproved ContractStatus = "approved"
)

// TrayState is the production state of one aligner tray.
type TrayState string

// Tray states.
const (
	TrayPending      TrayState = "pending"
	TrayInProduction TrayState = "in_production"
	TrayReady        TrayState = "ready"
	TrayDelivered    TrayState = "delivered"
	TrayRework       TrayState = "rework"
)

// LabStatus is the pipeline position of a lab work order.
type LabStatus string

// Lab pipeline statuses, in order.
const (
	LabAwaitingStart  LabStatus = "awaiting_start"
	LabInProduction   LabStatus = "in_production"
	LabQualityControl LabStatus = "quality_control"
	LabReady          LabStatus = "ready"
)

// RequestKind classifies a lab work order.
type RequestKind string

// Lab request kinds.
const (
	RequestProduction              RequestKind = "production"
	RequestRework                  RequestKind = "rework"
	RequestProgrammedReplenishment RequestKind = "programmed_replenishment"
)

// Priority orders lab work.
type Priority string

// Lab priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ScanStatus tracks an intake scan through review.
type ScanStatus string

// Scan statuses.
const (
	ScanPending   ScanStatus = "pending"
	ScanApproved  ScanStatus = "approved"
	ScanRejected  ScanStatus = "rejected"
	ScanConverted ScanStatus = "converted"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Budget is the treatment quote attached to a case.
type Budget struct {
	Value    float64    `json:"value"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// Contract tracks approval of the treatment contract.
type Contract struct {
	Status     ContractStatus `json:"status"`
	ApprovedAt *time.Time     `json:"approved_at,omitempty"`
}

// Tray is one aligner unit within a case.
type Tray struct {
	TrayNumber  int        `json:"tray_number"`
	State       TrayState  `json:"state"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Note        string     `json:"note,omitempty"`
}

// DeliveryLot records a contiguous tray range handed to the prescribing dentist.
type DeliveryLot struct {
	ID          string    `json:"id"`
	Arch        Arch      `json:"arch"`
	FromTray    int       `json:"from_tray"`
	ToTray      int       `json:"to_tray"`
	DeliveredAt time.Time `json:"delivered_at"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PatientDeliveryLot records a paired tray range handed to the patient.
type PatientDeliveryLot struct {
	FromTray    int       `json:"from_tray"`
	ToTray      int       `json:"to_tray"`
	DeliveredAt time.Time `json:"delivered_at"`
	Upper       int       `json:"upper"`
	Lower       int       `json:"lower"`
}

// Installation records the first fit and the running patient-side counts.
type Installation struct {
	InstalledAt         time.Time            `json:"installed_at"`
	Note                string               `json:"note,omitempty"`
	DeliveredUpper      int                  `json:"delivered_upper"`
	DeliveredLower      int                  `json:"delivered_lower"`
	PatientDeliveryLots []PatientDeliveryLot `json:"patient_delivery_lots"`
	CompletedAt         *time.Time           `json:"completed_at,omitempty"`
}

// Case is one orthodontic treatment.
type Case struct {
	Base
	TreatmentCode         string        `json:"treatment_code"`
	Origin                CaseOrigin    `json:"origin"`
	PatientID             string        `json:"patient_id"`
	DentistID             string        `json:"dentist_id"`
	RequestingDentistID   string        `json:"requesting_dentist_id,omitempty"`
	ClinicID              string        `json:"clinic_id,omitempty"`
	ScanID                string        `json:"scan_id,omitempty"`
	Arch                  Arch          `json:"arch"`
	TotalTrays            int           `json:"total_trays"`
	TotalUpper            int           `json:"total_upper"`
	TotalLower            int           `json:"total_lower"`
	ChangeEveryDays       int           `json:"change_every_days"`
	Status                CaseStatus    `json:"status"`
	Phase                 CasePhase     `json:"phase"`
	PlanningConcludedAt   *time.Time    `json:"planning_concluded_at,omitempty"`
	Budget                *Budget       `json:"budget,omitempty"`
	Contract              *Contract     `json:"contract,omitempty"`
	Trays                 []Tray        `json:"trays"`
	DeliveryLots          []DeliveryLot `json:"delivery_lots"`
	Installation          *Installation `json:"installation,omitempty"`
	AttachmentKeys        []string      `json:"attachment_keys,omitempty"`
	AttachmentBondingTray bool          `json:"attachment_bonding_tray"`
	Notes                 string        `json:"notes,omitempty"`
}

// Tray returns a pointer to the tray with the given number, or nil.
func (c *Case) Tray(number int) *Tray {
	for i := range c.Trays {
		if c.Trays[i].TrayNumber == number {
			return &c.Trays[i]
		}
	}
	return nil
}

// ContractApproved reports whether the case contract has been approved.
func (c Case) ContractApproved() bool {
	return c.Contract != nil && c.Contract.Status == ContractApproved
}

// TotalFor returns the case total for a single arch.
func (c Case) TotalFor(arch Arch) int {
	switch arch {
	case ArchUpper:
		return c.TotalUpper
	case ArchLower:
		return c.TotalLower
	}
	return 0
}

// LabItem is a planned or in-flight production run.
type LabItem struct {
	Base
	CaseID          string      `json:"case_id,omitempty"`
	RequestCode     string      `json:"request_code"`
	RequestKind     RequestKind `json:"request_kind"`
	PlannedUpperQty int         `json:"planned_upper_qty"`
	PlannedLowerQty int         `json:"planned_lower_qty"`
	TrayNumber      int         `json:"tray_number"`
	DueDate         *time.Time  `json:"due_date,omitempty"`
	ExpectedDate    *time.Time  `json:"expected_date,omitempty"`
	Status          LabStatus   `json:"status"`
	Priority        Priority    `json:"priority"`
	Notes           string      `json:"notes,omitempty"`
	ReworkItemID    string      `json:"rework_item_id,omitempty"`
}

// CountsAgainstPlan reports whether the item consumes the case's planned quota.
// Rework orders and their production counterparts re-make existing trays.
func (l LabItem) CountsAgainstPlan() bool {
	return l.RequestKind == RequestProduction && l.ReworkItemID == ""
}

// CoveredTrays returns the inclusive tray range the item produces.
func (l LabItem) CoveredTrays() (from, to int) {
	n := l.PlannedUpperQty
	if l.PlannedLowerQty > n {
		n = l.PlannedLowerQty
	}
	if n < 1 {
		n = 1
	}
	return l.TrayNumber, l.TrayNumber + n - 1
}

// Scan is an intake scan that may be converted into a case.
type Scan struct {
	Base
	PatientID           string     `json:"patient_id"`
	DentistID           string     `json:"dentist_id"`
	RequestingDentistID string     `json:"requesting_dentist_id,omitempty"`
	ClinicID            string     `json:"clinic_id,omitempty"`
	Arch                Arch       `json:"arch"`
	Origin              CaseOrigin `json:"origin"`
	Status              ScanStatus `json:"status"`
	AttachmentKeys      []string   `json:"attachment_keys,omitempty"`
	CaseID              string     `json:"case_id,omitempty"`
	Notes               string     `json:"notes,omitempty"`
}

// Clinic is a partner clinic.
type Clinic struct {
	Base
	Name string `json:"name"`
}

// Dentist is a prescribing dentist, optionally attached to a clinic.
type Dentist struct {
	Base
	Name     string `json:"name"`
	ClinicID string `json:"clinic_id,omitempty"`
}

// Patient is a treated patient.
type Patient struct {
	Base
	Name             string `json:"name"`
	ClinicID         string `json:"clinic_id,omitempty"`
	PrimaryDentistID string `json:"primary_dentist_id,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
