package domain

import (
	"errors"
	"fmt"
)

// ErrorKind groups workflow failures by how a caller should react.
type ErrorKind string

// Error kinds. All are recoverable by retrying with corrected input.
const (
	KindValidation    ErrorKind = "validation"
	KindStateMachine  ErrorKind = "state_machine"
	KindPrecondition  ErrorKind = "precondition"
	KindNotFound      ErrorKind = "not_found"
	KindBusinessLimit ErrorKind = "business_limit"
)

// Code is a stable identifier for a workflow failure.
type Code string

// Workflow failure codes.
const (
	CodeInvalidInput           Code = "InvalidInput"
	CodeInvalidTransition      Code = "InvalidTransition"
	CodeRegressionDenied       Code = "RegressionDenied"
	CodeInvalidPhase           Code = "InvalidPhase"
	CodeDeliveredLocked        Code = "DeliveredLocked"
	CodeBlindProduction        Code = "BlindProduction"
	CodeContractNotApproved    Code = "ContractNotApproved"
	CodeNoProductionOrder      Code = "NoProductionOrder"
	CodeNoDentistDelivery      Code = "NoDentistDelivery"
	CodeDeliveryLotRequired    Code = "DeliveryLotRequired"
	CodeNoPendingTray          Code = "NoPendingTray"
	CodeScanNotApproved        Code = "ScanNotApproved"
	CodeScanAlreadyConverted   Code = "ScanAlreadyConverted"
	CodeCaseNotFound           Code = "CaseNotFound"
	CodeTrayNotFound           Code = "TrayNotFound"
	CodeLabItemNotFound        Code = "LabItemNotFound"
	CodeScanNotFound           Code = "ScanNotFound"
	CodeRecordNotFound         Code = "RecordNotFound"
	CodeInvalidRange           Code = "InvalidRange"
	CodeDuplicateLot           Code = "DuplicateLot"
	CodeTrayNotReady           Code = "TrayNotReady"
	CodePlanExceedsCase        Code = "PlanExceedsCase"
	CodeExceedsDentistDelivery Code = "ExceedsDentistDelivery"
	CodeExceedsCaseTotal       Code = "ExceedsCaseTotal"
	CodeForbidden              Code = "Forbidden"
)

// Error is the typed failure returned by every workflow operation.
type Error struct {
	Kind     ErrorKind
	Code     Code
	Entity   EntityType
	EntityID string
	Message  string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error carrying the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidInput           = &Error{Kind: KindValidation, Code: CodeInvalidInput}
	ErrInvalidTransition      = &Error{Kind: KindStateMachine, Code: CodeInvalidTransition}
	ErrRegressionDenied       = &Error{Kind: KindStateMachine, Code: CodeRegressionDenied}
	ErrInvalidPhase           = &Error{Kind: KindStateMachine, Code: CodeInvalidPhase}
	ErrDeliveredLocked        = &Error{Kind: KindStateMachine, Code: CodeDeliveredLocked}
	ErrBlindProduction        = &Error{Kind: KindPrecondition, Code: CodeBlindProduction}
	ErrContractNotApproved    = &Error{Kind: KindPrecondition, Code: CodeContractNotApproved}
	ErrNoProductionOrder      = &Error{Kind: KindPrecondition, Code: CodeNoProductionOrder}
	ErrNoDentistDelivery      = &Error{Kind: KindPrecondition, Code: CodeNoDentistDelivery}
	ErrDeliveryLotRequired    = &Error{Kind: KindPrecondition, Code: CodeDeliveryLotRequired}
	ErrNoPendingTray          = &Error{Kind: KindPrecondition, Code: CodeNoPendingTray}
	ErrScanNotApproved        = &Error{Kind: KindPrecondition, Code: CodeScanNotApproved}
	ErrScanAlreadyConverted   = &Error{Kind: KindPrecondition, Code: CodeScanAlreadyConverted}
	ErrCaseNotFound           = &Error{Kind: KindNotFound, Code: CodeCaseNotFound}
	ErrTrayNotFound           = &Error{Kind: KindNotFound, Code: CodeTrayNotFound}
	ErrLabItemNotFound        = &Error{Kind: KindNotFound, Code: CodeLabItemNotFound}
	ErrScanNotFound           = &Error{Kind: KindNotFound, Code: CodeScanNotFound}
	ErrRecordNotFound         = &Error{Kind: KindNotFound, Code: CodeRecordNotFound}
	ErrInvalidRange           = &Error{Kind: KindValidation, Code: CodeInvalidRange}
	ErrDuplicateLot           = &Error{Kind: KindValidation, Code: CodeDuplicateLot}
	ErrTrayNotReady           = &Error{Kind: KindPrecondition, Code: CodeTrayNotReady}
	ErrPlanExceedsCase        = &Error{Kind: KindBusinessLimit, Code: CodePlanExceedsCase}
	ErrExceedsDentistDelivery = &Error{Kind: KindBusinessLimit, Code: CodeExceedsDentistDelivery}
	ErrExceedsCaseTotal       = &Error{Kind: KindBusinessLimit, Code: CodeExceedsCaseTotal}
	ErrForbidden              = &Error{Kind: KindNotFound, Code: CodeForbidden}
)

// Errorf builds a workflow error from a sentinel, attaching entity context.
func Errorf(sentinel *Error, entity EntityType, id string, format string, args ...any) *Error {
	return &Error{
		Kind:     sentinel.Kind,
		Code:     sentinel.Code,
		Entity:   entity,
		EntityID: id,
		Message:  fmt.Sprintf(format, args...),
	}
}

// KindOf returns the workflow error kind for err, or "" when err is not a workflow error.
func KindOf(err error) ErrorKind {
	var wf *Error
	if errors.As(err, &wf) {
		return wf.Kind
	}
	return ""
}
