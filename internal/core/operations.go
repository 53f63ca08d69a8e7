package core

import "alignercore/pkg/domain"

// Operation names reported to logs, metrics, traces, audit, and broadcasts.
const (
	OpCreateClinic          = "create_clinic"
	OpCreateDentist         = "create_dentist"
	OpCreatePatient         = "create_patient"
	OpCreateScan            = "create_scan"
	OpApproveScan           = "approve_scan"
	OpRejectScan            = "reject_scan"
	OpAttachScanFile        = "attach_scan_file"
	OpCreateCase            = "create_case"
	OpCreateCaseFromScan    = "create_case_from_scan"
	OpUpdateCaseNotes       = "update_case_notes"
	OpConcludePlanning      = "conclude_planning"
	OpCloseBudget           = "close_budget"
	OpApproveContract       = "approve_contract"
	OpGenerateLabOrder      = "generate_lab_order"
	OpSetTrayState          = "set_tray_state"
	OpUpdateTrayNote        = "update_tray_note"
	OpCreateLabItem         = "create_lab_item"
	OpUpdateLabItem         = "update_lab_item"
	OpMoveLabItem           = "move_lab_item"
	OpDeleteLabItem         = "delete_lab_item"
	OpRegisterDeliveryLot   = "register_delivery_lot"
	OpRegisterInstallation  = "register_installation"
	OpRunReplenishment      = "run_replenishment"
	OpCreateAdvanceLabOrder = "create_advance_lab_order"
)

type operationMeta struct {
	entity  EntityType
	action  Action
	audited bool
}

// The scheduler sweep runs before every lab item listing, so it is left out
// of the audit trail; the placeholders it creates are logged instead.
var operations = map[string]operationMeta{
	OpCreateClinic:          {EntityClinic, ActionCreate, true},
	OpCreateDentist:         {EntityDentist, ActionCreate, true},
	OpCreatePatient:         {EntityPatient, ActionCreate, true},
	OpCreateScan:            {EntityScan, ActionCreate, true},
	OpApproveScan:           {EntityScan, ActionUpdate, true},
	OpRejectScan:            {EntityScan, ActionUpdate, true},
	OpAttachScanFile:        {EntityScan, ActionUpdate, true},
	OpCreateCase:            {EntityCase, ActionCreate, true},
	OpCreateCaseFromScan:    {EntityCase, ActionCreate, true},
	OpUpdateCaseNotes:       {EntityCase, ActionUpdate, true},
	OpConcludePlanning:      {EntityCase, ActionUpdate, true},
	OpCloseBudget:           {EntityCase, ActionUpdate, true},
	OpApproveContract:       {EntityCase, ActionUpdate, true},
	OpGenerateLabOrder:      {EntityLabItem, ActionCreate, true},
	OpSetTrayState:          {EntityTray, ActionUpdate, true},
	OpUpdateTrayNote:        {EntityTray, ActionUpdate, true},
	OpCreateLabItem:         {EntityLabItem, ActionCreate, true},
	OpUpdateLabItem:         {EntityLabItem, ActionUpdate, true},
	OpMoveLabItem:           {EntityLabItem, ActionUpdate, true},
	OpDeleteLabItem:         {EntityLabItem, ActionDelete, true},
	OpRegisterDeliveryLot:   {EntityDeliveryLot, ActionCreate, true},
	OpRegisterInstallation:  {domain.EntityInstallation, ActionUpdate, true},
	OpRunReplenishment:      {EntityLabItem, ActionCreate, false},
	OpCreateAdvanceLabOrder: {EntityLabItem, ActionCreate, true},
}
