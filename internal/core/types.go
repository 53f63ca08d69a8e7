package core

import "alignercore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Case               = domain.Case
	Tray               = domain.Tray
	LabItem            = domain.LabItem
	Scan               = domain.Scan
	Patient            = domain.Patient
	Dentist            = domain.Dentist
	Clinic             = domain.Clinic
	DeliveryLot        = domain.DeliveryLot
	Alert              = domain.Alert
	Actor              = domain.Actor
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
)

const (
	EntityCase        = domain.EntityCase
	EntityTray        = domain.EntityTray
	EntityLabItem     = domain.EntityLabItem
	EntityScan        = domain.EntityScan
	EntityPatient     = domain.EntityPatient
	EntityDentist     = domain.EntityDentist
	EntityClinic      = domain.EntityClinic
	EntityDeliveryLot = domain.EntityDeliveryLot
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
