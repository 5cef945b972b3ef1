package core

import "ratecore/pkg/domain"

type (
	EntityType         = domain.EntityType
	StepKind           = domain.StepKind
	OperandSymbol      = domain.OperandSymbol
	Rounding           = domain.Rounding
	Severity           = domain.Severity
	Base               = domain.Base
	Product            = domain.Product
	Step               = domain.Step
	Coverage           = domain.Coverage
	UpstreamCode       = domain.UpstreamCode
	Applicability      = domain.Applicability
	Scenario           = domain.Scenario
	Premium            = domain.Premium
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
)

const (
	EntityProduct = domain.EntityProduct
	EntityStep    = domain.EntityStep
)

const (
	StepFactor  = domain.StepFactor
	StepOperand = domain.StepOperand
)

const (
	OperandAdd      = domain.OperandAdd
	OperandSubtract = domain.OperandSubtract
	OperandMultiply = domain.OperandMultiply
	OperandDivide   = domain.OperandDivide
	OperandAssign   = domain.OperandAssign
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
