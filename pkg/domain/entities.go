// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by ratecore.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityProduct identifies an insurance product record.
	EntityProduct EntityType = "product"
	// EntityStep identifies a pricing step record.
	EntityStep EntityType = "step"
)

// StepKind distinguishes the two variants of a pricing step.
type StepKind string

// Canonical step kinds. A factor carries a value scoped to coverages and
// jurisdictions; an operand carries the arithmetic symbol applied to
// subsequent factors.
const (
	StepFactor  StepKind = "factor"
	StepOperand StepKind = "operand"
)

// OperandSymbol is the arithmetic symbol carried by an operand step.
type OperandSymbol string

// Recognised operand symbols. OperandAssign is accepted and persisted but
// combines as a no-op; historical premium figures depend on that behavior.
const (
	OperandAdd      OperandSymbol = "+"
	OperandSubtract OperandSymbol = "-"
	OperandMultiply OperandSymbol = "*"
	OperandDivide   OperandSymbol = "/"
	OperandAssign   OperandSymbol = "="
)

// Valid reports whether the symbol is one of the recognised operands.
func (s OperandSymbol) Valid() bool {
	switch s {
	case OperandAdd, OperandSubtract, OperandMultiply, OperandDivide, OperandAssign:
		return true
	}
	return false
}

// Rounding enumerates the display rounding modes attached to a factor step.
type Rounding string

// Supported rounding modes.
const (
	RoundingNone      Rounding = "none"
	RoundingWhole     Rounding = "whole"
	RoundingTenth     Rounding = "tenth"
	RoundingHundredth Rounding = "hundredth"
	RoundingOther     Rounding = "other"
)

// Valid reports whether the rounding mode is one of the supported values.
// The empty string is treated as RoundingNone by callers.
func (r Rounding) Valid() bool {
	switch r {
	case RoundingNone, RoundingWhole, RoundingTenth, RoundingHundredth, RoundingOther:
		return true
	}
	return false
}

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

// Action identifies the mutation recorded in a Change entry.
type Action string

// Transaction change actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product represents an insurance product whose pricing model is an ordered
// sequence of steps.
type Product struct {
	Base
	Name string `json:"name"`
}

// Step is one element of a product's ordered pricing sequence. Factor fields
// (Name, Coverages, Value, Rounding, TableRef, UpstreamCode) are meaningful
// only when Kind is StepFactor; Symbol only when Kind is StepOperand. Every
// step carries an Applicability consulted by the jurisdiction filter.
//
// Order totally orders the sequence within one product. Order values are
// unique per product but not necessarily dense: adjacent swaps exchange the
// two values and nothing renumbers the rest, so only relative ordering
// carries meaning.
type Step struct {
	Base
	ProductID     string        `json:"product_id"`
	Kind          StepKind      `json:"kind"`
	Order         int           `json:"order"`
	Name          string        `json:"name,omitempty"`
	Coverages     []string      `json:"coverages,omitempty"`
	Applicability Applicability `json:"applicability"`
	Value         *float64      `json:"value,omitempty"`
	Rounding      Rounding      `json:"rounding,omitempty"`
	TableRef      string        `json:"table_ref,omitempty"`
	UpstreamCode  string        `json:"upstream_code,omitempty"`
	Symbol        OperandSymbol `json:"symbol,omitempty"`
}

// CoverageKey returns the semicolon-joined coverage list used for duplicate
// detection during bulk import.
func (s Step) CoverageKey() string {
	return strings.Join(s.Coverages, ";")
}

// Coverage describes a coverage offered by the surrounding product screens.
// Coverages are supplied by an external provider and are not persisted by
// the core store.
type Coverage struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CoverageCode string `json:"coverage_code"`
}

// UpstreamCode is a reference code from the external code catalog, offered
// for selection only and never validated by the core.
type UpstreamCode struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// Change records a single entity mutation captured within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Violation describes a rule failure for a specific entity.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates rule violations for a transaction.
type Result struct {
	Violations []Violation
}

// Merge appends the violations from other into r.
func (r *Result) Merge(other Result) {
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking reports whether any violation carries SeverityBlock.
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
	return "transaction blocked by rules"
}
