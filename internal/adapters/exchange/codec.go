// Package exchange implements the tabular export/import codec for pricing
// step sequences: a CSV workbook with a six-row reserved header, one data
// row per factor step, and per-jurisdiction membership columns.
package exchange

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ratecore/pkg/domain"
)

// DocumentTitle is the fixed first header row of an exported workbook.
const DocumentTitle = "Pricing Steps Export"

// AllStatesMarker is written to the applicability summary column when a step
// applies everywhere. Importers use it to restore the unrestricted variant
// instead of materializing all fifty codes.
const AllStatesMarker = "All States"

// headerRows is the count of reserved metadata rows before step data.
const headerRows = 6

// baseColumns precede the jurisdiction membership columns in every exported
// data row. Historical documents omit the trailing summary column and start
// their jurisdiction columns directly after Value; the importer detects both
// layouts from the header row.
var baseColumns = []string{"Coverages", "Step Name", "Table", "Calculation", "Rounding", "Value", "Applicability"}

// summaryColumn is the header label of the applicability summary column.
const summaryColumn = "Applicability"

// ExportMeta carries the workbook-level fields of the reserved header.
type ExportMeta struct {
	ProductName string
	GeneratedAt time.Time
}

// ExportDocument serializes the ordered step sequence as a CSV workbook.
// Only factor steps produce data rows; an operand immediately following a
// factor is folded into that row's calculation column.
func ExportDocument(meta ExportMeta, steps []domain.Step) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	factorCount := 0
	for _, step := range steps {
		if step.Kind == domain.StepFactor {
			factorCount++
		}
	}

	generated := meta.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}

	header := append(append([]string(nil), baseColumns...), domain.JurisdictionCodes...)
	// The separator row keeps two empty fields so CSV readers, which skip
	// fully blank lines, still count it toward the reserved header rows.
	reserved := [][]string{
		{DocumentTitle},
		{"Generated", generated.UTC().Format(time.RFC3339)},
		{"Product", meta.ProductName},
		{"Factor Steps", strconv.Itoa(factorCount)},
		{"", ""},
		header,
	}
	for _, row := range reserved {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	for i, step := range steps {
		if step.Kind != domain.StepFactor {
			continue
		}
		symbol := ""
		if i+1 < len(steps) && steps[i+1].Kind == domain.StepOperand {
			symbol = string(steps[i+1].Symbol)
		}
		if err := w.Write(exportRow(step, symbol)); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func exportRow(step domain.Step, symbol string) []string {
	value := ""
	if step.Value != nil {
		value = strconv.FormatFloat(*step.Value, 'f', -1, 64)
	}
	rounding := string(step.Rounding)
	if rounding == "" {
		rounding = string(domain.RoundingNone)
	}
	summary := AllStatesMarker
	if !step.Applicability.Unrestricted() {
		summary = fmt.Sprintf("%d States", len(step.Applicability.States()))
	}

	row := []string{
		strings.Join(step.Coverages, "; "),
		step.Name,
		step.TableRef,
		symbol,
		rounding,
		value,
		summary,
	}
	for _, code := range domain.JurisdictionCodes {
		cell := "No"
		if step.Applicability.Unrestricted() || step.Applicability.Covers(code) {
			cell = "Yes"
		}
		row = append(row, cell)
	}
	return row
}

// BatchError aggregates every referential failure found while parsing an
// import document. The batch aborts before any write.
type BatchError struct {
	UnknownCoverages []string
	UnknownStates    []string
	MalformedValues  []string
}

func (e *BatchError) Error() string {
	var parts []string
	if len(e.UnknownCoverages) > 0 {
		parts = append(parts, fmt.Sprintf("unknown coverages: %s", strings.Join(e.UnknownCoverages, ", ")))
	}
	if len(e.UnknownStates) > 0 {
		parts = append(parts, fmt.Sprintf("unknown states: %s", strings.Join(e.UnknownStates, ", ")))
	}
	if len(e.MalformedValues) > 0 {
		parts = append(parts, fmt.Sprintf("malformed values: %s", strings.Join(e.MalformedValues, ", ")))
	}
	if len(parts) == 0 {
		return "import batch rejected"
	}
	return "import batch rejected: " + strings.Join(parts, "; ")
}

func (e *BatchError) empty() bool {
	return len(e.UnknownCoverages) == 0 && len(e.UnknownStates) == 0 && len(e.MalformedValues) == 0
}

// ParseDocument parses a workbook into an ImportPlan of pending appends for
// the given product. Referential failures (coverage names that resolve to no
// known coverage, jurisdiction header codes outside the fixed catalog,
// unparseable value cells) abort the whole batch via BatchError. Rows
// duplicating an existing step by resolved coverage-code key and name are
// skipped along with their trailing operand.
func ParseDocument(data []byte, productID string, coverages []domain.Coverage, existing []domain.Step) (*ImportPlan, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if len(rows) < headerRows {
		return nil, fmt.Errorf("document too short: %d rows", len(rows))
	}

	stateColumns, stateOffset, batchErr := parseStateColumns(rows[headerRows-1])

	nameToCode := make(map[string]string, len(coverages))
	for _, cov := range coverages {
		nameToCode[strings.ToLower(cov.Name)] = cov.CoverageCode
	}

	seen := make(map[dedupeKey]struct{}, len(existing))
	nextOrder := 1
	for _, step := range existing {
		seen[existingKey(step, nameToCode)] = struct{}{}
		if step.Order >= nextOrder {
			nextOrder = step.Order + 1
		}
	}

	plan := &ImportPlan{productID: productID}
	for _, row := range rows[headerRows:] {
		if rowEmpty(row) {
			continue
		}
		candidate, key := parseRow(row, stateColumns, stateOffset, nameToCode, batchErr)
		if _, duplicate := seen[key]; duplicate {
			continue
		}
		seen[key] = struct{}{}

		candidate.ProductID = productID
		candidate.Order = nextOrder
		nextOrder++
		plan.pending = append(plan.pending, candidate)

		if symbol := domain.OperandSymbol(strings.TrimSpace(cell(row, 3))); symbol.Valid() {
			plan.pending = append(plan.pending, domain.Step{
				ProductID:     productID,
				Kind:          domain.StepOperand,
				Order:         nextOrder,
				Applicability: domain.UnrestrictedApplicability(),
				Symbol:        symbol,
			})
			nextOrder++
		}
	}

	if !batchErr.empty() {
		batchErr.UnknownCoverages = sortedUnique(batchErr.UnknownCoverages)
		batchErr.UnknownStates = sortedUnique(batchErr.UnknownStates)
		batchErr.MalformedValues = sortedUnique(batchErr.MalformedValues)
		return nil, batchErr
	}
	return plan, nil
}

func sortedUnique(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	sort.Strings(values)
	out := values[:1]
	for _, v := range values[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

type dedupeKey struct {
	coverageCodes string
	name          string
}

// existingKey resolves an existing step's coverage names to codes for
// comparison; names without a catalog entry fall back to themselves.
func existingKey(step domain.Step, nameToCode map[string]string) dedupeKey {
	codes := make([]string, 0, len(step.Coverages))
	for _, name := range step.Coverages {
		if code, ok := nameToCode[strings.ToLower(name)]; ok {
			codes = append(codes, code)
		} else {
			codes = append(codes, name)
		}
	}
	return dedupeKey{coverageCodes: strings.Join(codes, ";"), name: step.Name}
}

// parseStateColumns reads the jurisdiction codes from the header row and
// reports the column index where membership cells begin. A header whose
// seventh cell is the summary label follows our export layout; otherwise the
// document uses the historical layout where jurisdiction columns start
// directly after Value. Codes outside the fixed catalog are collected.
func parseStateColumns(header []string) ([]string, int, *BatchError) {
	batchErr := &BatchError{}
	offset := len(baseColumns) - 1
	if len(header) > offset && strings.EqualFold(strings.TrimSpace(header[offset]), summaryColumn) {
		offset = len(baseColumns)
	}
	if len(header) <= offset {
		// no per-state columns; fall back to catalog order
		return append([]string(nil), domain.JurisdictionCodes...), offset, batchErr
	}
	var columns []string
	for _, raw := range header[offset:] {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" {
			columns = append(columns, "")
			continue
		}
		if !domain.IsJurisdiction(code) {
			batchErr.UnknownStates = append(batchErr.UnknownStates, code)
		}
		columns = append(columns, code)
	}
	return columns, offset, batchErr
}

func parseRow(row, stateColumns []string, stateOffset int, nameToCode map[string]string, batchErr *BatchError) (domain.Step, dedupeKey) {
	var resolvedCodes []string
	var coverageNames []string
	for _, token := range strings.Split(cell(row, 0), ";") {
		name := strings.TrimSpace(token)
		if name == "" {
			continue
		}
		coverageNames = append(coverageNames, name)
		code, ok := nameToCode[strings.ToLower(name)]
		if !ok {
			batchErr.UnknownCoverages = append(batchErr.UnknownCoverages, name)
			continue
		}
		resolvedCodes = append(resolvedCodes, code)
	}

	hasSummary := stateOffset == len(baseColumns)
	applicability := domain.UnrestrictedApplicability()
	if !hasSummary || strings.TrimSpace(cell(row, 6)) != AllStatesMarker {
		var member []string
		for i, code := range stateColumns {
			if code == "" {
				continue
			}
			if isMembershipCell(cell(row, stateOffset+i)) {
				member = append(member, code)
			}
		}
		applicability = domain.RestrictedTo(member...)
	}

	var value *float64
	if raw := strings.TrimSpace(cell(row, 5)); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err != nil {
			batchErr.MalformedValues = append(batchErr.MalformedValues, raw)
		} else {
			value = &v
		}
	}

	rounding := domain.Rounding(strings.TrimSpace(cell(row, 4)))
	if !rounding.Valid() {
		rounding = domain.RoundingNone
	}

	name := strings.TrimSpace(cell(row, 1))
	step := domain.Step{
		Kind:          domain.StepFactor,
		Name:          name,
		Coverages:     coverageNames,
		Applicability: applicability,
		Value:         value,
		Rounding:      rounding,
		TableRef:      strings.TrimSpace(cell(row, 2)),
	}
	return step, dedupeKey{coverageCodes: strings.Join(resolvedCodes, ";"), name: name}
}

// isMembershipCell accepts the import convention ("X") and our own export
// convention ("Yes") case-insensitively.
func isMembershipCell(raw string) bool {
	v := strings.TrimSpace(raw)
	return strings.EqualFold(v, "X") || strings.EqualFold(v, "Yes")
}

func cell(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

func rowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
