package exchange

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"ratecore/internal/core"
	"ratecore/internal/infra/persistence/memory"
	"ratecore/pkg/domain"
)

var testCoverages = []domain.Coverage{
	{ID: "1", Name: "Bodily Injury", CoverageCode: "BI"},
	{ID: "2", Name: "Collision", CoverageCode: "COLL"},
	{ID: "3", Name: "Comprehensive", CoverageCode: "COMP"},
}

func floatPtr(v float64) *float64 { return &v }

func factorStep(name string, order int, value float64, coverages []string, applicability domain.Applicability) domain.Step {
	return domain.Step{
		Kind:          domain.StepFactor,
		Order:         order,
		Name:          name,
		Coverages:     coverages,
		Applicability: applicability,
		Value:         floatPtr(value),
	}
}

func operandStep(symbol domain.OperandSymbol, order int) domain.Step {
	return domain.Step{
		Kind:          domain.StepOperand,
		Order:         order,
		Applicability: domain.UnrestrictedApplicability(),
		Symbol:        symbol,
	}
}

func readRows(t *testing.T, doc []byte) [][]string {
	t.Helper()
	r := csv.NewReader(bytes.NewReader(doc))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read exported doc: %v", err)
	}
	return rows
}

func TestExportDocumentLayout(t *testing.T) {
	steps := []domain.Step{
		factorStep("Base Rate", 1, 100, []string{"Bodily Injury"}, domain.UnrestrictedApplicability()),
		operandStep(domain.OperandMultiply, 2),
		factorStep("Territory", 3, 1.25, []string{"Bodily Injury", "Collision"}, domain.RestrictedTo("TX", "CA")),
	}

	doc, err := ExportDocument(ExportMeta{ProductName: "Auto", GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}, steps)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	rows := readRows(t, doc)
	if len(rows) != headerRows+2 {
		t.Fatalf("expected %d rows, got %d", headerRows+2, len(rows))
	}
	if rows[0][0] != DocumentTitle {
		t.Fatalf("title row: %#v", rows[0])
	}
	if rows[2][1] != "Auto" {
		t.Fatalf("product row: %#v", rows[2])
	}
	if rows[3][1] != "2" {
		t.Fatalf("factor count row: %#v", rows[3])
	}
	header := rows[5]
	if len(header) != len(baseColumns)+len(domain.JurisdictionCodes) {
		t.Fatalf("header width: %d", len(header))
	}

	base := rows[6]
	if base[0] != "Bodily Injury" || base[1] != "Base Rate" || base[3] != "*" || base[5] != "100" || base[6] != AllStatesMarker {
		t.Fatalf("base row: %#v", base[:7])
	}
	for i := range domain.JurisdictionCodes {
		if base[len(baseColumns)+i] != "Yes" {
			t.Fatalf("unrestricted step should be Yes everywhere: %#v", base)
		}
	}

	territory := rows[7]
	if territory[0] != "Bodily Injury; Collision" || territory[3] != "" || territory[6] != "2 States" {
		t.Fatalf("territory row: %#v", territory[:7])
	}
	for i, code := range domain.JurisdictionCodes {
		want := "No"
		if code == "TX" || code == "CA" {
			want = "Yes"
		}
		if territory[len(baseColumns)+i] != want {
			t.Fatalf("state %s: got %s want %s", code, territory[len(baseColumns)+i], want)
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	steps := []domain.Step{
		factorStep("Base Rate", 1, 100, []string{"Bodily Injury"}, domain.UnrestrictedApplicability()),
		operandStep(domain.OperandMultiply, 2),
		factorStep("Territory", 3, 1.25, []string{"Collision"}, domain.RestrictedTo("TX", "CA")),
	}
	doc, err := ExportDocument(ExportMeta{ProductName: "Auto"}, steps)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	plan, err := ParseDocument(doc, "prod-1", testCoverages, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pending := plan.Pending()
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending steps, got %d", len(pending))
	}
	if pending[0].Name != "Base Rate" || !pending[0].Applicability.Unrestricted() {
		t.Fatalf("unrestricted applicability lost: %#v", pending[0])
	}
	if pending[0].Value == nil || *pending[0].Value != 100 {
		t.Fatalf("value lost: %#v", pending[0].Value)
	}
	if pending[1].Kind != domain.StepOperand || pending[1].Symbol != domain.OperandMultiply {
		t.Fatalf("trailing operand lost: %#v", pending[1])
	}
	territory := pending[2]
	if territory.Applicability.Unrestricted() || !territory.Applicability.Covers("TX") || !territory.Applicability.Covers("CA") || territory.Applicability.Covers("OH") {
		t.Fatalf("restricted applicability lost: %#v", territory.Applicability.States())
	}
	if pending[0].Order >= pending[1].Order || pending[1].Order >= pending[2].Order {
		t.Fatalf("pending orders not ascending: %d %d %d", pending[0].Order, pending[1].Order, pending[2].Order)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	existing := []domain.Step{
		factorStep("Base Rate", 1, 100, []string{"Bodily Injury"}, domain.UnrestrictedApplicability()),
		operandStep(domain.OperandAdd, 2),
	}
	doc, err := ExportDocument(ExportMeta{ProductName: "Auto"}, existing)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	plan, err := ParseDocument(doc, "prod-1", testCoverages, existing)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !plan.Empty() {
		t.Fatalf("re-import should produce zero steps, got %#v", plan.Pending())
	}
}

func TestImportDedupesWithinDocument(t *testing.T) {
	var doc bytes.Buffer
	w := csv.NewWriter(&doc)
	writeTestHeader(t, w)
	row := append([]string{"Collision", "Dup", "", "+", "none", "5", AllStatesMarker}, make([]string, 50)...)
	if err := w.Write(row); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Write(row); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Flush()

	plan, err := ParseDocument(doc.Bytes(), "prod-1", testCoverages, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// one factor plus its trailing operand; the duplicate row and its operand skipped
	if len(plan.Pending()) != 2 {
		t.Fatalf("expected 2 pending steps, got %#v", plan.Pending())
	}
}

func TestImportUnknownCoverageAbortsBatch(t *testing.T) {
	var doc bytes.Buffer
	w := csv.NewWriter(&doc)
	writeTestHeader(t, w)
	rows := [][]string{
		append([]string{"Collision", "Good", "", "", "none", "1", AllStatesMarker}, make([]string, 50)...),
		append([]string{"Nonsense; Gibberish", "Bad", "", "", "none", "2", AllStatesMarker}, make([]string, 50)...),
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	w.Flush()

	plan, err := ParseDocument(doc.Bytes(), "prod-1", testCoverages, nil)
	if plan != nil {
		t.Fatalf("plan should be nil on batch abort")
	}
	var batch *BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	if len(batch.UnknownCoverages) != 2 || batch.UnknownCoverages[0] != "Gibberish" || batch.UnknownCoverages[1] != "Nonsense" {
		t.Fatalf("expected both names reported: %#v", batch.UnknownCoverages)
	}
}

func TestImportUnknownStateColumnAbortsBatch(t *testing.T) {
	var doc bytes.Buffer
	w := csv.NewWriter(&doc)
	writeTestHeaderWithColumns(t, w, append(append([]string(nil), baseColumns...), "TX", "ZZ", "QQ"))
	if err := w.Write([]string{"Collision", "Step", "", "", "none", "1", "", "X", "X", ""}); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Flush()

	_, err := ParseDocument(doc.Bytes(), "prod-1", testCoverages, nil)
	var batch *BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	if len(batch.UnknownStates) != 2 || batch.UnknownStates[0] != "QQ" || batch.UnknownStates[1] != "ZZ" {
		t.Fatalf("expected both codes reported: %#v", batch.UnknownStates)
	}
}

func TestImportAcceptsXMembership(t *testing.T) {
	var doc bytes.Buffer
	w := csv.NewWriter(&doc)
	writeTestHeaderWithColumns(t, w, append(append([]string(nil), baseColumns...), "TX", "CA", "OH"))
	if err := w.Write([]string{"Collision", "Territory", "", "", "none", "1.1", "", "x", "X", ""}); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Flush()

	plan, err := ParseDocument(doc.Bytes(), "prod-1", testCoverages, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pending := plan.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 step: %#v", pending)
	}
	applicability := pending[0].Applicability
	if !applicability.Covers("TX") || !applicability.Covers("CA") || applicability.Covers("OH") {
		t.Fatalf("membership mismatch: %#v", applicability.States())
	}
}

func TestImportAppendsAfterExistingOrders(t *testing.T) {
	existing := []domain.Step{
		factorStep("Existing", 7, 1, []string{"Comprehensive"}, domain.UnrestrictedApplicability()),
	}
	doc, err := ExportDocument(ExportMeta{ProductName: "Auto"}, []domain.Step{
		factorStep("New Step", 1, 2, []string{"Collision"}, domain.UnrestrictedApplicability()),
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	plan, err := ParseDocument(doc, "prod-1", testCoverages, existing)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pending := plan.Pending()
	if len(pending) != 1 || pending[0].Order <= 7 {
		t.Fatalf("append must follow existing orders: %#v", pending)
	}
}

func TestImportLegacyColumnLayout(t *testing.T) {
	var doc bytes.Buffer
	w := csv.NewWriter(&doc)
	legacy := append([]string(nil), baseColumns[:len(baseColumns)-1]...)
	writeTestHeaderWithColumns(t, w, append(legacy, domain.JurisdictionCodes...))
	row := []string{"Collision", "Territory", "", "", "none", "1.1"}
	for _, code := range domain.JurisdictionCodes {
		member := ""
		if code == "AL" || code == "TX" {
			member = "X"
		}
		row = append(row, member)
	}
	if err := w.Write(row); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Flush()

	plan, err := ParseDocument(doc.Bytes(), "prod-1", testCoverages, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pending := plan.Pending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 step: %#v", pending)
	}
	applicability := pending[0].Applicability
	if !applicability.Covers("AL") || !applicability.Covers("TX") || applicability.Covers("OH") {
		t.Fatalf("membership lost without summary column: %#v", applicability.States())
	}
	if pending[0].Value == nil || *pending[0].Value != 1.1 {
		t.Fatalf("value lost: %#v", pending[0].Value)
	}
}

func TestImportMalformedValueAbortsBatch(t *testing.T) {
	var doc bytes.Buffer
	w := csv.NewWriter(&doc)
	writeTestHeader(t, w)
	row := append([]string{"Collision", "Bad Value", "", "", "none", "abc", AllStatesMarker}, make([]string, 50)...)
	if err := w.Write(row); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Flush()

	plan, err := ParseDocument(doc.Bytes(), "prod-1", testCoverages, nil)
	if plan != nil || err == nil {
		t.Fatalf("expected batch abort, got plan=%v err=%v", plan, err)
	}
	var batch *BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("expected BatchError, got %v", err)
	}
	if len(batch.MalformedValues) != 1 || batch.MalformedValues[0] != "abc" {
		t.Fatalf("malformed values: %#v", batch.MalformedValues)
	}
}

func TestDocumentTooShort(t *testing.T) {
	if _, err := ParseDocument([]byte("just,one,row\n"), "p", testCoverages, nil); err == nil {
		t.Fatalf("expected error for short document")
	}
}

func writeTestHeader(t *testing.T, w *csv.Writer) {
	t.Helper()
	header := append(append([]string(nil), baseColumns...), domain.JurisdictionCodes...)
	writeTestHeaderWithColumns(t, w, header)
}

// writeTestHeaderWithColumns emits the reserved rows followed by the supplied
// column header. Every reserved row carries at least two cells because CSV
// readers drop fully blank lines.
func writeTestHeaderWithColumns(t *testing.T, w *csv.Writer, header []string) {
	t.Helper()
	reserved := [][]string{
		{DocumentTitle, ""},
		{"Generated", "2026-01-01T00:00:00Z"},
		{"Product", "Test"},
		{"Factor Steps", "0"},
		{"", ""},
	}
	for _, row := range reserved {
		if err := w.Write(row); err != nil {
			t.Fatalf("write header: %v", err)
		}
	}
	if err := w.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}
}

func seedProduct(t *testing.T, store *memory.Store) domain.Product {
	t.Helper()
	var product domain.Product
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		product, err = tx.CreateProduct(domain.Product{Name: "Auto"})
		return err
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func TestApplyLadderStopsAtFirstFailureAndResumes(t *testing.T) {
	store := memory.NewStore(core.NewDefaultRulesEngine())
	product := seedProduct(t, store)

	var doc bytes.Buffer
	w := csv.NewWriter(&doc)
	writeTestHeader(t, w)
	rows := [][]string{
		append([]string{"Collision", "First", "", "", "none", "1", AllStatesMarker}, make([]string, 50)...),
		append([]string{"Collision", "", "", "", "none", "2", AllStatesMarker}, make([]string, 50)...),
		append([]string{"Collision", "Third", "", "", "none", "3", AllStatesMarker}, make([]string, 50)...),
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	w.Flush()

	plan, err := ParseDocument(doc.Bytes(), product.ID, testCoverages, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := plan.Apply(context.Background(), store); err == nil {
		t.Fatalf("expected ladder failure on nameless factor")
	}
	if plan.Cursor() != 1 {
		t.Fatalf("cursor should mark committed prefix: %d", plan.Cursor())
	}
	if got := len(store.ListSteps(product.ID)); got != 1 {
		t.Fatalf("partial import should leave committed prefix, got %d steps", got)
	}
	if remaining := plan.Remaining(); len(remaining) != 2 || remaining[1].Name != "Third" {
		t.Fatalf("unexpected remaining: %#v", remaining)
	}
}

func TestApplyAtomicAllOrNothing(t *testing.T) {
	store := memory.NewStore(core.NewDefaultRulesEngine())
	product := seedProduct(t, store)

	var doc bytes.Buffer
	w := csv.NewWriter(&doc)
	writeTestHeader(t, w)
	rows := [][]string{
		append([]string{"Collision", "First", "", "", "none", "1", AllStatesMarker}, make([]string, 50)...),
		append([]string{"Collision", "", "", "", "none", "2", AllStatesMarker}, make([]string, 50)...),
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	w.Flush()

	plan, err := ParseDocument(doc.Bytes(), product.ID, testCoverages, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := plan.ApplyAtomic(context.Background(), store); err == nil {
		t.Fatalf("expected atomic batch failure")
	}
	if got := len(store.ListSteps(product.ID)); got != 0 {
		t.Fatalf("atomic failure must leave store unchanged, got %d steps", got)
	}
}

func TestApplyAtomicCommitsWholeBatch(t *testing.T) {
	store := memory.NewStore(core.NewDefaultRulesEngine())
	product := seedProduct(t, store)

	doc, err := ExportDocument(ExportMeta{ProductName: "Auto"}, []domain.Step{
		factorStep("Base", 1, 10, []string{"Collision"}, domain.UnrestrictedApplicability()),
		operandStep(domain.OperandMultiply, 2),
		factorStep("Territory", 3, 2, []string{"Collision"}, domain.RestrictedTo("TX")),
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	plan, err := ParseDocument(doc, product.ID, testCoverages, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := plan.ApplyAtomic(context.Background(), store); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if plan.Cursor() != len(plan.Pending()) {
		t.Fatalf("cursor should cover whole plan")
	}

	steps := store.ListSteps(product.ID)
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	premium := domain.EvaluatePremium(domain.FilterSteps(steps, domain.Scenario{Coverage: "Collision", States: []string{"TX"}}))
	if !premium.Defined || premium.Amount != 20 {
		t.Fatalf("imported sequence should evaluate: %s", premium.Display())
	}
	if err := plan.ApplyAtomic(context.Background(), store); err != nil {
		t.Fatalf("second apply of finished plan should no-op via ladder guard: %v", err)
	}
}

func TestBatchErrorMessage(t *testing.T) {
	err := &BatchError{UnknownCoverages: []string{"A"}, UnknownStates: []string{"ZZ"}}
	msg := err.Error()
	if !strings.Contains(msg, "A") || !strings.Contains(msg, "ZZ") {
		t.Fatalf("message should name offenders: %s", msg)
	}
}
