package services

import (
	"testing"

	"github.com/discloseaudit/backend/internal/models"
)

func newTestConsistencyService() *ConsistencyService {
	return &ConsistencyService{
		warnEmptyRatio: defaultWarnEmptyRatio,
		catalog:        Catalog(),
	}
}

// zeroedDocument builds a schema-complete document with every table cell
// explicitly 0, the shape the stub backend produces.
func zeroedDocument() *models.StructuredDocument {
	return &models.StructuredDocument{
		Sections: []models.Section{
			{Title: "一、总体情况", Type: models.SectionText, Content: "本年度工作情况说明，内容详实。"},
			{Title: "二、主动公开政府信息情况", Type: models.SectionDisclosureTable, ActiveDisclosureData: DisclosureTableSkeleton()},
			{Title: "三、收到和处理政府信息公开申请情况", Type: models.SectionRequestTable, TableData: RequestTableSkeleton()},
			{Title: "四、政府信息公开行政复议、行政诉讼情况", Type: models.SectionReviewTable, ReviewLitigationData: ReviewTableSkeleton()},
		},
	}
}

// setCell writes a value at a dotted path inside a table payload.
func setCell(payload map[string]any, path string, value any) {
	parts := []string{}
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	node := payload
	for _, part := range parts[:len(parts)-1] {
		node = node[part].(map[string]any)
	}
	node[parts[len(parts)-1]] = value
}

func itemByKey(items []models.ConsistencyItem, key string) *models.ConsistencyItem {
	for i := range items {
		if items[i].CheckKey == key {
			return &items[i]
		}
	}
	return nil
}

func TestCatalogShape(t *testing.T) {
	rules := Catalog()

	// 7 outcome-total rules, 7 flow identities, 25 column sums, 3 review sums.
	if len(rules) != 42 {
		t.Fatalf("expected 42 rules, got %d", len(rules))
	}

	seen := map[string]bool{}
	for _, rule := range rules {
		if rule.CheckKey == "" || rule.GroupKey == "" || rule.Expr == "" {
			t.Errorf("rule %q is missing metadata", rule.CheckKey)
		}
		if seen[rule.CheckKey] {
			t.Errorf("duplicate check key %q", rule.CheckKey)
		}
		seen[rule.CheckKey] = true
		if len(rule.Left.Terms) == 0 || len(rule.Right.Terms) == 0 {
			t.Errorf("rule %q has an empty operand", rule.CheckKey)
		}
	}
}

func TestEvaluateZeroedDocumentHasNoFailures(t *testing.T) {
	cs := newTestConsistencyService()
	items := cs.Evaluate(zeroedDocument())

	for _, item := range items {
		if item.GroupKey != GroupRequestTable && item.GroupKey != GroupReviewTable {
			continue
		}
		if item.AutoStatus != models.AutoStatusPass {
			t.Errorf("%s: expected PASS on an all-zero document, got %s", item.CheckKey, item.AutoStatus)
		}
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	cs := newTestConsistencyService()
	doc := zeroedDocument()
	setCell(doc.SectionByType(models.SectionRequestTable).TableData, "total.newReceived", 12)

	first := cs.Evaluate(doc)
	second := cs.Evaluate(doc)

	if len(first) != len(second) {
		t.Fatalf("item counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].CheckKey != second[i].CheckKey {
			t.Fatalf("item order differs at %d: %s vs %s", i, first[i].CheckKey, second[i].CheckKey)
		}
		if first[i].AutoStatus != second[i].AutoStatus {
			t.Errorf("%s: status differs across evaluations", first[i].CheckKey)
		}
		if first[i].Fingerprint != second[i].Fingerprint {
			t.Errorf("%s: fingerprint differs across evaluations", first[i].CheckKey)
		}
	}
}

func TestFlowIdentityMismatchFails(t *testing.T) {
	cs := newTestConsistencyService()
	doc := zeroedDocument()
	table := doc.SectionByType(models.SectionRequestTable).TableData

	// 100 came in, only 90 accounted for.
	setCell(table, "total.newReceived", 100)
	setCell(table, "total.results.totalProcessed", 90)

	items := cs.Evaluate(doc)
	item := itemByKey(items, "t3_identity_total")
	if item == nil {
		t.Fatal("flow identity item missing")
	}
	if item.AutoStatus != models.AutoStatusFail {
		t.Fatalf("expected FAIL, got %s", item.AutoStatus)
	}
	if item.Delta == nil || *item.Delta != 10 {
		t.Errorf("expected delta 10, got %v", item.Delta)
	}
	if item.EvidenceJSON == nil {
		t.Error("failed item must carry evidence cells")
	}
}

func TestOutcomeSumAcrossDenialFields(t *testing.T) {
	cs := newTestConsistencyService()
	doc := zeroedDocument()
	table := doc.SectionByType(models.SectionRequestTable).TableData

	// granted 3 + one denial 2 = totalProcessed 5 for natural persons.
	setCell(table, "naturalPerson.results.granted", 3)
	setCell(table, "naturalPerson.results.denied.stateSecret", 2)
	setCell(table, "naturalPerson.results.totalProcessed", 5)

	items := cs.Evaluate(doc)
	item := itemByKey(items, "t3_result_total_naturalPerson")
	if item == nil {
		t.Fatal("outcome total item missing")
	}
	if item.AutoStatus != models.AutoStatusPass {
		t.Errorf("expected PASS, got %s", item.AutoStatus)
	}
	if item.LeftValue == nil || *item.LeftValue != 5 {
		t.Errorf("expected left operand 5, got %v", item.LeftValue)
	}
}

func TestOutcomeSumListsOmittedFieldAsAbsent(t *testing.T) {
	cs := newTestConsistencyService()
	doc := zeroedDocument()
	table := doc.SectionByType(models.SectionRequestTable).TableData

	// The extraction dropped one denial row entirely. The rule still lists
	// the cell, marked absent, instead of silently shrinking the operand.
	denied := table["naturalPerson"].(map[string]any)["results"].(map[string]any)["denied"].(map[string]any)
	delete(denied, "stateSecret")

	items := cs.Evaluate(doc)
	item := itemByKey(items, "t3_result_total_naturalPerson")
	if item == nil {
		t.Fatal("outcome total item missing")
	}

	cells, ok := item.EvidenceJSON["left"].([]EvidenceCell)
	if !ok {
		t.Fatalf("expected left evidence cells, got %T", item.EvidenceJSON["left"])
	}
	if len(cells) != 21 {
		t.Fatalf("expected all 21 outcome cells in evidence, got %d", len(cells))
	}

	found := false
	for _, cell := range cells {
		if cell.Path == "table_3.naturalPerson.results.denied.stateSecret" {
			found = true
			if !cell.Absent {
				t.Error("omitted cell must be marked absent")
			}
		}
	}
	if !found {
		t.Error("omitted cell missing from evidence")
	}
}

func TestSubtreeOperandFlattensLeaves(t *testing.T) {
	cs := newTestConsistencyService()
	doc := zeroedDocument()
	table := doc.SectionByType(models.SectionRequestTable).TableData
	setCell(table, "naturalPerson.results.denied.stateSecret", 2)
	setCell(table, "naturalPerson.results.denied.adminQuery", 1)

	rule := CheckRule{
		CheckKey: "test_subtree",
		GroupKey: GroupRequestTable,
		Expr:     "sum(denied) = 3",
		Left:     Operand{Terms: []Term{{Subtree: "table_3.naturalPerson.results.denied"}}},
		Right:    Operand{Terms: []Term{{Path: "table_3.naturalPerson.results.denied.stateSecret"}, {Path: "table_3.naturalPerson.results.denied.adminQuery"}}},
	}

	item := cs.evaluateRule(doc, rule)
	if item.AutoStatus != models.AutoStatusPass {
		t.Errorf("expected PASS, got %s", item.AutoStatus)
	}
	if item.LeftValue == nil || *item.LeftValue != 3 {
		t.Errorf("expected subtree sum 3, got %v", item.LeftValue)
	}
}

func TestMissingSectionSkips(t *testing.T) {
	cs := newTestConsistencyService()
	doc := zeroedDocument()
	doc.Sections = doc.Sections[:3] // drop the review table

	items := cs.Evaluate(doc)
	for _, key := range []string{"t4_sum_review", "t4_sum_litigationDirect", "t4_sum_litigationPostReview"} {
		item := itemByKey(items, key)
		if item == nil {
			t.Fatalf("%s missing", key)
		}
		if item.AutoStatus != models.AutoStatusSkip {
			t.Errorf("%s: expected SKIP when the section is absent, got %s", key, item.AutoStatus)
		}
	}
}

func TestOneSideAbsent(t *testing.T) {
	cs := newTestConsistencyService()

	// Review table carries only the totals row; outcome columns are absent.
	doc := zeroedDocument()
	doc.SectionByType(models.SectionReviewTable).ReviewLitigationData = map[string]any{
		"review":               map[string]any{"total": 5},
		"litigationDirect":     map[string]any{"total": 0},
		"litigationPostReview": map[string]any{},
	}

	items := cs.Evaluate(doc)

	// Absent outcomes against a non-zero total is an inconsistency.
	if item := itemByKey(items, "t4_sum_review"); item.AutoStatus != models.AutoStatusFail {
		t.Errorf("expected FAIL for absent outcomes vs total=5, got %s", item.AutoStatus)
	}

	// Absent outcomes against an explicit zero total proves nothing.
	if item := itemByKey(items, "t4_sum_litigationDirect"); item.AutoStatus != models.AutoStatusSkip {
		t.Errorf("expected SKIP for absent outcomes vs total=0, got %s", item.AutoStatus)
	}

	// Nothing on either side.
	if item := itemByKey(items, "t4_sum_litigationPostReview"); item.AutoStatus != models.AutoStatusSkip {
		t.Errorf("expected SKIP when both sides are absent, got %s", item.AutoStatus)
	}
}

func TestEmptySentinelsDowngradePassToWarn(t *testing.T) {
	cs := newTestConsistencyService()
	doc := zeroedDocument()

	// Four "/" outcome cells against an explicit zero total: numerically a
	// pass, but 4 of 5 contributing cells carried no data.
	doc.SectionByType(models.SectionReviewTable).ReviewLitigationData["review"] = map[string]any{
		"maintain": "/", "correct": "/", "other": "/", "unfinished": "/", "total": 0,
	}

	items := cs.Evaluate(doc)
	item := itemByKey(items, "t4_sum_review")
	if item == nil {
		t.Fatal("review sum item missing")
	}
	if item.AutoStatus != models.AutoStatusWarn {
		t.Errorf("expected WARN, got %s", item.AutoStatus)
	}
}

func TestEmptySentinelFoldsToZeroNotFailure(t *testing.T) {
	cs := newTestConsistencyService()
	doc := zeroedDocument()
	table := doc.SectionByType(models.SectionRequestTable).TableData

	// A single "/" among real numbers sums as zero and must not flip the
	// identity to FAIL.
	setCell(table, "total.newReceived", 8)
	setCell(table, "total.carriedOver", "/")
	setCell(table, "total.results.totalProcessed", 8)

	items := cs.Evaluate(doc)
	item := itemByKey(items, "t3_identity_total")
	if item.AutoStatus == models.AutoStatusFail {
		t.Errorf("empty sentinel must not produce a numeric failure, got %s", item.AutoStatus)
	}
}

func TestToleranceBounds(t *testing.T) {
	cs := newTestConsistencyService()
	doc := zeroedDocument()

	rule := CheckRule{
		CheckKey: "test_tolerance",
		GroupKey: GroupRequestTable,
		Expr:     "a = b",
		Left:     Operand{Terms: []Term{{Path: "table_3.total.newReceived"}}},
		Right:    Operand{Terms: []Term{{Path: "table_3.total.results.totalProcessed"}}},
	}
	table := doc.SectionByType(models.SectionRequestTable).TableData
	setCell(table, "total.newReceived", 103)
	setCell(table, "total.results.totalProcessed", 100)

	// Exact rule: delta 3 fails.
	if item := cs.evaluateRule(doc, rule); item.AutoStatus != models.AutoStatusFail {
		t.Errorf("exact tolerance: expected FAIL, got %s", item.AutoStatus)
	}

	// Absolute allowance covers it.
	rule.Tolerance = Tolerance{Abs: 3}
	if item := cs.evaluateRule(doc, rule); item.AutoStatus != models.AutoStatusPass {
		t.Errorf("abs tolerance: expected PASS, got %s", item.AutoStatus)
	}

	// Relative allowance: 5% of 100 = 5 covers delta 3.
	rule.Tolerance = Tolerance{RelPct: 5}
	if item := cs.evaluateRule(doc, rule); item.AutoStatus != models.AutoStatusPass {
		t.Errorf("relative tolerance: expected PASS, got %s", item.AutoStatus)
	}

	// Relative allowance too small.
	rule.Tolerance = Tolerance{RelPct: 1}
	if item := cs.evaluateRule(doc, rule); item.AutoStatus != models.AutoStatusFail {
		t.Errorf("tight relative tolerance: expected FAIL, got %s", item.AutoStatus)
	}
}

func TestRulePanicDegradesToSkip(t *testing.T) {
	cs := newTestConsistencyService()

	// A rule with no operands panics nowhere today, so force the issue with
	// a document whose payload shape defeats the resolver only via a rule
	// referencing it oddly. The recover path is exercised directly.
	rule := CheckRule{
		CheckKey: "test_panic",
		GroupKey: GroupRequestTable,
		Expr:     "boom",
		Left:     Operand{Terms: []Term{{Path: "table_3.total.newReceived"}}},
		Right:    Operand{Terms: []Term{{Path: "table_3.total.newReceived"}}},
	}

	item := cs.evaluateRule(nil, rule)
	if item.AutoStatus != models.AutoStatusSkip {
		t.Errorf("expected a panicking rule to degrade to SKIP, got %s", item.AutoStatus)
	}
	if item.CheckKey != "test_panic" {
		t.Error("degraded item must keep its identity")
	}
}

func TestFingerprintStability(t *testing.T) {
	a := fingerprint("table3", "t3_identity_total", "x = y")
	b := fingerprint("table3", "t3_identity_total", "x = y")
	c := fingerprint("table3", "t3_identity_total", "x = z")

	if a != b {
		t.Error("identical inputs must produce identical fingerprints")
	}
	if a == c {
		t.Error("different expressions must produce different fingerprints")
	}
	if len(a) != 16 {
		t.Errorf("expected a 16-hex-char fingerprint, got %q", a)
	}
}
