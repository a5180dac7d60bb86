package models

import (
	"testing"
)

func TestParseCell(t *testing.T) {
	tests := []struct {
		name  string
		raw   any
		value float64
		ok    bool
	}{
		{name: "float", raw: float64(42), value: 42, ok: true},
		{name: "int", raw: 7, value: 7, ok: true},
		{name: "numeric string", raw: "12", value: 12, ok: true},
		{name: "thousands separator", raw: "1,234", value: 1234, ok: true},
		{name: "padded string", raw: " 9 ", value: 9, ok: true},
		{name: "explicit zero", raw: "0", value: 0, ok: true},
		{name: "empty string", raw: "", value: 0, ok: false},
		{name: "dash", raw: "-", value: 0, ok: false},
		{name: "em dash", raw: "—", value: 0, ok: false},
		{name: "slash", raw: "/", value: 0, ok: false},
		{name: "not applicable", raw: "N/A", value: 0, ok: false},
		{name: "nil", raw: nil, value: 0, ok: false},
		{name: "garbage", raw: "abc", value: 0, ok: false},
	}

	for _, tt := range tests {
		value, ok := ParseCell(tt.raw)
		if ok != tt.ok {
			t.Errorf("%s: expected ok=%v, got %v", tt.name, tt.ok, ok)
		}
		if value != tt.value {
			t.Errorf("%s: expected value=%v, got %v", tt.name, tt.value, value)
		}
	}
}

func TestIsEmptyCellDistinguishesZero(t *testing.T) {
	// An explicit 0 is data; the sentinels are not.
	if IsEmptyCell(0) {
		t.Error("explicit 0 should not count as empty")
	}
	if IsEmptyCell("0") {
		t.Error("explicit \"0\" should not count as empty")
	}
	for _, sentinel := range []any{nil, "", "-", "—", "/", "N/A", "  "} {
		if !IsEmptyCell(sentinel) {
			t.Errorf("expected %q to count as empty", sentinel)
		}
	}
}

func TestLookupPath(t *testing.T) {
	doc := StructuredDocument{
		Sections: []Section{
			{Title: "三、", Type: SectionRequestTable, TableData: map[string]any{
				"naturalPerson": map[string]any{
					"newReceived": 5,
					"results":     map[string]any{"granted": 3},
				},
			}},
		},
	}

	value, ok := doc.LookupPath("table_3.naturalPerson.results.granted")
	if !ok {
		t.Fatal("expected path to resolve")
	}
	if value != 3 {
		t.Errorf("expected 3, got %v", value)
	}

	if _, ok := doc.LookupPath("table_3.naturalPerson.results.denied"); ok {
		t.Error("expected missing leaf to report absent")
	}
	if _, ok := doc.LookupPath("table_4.review.total"); ok {
		t.Error("expected missing section to report absent")
	}
	if _, ok := doc.LookupPath("table_3.naturalPerson.newReceived.deeper"); ok {
		t.Error("expected descent through a leaf to report absent")
	}
}

func TestHasSection(t *testing.T) {
	doc := StructuredDocument{
		Sections: []Section{
			{Title: "一、", Type: SectionText, Content: "总体情况"},
			{Title: "三、", Type: SectionRequestTable}, // listed without payload
			{Title: "四、", Type: SectionReviewTable, ReviewLitigationData: map[string]any{}},
		},
	}

	if !doc.HasSection(SectionText) {
		t.Error("text section should be present")
	}
	if doc.HasSection(SectionRequestTable) {
		t.Error("table section without payload should count as absent")
	}
	if !doc.HasSection(SectionReviewTable) {
		t.Error("table section with an empty payload is still present")
	}
}

func TestDocumentValidate(t *testing.T) {
	empty := StructuredDocument{}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for document with no sections")
	}

	untyped := StructuredDocument{Sections: []Section{{Title: "x"}}}
	if err := untyped.Validate(); err == nil {
		t.Error("expected error for untyped section")
	}

	missingPayload := StructuredDocument{Sections: []Section{
		{Title: "三、", Type: SectionRequestTable},
	}}
	if err := missingPayload.Validate(); err == nil {
		t.Error("expected error for table section without payload")
	}

	valid := StructuredDocument{Sections: []Section{
		{Title: "一、", Type: SectionText, Content: "总体情况"},
		{Title: "三、", Type: SectionRequestTable, TableData: map[string]any{"total": map[string]any{}}},
	}}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid document, got %v", err)
	}
}
