package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Section type wire values, as emitted by the extraction backends.
const (
	SectionText            = "text"
	SectionDisclosureTable = "table_2"
	SectionRequestTable    = "table_3"
	SectionReviewTable     = "table_4"
)

// Section is one typed chunk of a structured document. Exactly one of the
// payload fields is populated depending on Type; table payloads stay generic
// maps so empty-cell sentinels ("", "/", "-") and unknown extra fields
// survive untouched until the audit engine interprets them.
type Section struct {
	Title                string         `json:"title"`
	Type                 string         `json:"type"`
	Content              string         `json:"content,omitempty"`
	ActiveDisclosureData map[string]any `json:"activeDisclosureData,omitempty"`
	TableData            map[string]any `json:"tableData,omitempty"`
	ReviewLitigationData map[string]any `json:"reviewLitigationData,omitempty"`
}

// StructuredDocument is the normalized output of an extraction call.
type StructuredDocument struct {
	Sections    []Section      `json:"sections"`
	VisualAudit map[string]any `json:"visual_audit,omitempty"`
}

// Payload returns the table payload for the section's type, nil for text
// and unknown section types.
func (s *Section) Payload() map[string]any {
	switch s.Type {
	case SectionDisclosureTable:
		return s.ActiveDisclosureData
	case SectionRequestTable:
		return s.TableData
	case SectionReviewTable:
		return s.ReviewLitigationData
	}
	return nil
}

// SectionByType returns the first section of the given type.
func (d *StructuredDocument) SectionByType(typ string) *Section {
	for i := range d.Sections {
		if d.Sections[i].Type == typ {
			return &d.Sections[i]
		}
	}
	return nil
}

// HasSection reports whether a section of the given type is present with
// data attached. A table section listed without its payload counts as
// absent; a payload that is present but all-empty does not.
func (d *StructuredDocument) HasSection(typ string) bool {
	s := d.SectionByType(typ)
	if s == nil {
		return false
	}
	if typ == SectionText {
		return true
	}
	return s.Payload() != nil
}

// LookupPath resolves a dotted path whose first segment is a section type,
// e.g. "table_3.naturalPerson.results.granted". The boolean is false when
// the section or any intermediate node is missing.
func (d *StructuredDocument) LookupPath(path string) (any, bool) {
	parts := strings.Split(path, ".")
	if len(parts) == 0 {
		return nil, false
	}

	section := d.SectionByType(parts[0])
	if section == nil {
		return nil, false
	}

	var current any = section.Payload()
	if current == nil {
		return nil, false
	}

	for _, part := range parts[1:] {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Validate checks the structural contract every extraction backend must
// honor: at least one section, every section typed, and every known table
// section carrying its payload. Anything looser is rejected at the gateway
// boundary rather than silently accepted.
func (d *StructuredDocument) Validate() error {
	if len(d.Sections) == 0 {
		return fmt.Errorf("document has no sections")
	}

	for i, s := range d.Sections {
		if strings.TrimSpace(s.Type) == "" {
			return fmt.Errorf("section %d has no type", i)
		}
		switch s.Type {
		case SectionDisclosureTable, SectionRequestTable, SectionReviewTable:
			if s.Payload() == nil {
				return fmt.Errorf("section %d (%s) is missing its table payload", i, s.Type)
			}
		}
	}
	return nil
}

// Sentinels the source documents use for "no value in this cell". These
// fold to zero during aggregation but are reported as empty evidence cells,
// distinct from an explicit 0.
func IsEmptyCell(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		switch strings.TrimSpace(v) {
		case "", "-", "—", "/", "N/A":
			return true
		}
	}
	return false
}

// ParseCell interprets a raw table cell. ok is false for empty sentinels
// and anything non-numeric.
func ParseCell(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if IsEmptyCell(v) {
			return 0, false
		}
		trimmed := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}
