package services

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/discloseaudit/backend/internal/models"
)

func floatPtr(v float64) *float64 {
	return &v
}

// narrativeCheck cross-references a number quoted in the narrative text
// against the corresponding table cells.
type narrativeCheck struct {
	key   string
	title string
	expr  string
	regex *regexp.Regexp
	right Operand
}

var narrativeChecks = []narrativeCheck{
	{
		key:   "text_vs_table3_newReceived",
		title: "Narrative: new requests received matches request table",
		expr:  `text("本年新收") = table_3.total.newReceived`,
		regex: regexp.MustCompile(`本年(?:度)?新收.*?(\d+)\s*件`),
		right: Operand{Terms: []Term{{Path: "table_3.total.newReceived"}}},
	},
	{
		key:   "text_vs_table3_carriedOver",
		title: "Narrative: carried-over requests matches request table",
		expr:  `text("上年结转") = table_3.total.carriedOver`,
		regex: regexp.MustCompile(`上年结转.*?(\d+)\s*件`),
		right: Operand{Terms: []Term{{Path: "table_3.total.carriedOver"}}},
	},
	{
		key:   "text_vs_table3_totalApplications",
		title: "Narrative: total requests received matches processed + carried forward",
		expr:  `text("收到申请") = table_3.total.results.totalProcessed + table_3.total.results.carriedForward`,
		regex: regexp.MustCompile(`(?:共计?|合计)?收到.*?(?:政府信息公开|政务公开)?申请.*?(\d+)\s*件`),
		right: Operand{Terms: []Term{
			{Path: "table_3.total.results.totalProcessed"},
			{Path: "table_3.total.results.carriedForward"},
		}},
	},
	{
		key:   "text_vs_table3_carriedForward",
		title: "Narrative: carried-forward requests matches request table",
		expr:  `text("结转下年度") = table_3.total.results.carriedForward`,
		regex: regexp.MustCompile(`结转下年度(?:继续办理)?.*?(\d+)\s*件`),
		right: Operand{Terms: []Term{{Path: "table_3.total.results.carriedForward"}}},
	},
	{
		key:   "text_vs_table4_reviewTotal",
		title: "Narrative: administrative review count matches review table",
		expr:  `text("行政复议") = table_4.review.total`,
		regex: regexp.MustCompile(`行政复议[^，。、；]*?(\d+)\s*件`),
		right: Operand{Terms: []Term{{Path: "table_4.review.total"}}},
	},
	{
		key:   "text_vs_table4_litigationTotal",
		title: "Narrative: litigation count matches review table",
		expr:  `text("行政诉讼") = table_4.litigationDirect.total + table_4.litigationPostReview.total`,
		regex: regexp.MustCompile(`行政诉讼[类案件]{0,10}?(\d+)\s*件`),
		right: Operand{Terms: []Term{
			{Path: "table_4.litigationDirect.total"},
			{Path: "table_4.litigationPostReview.total"},
		}},
	},
}

// narrativeItems emits one item per narrative pattern that actually
// matches somewhere in the document's text sections. A pattern with no
// match produces nothing: an absent sentence is not an inconsistency.
func (cs *ConsistencyService) narrativeItems(doc *models.StructuredDocument) []models.ConsistencyItem {
	var items []models.ConsistencyItem

	for _, check := range narrativeChecks {
		textValue, matched, sectionTitle := findNarrativeNumber(doc, check.regex)
		if matched == "" {
			continue
		}

		item := models.ConsistencyItem{
			CheckKey:    check.key,
			GroupKey:    GroupNarrative,
			Fingerprint: fingerprint(GroupNarrative, check.key, check.expr),
			Title:       check.title,
			Expr:        check.expr,
			LeftValue:   floatPtr(textValue),
		}

		right := resolveOperand(doc, check.right)
		item.EvidenceJSON = models.JSONB{
			"matchedText":  matched,
			"sectionTitle": sectionTitle,
			"textValue":    textValue,
			"right":        right.cells,
		}

		if right.absent() {
			if textValue != 0 {
				item.AutoStatus = models.AutoStatusFail
			} else {
				item.AutoStatus = models.AutoStatusSkip
			}
		} else {
			rightValue := right.value
			delta := textValue - rightValue
			item.RightValue = &rightValue
			item.Delta = &delta
			if delta == 0 {
				item.AutoStatus = models.AutoStatusPass
				if cs.lowConfidence(operandResult{cells: []EvidenceCell{{Value: textValue}}}, right) {
					item.AutoStatus = models.AutoStatusWarn
				}
			} else {
				item.AutoStatus = models.AutoStatusFail
			}
		}

		items = append(items, item)
	}

	return items
}

// findNarrativeNumber returns the first capture of the pattern across the
// document's text sections, in section order.
func findNarrativeNumber(doc *models.StructuredDocument, re *regexp.Regexp) (float64, string, string) {
	for _, section := range doc.Sections {
		if section.Type != models.SectionText || section.Content == "" {
			continue
		}
		match := re.FindStringSubmatch(section.Content)
		if match == nil {
			continue
		}
		value, ok := models.ParseCell(match[1])
		if !ok {
			continue
		}
		return value, match[0], section.Title
	}
	return 0, "", ""
}

// Empty-cell counts above these bounds stop looking like sparse data and
// start looking like a broken extraction.
const (
	requestTableEmptyFailThreshold = 10
	reviewTableEmptyFailThreshold  = 5
)

// structureItems audits the document's shape: tables announced by their
// narrative heading but missing their data, and tables riddled with empty
// cells.
func (cs *ConsistencyService) structureItems(doc *models.StructuredDocument) []models.ConsistencyItem {
	var items []models.ConsistencyItem

	// Heading present but table data missing.
	if hasRequestHeading(doc) && !doc.HasSection(models.SectionRequestTable) {
		items = append(items, models.ConsistencyItem{
			CheckKey:    "structure_t3_missing",
			GroupKey:    GroupStructure,
			Fingerprint: fingerprint(GroupStructure, "structure_t3_missing", "has_request_table"),
			Title:       "Structure: request section heading present but table data missing",
			Expr:        "has_request_table_data",
			LeftValue:   floatPtr(0),
			RightValue:  floatPtr(1),
			Delta:       floatPtr(-1),
			AutoStatus:  models.AutoStatusFail,
			EvidenceJSON: models.JSONB{
				"sectionType": models.SectionRequestTable,
			},
		})
	}

	items = append(items, cs.emptyCellItems(doc, models.SectionRequestTable,
		"structure_t3_empty_cells", "Structure: empty or \"/\" cells in the request table",
		requestTableEmptyFailThreshold)...)
	items = append(items, cs.emptyCellItems(doc, models.SectionReviewTable,
		"structure_t4_empty_cells", "Structure: empty or \"/\" cells in the review table",
		reviewTableEmptyFailThreshold)...)

	return items
}

func hasRequestHeading(doc *models.StructuredDocument) bool {
	for _, section := range doc.Sections {
		if strings.Contains(section.Title, "三、") || strings.Contains(section.Title, "收到和处理") {
			return true
		}
	}
	return false
}

func (cs *ConsistencyService) emptyCellItems(doc *models.StructuredDocument, sectionType, checkKey, title string, failThreshold int) []models.ConsistencyItem {
	section := doc.SectionByType(sectionType)
	if section == nil || section.Payload() == nil {
		return nil
	}

	count, examples := countEmptyCells(section.Payload(), sectionType)
	if count == 0 {
		return nil
	}

	status := models.AutoStatusWarn
	if count > failThreshold {
		status = models.AutoStatusFail
	}

	return []models.ConsistencyItem{{
		CheckKey:    checkKey,
		GroupKey:    GroupStructure,
		Fingerprint: fingerprint(GroupStructure, checkKey, "empty_or_slash_cells == 0"),
		Title:       fmt.Sprintf("%s (%d found)", title, count),
		Expr:        "empty_or_slash_cells == 0",
		LeftValue:   floatPtr(float64(count)),
		RightValue:  floatPtr(0),
		Delta:       floatPtr(float64(count)),
		AutoStatus:  status,
		EvidenceJSON: models.JSONB{
			"emptyCount": count,
			"examples":   examples,
		},
	}}
}

// countEmptyCells walks a table payload and counts empty-sentinel leaves,
// keeping up to ten example paths for the evidence.
func countEmptyCells(node map[string]any, prefix string) (int, []string) {
	count := 0
	var examples []string

	keys := make([]string, 0, len(node))
	for key := range node {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path := prefix + "." + key
		switch value := node[key].(type) {
		case map[string]any:
			childCount, childExamples := countEmptyCells(value, path)
			count += childCount
			for _, example := range childExamples {
				if len(examples) < 10 {
					examples = append(examples, example)
				}
			}
		default:
			if models.IsEmptyCell(value) {
				count++
				if len(examples) < 10 {
					examples = append(examples, fmt.Sprintf("%s: %q", path, fmt.Sprint(value)))
				}
			}
		}
	}
	return count, examples
}

// visualItems surfaces flags raised by the upstream visual pass on the
// source file, e.g. tables printed without border lines.
func (cs *ConsistencyService) visualItems(doc *models.StructuredDocument) []models.ConsistencyItem {
	if doc.VisualAudit == nil {
		return nil
	}

	borderMissing := doc.VisualAudit["border_missing"] == true ||
		doc.VisualAudit["table_border_missing"] == true
	if !borderMissing {
		return nil
	}

	return []models.ConsistencyItem{{
		CheckKey:    "visual_border_missing",
		GroupKey:    GroupVisual,
		Fingerprint: fingerprint(GroupVisual, "visual_border_missing", "table_has_borders"),
		Title:       "Visual: source tables are missing visible borders",
		Expr:        "table_has_borders == true",
		LeftValue:   floatPtr(0),
		RightValue:  floatPtr(1),
		Delta:       floatPtr(-1),
		AutoStatus:  models.AutoStatusFail,
		EvidenceJSON: models.JSONB{
			"visualAudit": doc.VisualAudit,
		},
	}}
}

// qualityItems checks the narrative sections for required substance: the
// problems section must say something, and a report that charged fees must
// explain them in the other-matters section.
func (cs *ConsistencyService) qualityItems(doc *models.StructuredDocument) []models.ConsistencyItem {
	var items []models.ConsistencyItem

	if section := findTextSection(doc, "五、", "存在的主要问题"); section != nil {
		content := strings.TrimSpace(section.Content)
		if isNoneAnswer(content) || len([]rune(content)) < 10 {
			items = append(items, models.ConsistencyItem{
				CheckKey:    "quality_problems_section_gap",
				GroupKey:    GroupQuality,
				Fingerprint: fingerprint(GroupQuality, "quality_problems_section_gap", "content_length"),
				Title:       "Quality: problems-and-improvements section is empty or trivial",
				Expr:        `len(content) >= 10 && content != "无"`,
				LeftValue:   floatPtr(float64(len([]rune(content)))),
				RightValue:  floatPtr(10),
				AutoStatus:  models.AutoStatusFail,
				EvidenceJSON: models.JSONB{
					"content": content,
				},
			})
		}
	}

	fees, feesOK := doc.LookupPath("table_2.fees.amount")
	if feesOK {
		if amount, numeric := models.ParseCell(fees); numeric && amount > 0 {
			if section := findTextSection(doc, "六、", "其他需要报告"); section != nil {
				content := strings.TrimSpace(section.Content)
				if isNoneAnswer(content) {
					items = append(items, models.ConsistencyItem{
						CheckKey:    "quality_fee_disclosure_gap",
						GroupKey:    GroupQuality,
						Fingerprint: fingerprint(GroupQuality, "quality_fee_disclosure_gap", "fees_explained"),
						Title:       "Quality: fees were charged but the other-matters section says none",
						Expr:        `fees > 0 => other_matters != "无"`,
						LeftValue:   floatPtr(amount),
						RightValue:  floatPtr(0),
						Delta:       floatPtr(amount),
						AutoStatus:  models.AutoStatusFail,
						EvidenceJSON: models.JSONB{
							"feesAmount": amount,
							"content":    content,
						},
					})
				}
			}
		}
	}

	return items
}

func findTextSection(doc *models.StructuredDocument, titleFragments ...string) *models.Section {
	for i := range doc.Sections {
		section := &doc.Sections[i]
		if section.Type != models.SectionText {
			continue
		}
		for _, fragment := range titleFragments {
			if strings.Contains(section.Title, fragment) {
				return section
			}
		}
	}
	return nil
}

func isNoneAnswer(content string) bool {
	switch content {
	case "", "无", "无。", "None", "none":
		return true
	}
	return false
}
