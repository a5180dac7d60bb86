package services

import (
	"encoding/json"
	"strings"

	"github.com/discloseaudit/backend/internal/models"
)

// requestResultsSkeleton is the processing-outcome block of the request
// table, shared by every applicant column.
func requestResultsSkeleton() map[string]any {
	return map[string]any{
		"granted":      0,
		"partialGrant": 0,
		"denied": map[string]any{
			"stateSecret":      0,
			"lawForbidden":     0,
			"safetyStability":  0,
			"thirdPartyRights": 0,
			"internalAffairs":  0,
			"processInfo":      0,
			"enforcementCase":  0,
			"adminQuery":       0,
		},
		"unableToProvide": map[string]any{
			"noInfo":       0,
			"needCreation": 0,
			"unclear":      0,
		},
		"notProcessed": map[string]any{
			"complaint":       0,
			"repeat":          0,
			"publication":     0,
			"massiveRequests": 0,
			"confirmInfo":     0,
		},
		"other": map[string]any{
			"overdueCorrection": 0,
			"overdueFee":        0,
			"otherReasons":      0,
		},
		"totalProcessed": 0,
		"carriedForward": 0,
	}
}

func requestEntitySkeleton() map[string]any {
	return map[string]any{
		"newReceived": 0,
		"carriedOver": 0,
		"results":     requestResultsSkeleton(),
	}
}

// RequestTableSkeleton is the full shape of the request-handling table:
// one column per applicant class plus the totals column.
func RequestTableSkeleton() map[string]any {
	return map[string]any{
		"naturalPerson": requestEntitySkeleton(),
		"legalPerson": map[string]any{
			"commercial": requestEntitySkeleton(),
			"research":   requestEntitySkeleton(),
			"social":     requestEntitySkeleton(),
			"legal":      requestEntitySkeleton(),
			"other":      requestEntitySkeleton(),
		},
		"total": requestEntitySkeleton(),
	}
}

// ReviewTableSkeleton is the review/litigation outcome table.
func ReviewTableSkeleton() map[string]any {
	category := func() map[string]any {
		return map[string]any{"maintain": 0, "correct": 0, "other": 0, "unfinished": 0, "total": 0}
	}
	return map[string]any{
		"review":               category(),
		"litigationDirect":     category(),
		"litigationPostReview": category(),
	}
}

// DisclosureTableSkeleton is the active-disclosure statistics table.
func DisclosureTableSkeleton() map[string]any {
	return map[string]any{
		"regulations":        map[string]any{"made": 0, "repealed": 0, "valid": 0},
		"normativeDocuments": map[string]any{"made": 0, "repealed": 0, "valid": 0},
		"licensing":          map[string]any{"processed": 0},
		"punishment":         map[string]any{"processed": 0},
		"coercion":           map[string]any{"processed": 0},
		"fees":               map[string]any{"amount": 0},
	}
}

func mustJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// BuildSystemInstruction is the prompt shared by the live extraction
// backends. It pins the section schema and the empty-cell rules the audit
// engine depends on: blank cells and "/" markers must NOT be coerced to 0,
// because the engine treats "explicitly zero" and "missing" differently.
func BuildSystemInstruction() string {
	lines := []string{
		"You are a professional assistant for extracting structured data from Chinese Government Information Disclosure Annual Reports (政府信息公开工作年度报告).",
		"Analyze the OCR text provided by the user and return a JSON object representing the FULL document structure.",
		"",
		"CRITICAL RULE: Return ONLY valid JSON. No markdown formatting.",
		"",
		"SECTIONS TO EXTRACT:",
		"1. Overall Situation (一、总体情况) -> type: \"" + models.SectionText + "\"",
		"2. Active Disclosure (二、主动公开政府信息情况) -> type: \"" + models.SectionDisclosureTable + "\"",
		"3. Received and Processed Requests (三、收到和处理政府信息公开申请情况) -> type: \"" + models.SectionRequestTable + "\"",
		"4. Administrative Review/Litigation (四、政府信息公开行政复议、行政诉讼情况) -> type: \"" + models.SectionReviewTable + "\"",
		"5. Problems and Improvements (五、存在的主要问题及改进情况) -> type: \"" + models.SectionText + "\"",
		"6. Other Matters (六、其他需要报告的事项) -> type: \"" + models.SectionText + "\"",
		"",
		"Active Disclosure (" + models.SectionDisclosureTable + ") extract into activeDisclosureData:",
		mustJSON(DisclosureTableSkeleton()),
		"",
		"=== CRITICAL DATA EXTRACTION RULES ===",
		"For ALL table cells:",
		"1. If a cell contains a NUMBER, extract it as a number (integer).",
		"2. If a cell contains \"/\" or \"-\" or \"—\", extract it AS THAT STRING. DO NOT convert to 0.",
		"3. If a cell is BLANK or EMPTY, extract it as null or empty string \"\". DO NOT convert to 0.",
		"4. Only use 0 when the cell explicitly shows \"0\".",
		"",
		"Request table (" + models.SectionRequestTable + ") extract into tableData:",
		mustJSON(RequestTableSkeleton()),
		"",
		"Review/Litigation table (" + models.SectionReviewTable + ") extract into reviewLitigationData:",
		mustJSON(ReviewTableSkeleton()),
		"",
		"For \"text\" sections: extract the FULL text content VERBATIM. Do not summarize.",
	}
	return strings.Join(lines, "\n")
}
