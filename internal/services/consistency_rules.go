package services

import (
	"fmt"
	"strings"

	"github.com/discloseaudit/backend/internal/models"
)

// Term is one contribution to an operand: either a direct leaf lookup or
// the sum of every numeric leaf under a subtree node.
type Term struct {
	Path    string
	Subtree string
}

// Operand is a path/aggregation expression over the structured document.
// One term is a direct field lookup; several terms are summed.
type Operand struct {
	Terms []Term
}

// Tolerance bounds the acceptable |left - right|. Abs is an absolute
// allowance, RelPct a percentage of the right operand; the larger of the
// two applies. Both zero means exact equality.
type Tolerance struct {
	Abs    float64
	RelPct float64
}

// CheckRule is one declarative consistency check: two operand expressions
// plus a tolerance. Rules are pure data; the evaluator in
// consistency_service.go interprets them generically, so adding a rule
// never touches engine logic.
type CheckRule struct {
	CheckKey  string
	GroupKey  string
	Title     string
	Expr      string
	Sections  []string
	Left      Operand
	Right     Operand
	Tolerance Tolerance
}

// Rule group keys, used by the review UI to bucket items.
const (
	GroupRequestTable = "table3"
	GroupReviewTable  = "table4"
	GroupNarrative    = "text"
	GroupVisual       = "visual"
	GroupStructure    = "structure"
	GroupQuality      = "quality"
)

type requestEntity struct {
	key   string
	label string
}

// Applicant columns of the request-handling table. The totals column is
// listed last so column-sum rules can reference the first six.
var requestEntities = []requestEntity{
	{"naturalPerson", "natural persons"},
	{"legalPerson.commercial", "commercial enterprises"},
	{"legalPerson.research", "research institutions"},
	{"legalPerson.social", "public-interest organizations"},
	{"legalPerson.legal", "legal service agencies"},
	{"legalPerson.other", "other organizations"},
	{"total", "totals"},
}

type requestField struct {
	path  string
	label string
}

// Every row of the request-handling table, keyed by its path inside an
// applicant column. Order matters: it fixes item ordering across runs.
var requestFields = []requestField{
	{"newReceived", "new requests received"},
	{"carriedOver", "carried over from prior year"},
	{"results.granted", "granted in full"},
	{"results.partialGrant", "granted in part"},
	{"results.denied.stateSecret", "denied: state secret"},
	{"results.denied.lawForbidden", "denied: disclosure forbidden by law"},
	{"results.denied.safetyStability", "denied: safety and stability"},
	{"results.denied.thirdPartyRights", "denied: third-party rights"},
	{"results.denied.internalAffairs", "denied: internal affairs"},
	{"results.denied.processInfo", "denied: deliberative process"},
	{"results.denied.enforcementCase", "denied: enforcement case file"},
	{"results.denied.adminQuery", "denied: administrative query"},
	{"results.unableToProvide.noInfo", "unable: information not held"},
	{"results.unableToProvide.needCreation", "unable: would require creation"},
	{"results.unableToProvide.unclear", "unable: request still unclear"},
	{"results.notProcessed.complaint", "not processed: complaint or petition"},
	{"results.notProcessed.repeat", "not processed: repeat request"},
	{"results.notProcessed.publication", "not processed: published material"},
	{"results.notProcessed.massiveRequests", "not processed: mass requests"},
	{"results.notProcessed.confirmInfo", "not processed: confirmation request"},
	{"results.other.overdueCorrection", "other: correction overdue"},
	{"results.other.overdueFee", "other: fee unpaid"},
	{"results.other.otherReasons", "other: other reasons"},
	{"results.totalProcessed", "total processed"},
	{"results.carriedForward", "carried forward to next year"},
}

type reviewCategory struct {
	key   string
	label string
}

var reviewCategories = []reviewCategory{
	{"review", "administrative review"},
	{"litigationDirect", "litigation without prior review"},
	{"litigationPostReview", "litigation after review"},
}

func requestPath(entityKey, field string) string {
	return models.SectionRequestTable + "." + entityKey + "." + field
}

func reviewPath(categoryKey, field string) string {
	return models.SectionReviewTable + "." + categoryKey + "." + field
}

func keySuffix(entityKey string) string {
	return strings.ReplaceAll(strings.ReplaceAll(entityKey, ".", "_"), "/", "_")
}

// outcomeFieldPaths lists every processing-outcome row that contributes to
// "total processed", in table order. The fields are enumerated rather than
// discovered from the payload so a row the extraction omitted still shows
// up in evidence as an absent cell.
func outcomeFieldPaths() []string {
	var paths []string
	for _, field := range requestFields {
		if !strings.HasPrefix(field.path, "results.") {
			continue
		}
		if field.path == "results.totalProcessed" || field.path == "results.carriedForward" {
			continue
		}
		paths = append(paths, field.path)
	}
	return paths
}

// Catalog returns the fixed, ordered rule set the audit engine evaluates.
// All counting rules demand exact equality; tolerances other than zero are
// reserved for future monetary rules.
func Catalog() []CheckRule {
	var rules []CheckRule

	// Per applicant column: the processing outcomes must sum to the
	// "total processed" cell.
	for _, entity := range requestEntities {
		var left []Term
		for _, path := range outcomeFieldPaths() {
			left = append(left, Term{Path: requestPath(entity.key, path)})
		}
		rules = append(rules, CheckRule{
			CheckKey: "t3_result_total_" + keySuffix(entity.key),
			GroupKey: GroupRequestTable,
			Title:    fmt.Sprintf("Request table: outcome rows sum to total processed (%s)", entity.label),
			Expr:     "granted + partialGrant + sum(denied) + sum(unableToProvide) + sum(notProcessed) + sum(other) = totalProcessed",
			Sections: []string{models.SectionRequestTable},
			Left:     Operand{Terms: left},
			Right: Operand{Terms: []Term{
				{Path: requestPath(entity.key, "results.totalProcessed")},
			}},
		})
	}

	// Per applicant column: requests flowing in equal requests flowing out.
	for _, entity := range requestEntities {
		rules = append(rules, CheckRule{
			CheckKey: "t3_identity_" + keySuffix(entity.key),
			GroupKey: GroupRequestTable,
			Title:    fmt.Sprintf("Request table: new + carried over = processed + carried forward (%s)", entity.label),
			Expr:     "newReceived + carriedOver = totalProcessed + carriedForward",
			Sections: []string{models.SectionRequestTable},
			Left: Operand{Terms: []Term{
				{Path: requestPath(entity.key, "newReceived")},
				{Path: requestPath(entity.key, "carriedOver")},
			}},
			Right: Operand{Terms: []Term{
				{Path: requestPath(entity.key, "results.totalProcessed")},
				{Path: requestPath(entity.key, "results.carriedForward")},
			}},
		})
	}

	// Per table row: the six applicant columns sum to the totals column.
	for _, field := range requestFields {
		var left []Term
		for _, entity := range requestEntities[:len(requestEntities)-1] {
			left = append(left, Term{Path: requestPath(entity.key, field.path)})
		}
		rules = append(rules, CheckRule{
			CheckKey: "t3_col_sum_" + strings.ReplaceAll(field.path, ".", "_"),
			GroupKey: GroupRequestTable,
			Title:    fmt.Sprintf("Request table: applicant columns sum to totals column (%s)", field.label),
			Expr:     fmt.Sprintf("sum(applicant_columns.%s) = total.%s", field.path, field.path),
			Sections: []string{models.SectionRequestTable},
			Left:     Operand{Terms: left},
			Right: Operand{Terms: []Term{
				{Path: requestPath("total", field.path)},
			}},
		})
	}

	// Review/litigation table: outcome columns sum to the category total.
	for _, category := range reviewCategories {
		rules = append(rules, CheckRule{
			CheckKey: "t4_sum_" + category.key,
			GroupKey: GroupReviewTable,
			Title:    fmt.Sprintf("Review table: maintained + corrected + other + pending = total (%s)", category.label),
			Expr:     "maintain + correct + other + unfinished = total",
			Sections: []string{models.SectionReviewTable},
			Left: Operand{Terms: []Term{
				{Path: reviewPath(category.key, "maintain")},
				{Path: reviewPath(category.key, "correct")},
				{Path: reviewPath(category.key, "other")},
				{Path: reviewPath(category.key, "unfinished")},
			}},
			Right: Operand{Terms: []Term{
				{Path: reviewPath(category.key, "total")},
			}},
		})
	}

	return rules
}
