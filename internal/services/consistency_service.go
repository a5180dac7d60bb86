package services

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/discloseaudit/backend/internal/logger"
	"github.com/discloseaudit/backend/internal/models"
	"gorm.io/gorm"
)

const defaultWarnEmptyRatio = 0.5

// ConsistencyService evaluates the check-rule catalog against structured
// documents and persists the resulting runs. Evaluation is a pure function
// of the document: same document, same items, same statuses.
type ConsistencyService struct {
	db             *gorm.DB
	warnEmptyRatio float64
	catalog        []CheckRule
}

func NewConsistencyService(db *gorm.DB) *ConsistencyService {
	ratio := defaultWarnEmptyRatio
	if raw := os.Getenv("CHECK_WARN_EMPTY_RATIO"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 && parsed <= 1 {
			ratio = parsed
		}
	}

	return &ConsistencyService{
		db:             db,
		warnEmptyRatio: ratio,
		catalog:        Catalog(),
	}
}

// EvidenceCell records one document cell that contributed to an operand:
// its path, the raw extracted value, the numeric value used for
// aggregation, and whether it was an empty sentinel or absent entirely.
type EvidenceCell struct {
	Path   string  `json:"path"`
	Raw    any     `json:"raw"`
	Value  float64 `json:"value"`
	Empty  bool    `json:"empty,omitempty"`
	Absent bool    `json:"absent,omitempty"`
}

type operandResult struct {
	value       float64
	cells       []EvidenceCell
	emptyCount  int
	absentCount int
}

// absent reports whether every referenced cell was missing from the
// document, as opposed to present-but-empty.
func (r operandResult) absent() bool {
	return len(r.cells) > 0 && r.absentCount == len(r.cells)
}

// Evaluate runs the full catalog plus the narrative, structure, and visual
// audits over one document. The returned items carry no run or version ids
// yet; persistence fills those in.
func (cs *ConsistencyService) Evaluate(doc *models.StructuredDocument) []models.ConsistencyItem {
	items := make([]models.ConsistencyItem, 0, len(cs.catalog))

	for _, rule := range cs.catalog {
		items = append(items, cs.evaluateRule(doc, rule))
	}

	items = append(items, cs.narrativeItems(doc)...)
	items = append(items, cs.structureItems(doc)...)
	items = append(items, cs.visualItems(doc)...)
	items = append(items, cs.qualityItems(doc)...)

	return items
}

func (cs *ConsistencyService) evaluateRule(doc *models.StructuredDocument, rule CheckRule) (item models.ConsistencyItem) {
	item = models.ConsistencyItem{
		CheckKey:    rule.CheckKey,
		GroupKey:    rule.GroupKey,
		Fingerprint: fingerprint(rule.GroupKey, rule.CheckKey, rule.Expr),
		Title:       rule.Title,
		Expr:        rule.Expr,
		Tolerance:   rule.Tolerance.Abs,
	}

	// A rule that trips over an unexpected document shape must not abort
	// the run; that single item degrades to SKIP.
	defer func() {
		if r := recover(); r != nil {
			item.LeftValue = nil
			item.RightValue = nil
			item.Delta = nil
			item.AutoStatus = models.AutoStatusSkip
			item.EvidenceJSON = models.JSONB{"error": fmt.Sprintf("rule evaluation failed: %v", r)}
		}
	}()

	for _, sectionType := range rule.Sections {
		if !doc.HasSection(sectionType) {
			item.AutoStatus = models.AutoStatusSkip
			item.EvidenceJSON = models.JSONB{"missingSection": sectionType}
			return item
		}
	}

	left := resolveOperand(doc, rule.Left)
	right := resolveOperand(doc, rule.Right)

	item.EvidenceJSON = models.JSONB{
		"left":  left.cells,
		"right": right.cells,
	}

	switch {
	case left.absent() && right.absent():
		// No data on either side: reporting PASS here would be false
		// confidence over missing data.
		item.AutoStatus = models.AutoStatusSkip

	case left.absent() || right.absent():
		// One side has data, the other does not: a structural
		// inconsistency when the present side is non-zero.
		present := right
		if right.absent() {
			present = left
			value := left.value
			item.LeftValue = &value
		} else {
			value := right.value
			item.RightValue = &value
		}
		if present.value != 0 {
			item.AutoStatus = models.AutoStatusFail
		} else {
			item.AutoStatus = models.AutoStatusSkip
		}

	default:
		leftValue, rightValue := left.value, right.value
		delta := leftValue - rightValue
		item.LeftValue = &leftValue
		item.RightValue = &rightValue
		item.Delta = &delta

		allowed := rule.Tolerance.Abs
		if rule.Tolerance.RelPct > 0 {
			if relative := rule.Tolerance.RelPct / 100 * math.Abs(rightValue); relative > allowed {
				allowed = relative
			}
		}
		item.Tolerance = allowed

		if math.Abs(delta) <= allowed {
			item.AutoStatus = models.AutoStatusPass
			if cs.lowConfidence(left, right) {
				item.AutoStatus = models.AutoStatusWarn
			}
		} else {
			item.AutoStatus = models.AutoStatusFail
		}
	}

	return item
}

// lowConfidence flags comparisons where so many contributing cells were
// empty that a numeric pass says little about extraction quality.
func (cs *ConsistencyService) lowConfidence(left, right operandResult) bool {
	total := len(left.cells) + len(right.cells)
	missing := left.emptyCount + left.absentCount + right.emptyCount + right.absentCount
	if total == 0 || missing == 0 {
		return false
	}
	return float64(missing)/float64(total) >= cs.warnEmptyRatio
}

func resolveOperand(doc *models.StructuredDocument, op Operand) operandResult {
	var result operandResult

	for _, term := range op.Terms {
		if term.Path != "" {
			result.addCell(cellAt(doc, term.Path))
			continue
		}

		node, ok := doc.LookupPath(term.Subtree)
		if !ok {
			result.addCell(EvidenceCell{Path: term.Subtree, Absent: true})
			continue
		}
		for _, cell := range subtreeCells(node, term.Subtree) {
			result.addCell(cell)
		}
	}

	return result
}

func (r *operandResult) addCell(cell EvidenceCell) {
	r.cells = append(r.cells, cell)
	r.value += cell.Value
	if cell.Absent {
		r.absentCount++
	} else if cell.Empty {
		r.emptyCount++
	}
}

func cellAt(doc *models.StructuredDocument, path string) EvidenceCell {
	raw, ok := doc.LookupPath(path)
	if !ok {
		return EvidenceCell{Path: path, Absent: true}
	}
	return cellOf(path, raw)
}

func cellOf(path string, raw any) EvidenceCell {
	value, numeric := models.ParseCell(raw)
	if !numeric {
		// Empty sentinels and non-numeric noise count as zero for the sum
		// but stay visible as empty cells in evidence.
		return EvidenceCell{Path: path, Raw: raw, Empty: true}
	}
	return EvidenceCell{Path: path, Raw: raw, Value: value}
}

// subtreeCells flattens every leaf under a node into evidence cells,
// sorted by path so repeated evaluations agree cell-for-cell.
func subtreeCells(node any, prefix string) []EvidenceCell {
	asMap, ok := node.(map[string]any)
	if !ok {
		return []EvidenceCell{cellOf(prefix, node)}
	}

	keys := make([]string, 0, len(asMap))
	for key := range asMap {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var cells []EvidenceCell
	for _, key := range keys {
		cells = append(cells, subtreeCells(asMap[key], prefix+"."+key)...)
	}
	return cells
}

func fingerprint(groupKey, checkKey, expr string) string {
	digest := sha256.Sum256([]byte(groupKey + ":" + checkKey + ":" + expr))
	return fmt.Sprintf("%x", digest[:8])
}

// RunForVersion evaluates the catalog against a version's stored document
// and persists a fresh run. Items of prior runs are replaced, but a
// reviewer's human_status is carried over by check key before the old run
// is dropped.
func (cs *ConsistencyService) RunForVersion(versionID uint) (*models.ConsistencyRun, error) {
	var version models.ReportVersion
	if err := cs.db.First(&version, versionID).Error; err != nil {
		return nil, fmt.Errorf("failed to load version %d: %w", versionID, err)
	}
	if len(version.ParsedJSON) == 0 {
		return nil, fmt.Errorf("version %d has no parsed document to audit", versionID)
	}

	var items []models.ConsistencyItem
	var doc models.StructuredDocument
	if err := json.Unmarshal(version.ParsedJSON, &doc); err != nil {
		// A corrupt stored payload still yields a complete run: one SKIP
		// item explaining why nothing was assessable.
		items = []models.ConsistencyItem{{
			CheckKey:     "document_unreadable",
			GroupKey:     GroupStructure,
			Fingerprint:  fingerprint(GroupStructure, "document_unreadable", "json_decode"),
			Title:        "Stored document could not be decoded",
			Expr:         "json_decode(parsed_json)",
			AutoStatus:   models.AutoStatusSkip,
			EvidenceJSON: models.JSONB{"error": err.Error()},
		}}
	} else {
		items = cs.Evaluate(&doc)
	}

	var run models.ConsistencyRun
	err := cs.db.Transaction(func(tx *gorm.DB) error {
		// Read reviewer verdicts inside the same transaction that drops
		// the old items, so a verdict written concurrently is either
		// carried over or rejected, never silently lost.
		priorStatus, err := priorHumanStatuses(tx, versionID)
		if err != nil {
			return err
		}

		run = models.ConsistencyRun{
			ReportVersionID: versionID,
			Status:          models.RunStatusRunning,
		}
		if err := tx.Create(&run).Error; err != nil {
			return fmt.Errorf("failed to create consistency run: %w", err)
		}

		for i := range items {
			items[i].RunID = run.ID
			items[i].ReportVersionID = versionID
			if status, ok := priorStatus[items[i].CheckKey]; ok {
				carried := status
				items[i].HumanStatus = &carried
			}
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return fmt.Errorf("failed to write consistency items: %w", err)
			}
		}

		// Replace, never merge: the prior run's items go away once the
		// new run is fully written.
		if err := tx.Where("report_version_id = ? AND run_id <> ?", versionID, run.ID).
			Delete(&models.ConsistencyItem{}).Error; err != nil {
			return fmt.Errorf("failed to drop superseded items: %w", err)
		}
		if err := tx.Where("report_version_id = ? AND id <> ?", versionID, run.ID).
			Delete(&models.ConsistencyRun{}).Error; err != nil {
			return fmt.Errorf("failed to drop superseded runs: %w", err)
		}

		now := time.Now()
		run.Status = models.RunStatusSucceeded
		run.Summary = summarize(items)
		run.FinishedAt = &now
		return tx.Model(&models.ConsistencyRun{}).Where("id = ?", run.ID).Updates(map[string]any{
			"status":      run.Status,
			"summary":     run.Summary,
			"finished_at": run.FinishedAt,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	logger.WithVersion(versionID).WithField("run_id", run.ID).
		WithField("items", len(items)).Info("Consistency run completed")

	run.Items = items
	return &run, nil
}

func priorHumanStatuses(tx *gorm.DB, versionID uint) (map[string]models.HumanStatus, error) {
	var prior []models.ConsistencyItem
	if err := tx.Select("check_key", "human_status").
		Where("report_version_id = ? AND human_status IS NOT NULL", versionID).
		Find(&prior).Error; err != nil {
		return nil, fmt.Errorf("failed to load prior review statuses: %w", err)
	}

	statuses := make(map[string]models.HumanStatus, len(prior))
	for _, item := range prior {
		if item.HumanStatus != nil {
			statuses[item.CheckKey] = *item.HumanStatus
		}
	}
	return statuses, nil
}

func summarize(items []models.ConsistencyItem) models.JSONB {
	counts := map[models.AutoStatus]int{}
	for _, item := range items {
		counts[item.AutoStatus]++
	}
	return models.JSONB{
		"total": len(items),
		"pass":  counts[models.AutoStatusPass],
		"fail":  counts[models.AutoStatusFail],
		"warn":  counts[models.AutoStatusWarn],
		"skip":  counts[models.AutoStatusSkip],
	}
}

// SetHumanStatus records a reviewer's verdict on one item. It never touches
// auto_status and never triggers recomputation of sibling items.
func (cs *ConsistencyService) SetHumanStatus(itemID uint, status models.HumanStatus) (*models.ConsistencyItem, error) {
	if !models.ValidHumanStatus(status) {
		return nil, fmt.Errorf("invalid human status %q", status)
	}

	var item models.ConsistencyItem
	if err := cs.db.First(&item, itemID).Error; err != nil {
		return nil, err
	}

	item.HumanStatus = &status
	if err := cs.db.Model(&models.ConsistencyItem{}).Where("id = ?", itemID).
		Update("human_status", status).Error; err != nil {
		return nil, fmt.Errorf("failed to update human status: %w", err)
	}
	return &item, nil
}
