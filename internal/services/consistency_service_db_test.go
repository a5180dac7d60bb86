package services

import (
	"encoding/json"
	"testing"

	"github.com/discloseaudit/backend/internal/models"
)

func TestHumanStatusSurvivesRerun(t *testing.T) {
	db := newStoreDB(t)
	cs := NewConsistencyService(db)

	version := createTestVersion(t, db, models.VersionStatusSucceeded)
	raw, err := json.Marshal(zeroedDocument())
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Model(version).Update("parsed_json", models.RawJSON(raw)).Error; err != nil {
		t.Fatal(err)
	}

	first, err := cs.RunForVersion(version.ID)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	reviewed := itemByKey(first.Items, "t3_identity_total")
	if reviewed == nil {
		t.Fatal("expected a t3_identity_total item in the first run")
	}
	if _, err := cs.SetHumanStatus(reviewed.ID, models.HumanStatusOverridePass); err != nil {
		t.Fatalf("failed to set human status: %v", err)
	}

	second, err := cs.RunForVersion(version.ID)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("re-running must create a fresh run row")
	}

	var carried models.ConsistencyItem
	if err := db.Where("run_id = ? AND check_key = ?", second.ID, "t3_identity_total").
		First(&carried).Error; err != nil {
		t.Fatalf("reviewed item missing from the new run: %v", err)
	}
	if carried.HumanStatus == nil || *carried.HumanStatus != models.HumanStatusOverridePass {
		t.Errorf("reviewer verdict lost across re-run: %v", carried.HumanStatus)
	}

	var unreviewed models.ConsistencyItem
	if err := db.Where("run_id = ? AND check_key = ?", second.ID, "t4_sum_review").
		First(&unreviewed).Error; err != nil {
		t.Fatal(err)
	}
	if unreviewed.HumanStatus != nil {
		t.Errorf("carryover must only touch reviewed items, got %v", *unreviewed.HumanStatus)
	}

	// The superseded run and its items are gone.
	var runCount int64
	db.Model(&models.ConsistencyRun{}).Where("report_version_id = ?", version.ID).Count(&runCount)
	if runCount != 1 {
		t.Errorf("expected a single surviving run, got %d", runCount)
	}
	var staleCount int64
	db.Model(&models.ConsistencyItem{}).
		Where("report_version_id = ? AND run_id <> ?", version.ID, second.ID).Count(&staleCount)
	if staleCount != 0 {
		t.Errorf("expected superseded items dropped, found %d", staleCount)
	}
}

func TestRunReplacementKeepsItemCount(t *testing.T) {
	db := newStoreDB(t)
	cs := NewConsistencyService(db)

	version := createTestVersion(t, db, models.VersionStatusSucceeded)
	raw, err := json.Marshal(zeroedDocument())
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Model(version).Update("parsed_json", models.RawJSON(raw)).Error; err != nil {
		t.Fatal(err)
	}

	first, err := cs.RunForVersion(version.ID)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := cs.RunForVersion(version.ID)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if len(first.Items) != len(second.Items) {
		t.Errorf("item count drifted across runs: %d vs %d", len(first.Items), len(second.Items))
	}

	var total int64
	db.Model(&models.ConsistencyItem{}).Where("report_version_id = ?", version.ID).Count(&total)
	if int(total) != len(second.Items) {
		t.Errorf("expected %d persisted items, got %d", len(second.Items), total)
	}
}
