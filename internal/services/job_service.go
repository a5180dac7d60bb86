package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/discloseaudit/backend/internal/logger"
	"github.com/discloseaudit/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrJobConflict is returned by Enqueue when a pending or running job
// already occupies the (kind, version) slot.
var ErrJobConflict = errors.New("an in-flight job already exists for this version and kind")

// ErrVersionFinalized is returned by Enqueue when a parse job targets a
// version whose status is already terminal. A succeeded version is
// immutable and a failed one is kept as-is; a new attempt means a new
// version row, not a rewrite of this one.
var ErrVersionFinalized = errors.New("version already has a final parse result; upload a new version instead")

// JobService owns the asynchronous job lifecycle: a small worker pool
// polls the jobs table, claims pending rows with a compare-and-swap on the
// status column, and drives the parse and audit handlers. All coordination
// happens through job rows; the service keeps no state a restart would
// lose.
type JobService struct {
	db          *gorm.DB
	provider    ExtractionProvider
	fallback    ExtractionProvider
	consistency *ConsistencyService

	workerCount  int
	pollInterval time.Duration
	jobTimeout   time.Duration
	maxAttempts  int
	backoffBase  time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewJobService(db *gorm.DB, provider ExtractionProvider, consistency *ConsistencyService) *JobService {
	return &JobService{
		db:           db,
		provider:     provider,
		fallback:     FallbackProvider(),
		consistency:  consistency,
		workerCount:  envInt("JOB_WORKERS", 2),
		pollInterval: envDuration("JOB_POLL_INTERVAL", 2*time.Second),
		jobTimeout:   envDuration("JOB_TIMEOUT", 2*time.Minute),
		maxAttempts:  envInt("JOB_MAX_ATTEMPTS", 3),
		backoffBase:  envDuration("JOB_BACKOFF_BASE", 5*time.Second),
		stopChan:     make(chan struct{}),
	}
}

// Start recovers jobs stranded in running by a previous crash, then
// launches the worker pool.
func (js *JobService) Start() {
	js.recoverStaleJobs()

	for i := 0; i < js.workerCount; i++ {
		js.wg.Add(1)
		go js.worker(i)
	}
	logger.Info("Job workers started", map[string]interface{}{"workers": js.workerCount})
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (js *JobService) Stop() {
	close(js.stopChan)
	js.wg.Wait()
}

func (js *JobService) worker(id int) {
	defer js.wg.Done()

	for {
		select {
		case <-js.stopChan:
			logger.Info("Worker stopping", map[string]interface{}{"workerID": id})
			return
		default:
		}

		if !js.RunNext() {
			select {
			case <-js.stopChan:
				return
			case <-time.After(js.pollInterval):
			}
		}
	}
}

// Enqueue creates a pending job for the version. Fails with ErrJobConflict
// when an in-flight job of the same kind already exists for that version.
func (js *JobService) Enqueue(kind models.JobKind, versionID uint) (*models.Job, error) {
	return js.enqueueAttempt(kind, versionID, 1, 0)
}

func (js *JobService) enqueueAttempt(kind models.JobKind, versionID uint, attempt int, delay time.Duration) (*models.Job, error) {
	job := &models.Job{
		Kind:            kind,
		ReportVersionID: versionID,
		Status:          models.JobStatusPending,
		AttemptCount:    attempt,
		MaxAttempts:     js.maxAttempts,
		NextRunAt:       time.Now().Add(delay),
	}

	err := js.db.Transaction(func(tx *gorm.DB) error {
		// Lock the version row so concurrent enqueues for the same
		// version serialize before the in-flight check.
		var version models.ReportVersion
		if err := lockForUpdate(tx).First(&version, versionID).Error; err != nil {
			return fmt.Errorf("failed to load version %d: %w", versionID, err)
		}

		// A version whose parse reached a terminal status never gets
		// parsed again in place.
		if kind == models.JobKindParse && version.Status != models.VersionStatusPending {
			return ErrVersionFinalized
		}

		var inFlight int64
		if err := tx.Model(&models.Job{}).
			Where("kind = ? AND report_version_id = ? AND status IN ?",
				kind, versionID, []models.JobStatus{models.JobStatusPending, models.JobStatusRunning}).
			Count(&inFlight).Error; err != nil {
			return fmt.Errorf("failed to check in-flight jobs: %w", err)
		}
		if inFlight > 0 {
			return ErrJobConflict
		}

		return tx.Create(job).Error
	})
	if err != nil {
		return nil, err
	}

	logger.WithJob(job.ID, string(kind)).WithField("version_id", versionID).
		WithField("attempt", attempt).Info("Job enqueued")
	return job, nil
}

// RunNext claims and executes at most one due pending job. Returns false
// when nothing was claimable.
func (js *JobService) RunNext() bool {
	job := js.claimNext()
	if job == nil {
		return false
	}
	js.process(job)
	return true
}

// claimNext picks the oldest due pending job and flips it to running with
// a conditional update. A zero rows-affected result means another worker
// won the row; the caller just polls again.
func (js *JobService) claimNext() *models.Job {
	var candidate models.Job
	err := js.db.Where("status = ? AND next_run_at <= ?", models.JobStatusPending, time.Now()).
		Order("created_at ASC").
		First(&candidate).Error
	if err != nil {
		return nil
	}

	now := time.Now()
	result := js.db.Model(&models.Job{}).
		Where("id = ? AND status = ?", candidate.ID, models.JobStatusPending).
		Updates(map[string]any{"status": models.JobStatusRunning, "started_at": now})
	if result.Error != nil || result.RowsAffected == 0 {
		return nil
	}

	candidate.Status = models.JobStatusRunning
	candidate.StartedAt = &now
	return &candidate
}

func (js *JobService) process(job *models.Job) {
	log := logger.WithJob(job.ID, string(job.Kind))
	log.WithField("attempt", job.AttemptCount).Info("Processing job")

	var err error
	switch job.Kind {
	case models.JobKindParse:
		err = js.runParse(job)
	case models.JobKindAudit:
		err = js.runAudit(job)
	default:
		err = fmt.Errorf("unknown job kind %q", job.Kind)
	}

	if err != nil {
		js.handleFailure(job, err)
	}
}

// runParse loads the version's source text, calls the extraction backend
// under the job timeout, and on success commits the parsed document,
// version activation, and job completion in one transaction. The gateway
// call is at-least-once: if the process dies between the call and the
// commit, restart recovery re-runs the whole job and the store stays the
// only source of truth.
func (js *JobService) runParse(job *models.Job) error {
	var version models.ReportVersion
	if err := js.db.First(&version, job.ReportVersionID).Error; err != nil {
		return fmt.Errorf("failed to load version %d: %w", job.ReportVersionID, err)
	}

	text, err := LoadDocumentText(version.StoragePath)
	if err != nil {
		return err
	}

	provider := js.provider
	if job.AttemptCount >= 2 && js.fallback != nil {
		provider = js.fallback
		logger.WithJob(job.ID, string(job.Kind)).WithField("provider", provider.Name()).
			Info("Retry attempt using fallback provider")
	}

	ctx, cancel := context.WithTimeout(context.Background(), js.jobTimeout)
	defer cancel()

	doc, err := provider.Extract(ctx, text)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode parsed document: %w", err)
	}

	err = js.db.Transaction(func(tx *gorm.DB) error {
		// Demote-then-promote inside one transaction so there is never a
		// window with zero or two active versions.
		if err := tx.Model(&models.ReportVersion{}).
			Where("report_id = ? AND is_active = ?", version.ReportID, true).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("failed to demote active version: %w", err)
		}

		if err := tx.Model(&models.ReportVersion{}).Where("id = ?", version.ID).
			Updates(map[string]any{
				"parsed_json": models.RawJSON(payload),
				"status":      models.VersionStatusSucceeded,
				"is_active":   true,
				"provider":    provider.Name(),
				"model":       provider.Model(),
			}).Error; err != nil {
			return fmt.Errorf("failed to write parsed version: %w", err)
		}

		return finishJob(tx, job.ID, models.JobStatusSucceeded)
	})
	if err != nil {
		return err
	}

	logger.WithJob(job.ID, string(job.Kind)).WithField("version_id", version.ID).
		Info("Parse job succeeded, version activated")

	if _, err := js.Enqueue(models.JobKindAudit, version.ID); err != nil && !errors.Is(err, ErrJobConflict) {
		logger.WithError(err, "job_service").Warn("Failed to enqueue audit job")
	}
	return nil
}

func (js *JobService) runAudit(job *models.Job) error {
	run, err := js.consistency.RunForVersion(job.ReportVersionID)
	if err != nil {
		return err
	}

	if err := finishJob(js.db, job.ID, models.JobStatusSucceeded); err != nil {
		return err
	}

	logger.WithJob(job.ID, string(job.Kind)).WithField("run_id", run.ID).
		Info("Audit job succeeded")
	return nil
}

// handleFailure records the classified failure on the job row and, when
// the code is retryable and the attempt budget allows, schedules a fresh
// pending job with exponential backoff. The failed row is never reused.
func (js *JobService) handleFailure(job *models.Job, jobErr error) {
	code := ClassifyFailure(jobErr)
	log := logger.WithJob(job.ID, string(job.Kind)).
		WithField("error_code", code).WithField("attempt", job.AttemptCount)

	now := time.Now()
	if err := js.db.Model(&models.Job{}).Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":        models.JobStatusFailed,
			"error_code":    code,
			"error_message": jobErr.Error(),
			"finished_at":   now,
		}).Error; err != nil {
		log.WithField("error", err.Error()).Error("Failed to record job failure")
		return
	}

	if RetryableErrorCode(code) && job.AttemptCount < job.MaxAttempts {
		attempt := job.AttemptCount + 1
		delay := js.backoffDelay(attempt)
		if _, err := js.enqueueAttempt(job.Kind, job.ReportVersionID, attempt, delay); err != nil {
			log.WithField("error", err.Error()).Error("Failed to schedule retry")
			return
		}
		log.WithField("next_attempt", attempt).WithField("delay", delay.String()).
			Warn("Job failed, retry scheduled")
		return
	}

	log.WithField("error", jobErr.Error()).Error("Job failed permanently")

	if job.Kind == models.JobKindParse {
		if err := js.db.Model(&models.ReportVersion{}).
			Where("id = ? AND status = ?", job.ReportVersionID, models.VersionStatusPending).
			Update("status", models.VersionStatusFailed).Error; err != nil {
			log.WithField("error", err.Error()).Error("Failed to mark version failed")
		}
	}
}

// lockForUpdate applies a row lock on databases that support it. The
// sqlite used by tests serializes writers on its own and rejects the
// FOR UPDATE syntax.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// backoffDelay doubles per extra attempt: 0 for the first, base for the
// second, 2*base for the third, and so on.
func (js *JobService) backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return js.backoffBase << uint(attempt-2)
}

// recoverStaleJobs resets jobs stranded in running back to pending so a
// crash never leaves work permanently stuck.
func (js *JobService) recoverStaleJobs() {
	result := js.db.Model(&models.Job{}).
		Where("status = ?", models.JobStatusRunning).
		Updates(map[string]any{"status": models.JobStatusPending, "started_at": nil})
	if result.Error != nil {
		logger.WithError(result.Error, "job_service").Error("Failed to recover running jobs")
		return
	}
	if result.RowsAffected > 0 {
		logger.Info("Recovered stranded jobs", map[string]interface{}{"count": result.RowsAffected})
	}
}

func finishJob(db *gorm.DB, jobID uint, status models.JobStatus) error {
	now := time.Now()
	if err := db.Model(&models.Job{}).Where("id = ?", jobID).
		Updates(map[string]any{"status": status, "finished_at": now}).Error; err != nil {
		return fmt.Errorf("failed to finish job %d: %w", jobID, err)
	}
	return nil
}

func envInt(name string, fallback int) int {
	if raw := os.Getenv(name); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(name); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
