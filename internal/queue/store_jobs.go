package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const jobColumns = "id, uuid, source_type, source_url, source_path, title, status, raw_file, normalized_file, transcript_file, media_duration, error_message, created_at, updated_at, progress_stage, progress_percent, progress_message, last_heartbeat, cancel_requested"

// NewJob inserts a pending job for a source video. A second job for the same
// source is rejected while the first is still in flight.
func (s *Store) NewJob(ctx context.Context, sourceType SourceType, source string) (*Job, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("source is required")
	}

	existing, err := s.activeJobForSource(ctx, sourceType, source)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: job #%d", ErrDuplicateJob, existing.ID)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	var sourceURL, sourcePath any
	title := inferTitleFromSource(sourceType, source)
	switch sourceType {
	case SourceYouTube:
		sourceURL = source
	case SourceUpload:
		sourcePath = source
	default:
		return nil, fmt.Errorf("unknown source type %q", sourceType)
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            uuid, source_type, source_url, source_path, title, status,
            created_at, updated_at, progress_percent
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		string(sourceType),
		sourceURL,
		sourcePath,
		title,
		StatusPending,
		timestamp,
		timestamp,
		0.0,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetJob(ctx, id)
}

func (s *Store) activeJobForSource(ctx context.Context, sourceType SourceType, source string) (*Job, error) {
	var column string
	switch sourceType {
	case SourceYouTube:
		column = "source_url"
	case SourceUpload:
		column = "source_path"
	default:
		return nil, fmt.Errorf("unknown source type %q", sourceType)
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + column + ` = ? AND status NOT IN (?, ?, ?) ORDER BY id LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, source, StatusCompleted, StatusFailed, StatusCancelled)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check active job: %w", err)
	}
	return job, nil
}

// GetJob fetches a job by identifier.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET source_url = ?, source_path = ?, title = ?, status = ?,
             raw_file = ?, normalized_file = ?, transcript_file = ?, media_duration = ?,
             error_message = ?, updated_at = ?, progress_stage = ?, progress_percent = ?,
             progress_message = ?, last_heartbeat = ?, cancel_requested = ?
         WHERE id = ?`,
		nullableString(job.SourceURL),
		nullableString(job.SourcePath),
		nullableString(job.Title),
		job.Status,
		nullableString(job.RawFile),
		nullableString(job.NormalizedFile),
		nullableString(job.TranscriptFile),
		job.MediaDuration,
		nullableString(job.ErrorMessage),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableString(job.ProgressStage),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		nullableTime(job.LastHeartbeat),
		boolToInt(job.CancelRequested),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// ListJobs returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) ListJobs(ctx context.Context, statuses ...Status) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// NextJobForStatuses returns the oldest job matching any of the provided statuses.
func (s *Store) NextJobForStatuses(ctx context.Context, statuses ...Status) (*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status IN (` + placeholders + `) ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimJob atomically moves a job from one status to another, relabeling the
// progress stage and starting the heartbeat. The stored percent is preserved
// so progress stays monotonic across stage boundaries. It returns false when
// another worker claimed the job first.
func (s *Store) ClaimJob(ctx context.Context, id int64, from, to Status, stageLabel string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, progress_stage = ?, progress_message = ?,
             error_message = NULL, last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		to,
		stageLabel,
		stageLabel+" started",
		now,
		now,
		id,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RetryFailedJobs moves failed jobs back to pending for reprocessing. Stage
// handlers skip work whose artifacts already exist, so a retried job resumes
// at the first incomplete stage.
func (s *Store) RetryFailedJobs(ctx context.Context, ids ...int64) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
            SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
                progress_message = NULL, error_message = NULL, cancel_requested = 0, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			timestamp,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusPending, timestamp)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE jobs
        SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
            progress_message = NULL, error_message = NULL, cancel_requested = 0, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// RequestJobCancel flags a job for cooperative cancellation. Pending jobs are
// cancelled immediately; in-flight jobs observe the flag at the next safe point.
func (s *Store) RequestJobCancel(ctx context.Context, id int64) (bool, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return false, err
	}
	if job == nil || job.IsTerminal() {
		return false, nil
	}
	if job.Status == StatusPending {
		job.SetCancelled()
		job.CancelRequested = true
		return true, s.UpdateJob(ctx, job)
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("request job cancel: %w", err)
	}
	return true, nil
}

// JobCancelRequested reports whether cancellation has been requested for a job.
func (s *Store) JobCancelRequested(ctx context.Context, id int64) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("job cancel flag: %w", err)
	}
	return flag != 0, nil
}

// UpdateJobHeartbeat updates the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateJobHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("update job heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleJobs returns jobs stuck in processing back to pending when heartbeats expire.
func (s *Store) ReclaimStaleJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	args := make([]any, 0, len(processingStatuses)+3)
	args = append(args, StatusPending, now)
	for status := range processingStatuses {
		if status == StatusRendering {
			continue
		}
		args = append(args, status)
	}
	placeholders := makePlaceholders(len(args) - 2)
	args = append(args, cutoff.UTC().Format(time.RFC3339Nano))
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
        SET status = ?, progress_stage = 'Reclaimed from stale processing',
            progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status IN (`+placeholders+`) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// RemoveJob deletes a job and, via cascade, its clips and renders.
func (s *Store) RemoveJob(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// JobStats returns a count of jobs grouped by status.
func (s *Store) JobStats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.JobStats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusFailed:
			health.Failed += count
		case StatusCancelled:
			health.Cancelled += count
		case StatusCompleted:
			health.Completed += count
		default:
			if _, ok := processingStatuses[status]; ok {
				health.Processing += count
			}
		}
	}
	return health, nil
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id               int64
		jobUUID          sql.NullString
		sourceType       sql.NullString
		sourceURL        sql.NullString
		sourcePath       sql.NullString
		title            sql.NullString
		statusStr        string
		rawFile          sql.NullString
		normalizedFile   sql.NullString
		transcriptFile   sql.NullString
		mediaDuration    sql.NullFloat64
		errorMessage     sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		progressStage    sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		lastHeartbeatRaw sql.NullString
		cancelRequested  sql.NullInt64
	)

	if err := scanner.Scan(
		&id,
		&jobUUID,
		&sourceType,
		&sourceURL,
		&sourcePath,
		&title,
		&statusStr,
		&rawFile,
		&normalizedFile,
		&transcriptFile,
		&mediaDuration,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&lastHeartbeatRaw,
		&cancelRequested,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		UUID:            jobUUID.String,
		SourceType:      SourceType(sourceType.String),
		SourceURL:       sourceURL.String,
		SourcePath:      sourcePath.String,
		Title:           title.String,
		Status:          Status(statusStr),
		RawFile:         rawFile.String,
		NormalizedFile:  normalizedFile.String,
		TranscriptFile:  transcriptFile.String,
		MediaDuration:   mediaDuration.Float64,
		ErrorMessage:    errorMessage.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
	}
	if cancelRequested.Valid {
		job.CancelRequested = cancelRequested.Int64 != 0
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

func inferTitleFromSource(sourceType SourceType, source string) string {
	if sourceType == SourceYouTube {
		return source
	}
	base := strings.TrimSpace(filepath.Base(source))
	if base == "" {
		return "Manual Import"
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if cleaned := strings.TrimSpace(base); cleaned != "" {
		return cleaned
	}
	return "Manual Import"
}
