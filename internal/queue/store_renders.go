package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const renderColumns = "id, clip_id, status, options_json, output_path, error_message, created_at, updated_at, progress_stage, progress_percent, progress_message, last_heartbeat, cancel_requested"

// NewRender enqueues an export of a clip. A second render for the same clip is
// rejected while the first is still in flight.
func (s *Store) NewRender(ctx context.Context, clipID string, opts RenderOptions) (*Render, error) {
	clip, err := s.GetClip(ctx, clipID)
	if err != nil {
		return nil, err
	}
	if clip == nil {
		return nil, fmt.Errorf("clip %s not found", clipID)
	}

	existing, err := s.activeRenderForClip(ctx, clipID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: render %s", ErrDuplicateRender, existing.ID)
	}

	if opts.SmartCrop == "" {
		opts.SmartCrop = CropModeAuto
	}
	optionsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("encode render options: %w", err)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO renders (id, clip_id, status, options_json, created_at, updated_at, progress_percent)
         VALUES (?, ?, ?, ?, ?, ?, 0)`,
		id,
		clipID,
		StatusPending,
		string(optionsJSON),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert render: %w", err)
	}

	return s.GetRender(ctx, id)
}

func (s *Store) activeRenderForClip(ctx context.Context, clipID string) (*Render, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+renderColumns+` FROM renders
         WHERE clip_id = ? AND status NOT IN (?, ?, ?) ORDER BY created_at LIMIT 1`,
		clipID,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	)
	render, err := scanRender(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check active render: %w", err)
	}
	return render, nil
}

// GetRender fetches a render by identifier.
func (s *Store) GetRender(ctx context.Context, id string) (*Render, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+renderColumns+` FROM renders WHERE id = ?`, id)
	render, err := scanRender(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get render: %w", err)
	}
	return render, nil
}

// UpdateRender persists changes to an existing render.
func (s *Store) UpdateRender(ctx context.Context, render *Render) error {
	if render == nil {
		return errors.New("render is nil")
	}
	render.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE renders
         SET status = ?, options_json = ?, output_path = ?, error_message = ?, updated_at = ?,
             progress_stage = ?, progress_percent = ?, progress_message = ?,
             last_heartbeat = ?, cancel_requested = ?
         WHERE id = ?`,
		render.Status,
		nullableString(render.OptionsJSON),
		nullableString(render.OutputPath),
		nullableString(render.ErrorMessage),
		render.UpdatedAt.Format(time.RFC3339Nano),
		nullableString(render.ProgressStage),
		render.ProgressPercent,
		nullableString(render.ProgressMessage),
		nullableTime(render.LastHeartbeat),
		boolToInt(render.CancelRequested),
		render.ID,
	)
	if err != nil {
		return fmt.Errorf("update render: %w", err)
	}
	return nil
}

// ListRenders returns renders filtered by status set (or all renders when no status is provided).
func (s *Store) ListRenders(ctx context.Context, statuses ...Status) ([]*Render, error) {
	baseQuery := `SELECT ` + renderColumns + ` FROM renders`
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
		return nil, fmt.Errorf("list renders: %w", err)
	}
	defer rows.Close()

	var renders []*Render
	for rows.Next() {
		render, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		renders = append(renders, render)
	}
	return renders, rows.Err()
}

// NextRenderForStatuses returns the oldest render matching any of the provided statuses.
func (s *Store) NextRenderForStatuses(ctx context.Context, statuses ...Status) (*Render, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	query := `SELECT ` + renderColumns + ` FROM renders WHERE status IN (` + placeholders + `) ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	render, err := scanRender(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return render, nil
}

// ClaimRender atomically moves a render from one status to another, resetting
// the progress fields and starting the heartbeat. It returns false when
// another worker claimed the render first.
func (s *Store) ClaimRender(ctx context.Context, id string, from, to Status, stageLabel string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE renders
         SET status = ?, progress_stage = ?, progress_percent = 0, progress_message = ?,
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
		return false, fmt.Errorf("claim render: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RequestRenderCancel flags a render for cooperative cancellation.
func (s *Store) RequestRenderCancel(ctx context.Context, id string) (bool, error) {
	render, err := s.GetRender(ctx, id)
	if err != nil {
		return false, err
	}
	if render == nil || IsTerminalStatus(render.Status) {
		return false, nil
	}
	if render.Status == StatusPending {
		render.SetCancelled()
		render.CancelRequested = true
		return true, s.UpdateRender(ctx, render)
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE renders SET cancel_requested = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return false, fmt.Errorf("request render cancel: %w", err)
	}
	return true, nil
}

// RenderCancelRequested reports whether cancellation has been requested for a render.
func (s *Store) RenderCancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM renders WHERE id = ?`, id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("render cancel flag: %w", err)
	}
	return flag != 0, nil
}

// UpdateRenderHeartbeat updates the last heartbeat timestamp for an in-flight render.
func (s *Store) UpdateRenderHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE renders SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("update render heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleRenders returns renders stuck in processing back to pending when heartbeats expire.
func (s *Store) ReclaimStaleRenders(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE renders
        SET status = ?, progress_stage = 'Reclaimed from stale processing',
            progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending,
		now,
		StatusRendering,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale renders: %w", err)
	}
	return res.RowsAffected()
}

func scanRender(scanner interface{ Scan(dest ...any) error }) (*Render, error) {
	var (
		render           Render
		optionsJSON      sql.NullString
		outputPath       sql.NullString
		errorMessage     sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		progressStage    sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		lastHeartbeatRaw sql.NullString
		cancelRequested  sql.NullInt64
		statusStr        string
	)
	if err := scanner.Scan(
		&render.ID,
		&render.ClipID,
		&statusStr,
		&optionsJSON,
		&outputPath,
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
	render.Status = Status(statusStr)
	render.OptionsJSON = optionsJSON.String
	render.OutputPath = outputPath.String
	render.ErrorMessage = errorMessage.String
	render.ProgressStage = progressStage.String
	render.ProgressPercent = progressPercent.Float64
	render.ProgressMessage = progressMessage.String
	if cancelRequested.Valid {
		render.CancelRequested = cancelRequested.Int64 != 0
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		render.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		render.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			render.LastHeartbeat = &heartbeat
		}
	}
	return &render, nil
}
