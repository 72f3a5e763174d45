package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const clipColumns = "id, job_id, start_sec, end_sec, score, title, snippet, thumbnail_path, metadata_json, created_at"

// CreateClip persists one ranked highlight for a job.
func (s *Store) CreateClip(ctx context.Context, clip *Clip) error {
	if clip == nil {
		return errors.New("clip is nil")
	}
	if clip.JobID == 0 {
		return errors.New("clip requires a job id")
	}
	if clip.ID == "" {
		clip.ID = uuid.NewString()
	}
	if clip.CreatedAt.IsZero() {
		clip.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO clips (id, job_id, start_sec, end_sec, score, title, snippet, thumbnail_path, metadata_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		clip.ID,
		clip.JobID,
		clip.StartSec,
		clip.EndSec,
		clip.Score,
		nullableString(clip.Title),
		nullableString(clip.Snippet),
		nullableString(clip.ThumbnailPath),
		nullableString(clip.MetadataJSON),
		clip.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert clip: %w", err)
	}
	return nil
}

// GetClip fetches a single clip by identifier.
func (s *Store) GetClip(ctx context.Context, id string) (*Clip, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clipColumns+` FROM clips WHERE id = ?`, id)
	clip, err := scanClip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get clip: %w", err)
	}
	return clip, nil
}

// ClipsByJob returns a job's clips in ranked order (highest score first).
func (s *Store) ClipsByJob(ctx context.Context, jobID int64) ([]*Clip, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+clipColumns+` FROM clips WHERE job_id = ? ORDER BY score DESC, start_sec`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list clips: %w", err)
	}
	defer rows.Close()

	var clips []*Clip
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		clips = append(clips, clip)
	}
	return clips, rows.Err()
}

// UpdateClip persists changes to an existing clip.
func (s *Store) UpdateClip(ctx context.Context, clip *Clip) error {
	if clip == nil {
		return errors.New("clip is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE clips
         SET start_sec = ?, end_sec = ?, score = ?, title = ?, snippet = ?, thumbnail_path = ?, metadata_json = ?
         WHERE id = ?`,
		clip.StartSec,
		clip.EndSec,
		clip.Score,
		nullableString(clip.Title),
		nullableString(clip.Snippet),
		nullableString(clip.ThumbnailPath),
		nullableString(clip.MetadataJSON),
		clip.ID,
	)
	if err != nil {
		return fmt.Errorf("update clip: %w", err)
	}
	return nil
}

// DeleteClipsByJob removes all clips for a job. Used when re-running highlight
// selection so stale ranks never mix with fresh ones.
func (s *Store) DeleteClipsByJob(ctx context.Context, jobID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clips WHERE job_id = ?`, jobID)
	if err != nil {
		return 0, fmt.Errorf("delete clips: %w", err)
	}
	return res.RowsAffected()
}

func scanClip(scanner interface{ Scan(dest ...any) error }) (*Clip, error) {
	var (
		clip          Clip
		title         sql.NullString
		snippet       sql.NullString
		thumbnailPath sql.NullString
		metadata      sql.NullString
		createdRaw    sql.NullString
	)
	if err := scanner.Scan(
		&clip.ID,
		&clip.JobID,
		&clip.StartSec,
		&clip.EndSec,
		&clip.Score,
		&title,
		&snippet,
		&thumbnailPath,
		&metadata,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	clip.Title = title.String
	clip.Snippet = snippet.String
	clip.ThumbnailPath = thumbnailPath.String
	clip.MetadataJSON = metadata.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		clip.CreatedAt = created
	}
	return &clip, nil
}
