package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cycle statuses.
const (
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// CycleRecord is one pipeline attempt.
type CycleRecord struct {
	ID          string
	IdeaTitle   string
	IdeaIndex   int
	PostText    string
	ImagePrompt string
	PostID      string
	MediaID     string
	Status      string
	FailedStage string
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Duration is how long the attempt took.
func (r *CycleRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// CycleStore persists cycle history.
type CycleStore struct {
	db *sql.DB
}

// NewCycleStore creates a store on an already migrated database.
func NewCycleStore(db *sql.DB) *CycleStore {
	return &CycleStore{db: db}
}

// Record inserts rec, assigning an id when it has none.
func (s *CycleStore) Record(ctx context.Context, rec *CycleRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	query := `
		INSERT INTO cycles (id, idea_title, idea_index, post_text, image_prompt, post_id, media_id,
		                    status, failed_stage, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.IdeaTitle,
		rec.IdeaIndex,
		rec.PostText,
		rec.ImagePrompt,
		nullString(rec.PostID),
		nullString(rec.MediaID),
		rec.Status,
		nullString(rec.FailedStage),
		nullString(rec.Error),
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record cycle: %w", err)
	}
	return nil
}

// Recent returns the latest cycles, newest first.
func (s *CycleStore) Recent(ctx context.Context, limit int) ([]*CycleRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, idea_title, idea_index, post_text, image_prompt, post_id, media_id,
		       status, failed_stage, error, started_at, finished_at
		FROM cycles
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	var records []*CycleRecord
	for rows.Next() {
		var rec CycleRecord
		var postID, mediaID, failedStage, errText sql.NullString
		if err := rows.Scan(
			&rec.ID,
			&rec.IdeaTitle,
			&rec.IdeaIndex,
			&rec.PostText,
			&rec.ImagePrompt,
			&postID,
			&mediaID,
			&rec.Status,
			&failedStage,
			&errText,
			&rec.StartedAt,
			&rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		rec.PostID = postID.String
		rec.MediaID = mediaID.String
		rec.FailedStage = failedStage.String
		rec.Error = errText.String
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cycles: %w", err)
	}
	return records, nil
}
