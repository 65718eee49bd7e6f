// Package history records every played video in Postgres and lists recent views.
package history

import (
	"context"
	"fmt"
	"time"

	"videohub/pkg/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id         BIGSERIAL PRIMARY KEY,
	video_path TEXT        NOT NULL,
	viewed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Record is one stored view.
type Record struct {
	ID        int64     `json:"id"`
	VideoPath string    `json:"video_path"`
	ViewedAt  time.Time `json:"viewed_at"`
}

// Store persists views. It satisfies viewed.RecordSink.
type Store struct {
	db db.DBTX
}

func NewStore(conn db.DBTX) *Store {
	return &Store{db: conn}
}

// EnsureSchema creates the history table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	return nil
}

// Insert stores one view of videoPath.
func (s *Store) Insert(ctx context.Context, videoPath string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO history (video_path) VALUES ($1)`, videoPath)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// Recent returns up to limit views, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_path, viewed_at FROM history ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.VideoPath, &r.ViewedAt); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}

// Count returns how many views of videoPath are stored.
func (s *Store) Count(ctx context.Context, videoPath string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM history WHERE video_path = $1`, videoPath).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}
