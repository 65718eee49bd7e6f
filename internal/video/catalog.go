// Package video resolves video ids to storage paths and streams the bytes
// from the storage service, announcing each play on the viewed exchange.
package video

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"videohub/pkg/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS videos (
	id         TEXT PRIMARY KEY,
	video_path TEXT NOT NULL
)`

// Video is one catalog entry.
type Video struct {
	ID   string `json:"id"`
	Path string `json:"video_path"`
}

// Catalog looks videos up in Postgres.
type Catalog struct {
	db db.DBTX
}

func NewCatalog(conn db.DBTX) *Catalog {
	return &Catalog{db: conn}
}

// EnsureSchema creates the videos table if it does not exist.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create videos table: %w", err)
	}
	return nil
}

// Find returns the video with id, or db.ErrNotFound.
func (c *Catalog) Find(ctx context.Context, id string) (Video, error) {
	v := Video{ID: id}
	err := c.db.QueryRowContext(ctx, `SELECT video_path FROM videos WHERE id = $1`, id).Scan(&v.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return Video{}, db.ErrNotFound
	}
	if err != nil {
		return Video{}, fmt.Errorf("find video %s: %w", id, err)
	}
	return v, nil
}

// Add registers a video under id, replacing any previous path.
func (c *Catalog) Add(ctx context.Context, v Video) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO videos (id, video_path) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET video_path = EXCLUDED.video_path`,
		v.ID, v.Path)
	if err != nil {
		return fmt.Errorf("add video %s: %w", v.ID, err)
	}
	return nil
}
