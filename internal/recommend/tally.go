// Package recommend keeps a running view count per video and recommends the
// most viewed ones.
package recommend

import (
	"context"
	"fmt"
	"time"

	"videohub/pkg/cache"
)

const (
	viewsKey      = "recommendations:views"
	lastViewedKey = "recommendations:last_viewed"
	lastViewedTTL = 24 * time.Hour
)

// Recommendation is a video with its view count.
type Recommendation struct {
	VideoPath string `json:"video_path"`
	Views     int64  `json:"views"`
}

// Tally counts views in a sorted set. It satisfies viewed.RecordSink.
type Tally struct {
	cache cache.Cache
}

func NewTally(c cache.Cache) *Tally {
	return &Tally{cache: c}
}

// Insert counts one view of videoPath.
func (t *Tally) Insert(ctx context.Context, videoPath string) error {
	if _, err := t.cache.IncrScore(ctx, viewsKey, videoPath, 1); err != nil {
		return fmt.Errorf("count view: %w", err)
	}
	if err := t.cache.Set(ctx, lastViewedKey, videoPath, lastViewedTTL); err != nil {
		return fmt.Errorf("remember last view: %w", err)
	}
	return nil
}

// Top returns up to n videos, most viewed first.
func (t *Tally) Top(ctx context.Context, n int) ([]Recommendation, error) {
	scores, err := t.cache.TopScores(ctx, viewsKey, n)
	if err != nil {
		return nil, fmt.Errorf("read view counts: %w", err)
	}

	out := make([]Recommendation, 0, len(scores))
	for _, s := range scores {
		out = append(out, Recommendation{VideoPath: s.Member, Views: int64(s.Score)})
	}
	return out, nil
}

// LastViewed returns the most recently counted video, or cache.ErrNotFound.
func (t *Tally) LastViewed(ctx context.Context) (string, error) {
	return t.cache.Get(ctx, lastViewedKey)
}
