package service

import (
	"context"
	"time"

	"redditscheduler/internal/models"
)

// PostStore is the durable record store the scheduler and the contract use.
// *database.Database implements it.
type PostStore interface {
	InsertPost(ctx context.Context, post *models.ScheduledPost) (int64, error)
	ListPosts(ctx context.Context) ([]models.ScheduledPost, error)
	FindDuePosts(ctx context.Context, now time.Time) ([]models.ScheduledPost, error)
	GetPost(ctx context.Context, id int64) (*models.ScheduledPost, error)
	MarkPosted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, message string) error
	DeletePost(ctx context.Context, id int64) error
}

// Submitter delivers one post. It returns "" on success and a human-readable
// error message otherwise; it never panics.
type Submitter interface {
	Submit(ctx context.Context, post *models.ScheduledPost) string
}

// ScanRunner performs a single due-item scan
type ScanRunner interface {
	RunOnce(ctx context.Context, now time.Time) (ScanResult, error)
}

// FlairLister looks up link flair templates
type FlairLister interface {
	LinkFlairs(ctx context.Context, subreddit string) ([]models.Flair, error)
}
