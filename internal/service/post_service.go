package service

import (
	"context"
	"fmt"
	"time"

	apperrors "redditscheduler/internal/errors"
	"redditscheduler/internal/metrics"
	"redditscheduler/internal/models"
	"redditscheduler/internal/timeutil"
	"redditscheduler/internal/validation"
	"redditscheduler/pkg/media"

	"github.com/sirupsen/logrus"
)

// PostService is the enqueue, list and delete contract used by the HTTP layer
type PostService struct {
	store  PostStore
	flairs FlairLister
	zone   *time.Location
	logger *logrus.Logger
	now    func() time.Time
}

// NewPostService creates the contract. zone is the source zone for
// submitted wall-clock times and the default display zone.
func NewPostService(store PostStore, flairs FlairLister, zone *time.Location, logger *logrus.Logger) *PostService {
	if zone == nil {
		zone = time.UTC
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &PostService{store: store, flairs: flairs, zone: zone, logger: logger, now: time.Now}
}

// Zone returns the configured application zone
func (s *PostService) Zone() *time.Location {
	return s.zone
}

// Enqueue validates req and stores it as a pending post. Nothing is stored
// when validation fails.
func (s *PostService) Enqueue(ctx context.Context, req models.EnqueueRequest) (int64, error) {
	req = validation.NormalizeEnqueue(req)
	if err := validation.ValidateEnqueue(ctx, req); err != nil {
		return 0, err
	}

	kind, err := models.ParsePostKind(req.PostType)
	if err != nil {
		return 0, apperrors.NewValidationError("post_type", err.Error())
	}
	dest, err := models.ParseDestinationKind(req.DestinationType)
	if err != nil {
		return 0, apperrors.NewValidationError("destination_type", err.Error())
	}
	scheduledAt, err := timeutil.ToCanonical(req.PostTime, s.zone)
	if err != nil {
		return 0, apperrors.NewValidationError("post_time", err.Error())
	}

	post := &models.ScheduledPost{
		Destination:     req.Subreddit,
		DestinationKind: dest,
		Title:           req.Title,
		Kind:            kind,
		Content:         req.Content,
		ScheduledAt:     scheduledAt,
		CreatedAt:       s.now().UTC(),
	}

	switch dest {
	case models.DestinationSubreddit:
		post.FlairID = optional(req.FlairID)
		post.FlairText = optional(req.FlairText)
	case models.DestinationProfile:
		post.Destination = ""
	}

	id, err := s.store.InsertPost(ctx, post)
	if err != nil {
		return 0, apperrors.NewDatabaseError("insert post", err)
	}

	metrics.IncrementCounter(metrics.PostsEnqueued, map[string]string{"kind": kind.String()}, "Posts accepted for scheduling")
	LogWithContext(ctx, s.logger).WithFields(logrus.Fields{
		LogFieldPostID:      id,
		LogFieldSubreddit:   post.Destination,
		LogFieldPostKind:    kind.String(),
		LogFieldTarget:      dest.String(),
		LogFieldScheduledAt: timeutil.FormatStorage(scheduledAt),
		"content":           SanitizeContent(ctx, post.Content),
	}).Info("Scheduled post enqueued")

	return id, nil
}

// ListForDisplay returns every post in scheduled order with times rendered
// in zone. A nil zone uses the configured application zone.
func (s *PostService) ListForDisplay(ctx context.Context, zone *time.Location) ([]models.DisplayPost, error) {
	if zone == nil {
		zone = s.zone
	}

	posts, err := s.store.ListPosts(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list posts", err)
	}

	out := make([]models.DisplayPost, 0, len(posts))
	for _, p := range posts {
		d := models.DisplayPost{
			ScheduledPost:      p,
			PostType:           p.Kind.String(),
			DestinationType:    p.DestinationKind.String(),
			Status:             p.Status.String(),
			ScheduledAtDisplay: timeutil.ToDisplay(p.ScheduledAt, zone),
			DisplayZone:        zone.String(),
		}
		if p.Kind == models.PostKindImage {
			d.PreviewURL = media.PreviewPath(p.Content)
		}
		out = append(out, d)
	}
	return out, nil
}

// Delete removes a post whatever its status. Deleting a missing id succeeds.
func (s *PostService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperrors.NewValidationError("id", fmt.Sprintf("invalid post id %d", id))
	}
	if err := s.store.DeletePost(ctx, id); err != nil {
		return apperrors.NewDatabaseError("delete post", err)
	}
	metrics.IncrementCounter(metrics.PostsDeleted, nil, "Posts removed from the schedule")
	LogWithContext(ctx, s.logger).WithField(LogFieldPostID, id).Info("Scheduled post deleted")
	return nil
}

// GetFlairs returns the link flairs of subreddit. Results are not stored.
func (s *PostService) GetFlairs(ctx context.Context, subreddit string) ([]models.Flair, error) {
	subreddit = validation.NormalizeSubreddit(subreddit)
	if subreddit == "" {
		return nil, apperrors.NewValidationError("subreddit", "subreddit is required")
	}
	if s.flairs == nil {
		return nil, apperrors.New(apperrors.ErrCodeRedditAPI, "reddit client not configured").
			WithUserMessage("Flair lookup is unavailable")
	}

	flairs, err := s.flairs.LinkFlairs(ctx, subreddit)
	if err != nil {
		LogWithContext(ctx, s.logger).WithField(LogFieldSubreddit, subreddit).
			WithError(err).Warn("Failed to fetch link flairs")
		if appErr, ok := apperrors.As(err); ok && appErr.UserMessage == "" {
			appErr.UserMessage = fmt.Sprintf("Could not load flairs for r/%s", subreddit)
		}
		return nil, err
	}
	return flairs, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
