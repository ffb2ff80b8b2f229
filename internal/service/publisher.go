package service

import (
	"context"
	"fmt"
	"time"

	"redditscheduler/internal/constants"
	apperrors "redditscheduler/internal/errors"
	"redditscheduler/internal/metrics"
	"redditscheduler/internal/models"
	"redditscheduler/internal/tracing"
	"redditscheduler/pkg/circuitbreaker"
	"redditscheduler/pkg/media"
	"redditscheduler/pkg/reddit"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

// Publisher submits scheduled posts to Reddit through a circuit breaker
type Publisher struct {
	client        reddit.Client
	media         media.Handler
	breaker       *circuitbreaker.CircuitBreaker
	submitTimeout time.Duration
	logger        *logrus.Logger
}

// NewPublisher creates a Publisher. A nil breaker gets the default Reddit
// breaker; a non-positive timeout falls back to the default submit timeout.
func NewPublisher(client reddit.Client, images media.Handler, breaker *circuitbreaker.CircuitBreaker, submitTimeout time.Duration, logger *logrus.Logger) *Publisher {
	if logger == nil {
		logger = logrus.New()
	}
	if breaker == nil {
		breaker = NewRedditBreaker(models.RedditConfig{}, logger)
	}
	if submitTimeout <= 0 {
		submitTimeout = constants.DefaultSubmitTimeoutSec * time.Second
	}
	return &Publisher{
		client:        client,
		media:         images,
		breaker:       breaker,
		submitTimeout: submitTimeout,
		logger:        logger,
	}
}

// NewRedditBreaker builds the breaker guarding Reddit calls. Only outages
// (transport errors and retryable API statuses) count toward tripping it.
func NewRedditBreaker(cfg models.RedditConfig, logger *logrus.Logger) *circuitbreaker.CircuitBreaker {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = constants.DefaultBreakerFailures
	}
	cooldown := time.Duration(cfg.BreakerCooldownS) * time.Second
	if cooldown <= 0 {
		cooldown = constants.DefaultBreakerCooldownSec * time.Second
	}
	return circuitbreaker.New("reddit", circuitbreaker.Options{
		MaxFailures:      failures,
		Cooldown:         cooldown,
		HalfOpenMaxCalls: constants.CBHalfOpenMaxCalls,
		IsFailure:        IsRedditOutage,
		Logger:           logger,
	})
}

// IsRedditOutage reports whether err indicates Reddit itself is unavailable,
// as opposed to a rejected post or an unreadable image.
func IsRedditOutage(err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := apperrors.As(err); ok {
		if appErr.Code == apperrors.ErrCodeMediaLoad || appErr.Code == apperrors.ErrCodeValidationFailed {
			return false
		}
		return appErr.Retryable
	}
	return true
}

// Submit delivers post and returns "" on success or the failure text
func (p *Publisher) Submit(ctx context.Context, post *models.ScheduledPost) string {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "reddit.submit", tracing.PostAttributes(post)...)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.submitTimeout)
	defer cancel()

	err := p.breaker.Execute(ctx, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.WithFields(logrus.Fields{
					LogFieldPostID: post.ID,
					"panic":        r,
				}).Error("Recovered panic while submitting post")
				err = fmt.Errorf("reddit client panic: %v", r)
			}
		}()
		return p.submit(ctx, post)
	})

	metrics.RecordTimer(metrics.SubmitDuration, time.Since(start), map[string]string{"kind": post.Kind.String()})

	if err != nil {
		tracing.RecordError(ctx, err)
		fields := logrus.Fields{
			LogFieldPostID:    post.ID,
			LogFieldSubreddit: post.Destination,
			LogFieldPostKind:  post.Kind.String(),
		}
		apperrors.WrapLogger(p.logger).LogWarn(err, "Failed to submit scheduled post", fields)
		return failureMessage(err)
	}

	tracing.SetSpanStatus(ctx, codes.Ok, "")
	return ""
}

func (p *Publisher) submit(ctx context.Context, post *models.ScheduledPost) error {
	req := reddit.SubmitRequest{Title: post.Title}

	switch post.DestinationKind {
	case models.DestinationSubreddit:
		req.Subreddit = post.Destination
		if post.FlairID != nil {
			req.FlairID = *post.FlairID
		}
		if post.FlairText != nil {
			req.FlairText = *post.FlairText
		}
	case models.DestinationProfile:
		req.Subreddit = reddit.ProfileSubreddit(p.client.Username())
	default:
		return fmt.Errorf("unsupported destination type %q", post.DestinationKind)
	}

	switch post.Kind {
	case models.PostKindLink:
		req.Kind = reddit.KindLink
		req.URL = post.Content
	case models.PostKindText:
		req.Kind = reddit.KindSelf
		req.Text = post.Content
	case models.PostKindImage:
		imageURL, err := p.uploadImage(ctx, post.Content)
		if err != nil {
			return err
		}
		req.Kind = reddit.KindImage
		req.URL = imageURL
	default:
		return fmt.Errorf("unsupported post type %q", post.Kind)
	}

	res, err := p.client.Submit(ctx, req)
	if err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{
		LogFieldPostID:    post.ID,
		LogFieldPostName:  res.Name,
		LogFieldSubreddit: req.Subreddit,
		LogFieldPostKind:  post.Kind.String(),
	}).Info("Submitted scheduled post")
	return nil
}

func (p *Publisher) uploadImage(ctx context.Context, ref string) (string, error) {
	if p.media == nil {
		return "", apperrors.NewMediaError("load", fmt.Errorf("no image handler configured"))
	}
	img, err := p.media.Load(ctx, ref)
	if err != nil {
		return "", apperrors.NewMediaError("load", err)
	}
	imageURL, err := p.client.UploadImage(ctx, img.Name, img.MimeType, img.Data)
	if err != nil {
		return "", err
	}
	return imageURL, nil
}

func failureMessage(err error) string {
	msg := err.Error()
	if msg == "" {
		return "submission failed"
	}
	return msg
}
