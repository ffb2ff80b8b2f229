package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "redditscheduler/internal/errors"
	"redditscheduler/internal/models"
	"redditscheduler/pkg/circuitbreaker"
	"redditscheduler/pkg/media"
	"redditscheduler/pkg/reddit"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func strPtr(s string) *string { return &s }

func testPost(kind models.PostKind, dest models.DestinationKind, content string) *models.ScheduledPost {
	return &models.ScheduledPost{
		ID:              7,
		Destination:     "golang",
		DestinationKind: dest,
		Title:           "Weekly thread",
		Kind:            kind,
		Content:         content,
		ScheduledAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func newTestPublisher(client reddit.Client, images media.Handler, breaker *circuitbreaker.CircuitBreaker) *Publisher {
	return NewPublisher(client, images, breaker, time.Second, quietLogger())
}

func TestPublisher_TextToSubredditWithFlair(t *testing.T) {
	client := &mockRedditClient{}
	post := testPost(models.PostKindText, models.DestinationSubreddit, "body text")
	post.FlairID = strPtr("f1")
	post.FlairText = strPtr("Discussion")

	client.On("Submit", mock.Anything, reddit.SubmitRequest{
		Subreddit: "golang",
		Title:     "Weekly thread",
		Kind:      reddit.KindSelf,
		Text:      "body text",
		FlairID:   "f1",
		FlairText: "Discussion",
	}).Return(&reddit.SubmitResult{Name: "t3_x"}, nil).Once()

	msg := newTestPublisher(client, nil, nil).Submit(context.Background(), post)

	assert.Empty(t, msg)
	client.AssertExpectations(t)
}

func TestPublisher_LinkToProfileIgnoresFlair(t *testing.T) {
	client := &mockRedditClient{}
	post := testPost(models.PostKindLink, models.DestinationProfile, "https://go.dev")
	post.Destination = ""
	post.FlairID = strPtr("f1")

	client.On("Username").Return("scheduler_bot")
	client.On("Submit", mock.Anything, reddit.SubmitRequest{
		Subreddit: "u_scheduler_bot",
		Title:     "Weekly thread",
		Kind:      reddit.KindLink,
		URL:       "https://go.dev",
	}).Return(&reddit.SubmitResult{Name: "t3_y"}, nil).Once()

	msg := newTestPublisher(client, nil, nil).Submit(context.Background(), post)

	assert.Empty(t, msg)
	client.AssertExpectations(t)
}

func TestPublisher_ImageUploadsThenSubmits(t *testing.T) {
	client := &mockRedditClient{}
	images := &mockMediaHandler{}
	post := testPost(models.PostKindImage, models.DestinationSubreddit, "1700000000_cat.png")

	images.On("Load", mock.Anything, "1700000000_cat.png").
		Return(&media.Image{Name: "1700000000_cat.png", MimeType: "image/png", Data: []byte("png")}, nil).Once()
	client.On("UploadImage", mock.Anything, "1700000000_cat.png", "image/png", []byte("png")).
		Return("https://reddit-uploaded-media.s3.amazonaws.com/abc", nil).Once()
	client.On("Submit", mock.Anything, mock.MatchedBy(func(req reddit.SubmitRequest) bool {
		return req.Kind == reddit.KindImage && req.URL == "https://reddit-uploaded-media.s3.amazonaws.com/abc"
	})).Return(&reddit.SubmitResult{Name: "t3_z"}, nil).Once()

	msg := newTestPublisher(client, images, nil).Submit(context.Background(), post)

	assert.Empty(t, msg)
	client.AssertExpectations(t)
	images.AssertExpectations(t)
}

func TestPublisher_UnreadableImageDoesNotTripBreaker(t *testing.T) {
	client := &mockRedditClient{}
	images := &mockMediaHandler{}
	breaker := circuitbreaker.New("test", circuitbreaker.Options{MaxFailures: 1, IsFailure: IsRedditOutage, Logger: quietLogger()})
	post := testPost(models.PostKindImage, models.DestinationSubreddit, "missing.png")

	images.On("Load", mock.Anything, "missing.png").Return(nil, errors.New("no such file"))

	p := newTestPublisher(client, images, breaker)
	msg := p.Submit(context.Background(), post)

	assert.Contains(t, msg, "no such file")
	assert.Equal(t, circuitbreaker.StateClosed, breaker.GetState())
	client.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestPublisher_APIErrorBecomesMessage(t *testing.T) {
	client := &mockRedditClient{}
	post := testPost(models.PostKindText, models.DestinationSubreddit, "x")

	apiErr := apperrors.NewAPIError("/api/submit", 200, errors.New("SUBREDDIT_NOEXIST: that subreddit doesn't exist (sr)"))
	client.On("Submit", mock.Anything, mock.Anything).Return(nil, apiErr)

	msg := newTestPublisher(client, nil, nil).Submit(context.Background(), post)

	assert.Contains(t, msg, "SUBREDDIT_NOEXIST")
}

func TestPublisher_RecoversFromClientPanic(t *testing.T) {
	client := &mockRedditClient{}
	post := testPost(models.PostKindText, models.DestinationSubreddit, "x")
	client.On("Submit", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		panic("nil map write")
	}).Return(nil, nil)

	var msg string
	assert.NotPanics(t, func() {
		msg = newTestPublisher(client, nil, nil).Submit(context.Background(), post)
	})
	assert.Contains(t, msg, "panic")
	assert.Contains(t, msg, "nil map write")
}

func TestPublisher_OpenBreakerSkipsAPI(t *testing.T) {
	client := &mockRedditClient{}
	breaker := circuitbreaker.New("reddit", circuitbreaker.Options{
		MaxFailures: 2,
		Cooldown:    time.Hour,
		IsFailure:   IsRedditOutage,
		Logger:      quietLogger(),
	})
	post := testPost(models.PostKindText, models.DestinationSubreddit, "x")
	client.On("Submit", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("failed to send request: connection refused")).Times(2)

	p := newTestPublisher(client, nil, breaker)
	for i := 0; i < 2; i++ {
		assert.Contains(t, p.Submit(context.Background(), post), "connection refused")
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.GetState())

	msg := p.Submit(context.Background(), post)
	assert.Contains(t, msg, "circuit breaker 'reddit' is OPEN")
	client.AssertNumberOfCalls(t, "Submit", 2)
}

func TestPublisher_RejectedPostsDoNotTripBreaker(t *testing.T) {
	client := &mockRedditClient{}
	breaker := circuitbreaker.New("reddit", circuitbreaker.Options{MaxFailures: 1, IsFailure: IsRedditOutage, Logger: quietLogger()})
	post := testPost(models.PostKindText, models.DestinationSubreddit, "x")
	client.On("Submit", mock.Anything, mock.Anything).Return(nil, apperrors.NewAPIError("/api/submit", 403, errors.New("forbidden")))

	p := newTestPublisher(client, nil, breaker)
	p.Submit(context.Background(), post)
	p.Submit(context.Background(), post)

	assert.Equal(t, circuitbreaker.StateClosed, breaker.GetState())
	client.AssertNumberOfCalls(t, "Submit", 2)
}

func TestPublisher_SubmitTimeout(t *testing.T) {
	client := &mockRedditClient{}
	post := testPost(models.PostKindText, models.DestinationSubreddit, "x")

	var deadlineSet bool
	client.On("Submit", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, deadlineSet = ctx.Deadline()
		<-ctx.Done()
	}).Return(nil, context.DeadlineExceeded)

	p := NewPublisher(client, nil, nil, 20*time.Millisecond, quietLogger())
	start := time.Now()
	msg := p.Submit(context.Background(), post)

	assert.True(t, deadlineSet)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Contains(t, msg, "deadline exceeded")
}

func TestPublisher_UnsupportedKind(t *testing.T) {
	client := &mockRedditClient{}
	post := testPost(models.PostKind(42), models.DestinationSubreddit, "x")

	msg := newTestPublisher(client, nil, nil).Submit(context.Background(), post)

	assert.Contains(t, msg, "unsupported post type")
	client.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestIsRedditOutage(t *testing.T) {
	assert.False(t, IsRedditOutage(nil))
	assert.True(t, IsRedditOutage(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRedditOutage(apperrors.NewAPIError("/api/submit", 503, errors.New("unavailable"))))
	assert.True(t, IsRedditOutage(apperrors.NewAPIError("/api/submit", 429, errors.New("slow down"))))
	assert.False(t, IsRedditOutage(apperrors.NewAPIError("/api/submit", 400, errors.New("bad"))))
	assert.False(t, IsRedditOutage(apperrors.NewMediaError("load", errors.New("missing"))))
	assert.False(t, IsRedditOutage(apperrors.NewAuthError("bad password")))
}
