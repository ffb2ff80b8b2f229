package validation

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"redditscheduler/internal/errors"
	"redditscheduler/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() models.EnqueueRequest {
	return models.EnqueueRequest{
		Subreddit:       "golang",
		Title:           "Scheduled post",
		PostType:        "text",
		PostTime:        "2026-03-01 10:00",
		DestinationType: "subreddit",
		Content:         "hello",
	}
}

func TestNormalizeSubreddit(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"golang", "golang"},
		{"r/golang", "golang"},
		{"R/golang", "golang"},
		{"/r/golang/", "golang"},
		{"  r/golang  ", "golang"},
		{"rust", "rust"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSubreddit(tt.in))
		})
	}
}

func TestNormalizeEnqueue(t *testing.T) {
	got := NormalizeEnqueue(models.EnqueueRequest{
		Subreddit: " r/golang ",
		Title:     "  Title  ",
		PostType:  " LINK ",
		PostTime:  " 2026-03-01 10:00 ",
		Content:   " https://go.dev ",
	})

	assert.Equal(t, "golang", got.Subreddit)
	assert.Equal(t, "Title", got.Title)
	assert.Equal(t, "link", got.PostType)
	assert.Equal(t, "2026-03-01 10:00", got.PostTime)
	assert.Equal(t, "subreddit", got.DestinationType)
	assert.Equal(t, "https://go.dev", got.Content)
}

func TestValidateEnqueue(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(r *models.EnqueueRequest)
		wantField string
	}{
		{name: "valid text", modify: func(r *models.EnqueueRequest) {}},
		{name: "valid link", modify: func(r *models.EnqueueRequest) {
			r.PostType = "link"
			r.Content = "https://example.com/article?id=1"
		}},
		{name: "valid image path", modify: func(r *models.EnqueueRequest) {
			r.PostType = "image"
			r.Content = "1700000000_cat.png"
		}},
		{name: "valid profile without subreddit", modify: func(r *models.EnqueueRequest) {
			r.DestinationType = "profile"
			r.Subreddit = ""
		}},
		{name: "datetime-local separator", modify: func(r *models.EnqueueRequest) {
			r.PostTime = "2026-03-01T10:00"
		}},
		{name: "missing title", modify: func(r *models.EnqueueRequest) { r.Title = "" }, wantField: "title"},
		{name: "title too long", modify: func(r *models.EnqueueRequest) { r.Title = strings.Repeat("a", 301) }, wantField: "title"},
		{name: "unknown post type", modify: func(r *models.EnqueueRequest) { r.PostType = "video" }, wantField: "post_type"},
		{name: "unknown destination", modify: func(r *models.EnqueueRequest) { r.DestinationType = "group" }, wantField: "destination_type"},
		{name: "missing subreddit", modify: func(r *models.EnqueueRequest) { r.Subreddit = "" }, wantField: "subreddit"},
		{name: "subreddit with spaces", modify: func(r *models.EnqueueRequest) { r.Subreddit = "go lang" }, wantField: "subreddit"},
		{name: "missing time", modify: func(r *models.EnqueueRequest) { r.PostTime = "" }, wantField: "post_time"},
		{name: "bad time", modify: func(r *models.EnqueueRequest) { r.PostTime = "tomorrow at noon" }, wantField: "post_time"},
		{name: "bad month", modify: func(r *models.EnqueueRequest) { r.PostTime = "2026-13-01 10:00" }, wantField: "post_time"},
		{name: "missing text", modify: func(r *models.EnqueueRequest) { r.Content = "" }, wantField: "content"},
		{name: "link not a url", modify: func(r *models.EnqueueRequest) {
			r.PostType = "link"
			r.Content = "not a url"
		}, wantField: "content"},
		{name: "link with ftp scheme", modify: func(r *models.EnqueueRequest) {
			r.PostType = "link"
			r.Content = "ftp://example.com/file"
		}, wantField: "content"},
		{name: "missing image", modify: func(r *models.EnqueueRequest) {
			r.PostType = "image"
			r.Content = ""
		}, wantField: "content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.modify(&req)

			err := ValidateEnqueue(context.Background(), req)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetCode(err))
			assert.Contains(t, errors.GetUserMessage(err), tt.wantField)
		})
	}
}

func TestValidateEnqueue_ReportsEveryField(t *testing.T) {
	err := ValidateEnqueue(context.Background(), models.EnqueueRequest{DestinationType: "subreddit"})
	require.Error(t, err)

	msg := errors.GetUserMessage(err)
	for _, field := range []string{"title", "post_type", "subreddit", "post_time", "content"} {
		assert.Contains(t, msg, field)
	}

	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, "content", appErr.Context["field"])
}

func TestValidateHTTPRequestSize(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/posts", strings.NewReader(strings.Repeat("x", 100)))
	assert.NoError(t, ValidateHTTPRequestSize(req, 1024))

	req.ContentLength = 3 * 1024 * 1024
	err := ValidateHTTPRequestSize(req, 2*1024*1024)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
	assert.Contains(t, errors.GetUserMessage(err), "2 MB")
}
