package service

import (
	"context"
	"io"
	"sync"
	"time"

	"redditscheduler/internal/models"
	"redditscheduler/pkg/media"
	"redditscheduler/pkg/reddit"

	"github.com/stretchr/testify/mock"
)

// Mock Reddit client
type mockRedditClient struct {
	mock.Mock
}

func (m *mockRedditClient) Submit(ctx context.Context, req reddit.SubmitRequest) (*reddit.SubmitResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reddit.SubmitResult), args.Error(1)
}

func (m *mockRedditClient) UploadImage(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	args := m.Called(ctx, name, mimeType, data)
	return args.String(0), args.Error(1)
}

func (m *mockRedditClient) LinkFlairs(ctx context.Context, subreddit string) ([]models.Flair, error) {
	args := m.Called(ctx, subreddit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Flair), args.Error(1)
}

func (m *mockRedditClient) Username() string {
	args := m.Called()
	return args.String(0)
}

// Mock image handler
type mockMediaHandler struct {
	mock.Mock
}

func (m *mockMediaHandler) Load(ctx context.Context, ref string) (*media.Image, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*media.Image), args.Error(1)
}

func (m *mockMediaHandler) SaveUpload(originalName string, r io.Reader) (string, error) {
	args := m.Called(originalName, r)
	return args.String(0), args.Error(1)
}

func (m *mockMediaHandler) UploadDir() string {
	args := m.Called()
	return args.String(0)
}

// Mock post store
type mockPostStore struct {
	mock.Mock
}

func (m *mockPostStore) InsertPost(ctx context.Context, post *models.ScheduledPost) (int64, error) {
	args := m.Called(ctx, post)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockPostStore) ListPosts(ctx context.Context) ([]models.ScheduledPost, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ScheduledPost), args.Error(1)
}

func (m *mockPostStore) FindDuePosts(ctx context.Context, now time.Time) ([]models.ScheduledPost, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ScheduledPost), args.Error(1)
}

func (m *mockPostStore) GetPost(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScheduledPost), args.Error(1)
}

func (m *mockPostStore) MarkPosted(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockPostStore) MarkFailed(ctx context.Context, id int64, message string) error {
	return m.Called(ctx, id, message).Error(0)
}

func (m *mockPostStore) DeletePost(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

// Mock submitter
type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, post *models.ScheduledPost) string {
	return m.Called(ctx, post).String(0)
}

// fixedSubmitter always returns the same result and records the posts it saw
type fixedSubmitter struct {
	mu     sync.Mutex
	result string
	calls  []int64
}

func (f *fixedSubmitter) Submit(ctx context.Context, post *models.ScheduledPost) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, post.ID)
	return f.result
}

func (f *fixedSubmitter) Calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

// blockingScanner signals each RunOnce and blocks until released
type blockingScanner struct {
	started chan time.Time
	release chan struct{}
	mu      sync.Mutex
	runs    int
	ctxErrs []error
}

func newBlockingScanner() *blockingScanner {
	return &blockingScanner{
		started: make(chan time.Time, 16),
		release: make(chan struct{}),
	}
}

func (b *blockingScanner) RunOnce(ctx context.Context, now time.Time) (ScanResult, error) {
	b.mu.Lock()
	b.runs++
	b.mu.Unlock()

	b.started <- now
	<-b.release

	b.mu.Lock()
	b.ctxErrs = append(b.ctxErrs, ctx.Err())
	b.mu.Unlock()
	return ScanResult{}, nil
}

func (b *blockingScanner) Runs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runs
}
