package service

import (
	"context"
	"fmt"
	"time"

	"redditscheduler/internal/metrics"
	"redditscheduler/internal/models"
	"redditscheduler/internal/timeutil"
	"redditscheduler/internal/tracing"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

// ScanResult summarizes one pass over the due posts
type ScanResult struct {
	Due         int `json:"due"`
	Posted      int `json:"posted"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	StoreErrors int `json:"store_errors"`
}

// Scanner submits every pending post whose scheduled time has passed
type Scanner struct {
	store     PostStore
	publisher Submitter
	logger    *logrus.Logger
}

func NewScanner(store PostStore, publisher Submitter, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{store: store, publisher: publisher, logger: logger}
}

// RunOnce submits the posts due at now in scheduled order. A failed
// submission records its message and leaves the post pending; a failed
// status write is logged and counted and the scan moves on. Only the initial
// due query can fail the whole scan.
func (s *Scanner) RunOnce(ctx context.Context, now time.Time) (ScanResult, error) {
	var result ScanResult
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "scheduler.scan")
	defer span.End()
	defer func() {
		metrics.IncrementCounter(metrics.ScanRuns, nil, "Due-item scans executed")
		metrics.RecordTimer(metrics.ScanDuration, time.Since(start), nil)
	}()

	due, err := s.store.FindDuePosts(ctx, now)
	if err != nil {
		tracing.RecordError(ctx, err)
		return result, fmt.Errorf("failed to load due posts: %w", err)
	}
	result.Due = len(due)
	span.SetAttributes(tracing.AttrDueCount.Int(result.Due))

	if result.Due == 0 {
		return result, nil
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldDue:         result.Due,
		LogFieldScheduledAt: timeutil.FormatStorage(now),
	}).Info("Processing due posts")

	for i := range due {
		post := &due[i]
		s.process(ctx, post, &result)
	}

	if result.StoreErrors > 0 {
		span.SetStatus(codes.Error, "status writes failed")
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldDue:         result.Due,
		LogFieldPosted:      result.Posted,
		LogFieldFailed:      result.Failed,
		LogFieldSkipped:     result.Skipped,
		LogFieldStoreErrors: result.StoreErrors,
		LogFieldDuration:    time.Since(start).Milliseconds(),
	}).Info("Completed due-post scan")

	return result, nil
}

func (s *Scanner) process(ctx context.Context, post *models.ScheduledPost, result *ScanResult) {
	fields := logrus.Fields{
		LogFieldPostID:    post.ID,
		LogFieldSubreddit: post.Destination,
		LogFieldPostKind:  post.Kind.String(),
	}
	labels := map[string]string{"kind": post.Kind.String()}

	// The due list is a snapshot; earlier submissions can take long enough
	// for this post to be deleted or handled in the meantime.
	current, err := s.store.GetPost(ctx, post.ID)
	if err != nil {
		result.StoreErrors++
		metrics.IncrementCounter(metrics.ScanStoreErrors, nil, "Status writes that failed during a scan")
		s.logger.WithFields(fields).WithError(err).Error("Failed to re-read post before submission")
		return
	}
	if current == nil || current.Status == models.StatusPosted {
		result.Skipped++
		s.logger.WithFields(fields).Debug("Skipping post removed or posted since the scan began")
		return
	}
	post = current

	errMsg := s.publisher.Submit(ctx, post)
	if errMsg == "" {
		result.Posted++
		metrics.IncrementCounter(metrics.PostsPosted, labels, "Posts submitted successfully")
		if err := s.store.MarkPosted(ctx, post.ID); err != nil {
			result.StoreErrors++
			metrics.IncrementCounter(metrics.ScanStoreErrors, nil, "Status writes that failed during a scan")
			s.logger.WithFields(fields).WithError(err).Error("Failed to mark post as posted")
		}
		return
	}

	result.Failed++
	metrics.IncrementCounter(metrics.PostsFailed, labels, "Submission attempts that failed")
	if err := s.store.MarkFailed(ctx, post.ID, errMsg); err != nil {
		result.StoreErrors++
		metrics.IncrementCounter(metrics.ScanStoreErrors, nil, "Status writes that failed during a scan")
		s.logger.WithFields(fields).WithError(err).Error("Failed to record submission error")
		return
	}
	fields[LogFieldLastError] = errMsg
	s.logger.WithFields(fields).Warn("Post submission failed, will retry next scan")
}
