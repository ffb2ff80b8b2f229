package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"redditscheduler/internal/constants"
	"redditscheduler/internal/retry"

	"github.com/mattn/go-sqlite3"
)

// Overridden in tests.
var (
	retryInitialBackoff = time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond
	retryMaxBackoff     = time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond
)

func writeBackoff() *retry.Backoff {
	return retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: retryInitialBackoff,
		MaxDelay:     retryMaxBackoff,
		Multiplier:   2,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
	})
}

// retryableDBOperationNoReturn runs a write, retrying while SQLite reports
// the database as busy or locked.
func retryableDBOperationNoReturn(ctx context.Context, operation func() error, operationName string) error {
	attempts := 0
	err := writeBackoff().RetryWithPredicate(ctx, func() error {
		attempts++
		return operation()
	}, isRetryableDBError)

	switch {
	case err == nil:
		return nil
	case attempts == 0 || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return err
	case !isRetryableDBError(err):
		return fmt.Errorf("%s failed (non-retryable): %w", operationName, err)
	default:
		return fmt.Errorf("%s failed after %d attempts: %w", operationName, attempts, err)
	}
}

// retryableDBOperation is retryableDBOperationNoReturn for operations producing a value
func retryableDBOperation[T any](ctx context.Context, operation func() (T, error), operationName string) (T, error) {
	var result T
	err := retryableDBOperationNoReturn(ctx, func() error {
		var opErr error
		result, opErr = operation()
		return opErr
	}, operationName)
	return result, err
}

// isRetryableDBError reports transient SQLite contention or I/O failures
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr:
			return true
		}
		return false
	}

	msg := err.Error()
	for _, transient := range []string{"database is locked", "database table is locked", "disk I/O error"} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}
