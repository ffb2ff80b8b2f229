package service

// Logging Standards for the scheduler
//
// Standard field names and message patterns shared by the scheduler, the
// publisher and the HTTP layer.

// Standard Field Names
// Use these exact field names for consistency across all logging calls
const (
	// Core identifiers
	LogFieldPostID    = "post_id"
	LogFieldPostName  = "post_name"
	LogFieldSubreddit = "subreddit"
	LogFieldPostKind  = "post_kind"
	LogFieldTarget    = "destination_type"
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Scan fields
	LogFieldDue         = "due"
	LogFieldPosted      = "posted"
	LogFieldFailed      = "failed"
	LogFieldStoreErrors = "store_errors"
	LogFieldSkipped     = "skipped"
	LogFieldScheduledAt = "scheduled_at"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Network and external services
	LogFieldURL        = "url"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"

	// File and media
	LogFieldFileName  = "file_name"
	LogFieldMediaType = "media_type"

	// Error and debugging
	LogFieldErrorCode = "error_code"
	LogFieldLastError = "last_error"
	LogFieldAttempt   = "attempt"
)

// Log Level Usage Guidelines
//
// DEBUG: skipped ticks, token refreshes, raw request details.
//
// INFO: startup/shutdown, scans that found due posts, successful submissions,
// enqueue and delete.
//
// WARN: a submission failed and the post stays pending, an open circuit
// breaker, configuration falling back to defaults.
//
// ERROR: store failures, panics recovered from the Reddit client.
//
// FATAL: configuration or database unavailable at startup.

// Standard Log Message Patterns
//
// Starting operations: "Starting [operation]"
// Completed operations: "Completed [operation]" or "[Operation] completed successfully"
// Failed operations: "Failed to [operation]"
// Skipping operations: "Skipping [operation]: [reason]"

// Example Usage:
//
// logger.WithFields(logrus.Fields{
//     LogFieldPostID:    post.ID,
//     LogFieldSubreddit: post.Destination,
//     LogFieldPostKind:  post.Kind.String(),
// }).Info("Submitted scheduled post")
