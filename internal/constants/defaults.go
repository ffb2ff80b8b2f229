package constants

// Default scheduler configuration values
const (
	DefaultScanIntervalSec     = 60
	DefaultSubmitTimeoutSec    = 30
	DefaultRetryBackoffMs      = 1000
	DefaultMaxBackoffMs        = 60000
	DefaultMaxAttempts         = 5
	DefaultServerPort          = "8080"
	DefaultTimezone            = "UTC"
	DefaultDatabasePath        = "/data/posts.db"
	DefaultBusyTimeoutMs       = 5000
	DefaultUploadDir           = "/data/uploads"
	DefaultMaxUploadSizeMB     = 10
	DefaultMaxTitleLength      = 300
	DefaultMaxSubredditLength  = 21
	DefaultMaxFlairTextLength  = 64
	DefaultMaxErrorTextLength  = 2000
	DefaultMigrationsTableName = "schema_migrations"
)

// Reddit API defaults
const (
	DefaultRedditAPIBaseURL     = "https://oauth.reddit.com"
	DefaultRedditAuthURL        = "https://www.reddit.com/api/v1/access_token"
	DefaultRedditUserAgent      = "reddit-scheduler/0.3"
	DefaultRedditRequestsPerSec = 1.0
	DefaultRedditBurst          = 5
	DefaultRedditTimeoutSec     = 30
	DefaultTokenExpirySlackSec  = 60
	DefaultBreakerFailures      = 5
	DefaultBreakerCooldownSec   = 120
	CBHalfOpenMaxCalls          = 1
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec         = 30
	DefaultDatabaseRetryAttempts  = 3
	DefaultGracefulShutdownSec    = 30
	DefaultServerReadTimeoutSec   = 15
	DefaultServerWriteTimeoutSec  = 60
	DefaultServerIdleTimeoutSec   = 60
	DefaultTracingShutdownSec     = 5
	DefaultMaxImageDownloadSizeMB = 20
)

// Encryption settings
const (
	EncryptionSalt    = "redditscheduler-field-encryption-v1"
	MinSecretLength   = 32
	EncryptedPrefix   = "enc:"
	ServerErrorChanSz = 1
)

// Size units
const (
	BytesPerMegabyte = 1024 * 1024
)
