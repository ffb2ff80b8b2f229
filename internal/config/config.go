package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"redditscheduler/internal/constants"
	"redditscheduler/internal/models"
	"redditscheduler/internal/security"
	"redditscheduler/internal/timeutil"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingDBPath            = models.ConfigError{Message: "missing database path"}
	ErrMissingUploadDir         = models.ConfigError{Message: "missing upload directory"}
	ErrMissingRedditCredentials = models.ConfigError{Message: "missing Reddit credentials (set REDDIT_CLIENT_ID, REDDIT_CLIENT_SECRET, REDDIT_USERNAME and REDDIT_PASSWORD)"}
)

// DotEnvPath is the optional environment file read before overrides apply
var DotEnvPath = ".env"

// LoadConfig builds the configuration from the JSON file at path (skipped
// when path is empty), the .env file and the process environment, in that
// order of increasing precedence. Missing values take defaults.
func LoadConfig(path string) (*models.Config, error) {
	if err := loadDotEnv(DotEnvPath); err != nil {
		return nil, err
	}

	var config models.Config
	if path != "" {
		// Validate config file path to prevent directory traversal
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}

		file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal(file, &config); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
	}

	if err := applyEnvironmentOverrides(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	// Perform security validation after environment overrides
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// loadDotEnv reads KEY=VALUE pairs from path without overriding variables
// already set in the environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func applyDefaults(c *models.Config) {
	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}
	if c.Database.BusyTimeoutMs <= 0 {
		c.Database.BusyTimeoutMs = constants.DefaultBusyTimeoutMs
	}

	if c.Scheduler.IntervalSec <= 0 {
		c.Scheduler.IntervalSec = constants.DefaultScanIntervalSec
	}
	if c.Scheduler.SubmitTimeoutSec <= 0 {
		c.Scheduler.SubmitTimeoutSec = constants.DefaultSubmitTimeoutSec
	}

	if c.Server.Port == "" {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}

	if c.Uploads.Dir == "" {
		c.Uploads.Dir = constants.DefaultUploadDir
	}
	if c.Uploads.MaxSizeMB <= 0 {
		c.Uploads.MaxSizeMB = constants.DefaultMaxUploadSizeMB
	}
	if len(c.Uploads.AllowedExtensions) == 0 {
		c.Uploads.AllowedExtensions = constants.DefaultImageTypes
	}

	if c.Reddit.UserAgent == "" {
		c.Reddit.UserAgent = constants.DefaultRedditUserAgent
	}
	if c.Reddit.TimeoutSec <= 0 {
		c.Reddit.TimeoutSec = constants.DefaultRedditTimeoutSec
	}
	if c.Reddit.RequestsPerSec <= 0 {
		c.Reddit.RequestsPerSec = constants.DefaultRedditRequestsPerSec
	}
	if c.Reddit.Burst <= 0 {
		c.Reddit.Burst = constants.DefaultRedditBurst
	}
	if c.Reddit.BreakerFailures == 0 {
		c.Reddit.BreakerFailures = constants.DefaultBreakerFailures
	}
	if c.Reddit.BreakerCooldownS <= 0 {
		c.Reddit.BreakerCooldownS = constants.DefaultBreakerCooldownSec
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultRetryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	if c.Timezone == "" {
		c.Timezone = constants.DefaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Uploads.Dir == "" {
		return ErrMissingUploadDir
	}

	if !c.Scheduler.Disabled {
		r := c.Reddit
		if r.ClientID == "" || r.ClientSecret == "" || r.Username == "" || r.Password == "" {
			return ErrMissingRedditCredentials
		}
	}

	if _, err := timeutil.LoadZone(c.Timezone); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid timezone: %v", err)}
	}

	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return models.ConfigError{Message: fmt.Sprintf("invalid server port %q", c.Server.Port)}
	}

	for _, ext := range c.Uploads.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(ext, "."))
		if _, ok := constants.MimeTypes["."+ext]; !ok {
			return models.ConfigError{Message: fmt.Sprintf("unsupported upload extension %q", ext)}
		}
	}

	if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
		return models.ConfigError{Message: "retry maxBackoffMs must not be less than initialBackoffMs"}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return models.ConfigError{Message: fmt.Sprintf("invalid log level %q", c.LogLevel)}
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.Reddit.ClientID, "REDDIT_CLIENT_ID")
	setString(&c.Reddit.ClientSecret, "REDDIT_CLIENT_SECRET")
	setString(&c.Reddit.Username, "REDDIT_USERNAME")
	setString(&c.Reddit.Password, "REDDIT_PASSWORD")
	setString(&c.Reddit.UserAgent, "REDDIT_USER_AGENT")
	setString(&c.Timezone, "APP_TIMEZONE")
	setString(&c.Database.Path, "DB_FILE")
	setString(&c.Uploads.Dir, "UPLOAD_DIR")
	setString(&c.Server.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")

	// SECURITY: the basic auth hash should be set via the environment
	setString(&c.Server.BasicAuthUser, "REDDITSCHED_BASIC_AUTH_USER")
	setString(&c.Server.BasicAuthHash, "REDDITSCHED_BASIC_AUTH_HASH")

	if v := os.Getenv("MAX_UPLOAD_MB"); v != "" {
		mb, err := strconv.Atoi(v)
		if err != nil || mb <= 0 {
			return models.ConfigError{Message: fmt.Sprintf("invalid MAX_UPLOAD_MB %q", v)}
		}
		c.Uploads.MaxSizeMB = mb
	}
	if v := os.Getenv("SCAN_INTERVAL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return models.ConfigError{Message: fmt.Sprintf("invalid SCAN_INTERVAL_SEC %q", v)}
		}
		c.Scheduler.IntervalSec = sec
	}
	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if c.Server.BasicAuthUser != "" {
		if c.Server.BasicAuthHash == "" {
			return models.ConfigError{Message: "basic auth user set without REDDITSCHED_BASIC_AUTH_HASH"}
		}
		if _, err := bcrypt.Cost([]byte(c.Server.BasicAuthHash)); err != nil {
			return models.ConfigError{Message: "REDDITSCHED_BASIC_AUTH_HASH is not a bcrypt hash"}
		}
	}

	// Check if we're in production mode
	isProduction := os.Getenv("REDDITSCHED_ENV") == "production"

	if isProduction {
		if c.Server.BasicAuthUser == "" {
			return models.ConfigError{Message: "basic auth is required in production (set REDDITSCHED_BASIC_AUTH_USER and REDDITSCHED_BASIC_AUTH_HASH)"}
		}

		// Warn about debug logging in production
		if strings.EqualFold(c.LogLevel, "debug") {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else if c.Server.BasicAuthUser == "" {
		fmt.Fprintf(os.Stderr, "WARNING: basic auth not configured. Set REDDITSCHED_BASIC_AUTH_USER and REDDITSCHED_BASIC_AUTH_HASH to protect the web UI.\n")
	}

	return nil
}
