package models

import "time"

// Config holds the application configuration
type Config struct {
	Reddit    RedditConfig    `json:"reddit"`
	Database  DatabaseConfig  `json:"database"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Server    ServerConfig    `json:"server"`
	Uploads   UploadConfig    `json:"uploads"`
	Retry     RetryConfig     `json:"retry"`
	Tracing   TracingConfig   `json:"tracing"`
	Timezone  string          `json:"timezone"`
	LogLevel  string          `json:"log_level"`
}

// RedditConfig holds Reddit API credentials and client tuning.
// Credentials are normally supplied through the environment.
type RedditConfig struct {
	ClientID         string  `json:"client_id"`
	ClientSecret     string  `json:"client_secret"`
	Username         string  `json:"username"`
	Password         string  `json:"password"`
	UserAgent        string  `json:"user_agent"`
	APIBaseURL       string  `json:"api_base_url"`
	AuthURL          string  `json:"auth_url"`
	TimeoutSec       int     `json:"timeout_sec"`
	RequestsPerSec   float64 `json:"requests_per_sec"`
	Burst            int     `json:"burst"`
	BreakerFailures  uint32  `json:"breaker_failures"`
	BreakerCooldownS int     `json:"breaker_cooldown_sec"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path          string `json:"path"`
	BusyTimeoutMs int    `json:"busy_timeout_ms"`
}

// SchedulerConfig controls the due-post scan loop
type SchedulerConfig struct {
	IntervalSec      int  `json:"interval_sec"`
	SubmitTimeoutSec int  `json:"submit_timeout_sec"`
	Disabled         bool `json:"disabled"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           string `json:"port"`
	BasicAuthUser  string `json:"basic_auth_user"`
	BasicAuthHash  string `json:"basic_auth_hash"`
	ReadTimeoutSec int    `json:"read_timeout_sec"`
}

// UploadConfig controls image upload handling
type UploadConfig struct {
	Dir               string   `json:"dir"`
	MaxSizeMB         int      `json:"max_size_mb"`
	AllowedExtensions []string `json:"allowed_extensions"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig controls OpenTelemetry export
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

// ScanInterval returns the configured scan period
func (c SchedulerConfig) ScanInterval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// SubmitTimeout returns the per-submission timeout
func (c SchedulerConfig) SubmitTimeout() time.Duration {
	return time.Duration(c.SubmitTimeoutSec) * time.Second
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
