package main

import (
	"context"
	"path/filepath"
	"testing"

	"redditscheduler/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyLogLevel(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		verbose    bool
		want       logrus.Level
	}{
		{"default", "", false, logrus.InfoLevel},
		{"warn", "warn", false, logrus.WarnLevel},
		{"error", "error", false, logrus.ErrorLevel},
		{"debug needs verbose", "debug", false, logrus.InfoLevel},
		{"verbose wins", "error", true, logrus.DebugLevel},
		{"invalid", "loud", false, logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := quietLogger()
			applyLogLevel(logger, tt.configured, tt.verbose)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestConfigSummary_MasksCredentials(t *testing.T) {
	cfg := &models.Config{
		Reddit: models.RedditConfig{
			ClientID:     "abcdEFGH1234",
			ClientSecret: "very-secret",
			Username:     "spez",
			Password:     "hunter2",
		},
		Timezone: "Europe/Berlin",
	}

	fields := configSummary(cfg)

	assert.Equal(t, "********1234", fields["client_id"])
	assert.Equal(t, "[redacted]", fields["client_secret"])
	assert.Equal(t, "s**z", fields["username"])
	assert.Equal(t, "Europe/Berlin", fields["timezone"])
	assert.Equal(t, true, fields["scheduler_on"])
	for _, v := range fields {
		assert.NotEqual(t, "hunter2", v)
		assert.NotEqual(t, "very-secret", v)
	}
}

func TestOpenDatabase(t *testing.T) {
	t.Setenv("REDDITSCHED_ENABLE_ENCRYPTION", "false")

	cfg := &models.Config{
		Database: models.DatabaseConfig{Path: filepath.Join(t.TempDir(), "data", "posts.db")},
		Retry:    models.RetryConfig{InitialBackoffMs: 1, MaxBackoffMs: 5},
	}

	db, err := openDatabase(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Ping(context.Background()))
}

func TestOpenDatabase_GivesUpAfterRetries(t *testing.T) {
	cfg := &models.Config{
		Database: models.DatabaseConfig{Path: "../outside.db"},
		Retry:    models.RetryConfig{InitialBackoffMs: 1, MaxBackoffMs: 5},
	}

	_, err := openDatabase(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize database after retries")
}
