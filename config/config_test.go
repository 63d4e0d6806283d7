package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvConfigPrefixing(t *testing.T) {
	t.Setenv("CHRONICLE_STORAGE_KIND", "s3")
	env := NewEnvConfig("CHRONICLE_STORAGE")
	assert.Equal(t, "s3", env.GetString("KIND", "local"))
	assert.Equal(t, "local", env.GetString("MISSING", "local"))
}

func TestGetDurationFallsBackOnParseError(t *testing.T) {
	t.Setenv("CHRONICLE_SYNC_LOCK_TIMEOUT", "not-a-duration")
	env := NewEnvConfig("CHRONICLE_SYNC")
	assert.Equal(t, 5*time.Second, env.GetDuration("LOCK_TIMEOUT", 5*time.Second))
}

func TestLoadDefaultsValidate(t *testing.T) {
	for _, key := range []string{
		"CHRONICLE_ENVIRONMENT", "CHRONICLE_LOG_LEVEL",
		"CHRONICLE_STORAGE_KIND", "CHRONICLE_SYNC_CONFLICT_STRATEGY",
	} {
		os.Unsetenv(key)
	}
	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "development", cfg.Service.Environment)
	assert.Equal(t, "local", cfg.Storage.Kind)
}

func TestLoadRejectsS3WithoutBucket(t *testing.T) {
	t.Setenv("CHRONICLE_STORAGE_KIND", "s3")
	t.Setenv("CHRONICLE_STORAGE_S3_BUCKET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidatorAccumulatesErrors(t *testing.T) {
	v := NewValidator()
	v.RequireString("Name", "")
	v.RequirePositiveInt("Port", -1)
	v.RequireOneOf("Env", "bogus", []string{"development", "production"})
	assert.False(t, v.IsValid())
	assert.Len(t, v.Errors(), 3)
}
