package obslog

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/evalgo-chronicle/chronicle/config"
)

func TestNewUsesJSONFormatterWhenConfigured(t *testing.T) {
	entry := New(config.ServiceConfig{Name: "chronicle", LogFormat: "json", LogLevel: "warn"})
	_, ok := entry.Logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
	assert.Equal(t, logrus.WarnLevel, entry.Logger.GetLevel())
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	entry := New(config.ServiceConfig{Name: "chronicle", LogFormat: "text", LogLevel: "not-a-level"})
	assert.Equal(t, logrus.InfoLevel, entry.Logger.GetLevel())
}

func TestNewAttachesServiceFields(t *testing.T) {
	entry := New(config.ServiceConfig{Name: "chronicle", Version: "1.2.3", Environment: "staging", LogLevel: "info"})
	assert.Equal(t, "chronicle", entry.Data["service"])
	assert.Equal(t, "1.2.3", entry.Data["version"])
	assert.Equal(t, "staging", entry.Data["env"])
}
