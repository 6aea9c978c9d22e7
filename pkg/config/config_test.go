package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// The config is a process-wide singleton, so one test exercises all the
// env reads before the once fires.
func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("OPENAPI_SCHEMA_PATH", "/etc/app/openapi.yaml")
	t.Setenv("WEBHOOK_TOKEN", "hook-secret")
	t.Setenv("PENDING_WINDOW", "5m")

	cfg := New()

	assert.Equal(t, "/etc/app/openapi.yaml", cfg.Server.OpenAPISchema)
	assert.Equal(t, "hook-secret", cfg.Security.WebhookToken)
	assert.Equal(t, 5*time.Minute, cfg.Consultation.PendingWindow)

	// Defaults survive for everything unset.
	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Consultation.RequestKeyBucket)
}
