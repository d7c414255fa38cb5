package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range keys {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 15, cfg.ETAMinutesPerPatient)
	assert.Equal(t, 8*time.Hour, cfg.TokenTTL())
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, 30, cfg.RateLimitBurst)
	assert.Equal(t, 600, cfg.PrincipalRateLimitPerMinute)
	assert.Equal(t, 120, cfg.PrincipalRateLimitBurst)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Empty(t, cfg.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.TraceSampleRatio)
	assert.Error(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DSN", "postgres://localhost/clinic")
	t.Setenv("ETA_MINUTES_PER_PATIENT", "10")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("SEED_CLINICS", "General, Dental,,Eye ")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("OTEL_TRACES_SAMPLE_RATIO", "0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres://localhost/clinic", cfg.DatabaseURL)
	assert.Equal(t, 10, cfg.ETAMinutesPerPatient)
	assert.Equal(t, []string{"General", "Dental", "Eye"}, cfg.Clinics())
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.True(t, cfg.OTLPInsecure)
	assert.Equal(t, 0.5, cfg.TraceSampleRatio)
	assert.NoError(t, cfg.Validate())
}
