package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                        string  `mapstructure:"PORT"`
	DatabaseURL                 string  `mapstructure:"DB_DSN"`
	LogLevel                    string  `mapstructure:"LOG_LEVEL"`
	ETAMinutesPerPatient        int     `mapstructure:"ETA_MINUTES_PER_PATIENT"`
	AuthJWTSecret               string  `mapstructure:"AUTH_JWT_SECRET"`
	AuthTokenTTLSeconds         int     `mapstructure:"AUTH_TOKEN_TTL_SECONDS"`
	RateLimitPerMinute          int     `mapstructure:"RATE_LIMIT_PER_MIN"`
	RateLimitBurst              int     `mapstructure:"RATE_LIMIT_BURST"`
	PrincipalRateLimitPerMinute int     `mapstructure:"PRINCIPAL_RATE_LIMIT_PER_MIN"`
	PrincipalRateLimitBurst     int     `mapstructure:"PRINCIPAL_RATE_LIMIT_BURST"`
	SeedClinics                 string  `mapstructure:"SEED_CLINICS"`
	AppEnv                      string  `mapstructure:"APP_ENV"`
	AppVersion                  string  `mapstructure:"APP_VERSION"`
	OTLPEndpoint                string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure                bool    `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	TraceSampleRatio            float64 `mapstructure:"OTEL_TRACES_SAMPLE_RATIO"`
}

var keys = []string{
	"PORT",
	"DB_DSN",
	"LOG_LEVEL",
	"ETA_MINUTES_PER_PATIENT",
	"AUTH_JWT_SECRET",
	"AUTH_TOKEN_TTL_SECONDS",
	"RATE_LIMIT_PER_MIN",
	"RATE_LIMIT_BURST",
	"PRINCIPAL_RATE_LIMIT_PER_MIN",
	"PRINCIPAL_RATE_LIMIT_BURST",
	"SEED_CLINICS",
	"APP_ENV",
	"APP_VERSION",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_EXPORTER_OTLP_INSECURE",
	"OTEL_TRACES_SAMPLE_RATIO",
}

// Load reads configuration from the environment, with an optional .env file
// in the working directory supplying values the environment does not set.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ETA_MINUTES_PER_PATIENT", 15)
	v.SetDefault("AUTH_TOKEN_TTL_SECONDS", 28800)
	v.SetDefault("RATE_LIMIT_PER_MIN", 120)
	v.SetDefault("RATE_LIMIT_BURST", 30)
	v.SetDefault("PRINCIPAL_RATE_LIMIT_PER_MIN", 600)
	v.SetDefault("PRINCIPAL_RATE_LIMIT_BURST", 120)
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("OTEL_TRACES_SAMPLE_RATIO", 1.0)

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	if c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.ETAMinutesPerPatient <= 0 {
		return fmt.Errorf("ETA_MINUTES_PER_PATIENT must be positive, got %d", c.ETAMinutesPerPatient)
	}
	return nil
}

func (c Config) TokenTTL() time.Duration {
	if c.AuthTokenTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.AuthTokenTTLSeconds) * time.Second
}

// Clinics returns the SEED_CLINICS names, comma separated, trimmed and
// without blanks.
func (c Config) Clinics() []string {
	var names []string
	for _, name := range strings.Split(c.SeedClinics, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
