package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"chicommute/internal/db"
)

type Config struct {
	HTTPAddr    string `validate:"required,hostname_port"`
	MetricsAddr string
	Location    *time.Location `validate:"required"`

	// DatabaseURL is optional; without it schedules are kept in memory only.
	DatabaseURL string
	RedisAddr   string `validate:"omitempty,hostname_port"`

	NATSURL           string `validate:"omitempty,url"`
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	MetraBaseURL            string        `validate:"required,url"`
	MetraAPIKey             string
	MetraAPISecret          string
	FeedPollInterval        time.Duration `validate:"min=0"`
	FeedOnError             string        `validate:"oneof=discard preserve"`
	FeedNarrowByDestination bool

	CTABusBaseURL   string        `validate:"required,url"`
	CTATrainBaseURL string        `validate:"required,url"`
	CTABusAPIKey    string
	CTATrainAPIKey  string
	CTACacheTTL     time.Duration `validate:"gt=0"`

	LLMEndpoint string        `validate:"omitempty,url"`
	LLMAPIKey   string        `validate:"required_with=LLMEndpoint"`
	LLMModel    string
	LLMTimeout  time.Duration `validate:"gt=0"`

	SessionTTL time.Duration `validate:"gt=0"`
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":8080")
	// Metrics listen address (e.g., ":9102"). Empty serves /metrics on HTTP_ADDR only.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars when PGDATABASE is set
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" && os.Getenv("PGDATABASE") != "" {
		dsn = db.BuildDSN(
			getenvDefault("PGHOST", "127.0.0.1"),
			getenvDefault("PGPORT", "5432"),
			getenvDefault("PGUSER", "postgres"),
			os.Getenv("PGPASSWORD"),
			os.Getenv("PGDATABASE"),
			getenvDefault("PGSSLMODE", "disable"),
		)
	}
	cfg.DatabaseURL = dsn

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "metra")
	// Debug logging for NATS publish subjects
	cfg.LogNATSSubjects = getenvBool("LOG_NATS_SUBJECTS")

	cfg.MetraBaseURL = getenvDefault("METRA_API_BASE", "https://gtfsapi.metrarail.com/gtfs")
	cfg.MetraAPIKey = os.Getenv("METRA_API_KEY")
	cfg.MetraAPISecret = os.Getenv("METRA_API_SECRET")

	var err error
	if cfg.FeedPollInterval, err = getenvDuration("FEED_POLL_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	cfg.FeedOnError = strings.ToLower(getenvDefault("FEED_ON_ERROR", "discard"))
	cfg.FeedNarrowByDestination = getenvBool("FEED_NARROW_BY_DESTINATION")

	cfg.CTABusBaseURL = getenvDefault("CTA_BUS_API_BASE", "http://www.ctabustracker.com/bustime/api/v2")
	cfg.CTATrainBaseURL = getenvDefault("CTA_TRAIN_API_BASE", "http://lapi.transitchicago.com/api/1.0")
	cfg.CTABusAPIKey = os.Getenv("CTA_BUS_API_KEY")
	cfg.CTATrainAPIKey = os.Getenv("CTA_TRAIN_API_KEY")
	if cfg.CTACacheTTL, err = getenvDuration("CTA_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}

	cfg.LLMEndpoint = os.Getenv("LLM_ENDPOINT")
	cfg.LLMAPIKey = os.Getenv("LLM_API_KEY")
	cfg.LLMModel = getenvDefault("LLM_MODEL", "gemini-1.5-flash")
	if cfg.LLMTimeout, err = getenvDuration("LLM_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}

	if cfg.SessionTTL, err = getenvDuration("SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	// Time zone
	tzName := getenvDefault("TZ", "America/Chicago")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ: %v", err)
	}
	cfg.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the assembled configuration and names the offending
// settings by field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvBool(k string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

// getenvDuration accepts Go durations ("45s") or a bare number of seconds.
func getenvDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	if sec, err := strconv.Atoi(v); err == nil {
		if sec < 0 {
			return 0, fmt.Errorf("invalid %s: %q", k, v)
		}
		return time.Duration(sec) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
