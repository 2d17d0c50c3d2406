package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Environment   string
	AWS           AWSConfig
	Provider      ProviderConfig
	Ingest        IngestConfig
	Reconcile     ReconcileConfig
	API           APIConfig
	Observability ObservabilityConfig
	CORS          CORSConfig
}

// AWSConfig holds AWS-specific configuration.
type AWSConfig struct {
	Region        string
	DynamoDBTable string
	// ArchiveBucket retains raw upload sources for re-transcoding.
	// Archiving is disabled when empty.
	ArchiveBucket string
	// StalledQueueURL receives operator events for assets that stop
	// reconciling without reaching ready. Disabled when empty.
	StalledQueueURL string
}

// ProviderConfig holds remote video provider configuration.
type ProviderConfig struct {
	BaseURL   string
	LibraryID string
	APIKey    string
	CDNHost   string
	EmbedHost string
	// SigningKey signs playback URLs. Embed URLs degrade to unsigned
	// links when empty (token auth disabled).
	SigningKey     string
	RequestTimeout time.Duration
	PlaybackTTL    time.Duration
}

// IngestConfig holds upload pipeline configuration.
type IngestConfig struct {
	MaxUploadBytes int64
	TempDir        string
}

// ReconcileConfig holds polling policy for the reconciliation loop.
type ReconcileConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
}

// APIConfig holds API server configuration.
type APIConfig struct {
	Port     string
	Username string
	Password string
	// StudentPassword is the shared access secret for student logins. The
	// presented username becomes the token identity, so each student keeps
	// distinct progress rows. Empty disables student login in production.
	StudentPassword string
	JWTSecret       string
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	OTLPEndpoint string
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string
}

// Default values
const (
	DefaultPort            = "8080"
	DefaultRegion          = "us-west-2"
	DefaultOTLPEndpoint    = "localhost:4317"
	DefaultProviderBaseURL = "https://video.bunnycdn.com"
	DefaultEmbedHost       = "iframe.mediadelivery.net"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultPlaybackTTL     = time.Hour
	DefaultPollInterval    = 10 * time.Second
	DefaultMaxAttempts     = 60
	DefaultMaxUploadBytes  = 4 << 30 // 4 GiB
	DefaultTempDir         = "/tmp/lms-uploads"
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENV", "dev"),
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", DefaultRegion),
			DynamoDBTable:   os.Getenv("DYNAMODB_TABLE"),
			ArchiveBucket:   os.Getenv("ARCHIVE_BUCKET"),
			StalledQueueURL: os.Getenv("STALLED_QUEUE_URL"),
		},
		Provider: ProviderConfig{
			BaseURL:        getEnv("VIDEO_API_BASE_URL", DefaultProviderBaseURL),
			LibraryID:      os.Getenv("VIDEO_LIBRARY_ID"),
			APIKey:         os.Getenv("VIDEO_API_KEY"),
			CDNHost:        os.Getenv("VIDEO_CDN_HOST"),
			EmbedHost:      getEnv("VIDEO_EMBED_HOST", DefaultEmbedHost),
			SigningKey:     os.Getenv("VIDEO_SIGNING_KEY"),
			RequestTimeout: getEnvDuration("VIDEO_REQUEST_TIMEOUT", DefaultRequestTimeout),
			PlaybackTTL:    getEnvDuration("PLAYBACK_URL_TTL", DefaultPlaybackTTL),
		},
		Ingest: IngestConfig{
			MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes),
			TempDir:        getEnv("UPLOAD_TEMP_DIR", DefaultTempDir),
		},
		Reconcile: ReconcileConfig{
			PollInterval: getEnvDuration("RECONCILE_POLL_INTERVAL", DefaultPollInterval),
			MaxAttempts:  getEnvInt("RECONCILE_MAX_ATTEMPTS", DefaultMaxAttempts),
		},
		API: APIConfig{
			Port:            getEnv("PORT", DefaultPort),
			Username:        os.Getenv("API_USERNAME"),
			Password:        os.Getenv("API_PASSWORD"),
			StudentPassword: os.Getenv("STUDENT_API_PASSWORD"),
			JWTSecret:       os.Getenv("JWT_SECRET"),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", DefaultOTLPEndpoint),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{
				"http://localhost:3000",
			}),
		},
	}

	return cfg, nil
}

// LoadAPI loads and validates configuration for the API service.
func LoadAPI() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.ValidateAPI(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateAPI validates configuration required for the API service.
func (c *Config) ValidateAPI() error {
	var errs []string

	if c.AWS.DynamoDBTable == "" {
		errs = append(errs, "DYNAMODB_TABLE is required")
	}
	if c.Provider.LibraryID == "" {
		errs = append(errs, "VIDEO_LIBRARY_ID is required")
	}
	if c.Provider.APIKey == "" {
		errs = append(errs, "VIDEO_API_KEY is required")
	}
	if c.Provider.CDNHost == "" {
		errs = append(errs, "VIDEO_CDN_HOST is required")
	}
	if c.Reconcile.MaxAttempts <= 0 {
		errs = append(errs, "RECONCILE_MAX_ATTEMPTS must be positive")
	}
	if c.Ingest.MaxUploadBytes <= 0 {
		errs = append(errs, "MAX_UPLOAD_BYTES must be positive")
	}

	// In production, require explicit credentials
	if c.IsProduction() {
		if c.API.Username == "" {
			errs = append(errs, "API_USERNAME is required in production")
		}
		if c.API.Password == "" {
			errs = append(errs, "API_PASSWORD is required in production")
		}
		if c.API.JWTSecret == "" {
			errs = append(errs, "JWT_SECRET is required in production")
		}
		if len(c.API.JWTSecret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}
		if c.Provider.SigningKey == "" {
			errs = append(errs, "VIDEO_SIGNING_KEY is required in production")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "prod" || env == "production"
}

// ArchiveEnabled reports whether raw upload sources are retained in S3.
func (c *Config) ArchiveEnabled() bool {
	return c.AWS.ArchiveBucket != ""
}

// StalledEventsEnabled reports whether stalled-asset events are published.
func (c *Config) StalledEventsEnabled() bool {
	return c.AWS.StalledQueueURL != ""
}

// GetAPICredentials returns API credentials with fallback for development.
func (c *Config) GetAPICredentials() (username, password string, err error) {
	username = c.API.Username
	password = c.API.Password

	if username == "" || password == "" {
		if c.IsProduction() {
			return "", "", errors.New("API credentials not configured")
		}
		// Development fallback
		return "admin", "secret", nil
	}

	return username, password, nil
}

// GetStudentPassword returns the shared student access secret with a
// fallback for development. An empty value in production disables student
// login.
func (c *Config) GetStudentPassword() string {
	if c.API.StudentPassword == "" && !c.IsProduction() {
		// Development fallback
		return "secret"
	}
	return c.API.StudentPassword
}

// GetJWTSecret returns the JWT secret.
func (c *Config) GetJWTSecret() ([]byte, error) {
	secret := c.API.JWTSecret

	if secret == "" {
		return nil, errors.New("JWT_SECRET is required (set it even for development)")
	}

	if len(secret) < 32 && c.IsProduction() {
		return nil, errors.New("JWT_SECRET must be at least 32 characters")
	}

	return []byte(secret), nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
