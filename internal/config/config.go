package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BlobBackendMemory = "memory"
	BlobBackendMinio  = "minio"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	UploadLimit    string        `mapstructure:"UPLOAD_LIMIT"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	AuthJWTSecret string `mapstructure:"AUTH_JWT_SECRET"`
	AuthIssuer    string `mapstructure:"AUTH_ISSUER"`
	AuthAudience  string `mapstructure:"AUTH_AUDIENCE"`

	ReportSourceURL     string        `mapstructure:"REPORT_SOURCE_URL"`
	ReportSourceTimeout time.Duration `mapstructure:"REPORT_SOURCE_TIMEOUT"`
	ReportFileMap       string        `mapstructure:"REPORT_FILE_MAP"`
	ReportProfilePath   string        `mapstructure:"REPORT_PROFILE_PATH"`
	ReportTitle         string        `mapstructure:"REPORT_TITLE"`
	UploadValidatePDF   bool          `mapstructure:"UPLOAD_VALIDATE_PDF"`

	BlobBackend    string `mapstructure:"BLOB_BACKEND"`
	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`
}

var keys = []string{
	"PORT", "ENV", "CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"REQUEST_TIMEOUT", "BODY_LIMIT", "UPLOAD_LIMIT",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_JWT_SECRET", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"REPORT_SOURCE_URL", "REPORT_SOURCE_TIMEOUT", "REPORT_FILE_MAP",
	"REPORT_PROFILE_PATH", "REPORT_TITLE", "UPLOAD_VALIDATE_PDF",
	"BLOB_BACKEND", "MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY",
	"MINIO_BUCKET", "MINIO_USE_SSL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_LIMIT", "26M")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AUTH_ISSUER", "labdesk")
	v.SetDefault("REPORT_SOURCE_URL", "https://digiihospital.guildarts.online/users/get_pdf")
	v.SetDefault("REPORT_SOURCE_TIMEOUT", "15s")
	v.SetDefault("REPORT_FILE_MAP", "medical1.pdf=1,medical2.pdf=2,medical3.pdf=3")
	v.SetDefault("UPLOAD_VALIDATE_PDF", true)
	v.SetDefault("BLOB_BACKEND", BlobBackendMemory)
	v.SetDefault("MINIO_BUCKET", "lab-reports")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}

	if cfg.IsDev() && cfg.AuthJWTSecret == "" {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: No AUTH_JWT_SECRET is set; every request gets admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AuthEnabled reports whether bearer tokens are checked. Outside development
// a secret is mandatory, see Validate.
func (c *Config) AuthEnabled() bool {
	return c.AuthJWTSecret != ""
}

// UsePostgres reports whether history is kept in PostgreSQL rather than in
// process memory.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET must be set when ENV=%q; refusing to start without authentication", c.Env)
	}
	if c.AuthJWTSecret != "" && len(c.AuthJWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 bytes, got %d", len(c.AuthJWTSecret))
	}
	if c.ReportSourceURL == "" {
		return fmt.Errorf("REPORT_SOURCE_URL is required")
	}
	if c.ReportSourceTimeout <= 0 {
		return fmt.Errorf("REPORT_SOURCE_TIMEOUT must be positive, got %s", c.ReportSourceTimeout)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	switch c.BlobBackend {
	case BlobBackendMemory:
	case BlobBackendMinio:
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required when BLOB_BACKEND is %q", BlobBackendMinio)
		}
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when BLOB_BACKEND is %q", BlobBackendMinio)
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be %q or %q, got %q", BlobBackendMemory, BlobBackendMinio, c.BlobBackend)
	}

	return nil
}
