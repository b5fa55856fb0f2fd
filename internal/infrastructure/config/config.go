package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends
const (
	BackendNotion   = "notion"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Notion   NotionConfig   `mapstructure:"notion"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Firebase FirebaseConfig `mapstructure:"firebase"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Security SecurityConfig `mapstructure:"security"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Build    BuildConfig    `mapstructure:"build"`
	Client   ClientConfig   `mapstructure:"client"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
	// Timezone is the IANA zone used for due dates. Empty means the
	// process local zone.
	Timezone string `mapstructure:"timezone"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	Host              string        `mapstructure:"host"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ParseImageTimeout time.Duration `mapstructure:"parse_image_timeout"`
	BodyLimit         string        `mapstructure:"body_limit"`
}

// StorageConfig selects the task repository.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// NotionConfig holds Notion API configuration
type NotionConfig struct {
	APIKey     string  `mapstructure:"api_key"`
	DatabaseID string  `mapstructure:"database_id"`
	BaseURL    string  `mapstructure:"base_url"`
	Version    string  `mapstructure:"version"`
	RateLimit  float64 `mapstructure:"rate_limit"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RedisConfig holds the optional task list cache configuration. An empty
// URL disables the cache.
type RedisConfig struct {
	URL       string        `mapstructure:"url"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// FirebaseConfig holds the identity provider configuration
type FirebaseConfig struct {
	ProjectID string `mapstructure:"project_id"`
	APIKey    string `mapstructure:"api_key"`
	CertsURL  string `mapstructure:"certs_url"`
}

// GeminiConfig holds generative model configuration
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
	RateLimitRequests  int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// BuildConfig describes the deployed commit, reported by the version route.
type BuildConfig struct {
	CommitSHA     string `mapstructure:"commit_sha"`
	CommitMessage string `mapstructure:"commit_message"`
	Branch        string `mapstructure:"branch"`
}

// ClientConfig holds settings for the CLI task commands talking to a
// running server.
type ClientConfig struct {
	APIURL       string        `mapstructure:"api_url"`
	IDToken      string        `mapstructure:"id_token"`
	RefreshToken string        `mapstructure:"refresh_token"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Load loads configuration from various sources
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "Planner")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.timezone", "")

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.parse_image_timeout", "60s")
	v.SetDefault("server.body_limit", "10M")

	v.SetDefault("storage.backend", BackendNotion)

	// Notion defaults
	v.SetDefault("notion.api_key", "")
	v.SetDefault("notion.database_id", "")
	v.SetDefault("notion.base_url", "https://api.notion.com/v1")
	v.SetDefault("notion.version", "2022-06-28")
	v.SetDefault("notion.rate_limit", 3)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "planner")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "30s")
	v.SetDefault("database.migrations_path", "file://migrations")

	// Redis defaults
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", "30s")
	v.SetDefault("redis.key_prefix", "planner")

	// Firebase defaults
	v.SetDefault("firebase.project_id", "")
	v.SetDefault("firebase.api_key", "")
	v.SetDefault("firebase.certs_url", "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com")

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.filename", "")

	// Security defaults
	v.SetDefault("security.cors_allowed_origins", "*")
	v.SetDefault("security.rate_limit_requests", 100)
	v.SetDefault("security.rate_limit_window", "1m")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("build.commit_sha", "unknown")
	v.SetDefault("build.commit_message", "")
	v.SetDefault("build.branch", "")

	// Client defaults
	v.SetDefault("client.api_url", "http://localhost:8080/api")
	v.SetDefault("client.id_token", "")
	v.SetDefault("client.refresh_token", "")
	v.SetDefault("client.timeout", "90s")
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "APP_NAME")
	v.BindEnv("app.version", "APP_VERSION")
	v.BindEnv("app.environment", "APP_ENVIRONMENT")
	v.BindEnv("app.debug", "APP_DEBUG")
	v.BindEnv("app.timezone", "PLANNER_TIMEZONE")

	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.idle_timeout", "SERVER_IDLE_TIMEOUT")
	v.BindEnv("server.request_timeout", "SERVER_REQUEST_TIMEOUT")
	v.BindEnv("server.parse_image_timeout", "SERVER_PARSE_IMAGE_TIMEOUT")
	v.BindEnv("server.body_limit", "SERVER_BODY_LIMIT")

	v.BindEnv("storage.backend", "STORAGE_BACKEND")

	// Notion
	v.BindEnv("notion.api_key", "NOTION_API_KEY")
	v.BindEnv("notion.database_id", "NOTION_DATABASE_ID")
	v.BindEnv("notion.base_url", "NOTION_BASE_URL")
	v.BindEnv("notion.version", "NOTION_VERSION")
	v.BindEnv("notion.rate_limit", "NOTION_RATE_LIMIT")

	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.ssl_mode", "DB_SSL_MODE")
	v.BindEnv("database.max_open_conns", "DB_MAX_OPEN_CONNS")
	v.BindEnv("database.max_idle_conns", "DB_MAX_IDLE_CONNS")
	v.BindEnv("database.conn_max_lifetime", "DB_CONN_MAX_LIFETIME")
	v.BindEnv("database.conn_max_idle_time", "DB_CONN_MAX_IDLE_TIME")
	v.BindEnv("database.migrations_path", "DB_MIGRATIONS_PATH")

	// Redis
	v.BindEnv("redis.url", "REDIS_URL")
	v.BindEnv("redis.ttl", "REDIS_CACHE_TTL")

	// Firebase
	v.BindEnv("firebase.project_id", "FIREBASE_PROJECT_ID", "NEXT_PUBLIC_FIREBASE_PROJECT_ID")
	v.BindEnv("firebase.api_key", "FIREBASE_API_KEY", "NEXT_PUBLIC_FIREBASE_API_KEY")
	v.BindEnv("firebase.certs_url", "FIREBASE_CERTS_URL")

	// Gemini
	v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("gemini.model", "GEMINI_MODEL")

	// Logger
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("logger.format", "LOG_FORMAT")
	v.BindEnv("logger.output", "LOG_OUTPUT")
	v.BindEnv("logger.filename", "LOG_FILENAME")

	// Security
	v.BindEnv("security.cors_allowed_origins", "CORS_ALLOWED_ORIGINS")
	v.BindEnv("security.rate_limit_requests", "RATE_LIMIT_REQUESTS")
	v.BindEnv("security.rate_limit_window", "RATE_LIMIT_WINDOW")

	// Metrics
	v.BindEnv("metrics.enabled", "ENABLE_METRICS")
	v.BindEnv("metrics.port", "METRICS_PORT")

	// Build
	v.BindEnv("build.commit_sha", "VERCEL_GIT_COMMIT_SHA", "GITHUB_SHA")
	v.BindEnv("build.commit_message", "VERCEL_GIT_COMMIT_MESSAGE")
	v.BindEnv("build.branch", "VERCEL_GIT_COMMIT_REF", "GITHUB_REF_NAME")

	// Client
	v.BindEnv("client.api_url", "PLANNER_API_URL")
	v.BindEnv("client.id_token", "PLANNER_ID_TOKEN")
	v.BindEnv("client.refresh_token", "PLANNER_REFRESH_TOKEN")
	v.BindEnv("client.timeout", "PLANNER_CLIENT_TIMEOUT")
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	switch cfg.Storage.Backend {
	case BackendNotion:
		if strings.ContainsAny(cfg.Notion.APIKey, " \t\r\n") {
			return errors.New("notion api key contains whitespace")
		}
	case BackendPostgres:
		if cfg.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if cfg.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Notion.RateLimit <= 0 {
		return fmt.Errorf("notion rate limit must be positive")
	}

	if _, err := cfg.App.Location(); err != nil {
		return err
	}

	return nil
}

// GetDSN returns the database connection string
func (cfg *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)
}

// GetURL returns the database connection string in URL form, as expected by
// the migration driver.
func (cfg *DatabaseConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
		cfg.SSLMode,
	)
}

// Location resolves the configured timezone.
func (cfg *AppConfig) Location() (*time.Location, error) {
	if cfg.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	return loc, nil
}

// Configured reports whether both Notion credentials are present and are
// not the placeholders shipped in example env files.
func (cfg *NotionConfig) Configured() bool {
	key := strings.TrimSpace(cfg.APIKey)
	db := strings.TrimSpace(cfg.DatabaseID)
	return key != "" && db != "" && key != "placeholder_key" && db != "placeholder_id"
}

// IsDevelopment returns true if the environment is development
func (cfg *AppConfig) IsDevelopment() bool {
	return cfg.Environment == "development"
}

// IsProduction returns true if the environment is production
func (cfg *AppConfig) IsProduction() bool {
	return cfg.Environment == "production"
}
