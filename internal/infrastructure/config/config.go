package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Admin       AdminConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	HTTP        HTTPConfig
	POD         PODConfig
	Fulfillment FulfillmentConfig
	Webhook     WebhookConfig
	Cron        CronConfig
	Storage     StorageConfig
	Telemetry   TelemetryConfig
	DebugLog    DebugLogConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
	// BaseURL is the public store URL reported to partners by system_status
	BaseURL  string
	Currency string
}

// AdminConfig holds the single operator account used for admin routes
type AdminConfig struct {
	Username     string
	PasswordHash string // bcrypt
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. Redis is optional; when
// disabled the webhook emit dedupe falls back to an in-memory store.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds admin JWT settings
type JWTConfig struct {
	Secret                string
	AccessTokenExpiration time.Duration
	Issuer                string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	CORSAllowOrigins  []string
	CORSAllowMethods  []string
	CORSAllowHeaders  []string
	TrustedProxies    []string
}

// PartnerConfig holds connection settings for one POD partner
type PartnerConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	RateBurst int
}

// PODConfig selects the active partner and carries per-partner settings
type PODConfig struct {
	Provider      string // jetprint, interestprint
	JetPrint      PartnerConfig
	InterestPrint PartnerConfig
}

// FulfillmentConfig holds engine and scheduler settings
type FulfillmentConfig struct {
	Enabled             bool
	Interval            time.Duration
	BatchSize           int
	Concurrency         int
	MaxAttempts         int
	PartnerTimeout      time.Duration
	ReconcileGrace      time.Duration
	TrackingPollEnabled bool
}

// WebhookConfig holds delivery worker settings
type WebhookConfig struct {
	WorkerEnabled  bool
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RequestTimeout time.Duration
	RetryBase      time.Duration
	Lease          time.Duration
	DedupeTTL      time.Duration
}

// CronConfig holds the shared secret for the HTTP fulfillment trigger
type CronConfig struct {
	Secret string
}

// StorageConfig holds S3 settings for the debug log archive
type StorageConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string // optional, for S3-compatible stores
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	LogsEnabled       bool    // Ship zap logs through the OTLP log exporter
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// DebugLogConfig sizes the in-memory debug log ring
type DebugLogConfig struct {
	Capacity int
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with POD_ prefix (e.g., POD_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("POD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:     v.GetString("app.name"),
			Env:      v.GetString("app.env"),
			Port:     v.GetString("app.port"),
			BaseURL:  v.GetString("app.base_url"),
			Currency: v.GetString("app.currency"),
		},
		Admin: AdminConfig{
			Username:     v.GetString("admin.username"),
			PasswordHash: v.GetString("admin.password_hash"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
			Issuer:                v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods:  v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders:  v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		POD: PODConfig{
			Provider:      v.GetString("pod.provider"),
			JetPrint:      loadPartner(v, "pod.jetprint"),
			InterestPrint: loadPartner(v, "pod.interestprint"),
		},
		Fulfillment: FulfillmentConfig{
			Enabled:             v.GetBool("fulfillment.enabled"),
			Interval:            v.GetDuration("fulfillment.interval"),
			BatchSize:           v.GetInt("fulfillment.batch_size"),
			Concurrency:         v.GetInt("fulfillment.concurrency"),
			MaxAttempts:         v.GetInt("fulfillment.max_attempts"),
			PartnerTimeout:      v.GetDuration("fulfillment.partner_timeout"),
			ReconcileGrace:      v.GetDuration("fulfillment.reconcile_grace"),
			TrackingPollEnabled: v.GetBool("fulfillment.tracking_poll_enabled"),
		},
		Webhook: WebhookConfig{
			WorkerEnabled:  v.GetBool("webhook.worker_enabled"),
			PollInterval:   v.GetDuration("webhook.poll_interval"),
			BatchSize:      v.GetInt("webhook.batch_size"),
			MaxAttempts:    v.GetInt("webhook.max_attempts"),
			RequestTimeout: v.GetDuration("webhook.request_timeout"),
			RetryBase:      v.GetDuration("webhook.retry_base"),
			Lease:          v.GetDuration("webhook.lease"),
			DedupeTTL:      v.GetDuration("webhook.dedupe_ttl"),
		},
		Cron: CronConfig{
			Secret: v.GetString("cron.secret"),
		},
		Storage: StorageConfig{
			Enabled:         v.GetBool("storage.enabled"),
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			Prefix:          v.GetString("storage.prefix"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		DebugLog: DebugLogConfig{
			Capacity: v.GetInt("debug_log.capacity"),
		},
	}

	// Booleans that default to true cannot be told apart from "unset" after
	// GetBool, so they are resolved against IsSet here.
	if !v.IsSet("fulfillment.enabled") {
		cfg.Fulfillment.Enabled = true
	}
	if !v.IsSet("fulfillment.tracking_poll_enabled") {
		cfg.Fulfillment.TrackingPollEnabled = true
	}
	if !v.IsSet("webhook.worker_enabled") {
		cfg.Webhook.WorkerEnabled = true
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadPartner(v *viper.Viper, prefix string) PartnerConfig {
	return PartnerConfig{
		BaseURL:   v.GetString(prefix + ".base_url"),
		APIKey:    v.GetString(prefix + ".api_key"),
		APISecret: v.GetString(prefix + ".api_secret"),
		Timeout:   v.GetDuration(prefix + ".timeout"),
		RateLimit: v.GetFloat64(prefix + ".rate_limit"),
		RateBurst: v.GetInt(prefix + ".rate_burst"),
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "pod-gateway"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.App.Currency == "" {
		cfg.App.Currency = "USD"
	}
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = "admin"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "storefront"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.AccessTokenExpiration == 0 {
		cfg.JWT.AccessTokenExpiration = 12 * time.Hour
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "pod-gateway"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 60 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 2 << 20 // 2MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 120
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-WC-Consumer-Key", "X-WC-Consumer-Secret"}
	}
	if cfg.POD.Provider == "" {
		cfg.POD.Provider = "jetprint"
	}
	applyPartnerDefaults(&cfg.POD.JetPrint, "https://api.jetprint.example/v1")
	applyPartnerDefaults(&cfg.POD.InterestPrint, "https://open.interestprint.example/api")
	if cfg.Fulfillment.Interval == 0 {
		cfg.Fulfillment.Interval = 15 * time.Minute
	}
	if cfg.Fulfillment.BatchSize == 0 {
		cfg.Fulfillment.BatchSize = 50
	}
	if cfg.Fulfillment.Concurrency == 0 {
		cfg.Fulfillment.Concurrency = 4
	}
	if cfg.Fulfillment.MaxAttempts == 0 {
		cfg.Fulfillment.MaxAttempts = 5
	}
	if cfg.Fulfillment.PartnerTimeout == 0 {
		cfg.Fulfillment.PartnerTimeout = 20 * time.Second
	}
	if cfg.Fulfillment.ReconcileGrace == 0 {
		cfg.Fulfillment.ReconcileGrace = 30 * time.Minute
	}
	if cfg.Webhook.PollInterval == 0 {
		cfg.Webhook.PollInterval = 5 * time.Second
	}
	if cfg.Webhook.BatchSize == 0 {
		cfg.Webhook.BatchSize = 20
	}
	if cfg.Webhook.MaxAttempts == 0 {
		cfg.Webhook.MaxAttempts = 5
	}
	if cfg.Webhook.RequestTimeout == 0 {
		cfg.Webhook.RequestTimeout = 10 * time.Second
	}
	if cfg.Webhook.RetryBase == 0 {
		cfg.Webhook.RetryBase = 30 * time.Second
	}
	if cfg.Webhook.Lease == 0 {
		cfg.Webhook.Lease = 2 * time.Minute
	}
	if cfg.Webhook.DedupeTTL == 0 {
		cfg.Webhook.DedupeTTL = 24 * time.Hour
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "debug-logs/"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "pod-gateway"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.DebugLog.Capacity == 0 {
		cfg.DebugLog.Capacity = 1000
	}
}

func applyPartnerDefaults(p *PartnerConfig, baseURL string) {
	if p.BaseURL == "" {
		p.BaseURL = baseURL
	}
	if p.Timeout == 0 {
		p.Timeout = 20 * time.Second
	}
	if p.RateLimit == 0 {
		p.RateLimit = 5
	}
	if p.RateBurst == 0 {
		p.RateBurst = 5
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.POD.Provider {
	case "jetprint", "interestprint":
	default:
		return fmt.Errorf("pod.provider must be jetprint or interestprint, got %q", c.POD.Provider)
	}
	if c.Fulfillment.Concurrency < 1 {
		return fmt.Errorf("fulfillment.concurrency must be at least 1")
	}
	if c.Fulfillment.MaxAttempts < 1 {
		return fmt.Errorf("fulfillment.max_attempts must be at least 1")
	}
	if c.Webhook.MaxAttempts < 1 {
		return fmt.Errorf("webhook.max_attempts must be at least 1")
	}
	if c.DebugLog.Capacity < 1 {
		return fmt.Errorf("debug_log.capacity must be at least 1")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if len(c.Cron.Secret) < 32 {
			return fmt.Errorf("cron.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Admin.PasswordHash == "" {
			return fmt.Errorf("admin.password_hash is required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// ActivePartner returns the settings of the configured provider
func (p *PODConfig) ActivePartner() PartnerConfig {
	if p.Provider == "interestprint" {
		return p.InterestPrint
	}
	return p.JetPrint
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
