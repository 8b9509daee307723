// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, admission retry budgets,
// the recommendation cache, authentication, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "mealmate-api")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AdmissionConfig bounds the retries of join request acceptance.
type AdmissionConfig struct {
	MaxRetries    int           // ADMISSION_MAX_RETRIES: attempts of the capacity transaction
	StatusRetries int           // ADMISSION_STATUS_RETRIES: attempts of the post-commit status write
	RetryBase     time.Duration // ADMISSION_RETRY_BASE: first backoff interval
}

// RecommendConfig tunes companion ranking.
type RecommendConfig struct {
	Limit    int           // RECOMMEND_LIMIT
	CacheTTL time.Duration // RECOMMEND_CACHE_TTL; 0 disables caching
}

// RedisConfig locates the recommendation cache. An empty Addr disables it.
type RedisConfig struct {
	Addr     string // REDIS_URL (host:port)
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
	Prefix   string // REDIS_PREFIX
}

// RateConfig sets the per-caller token buckets. Action* applies on top of the
// general bucket to accept/reject, join requests, and interest signals.
type RateConfig struct {
	RPS         float64 // RATE_RPS (>= 0)
	Burst       int     // RATE_BURST (>= 1)
	ActionRPS   float64 // RATE_ACTION_RPS (>= 0)
	ActionBurst int     // RATE_ACTION_BURST (>= 1)
}

// AuthConfig defines how callers are identified.
type AuthConfig struct {
	JWTSecret       string // JWT_SECRET (HS256)
	AllowUserHeader bool   // AUTH_ALLOW_USER_HEADER: accept X-User-ID without a token
	Required        bool   // AUTH_REQUIRED: reject anonymous API calls
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath    string // SQLite path
	Admission AdmissionConfig
	Recommend RecommendConfig
	Redis     RedisConfig
	Auth      AuthConfig

	// Rate limiting
	Rate RateConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a join request can be replayed by its Idempotency-Key

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "mealmate.db"),
		Admission: AdmissionConfig{
			MaxRetries:    getint("ADMISSION_MAX_RETRIES", 5),
			StatusRetries: getint("ADMISSION_STATUS_RETRIES", 3),
			RetryBase:     getdur("ADMISSION_RETRY_BASE", 10*time.Millisecond),
		},
		Recommend: RecommendConfig{
			Limit:    getint("RECOMMEND_LIMIT", 10),
			CacheTTL: getdur("RECOMMEND_CACHE_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_URL", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
			Prefix:   getenv("REDIS_PREFIX", "mealmate"),
		},
		Auth: AuthConfig{
			JWTSecret:       getenv("JWT_SECRET", ""),
			AllowUserHeader: getbool("AUTH_ALLOW_USER_HEADER", true),
			Required:        getbool("AUTH_REQUIRED", false),
		},

		// Rate limiting
		Rate: RateConfig{
			RPS:         getfloat("RATE_RPS", 5.0),
			Burst:       getint("RATE_BURST", 10),
			ActionRPS:   getfloat("RATE_ACTION_RPS", 1.0),
			ActionBurst: getint("RATE_ACTION_BURST", 5),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "mealmate-api"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Admission.MaxRetries < 1 || cfg.Admission.StatusRetries < 1 {
		return cfg, errors.New("ADMISSION_MAX_RETRIES and ADMISSION_STATUS_RETRIES must be >= 1")
	}
	if cfg.Admission.RetryBase <= 0 {
		return cfg, errors.New("ADMISSION_RETRY_BASE must be > 0")
	}
	if cfg.Recommend.Limit < 1 {
		return cfg, errors.New("RECOMMEND_LIMIT must be >= 1")
	}
	if cfg.Recommend.CacheTTL < 0 {
		return cfg, errors.New("RECOMMEND_CACHE_TTL must be >= 0")
	}
	if cfg.Redis.DB < 0 {
		return cfg, errors.New("REDIS_DB must be >= 0")
	}
	if cfg.Auth.Required && cfg.Auth.JWTSecret == "" && !cfg.Auth.AllowUserHeader {
		return cfg, errors.New("AUTH_REQUIRED needs JWT_SECRET or AUTH_ALLOW_USER_HEADER")
	}
	if cfg.Rate.RPS < 0 || cfg.Rate.ActionRPS < 0 {
		return cfg, errors.New("RATE_RPS and RATE_ACTION_RPS must be >= 0")
	}
	if cfg.Rate.Burst < 1 || cfg.Rate.ActionBurst < 1 {
		return cfg, errors.New("RATE_BURST and RATE_ACTION_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
