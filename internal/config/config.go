// Package config provides application configuration loaded from environment
// variables with defaults and validation. It covers the HTTP server, storage
// backend selection, session retention, LLM provider, credentials, payments,
// request limiting, and observability.
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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// StorageConfig selects and tunes the durable backend.
type StorageConfig struct {
	Driver         string        // sqlite|postgres
	DBPath         string        // SQLite path
	DatabaseURL    string        // Postgres DSN
	ConnectTimeout time.Duration // bound on the single startup attempt
	Fallback       bool          // degrade to in-memory when the durable backend fails
	MessageLogCap  int           // in-memory message log retention
}

// SessionConfig controls active-session expiry.
type SessionConfig struct {
	Retention     time.Duration // inactivity window after which a session stops being active
	SweepInterval time.Duration // 0 disables the background sweeper
}

// LLMConfig configures the chat completion provider.
type LLMConfig struct {
	Provider     string // openai|gemini|disabled
	Model        string
	OpenAIKey    string
	GeminiKey    string
	Timeout      time.Duration
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
	CostPerToken float64
}

// AuthConfig configures bearer tokens and the admin surface.
type AuthConfig struct {
	JWTSecret   string
	JWTTTL      time.Duration
	AdminAPIKey string
}

// StripeConfig configures the payment processor.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Prices        map[string]string // plan -> price id
}

// RedisConfig configures the shared request window limiter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // must exceed LLM timeout
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	Storage  StorageConfig
	Sessions SessionConfig
	LLM      LLMConfig
	Auth     AuthConfig
	Stripe   StripeConfig
	Redis    RedisConfig

	// Rate limiting (in-process token bucket, all routes)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Chat request window (shared across replicas when Redis is configured)
	ChatRateWindow time.Duration
	ChatRateMax    int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

const defaultSystemPrompt = "You are a helpful customer support assistant embedded on a website. " +
	"Answer concisely and politely. If you do not know the answer, say so and suggest contacting support."

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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 45*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		Storage: StorageConfig{
			Driver:         strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			DBPath:         getenv("DB_PATH", "app.db"),
			DatabaseURL:    getenv("DATABASE_URL", ""),
			ConnectTimeout: getdur("DB_CONNECT_TIMEOUT", 10*time.Second),
			Fallback:       getbool("DB_FALLBACK", true),
			MessageLogCap:  getint("MESSAGE_LOG_CAP", 1000),
		},
		Sessions: SessionConfig{
			Retention:     getdur("SESSION_RETENTION", 24*time.Hour),
			SweepInterval: getdur("SESSION_SWEEP_INTERVAL", 10*time.Minute),
		},
		LLM: LLMConfig{
			Provider:     strings.ToLower(getenv("LLM_PROVIDER", "openai")),
			Model:        getenv("LLM_MODEL", ""),
			OpenAIKey:    getenv("OPENAI_API_KEY", ""),
			GeminiKey:    getenv("GEMINI_API_KEY", ""),
			Timeout:      getdur("LLM_TIMEOUT", 30*time.Second),
			MaxTokens:    getint("LLM_MAX_TOKENS", 500),
			Temperature:  getfloat("LLM_TEMPERATURE", 0.7),
			SystemPrompt: getenv("LLM_SYSTEM_PROMPT", defaultSystemPrompt),
			CostPerToken: getfloat("COST_PER_TOKEN", 0.00001),
		},
		Auth: AuthConfig{
			JWTSecret:   getenv("JWT_SECRET", ""),
			JWTTTL:      getdur("JWT_TTL", 7*24*time.Hour),
			AdminAPIKey: getenv("ADMIN_API_KEY", ""),
		},
		Stripe: StripeConfig{
			SecretKey:     getenv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getenv("STRIPE_WEBHOOK_SECRET", ""),
			Prices: map[string]string{
				PlanStarter:      getenv("STRIPE_PRICE_STARTER", ""),
				PlanProfessional: getenv("STRIPE_PRICE_PROFESSIONAL", ""),
				PlanEnterprise:   getenv("STRIPE_PRICE_ENTERPRISE", ""),
			},
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		ChatRateWindow: getdur("CHAT_RATE_WINDOW", 15*time.Minute),
		ChatRateMax:    getint("CHAT_RATE_MAX", 100),

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
			ServiceName: getenv("OTEL_SERVICE_NAME", "widget-chat-backend"),
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
	if cfg.Storage.Driver == "postgresql" {
		cfg.Storage.Driver = "postgres"
	}
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case "gemini":
			cfg.LLM.Model = "gemini-2.5-flash"
		default:
			cfg.LLM.Model = "gpt-4o-mini"
		}
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
	switch cfg.Storage.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Storage.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Storage.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL must be set when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.Storage.ConnectTimeout <= 0 {
		return cfg, errors.New("DB_CONNECT_TIMEOUT must be > 0")
	}
	if cfg.Storage.MessageLogCap < 1 {
		return cfg, errors.New("MESSAGE_LOG_CAP must be >= 1")
	}
	if cfg.Sessions.Retention <= 0 {
		return cfg, errors.New("SESSION_RETENTION must be > 0")
	}
	if cfg.Sessions.SweepInterval < 0 {
		return cfg, errors.New("SESSION_SWEEP_INTERVAL must be >= 0")
	}
	switch cfg.LLM.Provider {
	case "openai", "gemini", "disabled":
	default:
		return cfg, errors.New("LLM_PROVIDER must be one of: openai, gemini, disabled")
	}
	if cfg.LLM.Timeout <= 0 {
		return cfg, errors.New("LLM_TIMEOUT must be > 0")
	}
	if cfg.LLM.MaxTokens < 1 {
		return cfg, errors.New("LLM_MAX_TOKENS must be >= 1")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return cfg, errors.New("LLM_TEMPERATURE must be between 0 and 2")
	}
	if cfg.LLM.CostPerToken < 0 {
		return cfg, errors.New("COST_PER_TOKEN must be >= 0")
	}
	if cfg.Auth.JWTTTL <= 0 {
		return cfg, errors.New("JWT_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.ChatRateWindow <= 0 || cfg.ChatRateMax < 1 {
		return cfg, errors.New("CHAT_RATE_WINDOW must be > 0 and CHAT_RATE_MAX >= 1")
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
