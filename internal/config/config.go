package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName  string
	AppEnv   string
	AppURL   string
	Port     string
	LogLevel string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Observability (optional)
	SentryDSN string

	// Proof image storage (S3-compatible, optional: image proofs are disabled without a bucket)
	S3Region               string
	S3Bucket               string
	S3AccessKey            string
	S3SecretKey            string
	S3Endpoint             string        // Optional: for S3-compatible services (MinIO, DO Spaces, R2, etc.)
	S3PresignExpiryPrivate time.Duration // Expiry for presigned proof image URLs handed to the validator

	// Ledger
	LedgerProvider         string // "solana" or "demo"
	SolanaRPCURL           string
	SolanaEscrowPrivateKey string // base58 or JSON byte array
	EscrowAddress          string // demo ledger only; derived from the key for solana
	LedgerConfirmTimeout   time.Duration
	LedgerStatusTimeout    time.Duration
	LedgerTransferTimeout  time.Duration
	DemoEscrowBalance      string

	// DemoMode enables the explicit no-ledger goal creation path.
	DemoMode bool

	// Validation
	ValidatorProvider      string // "oracle", "manual" or "static"
	OracleURL              string
	OracleAPIKey           string
	OracleModel            string
	ValidatorTimeout       time.Duration
	ValidatorMinConfidence int
	ValidatorStaticVerdict string
	ReviewWebhookSecret    string

	// Lifecycle
	DeadlineGracePeriod time.Duration
	// ReviewWindow is how long past the grace period an on-time proof may
	// wait for a manual verdict before the sweep fails its goal.
	ReviewWindow time.Duration

	// Scheduling
	SchedulerEnabled   bool
	SweepSchedule      string
	SettleSchedule     string
	SettleLookbackDays int

	// Locking (optional: in-process locks without Redis)
	RedisURL          string
	SettlementLockTTL time.Duration

	// HTTP
	RateLimitRPS      float64
	RateLimitBurst    int
	OperatorJWTSecret string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName:  envString("APP_NAME", "goalstake"),
		AppEnv:   envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:   envString("APP_URL", "http://localhost:8090"),
		Port:     envString("PORT", "8090"),
		LogLevel: envString("LOG_LEVEL", ""),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/goalstake.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Storage
		S3Region:               envString("S3_REGION", "auto"),
		S3Bucket:               envString("S3_BUCKET", ""),
		S3AccessKey:            envString("S3_ACCESS_KEY", ""),
		S3SecretKey:            envString("S3_SECRET_KEY", ""),
		S3Endpoint:             envString("S3_ENDPOINT", ""),
		S3PresignExpiryPrivate: envDuration("S3_PRESIGN_EXPIRY_PRIVATE", 1*time.Hour),

		// Ledger
		LedgerProvider:         envString("LEDGER_PROVIDER", "solana"),
		SolanaRPCURL:           envString("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
		SolanaEscrowPrivateKey: envString("SOLANA_ESCROW_PRIVATE_KEY", ""),
		EscrowAddress:          envString("ESCROW_ADDRESS", ""),
		LedgerConfirmTimeout:   envDuration("LEDGER_CONFIRM_TIMEOUT", 30*time.Second),
		LedgerStatusTimeout:    envDuration("LEDGER_STATUS_TIMEOUT", 5*time.Second),
		LedgerTransferTimeout:  envDuration("LEDGER_TRANSFER_TIMEOUT", 2*time.Minute),
		DemoEscrowBalance:      envString("DEMO_ESCROW_BALANCE", "1000"),

		DemoMode: envBool("DEMO_MODE", false),

		// Validation
		ValidatorProvider:      envString("VALIDATOR_PROVIDER", "manual"),
		OracleURL:              envString("ORACLE_URL", "https://api.openai.com/v1/chat/completions"),
		OracleAPIKey:           envString("ORACLE_API_KEY", ""),
		OracleModel:            envString("ORACLE_MODEL", "gpt-4o-mini"),
		ValidatorTimeout:       envDuration("VALIDATOR_TIMEOUT", 30*time.Second),
		ValidatorMinConfidence: envInt("VALIDATOR_MIN_CONFIDENCE", 70),
		ValidatorStaticVerdict: envString("VALIDATOR_STATIC_VERDICT", "approve"),
		ReviewWebhookSecret:    envString("REVIEW_WEBHOOK_SECRET", ""),

		// Lifecycle
		DeadlineGracePeriod: envDuration("DEADLINE_GRACE_PERIOD", 1*time.Hour),
		ReviewWindow:        envDuration("REVIEW_WINDOW", 72*time.Hour),

		// Scheduling
		SchedulerEnabled:   envBool("SCHEDULER_ENABLED", true),
		SweepSchedule:      envString("SWEEP_SCHEDULE", "@every 5m"),
		SettleSchedule:     envString("SETTLE_SCHEDULE", "@every 15m"),
		SettleLookbackDays: envInt("SETTLE_LOOKBACK_DAYS", 7),

		// Locking
		RedisURL:          envString("REDIS_URL", ""),
		SettlementLockTTL: envDuration("SETTLEMENT_LOCK_TTL", 10*time.Minute),

		// HTTP
		RateLimitRPS:      envFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:    envInt("RATE_LIMIT_BURST", 20),
		OperatorJWTSecret: envString("OPERATOR_JWT_SECRET", ""),
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction refuses to start with fabricated financial state or
// missing credentials. Development allows the demo ledger and static verdicts.
func validateProduction(cfg *Config) {
	problems := cfg.ProductionProblems()
	for _, p := range problems {
		slog.Error("invalid production configuration", "problem", p,
			"hint", "set APP_ENV=development for local testing with the demo ledger")
	}
	if len(problems) > 0 {
		os.Exit(1)
	}
}

// ProductionProblems lists every setting that is unsafe in production.
func (c *Config) ProductionProblems() []string {
	var problems []string
	if c.DemoMode {
		problems = append(problems, "DEMO_MODE must be false")
	}
	if c.LedgerProvider != "solana" {
		problems = append(problems, "LEDGER_PROVIDER must be solana")
	}
	if c.SolanaEscrowPrivateKey == "" {
		problems = append(problems, "SOLANA_ESCROW_PRIVATE_KEY is required")
	}
	if c.ValidatorProvider == "static" {
		problems = append(problems, "VALIDATOR_PROVIDER=static is for development only")
	}
	if c.OperatorJWTSecret == "" {
		problems = append(problems, "OPERATOR_JWT_SECRET is required")
	}
	if time.Duration(c.SettleLookbackDays)*24*time.Hour < c.DeadlineGracePeriod+c.ReviewWindow {
		problems = append(problems, "SETTLE_LOOKBACK_DAYS must cover DEADLINE_GRACE_PERIOD plus REVIEW_WINDOW")
	}
	return problems
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("config invalid float, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// StorageEnabled reports whether proof image uploads are configured.
func (c *Config) StorageEnabled() bool {
	return c.S3Bucket != ""
}

// Sanitized returns a copy of the config with only public/safe fields.
// All secrets, credentials, and keys are excluded.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName:                c.AppName,
		AppEnv:                 c.AppEnv,
		AppURL:                 c.AppURL,
		Port:                   c.Port,
		DBDriver:               c.DBDriver,
		S3Endpoint:             c.S3Endpoint,
		S3Bucket:               c.S3Bucket,
		LedgerProvider:         c.LedgerProvider,
		SolanaRPCURL:           c.SolanaRPCURL,
		EscrowAddress:          c.EscrowAddress,
		DemoMode:               c.DemoMode,
		ValidatorProvider:      c.ValidatorProvider,
		ValidatorMinConfidence: c.ValidatorMinConfidence,
		DeadlineGracePeriod:    c.DeadlineGracePeriod,
		ReviewWindow:           c.ReviewWindow,
		SweepSchedule:          c.SweepSchedule,
		SettleSchedule:         c.SettleSchedule,
	}
}
