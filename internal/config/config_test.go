package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("LEDGER_CONFIRM_TIMEOUT", "not-a-duration")
	t.Setenv("VALIDATOR_MIN_CONFIDENCE", "85")

	cfg := Load()

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 30*time.Second, cfg.LedgerConfirmTimeout)
	assert.Equal(t, 85, cfg.ValidatorMinConfidence)
	assert.False(t, cfg.DemoMode)
	assert.False(t, cfg.StorageEnabled())
	assert.Equal(t, 72*time.Hour, cfg.ReviewWindow)
}

func TestProductionProblems(t *testing.T) {
	cfg := &Config{
		AppEnv:            "production",
		LedgerProvider:    "demo",
		DemoMode:          true,
		ValidatorProvider: "static",
	}

	problems := cfg.ProductionProblems()
	assert.Len(t, problems, 5)

	cfg = &Config{
		AppEnv:                 "production",
		LedgerProvider:         "solana",
		SolanaEscrowPrivateKey: "key",
		ValidatorProvider:      "oracle",
		OperatorJWTSecret:      "secret",
	}
	assert.Empty(t, cfg.ProductionProblems())
}

func TestProductionLookbackCoversReviewWindow(t *testing.T) {
	cfg := &Config{
		AppEnv:                 "production",
		LedgerProvider:         "solana",
		SolanaEscrowPrivateKey: "key",
		ValidatorProvider:      "manual",
		OperatorJWTSecret:      "secret",
		DeadlineGracePeriod:    time.Hour,
		ReviewWindow:           72 * time.Hour,
		SettleLookbackDays:     3,
	}
	assert.Equal(t, []string{"SETTLE_LOOKBACK_DAYS must cover DEADLINE_GRACE_PERIOD plus REVIEW_WINDOW"}, cfg.ProductionProblems())

	cfg.SettleLookbackDays = 7
	assert.Empty(t, cfg.ProductionProblems())
}

func TestSanitizedDropsSecrets(t *testing.T) {
	cfg := &Config{
		AppName:                "goalstake",
		SolanaEscrowPrivateKey: "secret-key",
		OracleAPIKey:           "sk-123",
		OperatorJWTSecret:      "jwt",
		S3SecretKey:            "s3",
	}

	safe := cfg.Sanitized()
	assert.Equal(t, "goalstake", safe.AppName)
	assert.Empty(t, safe.SolanaEscrowPrivateKey)
	assert.Empty(t, safe.OracleAPIKey)
	assert.Empty(t, safe.OperatorJWTSecret)
	assert.Empty(t, safe.S3SecretKey)
}
