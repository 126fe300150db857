package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configVars = []string{
	"FIRESTORE_PROJECT_ID",
	"GOOGLE_APPLICATION_CREDENTIALS",
	"DAPP_PRIVATE_KEY",
	"NETWORK_TYPE",
	"GENERATION_HASH",
	"CURRENCY_MOSAIC_ID",
	"EPOCH_ADJUSTMENT",
	"NODE_URLS",
	"STRAVA_VERIFY_TOKEN",
	"PAYOUT_INTERVAL",
	"PAYOUT_STAGGER",
	"PAYOUT_MEAN",
	"CLAIM_TIMEOUT",
	"MAX_ATTEMPTS",
	"HTTP_PORT",
	"LOG_LEVEL",
	"METRICS_PORT",
}

func setValidEnv(t *testing.T) {
	t.Helper()
	for _, key := range configVars {
		os.Unsetenv(key)
	}
	os.Setenv("FIRESTORE_PROJECT_ID", "health-to-earn")
	os.Setenv("DAPP_PRIVATE_KEY", "575DBB3062267EFF57C970A336EBBC8FBCFE12C5BD3ED7BC11EB0481D7704CED")
	os.Setenv("NETWORK_TYPE", "mainnet")
	os.Setenv("GENERATION_HASH", "ACECD90E7B248E012803228ADB4424F0D966D24149B72E58987D2BF2F2AF03C4")
	os.Setenv("CURRENCY_MOSAIC_ID", "39E0C49FA322A459")
	os.Setenv("NODE_URLS", "http://dual-01.dhealth.cloud:3000, http://dual-02.dhealth.cloud:3000")
	os.Setenv("STRAVA_VERIFY_TOKEN", "verify-me")
}

func TestLoad(t *testing.T) {
	// Save original env vars
	originalVars := make(map[string]string, len(configVars))
	for _, key := range configVars {
		originalVars[key] = os.Getenv(key)
	}

	// Restore env vars after test
	defer func() {
		for key, value := range originalVars {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	t.Run("successful load with all required vars", func(t *testing.T) {
		setValidEnv(t)
		os.Setenv("PAYOUT_INTERVAL", "30s")
		os.Setenv("PAYOUT_MEAN", "1.2")
		os.Setenv("MAX_ATTEMPTS", "3")
		os.Setenv("LOG_LEVEL", "debug")
		os.Setenv("METRICS_PORT", "9090")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "health-to-earn", cfg.FirestoreProjectID)
		assert.Equal(t, "mainnet", cfg.NetworkType)
		assert.Equal(t, uint64(0x39E0C49FA322A459), cfg.CurrencyMosaic)
		assert.Equal(t, int64(1616978397), cfg.EpochAdjustment)
		assert.Equal(t, []string{"http://dual-01.dhealth.cloud:3000", "http://dual-02.dhealth.cloud:3000"}, cfg.NodeURLs)
		assert.Equal(t, 30*time.Second, cfg.PayoutInterval)
		assert.Equal(t, time.Second, cfg.PayoutStagger)
		assert.Equal(t, 1.2, cfg.PayoutMean)
		assert.Equal(t, 5*time.Minute, cfg.ClaimTimeout)
		assert.Equal(t, 3, cfg.MaxAttempts)
		assert.Equal(t, "8080", cfg.HTTPPort)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "9090", cfg.MetricsPort)
	})

	t.Run("missing node URLs", func(t *testing.T) {
		setValidEnv(t)
		os.Unsetenv("NODE_URLS")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "NODE_URLS environment variable is required")
	})

	t.Run("missing private key", func(t *testing.T) {
		setValidEnv(t)
		os.Unsetenv("DAPP_PRIVATE_KEY")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "DAPP_PRIVATE_KEY")
	})

	t.Run("malformed private key", func(t *testing.T) {
		setValidEnv(t)
		os.Setenv("DAPP_PRIVATE_KEY", "not-hex")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "64 hex characters")
	})

	t.Run("invalid network type", func(t *testing.T) {
		setValidEnv(t)
		os.Setenv("NETWORK_TYPE", "devnet")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "NETWORK_TYPE")
	})

	t.Run("invalid mosaic id", func(t *testing.T) {
		setValidEnv(t)
		os.Setenv("CURRENCY_MOSAIC_ID", "zzzz")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "CURRENCY_MOSAIC_ID")
	})

	t.Run("invalid payout interval", func(t *testing.T) {
		setValidEnv(t)
		os.Setenv("PAYOUT_INTERVAL", "soon")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "PAYOUT_INTERVAL")
	})

	t.Run("invalid log level", func(t *testing.T) {
		setValidEnv(t)
		os.Setenv("LOG_LEVEL", "verbose")

		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid LOG_LEVEL")
	})
}
