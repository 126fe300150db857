package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the health-to-earn service
type Config struct {
	// Firestore configuration
	FirestoreProjectID string
	CredentialsFile    string

	// dHealth network configuration
	DappPrivateKey  string
	NetworkType     string
	GenerationHash  string
	CurrencyMosaic  uint64
	EpochAdjustment int64
	NodeURLs        []string

	// Strava configuration
	StravaVerifyToken string

	// Payout configuration
	PayoutInterval time.Duration
	PayoutStagger  time.Duration
	PayoutMean     float64
	ClaimTimeout   time.Duration
	MaxAttempts    int

	// HTTP configuration
	HTTPPort string

	// Logging configuration
	LogLevel string

	// Metrics configuration
	MetricsPort string
}

// Load reads configuration from environment variables and validates it
func Load() (Config, error) {
	cfg := Config{
		FirestoreProjectID: getEnv("FIRESTORE_PROJECT_ID", ""),
		CredentialsFile:    getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		DappPrivateKey:     getEnv("DAPP_PRIVATE_KEY", ""),
		NetworkType:        getEnv("NETWORK_TYPE", "mainnet"),
		GenerationHash:     getEnv("GENERATION_HASH", ""),
		StravaVerifyToken:  getEnv("STRAVA_VERIFY_TOKEN", ""),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MetricsPort:        getEnv("METRICS_PORT", "9100"),
	}

	// Parse node URLs
	nodeURLsStr := getEnv("NODE_URLS", "")
	if nodeURLsStr == "" {
		return cfg, fmt.Errorf("NODE_URLS environment variable is required")
	}
	cfg.NodeURLs = strings.Split(nodeURLsStr, ",")
	for i, node := range cfg.NodeURLs {
		cfg.NodeURLs[i] = strings.TrimSpace(node)
	}

	var err error
	cfg.CurrencyMosaic, err = parseHexUint64Env("CURRENCY_MOSAIC_ID")
	if err != nil {
		return cfg, fmt.Errorf("invalid CURRENCY_MOSAIC_ID: %w", err)
	}

	cfg.EpochAdjustment, err = parseInt64Env("EPOCH_ADJUSTMENT", 1616978397)
	if err != nil {
		return cfg, fmt.Errorf("invalid EPOCH_ADJUSTMENT: %w", err)
	}

	cfg.PayoutInterval, err = parseDurationEnv("PAYOUT_INTERVAL", time.Minute)
	if err != nil {
		return cfg, fmt.Errorf("invalid PAYOUT_INTERVAL: %w", err)
	}

	cfg.PayoutStagger, err = parseDurationEnv("PAYOUT_STAGGER", time.Second)
	if err != nil {
		return cfg, fmt.Errorf("invalid PAYOUT_STAGGER: %w", err)
	}

	cfg.PayoutMean, err = parseFloatEnv("PAYOUT_MEAN", 0.8)
	if err != nil {
		return cfg, fmt.Errorf("invalid PAYOUT_MEAN: %w", err)
	}

	cfg.ClaimTimeout, err = parseDurationEnv("CLAIM_TIMEOUT", 5*time.Minute)
	if err != nil {
		return cfg, fmt.Errorf("invalid CLAIM_TIMEOUT: %w", err)
	}

	cfg.MaxAttempts, err = parseIntEnv("MAX_ATTEMPTS", 5)
	if err != nil {
		return cfg, fmt.Errorf("invalid MAX_ATTEMPTS: %w", err)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that the configuration is valid
func (c Config) validate() error {
	if c.FirestoreProjectID == "" {
		return fmt.Errorf("FIRESTORE_PROJECT_ID is required")
	}

	if c.DappPrivateKey == "" {
		return fmt.Errorf("DAPP_PRIVATE_KEY is required")
	}
	if raw, err := hex.DecodeString(c.DappPrivateKey); err != nil || len(raw) != 32 {
		return fmt.Errorf("DAPP_PRIVATE_KEY must be 64 hex characters")
	}

	if c.NetworkType != "mainnet" && c.NetworkType != "testnet" {
		return fmt.Errorf("invalid NETWORK_TYPE: %s (must be mainnet or testnet)", c.NetworkType)
	}

	if raw, err := hex.DecodeString(c.GenerationHash); err != nil || len(raw) != 32 {
		return fmt.Errorf("GENERATION_HASH must be 64 hex characters")
	}

	if len(c.NodeURLs) == 0 {
		return fmt.Errorf("at least one node URL is required")
	}

	if c.StravaVerifyToken == "" {
		return fmt.Errorf("STRAVA_VERIFY_TOKEN is required")
	}

	if c.PayoutMean <= 0 {
		return fmt.Errorf("PAYOUT_MEAN must be positive")
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}

	validLogLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
		"panic": true,
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be one of: trace, debug, info, warn, error, fatal, panic)", c.LogLevel)
	}

	return nil
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an integer environment variable with a default value
func parseIntEnv(key string, defaultValue int) (int, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(str)
}

// parseInt64Env parses a 64-bit integer environment variable with a default value
func parseInt64Env(key string, defaultValue int64) (int64, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.ParseInt(str, 10, 64)
}

// parseFloatEnv parses a float environment variable with a default value
func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.ParseFloat(str, 64)
}

// parseDurationEnv parses a duration environment variable with a default value
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(str)
}

// parseHexUint64Env parses a required hex mosaic id such as 39E0C49FA322A459
func parseHexUint64Env(key string) (uint64, error) {
	str := strings.TrimPrefix(os.Getenv(key), "0x")
	if str == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	return strconv.ParseUint(str, 16, 64)
}
