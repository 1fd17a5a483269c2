package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string

	// Ledger API (persistence service) settings
	LedgerAPIBaseURL         string
	LedgerAPITimeout         time.Duration
	LedgerServiceTokenSecret []byte
	LedgerServiceTokenTTL    time.Duration
	LedgerOAuthTokenURL      string
	LedgerOAuthClientID      string
	LedgerOAuthClientSecret  string
	LedgerOAuthScopes        []string

	// Issuing entity and document defaults
	IssuerHomeState       string
	DefaultCurrency       string
	DefaultPaymentTerms   string
	PlaceOfSupplyFallback string
	DefaultDepositAccount string

	// Session lifetime
	SessionTTL             time.Duration
	SessionCleanupInterval time.Duration

	// HTTP server protection
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
	CSRFEnabled    bool
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables.")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	ledgerBaseURL := strings.TrimRight(getRequiredEnv("LEDGER_API_BASE_URL"), "/")
	homeState := strings.ToUpper(strings.TrimSpace(getRequiredEnv("ISSUER_HOME_STATE")))

	tokenSecret := getEnv("LEDGER_SERVICE_TOKEN_SECRET", "")
	if tokenSecret != "" && len(tokenSecret) < 32 {
		log.Println("WARNING: LEDGER_SERVICE_TOKEN_SECRET is shorter than 32 bytes.")
	}

	Cfg = &AppConfig{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./ledgerdesk.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		LedgerAPIBaseURL:         ledgerBaseURL,
		LedgerAPITimeout:         getEnvAsDuration("LEDGER_API_TIMEOUT", 15*time.Second),
		LedgerServiceTokenSecret: []byte(tokenSecret),
		LedgerServiceTokenTTL:    getEnvAsDuration("LEDGER_SERVICE_TOKEN_TTL", 5*time.Minute),
		LedgerOAuthTokenURL:      getEnv("LEDGER_OAUTH_TOKEN_URL", ""),
		LedgerOAuthClientID:      getEnv("LEDGER_OAUTH_CLIENT_ID", ""),
		LedgerOAuthClientSecret:  getEnv("LEDGER_OAUTH_CLIENT_SECRET", ""),
		LedgerOAuthScopes:        getEnvAsList("LEDGER_OAUTH_SCOPES"),

		IssuerHomeState:       homeState,
		DefaultCurrency:       strings.ToUpper(getEnv("DEFAULT_CURRENCY", "INR")),
		DefaultPaymentTerms:   getEnv("DEFAULT_PAYMENT_TERMS", "Due on Receipt"),
		PlaceOfSupplyFallback: strings.ToLower(getEnv("MISSING_PLACE_OF_SUPPLY", "intra_state")),
		DefaultDepositAccount: getEnv("DEFAULT_DEPOSIT_ACCOUNT", "Petty Cash"),

		SessionTTL:             getEnvAsDuration("SESSION_TTL", 2*time.Hour),
		SessionCleanupInterval: getEnvAsDuration("SESSION_CLEANUP_INTERVAL", 10*time.Minute),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 30),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS"),
		CSRFEnabled:    getEnvAsBool("CSRF_ENABLED", true),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, LedgerAPI=%s, HomeState=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.LedgerAPIBaseURL, Cfg.IssuerHomeState)
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getRequiredEnv retrieves an environment variable or terminates the application if not set.
func getRequiredEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set or is empty.", key)
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil && value > 0 {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %g", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid boolean value for %s ('%s'), using default: %t", key, valueStr, fallback)
	return fallback
}

// getEnvAsList retrieves and parses a comma-separated list.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
