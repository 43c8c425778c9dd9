package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CarrierMode selects the outbound carrier implementation
type CarrierMode string

const (
	CarrierTwilio CarrierMode = "twilio"
	CarrierNone   CarrierMode = "none"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	LogLevel       string
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// Routing engine
	ParkingSlots   int
	EndedRetention int
	SLTarget       int
	SLSeconds      int

	// Event ingestion
	DedupCapacity          int
	DedupTTL               time.Duration
	VerifyCarrierSignature bool

	// Fan-out
	ViewerBuffer int

	// Metrics sampling
	StatsInterval time.Duration

	// Carrier
	CarrierMode       CarrierMode
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string
	TwilioBaseURL     string
	PublicURL         string

	// Auth
	SkipAuth           bool
	VerifyJWTSignature bool
	OIDCIssuer         string

	RosterFile string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:              getEnv("PORT", "8080"),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		CarrierMode:       CarrierMode(getEnv("CARRIER_MODE", string(CarrierNone))),
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber: os.Getenv("TWILIO_PHONE_NUMBER"),
		TwilioBaseURL:     getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
		PublicURL:         getEnv("PUBLIC_URL", "http://localhost:8080"),
		OIDCIssuer:        os.Getenv("OIDC_ISSUER"),
		RosterFile:        os.Getenv("ROSTER_FILE"),
	}

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 4096

	ints := []struct {
		key    string
		def    int
		target *int
	}{
		{"PARKING_SLOTS", 6, &config.ParkingSlots},
		{"ENDED_RETENTION", 4096, &config.EndedRetention},
		{"SL_TARGET", 80, &config.SLTarget},
		{"SL_SECONDS", 20, &config.SLSeconds},
		{"DEDUP_CAPACITY", 4096, &config.DedupCapacity},
		{"VIEWER_BUFFER", 256, &config.ViewerBuffer},
	}
	for _, v := range ints {
		n, err := getEnvInt(v.key, v.def)
		if err != nil {
			return nil, err
		}
		*v.target = n
	}
	if config.ParkingSlots < 0 {
		return nil, fmt.Errorf("invalid PARKING_SLOTS: must not be negative")
	}

	dedupTTL, err := getEnvInt("DEDUP_TTL", 300)
	if err != nil {
		return nil, err
	}
	config.DedupTTL = time.Duration(dedupTTL) * time.Second

	statsInterval, err := getEnvInt("STATS_INTERVAL", 5)
	if err != nil {
		return nil, err
	}
	config.StatsInterval = time.Duration(statsInterval) * time.Second

	bools := []struct {
		key    string
		target *bool
	}{
		{"VERIFY_CARRIER_SIGNATURE", &config.VerifyCarrierSignature},
		{"SKIP_AUTH", &config.SkipAuth},
		{"VERIFY_JWT_SIGNATURE", &config.VerifyJWTSignature},
	}
	for _, v := range bools {
		b, err := getEnvBool(v.key, false)
		if err != nil {
			return nil, err
		}
		*v.target = b
	}

	// Outside development, tokens are always verified
	if env := os.Getenv("ENV"); env != "" && env != "development" {
		config.VerifyJWTSignature = true
	}

	switch config.CarrierMode {
	case CarrierNone:
	case CarrierTwilio:
		if config.TwilioAccountSID == "" || config.TwilioAuthToken == "" {
			return nil, fmt.Errorf("CARRIER_MODE=twilio requires TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN")
		}
	default:
		return nil, fmt.Errorf("invalid CARRIER_MODE: %q", config.CarrierMode)
	}
	if config.VerifyCarrierSignature && config.TwilioAuthToken == "" {
		return nil, fmt.Errorf("VERIFY_CARRIER_SIGNATURE requires TWILIO_AUTH_TOKEN")
	}

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultValue)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	b, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
