package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type API struct {
	Addr           string
	AllowedOrigins []string
}

type Store struct {
	// Path is the pebble database directory holding order and job records.
	Path string
}

type Redis struct {
	// Addr empty means updates fan out through the in-process broker.
	Addr     string
	Password string
	DB       int
}

type Queue struct {
	Concurrency  int
	RateLimit    int
	RateWindow   time.Duration
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	LeaseTTL     time.Duration
	PollInterval time.Duration
}

type Venues struct {
	RaydiumURL string
	MeteoraURL string
	// QuoteTimeout bounds each adapter call; zero imposes none. A timeout
	// surfaces as a failed quote, not an error.
	QuoteTimeout time.Duration
	SlippageBps  int
}

type Wallet struct {
	// SignerPubkey is the opaque signer identity passed to venue transaction
	// builders. Signing itself happens outside this service.
	SignerPubkey string
}

type Config struct {
	API    API
	Store  Store
	Redis  Redis
	Queue  Queue
	Venues Venues
	Wallet Wallet
}

func Default() Config {
	return Config{
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Store: Store{Path: "data/swapd"},
		Queue: Queue{
			Concurrency:  10,
			RateLimit:    100,
			RateWindow:   time.Minute,
			MaxAttempts:  3,
			BaseDelay:    time.Second,
			MaxDelay:     time.Minute,
			LeaseTTL:     30 * time.Second,
			PollInterval: 100 * time.Millisecond,
		},
		Venues: Venues{
			QuoteTimeout: 10 * time.Second,
			SlippageBps:  50, // 0.5%
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = strings.Split(origins, ",")
	}

	cfg.Store.Path = getEnv("STORE_PATH", cfg.Store.Path)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getInt("REDIS_DB", cfg.Redis.DB)

	cfg.Queue.Concurrency = getInt("QUEUE_CONCURRENCY", cfg.Queue.Concurrency)
	cfg.Queue.RateLimit = getInt("QUEUE_RATE_LIMIT", cfg.Queue.RateLimit)
	cfg.Queue.RateWindow = getDurationMS("QUEUE_RATE_WINDOW_MS", cfg.Queue.RateWindow)
	cfg.Queue.MaxAttempts = getInt("QUEUE_MAX_ATTEMPTS", cfg.Queue.MaxAttempts)
	cfg.Queue.BaseDelay = getDurationMS("QUEUE_BASE_DELAY_MS", cfg.Queue.BaseDelay)
	cfg.Queue.MaxDelay = getDurationMS("QUEUE_MAX_DELAY_MS", cfg.Queue.MaxDelay)
	cfg.Queue.LeaseTTL = getDurationMS("QUEUE_LEASE_TTL_MS", cfg.Queue.LeaseTTL)
	cfg.Queue.PollInterval = getDurationMS("QUEUE_POLL_INTERVAL_MS", cfg.Queue.PollInterval)

	cfg.Venues.RaydiumURL = getEnv("RAYDIUM_API_URL", cfg.Venues.RaydiumURL)
	cfg.Venues.MeteoraURL = getEnv("METEORA_API_URL", cfg.Venues.MeteoraURL)
	cfg.Venues.QuoteTimeout = getDurationMS("VENUE_QUOTE_TIMEOUT_MS", cfg.Venues.QuoteTimeout)
	cfg.Venues.SlippageBps = getInt("VENUE_SLIPPAGE_BPS", cfg.Venues.SlippageBps)

	cfg.Wallet.SignerPubkey = getEnv("SIGNER_PUBKEY", cfg.Wallet.SignerPubkey)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationMS(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
