package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	defaults "quotes-service/internal/infrastructure/config"
)

type Config struct {
	// Common
	Env             string
	LogLevel        string
	ShutdownTimeout time.Duration
	// API
	Port                string
	Storage             string
	DatabaseURL         string
	SupportedCurrencies []string
	CacheMaxItems       int
	// Idempotency
	IdempotencyBackend string
	IdempotencyTTL     time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	// Provider
	Provider        string
	ExchangeAPIBase string
	ExchangeAPIKey  string
	ProviderRate    float64
	ProviderBurst   int
	FakePrice       float64
	RequestTimeout  time.Duration
	// Worker
	WorkerEmbedded    bool
	WorkerPoll        time.Duration
	WorkerBatchSize   int
	WorkerConcurrency int
	WorkerStaleAfter  time.Duration
	WorkerReaperEvery time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func floatDef(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func boolDef(s string, def bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func msDef(key string, def time.Duration) time.Duration {
	ms := atoiDef(os.Getenv(key), int(def/time.Millisecond))
	if ms < 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Load reads environment variables and applies defaults.
func Load() Config {
	storage := strings.ToLower(getEnv("STORAGE", "memory"))
	return Config{
		Env:             getEnv("ENV", "local"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: msDef("SHUTDOWN_TIMEOUT_MS", defaults.DefaultShutdownTimeout),

		Port:                getEnv("PORT", defaults.DefaultHTTPPort),
		Storage:             storage,
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		SupportedCurrencies: splitList(os.Getenv("SUPPORTED_CURRENCIES")),
		CacheMaxItems:       atoiDef(os.Getenv("CACHE_MAX_ITEMS"), defaults.DefaultCacheMaxItems),

		IdempotencyBackend: strings.ToLower(getEnv("IDEMPOTENCY_BACKEND", storage)),
		IdempotencyTTL:     msDef("IDEMPOTENCY_TTL_MS", 0),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            atoiDef(getEnv("REDIS_DB", "0"), 0),

		Provider:        strings.ToLower(getEnv("PROVIDER", "fake")),
		ExchangeAPIBase: getEnv("EXCHANGE_API_BASE", "https://api.exchangeratesapi.io"),
		ExchangeAPIKey:  getEnv("EXCHANGE_API_KEY", ""),
		ProviderRate:    floatDef(os.Getenv("PROVIDER_RATE_PER_SEC"), 0),
		ProviderBurst:   atoiDef(os.Getenv("PROVIDER_BURST"), defaults.DefaultProviderBurst),
		FakePrice:       floatDef(os.Getenv("FAKE_PRICE"), defaults.DefaultFakePrice),
		RequestTimeout:  msDef("REQUEST_TIMEOUT_MS", defaults.DefaultRequestTimeout),

		WorkerEmbedded:    boolDef(os.Getenv("WORKER_EMBEDDED"), true),
		WorkerPoll:        msDef("WORKER_POLL_MS", defaults.DefaultWorkerPoll),
		WorkerBatchSize:   atoiDef(os.Getenv("WORKER_BATCH_LIMIT"), defaults.DefaultWorkerBatch),
		WorkerConcurrency: atoiDef(os.Getenv("WORKER_CONCURRENCY"), defaults.DefaultWorkerParallel),
		WorkerStaleAfter:  msDef("WORKER_STALE_AFTER_MS", defaults.DefaultStaleAfter),
		WorkerReaperEvery: msDef("WORKER_REAPER_EVERY_MS", defaults.DefaultReaperEvery),
	}
}
