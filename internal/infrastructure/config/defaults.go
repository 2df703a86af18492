package config

import "time"

const (
	DefaultHTTPPort        = "8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultRequestTimeout  = 3 * time.Second
	DefaultWorkerPoll      = 250 * time.Millisecond
	DefaultWorkerBatch     = 10
	DefaultWorkerParallel  = 5
	DefaultStaleAfter      = time.Minute
	DefaultReaperEvery     = 10 * time.Second
	DefaultCacheMaxItems   = 10000
	DefaultFakePrice       = 1.2345
	DefaultProviderBurst   = 1
	DefaultPGMaxConns      = 5
	DefaultPGMinConns      = 1
	// MaxRequestBody caps POST bodies; an idempotency key never needs more.
	MaxRequestBody = 4 << 10
)
