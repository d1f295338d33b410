package config

import (
	"context"
	"os"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the temporal memory store: the scoring
// and decay parameters plus the ambient server/database/logging settings a
// running service needs.
type Config struct {
	// Mode controls a handful of test-only relaxations (e.g. accepting the
	// organization_id query parameter when the X-Organization-ID header is
	// absent).
	Mode string

	// --- Scoring & decay parameters ---

	Enabled bool // enabled

	DecayLambda float64 // decay_lambda (λ), per day
	DecayAlpha  float64 // decay_alpha (α)

	RehearsalThreshold float64 // rehearsal_threshold
	DeletionThreshold  float64 // deletion_threshold
	MaxAgeDays         float64 // max_age_days

	RetrievalWeightRelevance float64 // retrieval_weight_relevance (w_rel)
	RetrievalWeightTemporal  float64 // retrieval_weight_temporal (w_tmp)

	RehearsalBoost float64 // rehearsal_boost

	MaxImportance float64 // max_importance
	MinImportance float64 // min_importance

	RelevanceNormalizationScale float64 // relevance_normalization_scale
	RecencyHalvingRate          float64 // recency_halving_rate
	RecencyWeight               float64 // recency_weight
	FrequencyWeight             float64 // frequency_weight
	FrequencyScale              float64 // frequency_scale

	// --- Retrieval sizing ---

	DefaultLimit  int // default query limit when the caller omits one
	MaxLimit      int // hard cap on a requested limit
	MinCandidates int // floor on N_lex / N_vec sizing (the "50" in max(limit*5, 50))
	CandidateMult int // multiplier on limit for N_lex / N_vec sizing (the "5")

	// --- Decay task ---

	DecayDefaultBatchSize int
	DecayLockTimeout      time.Duration
	DecayInterval         time.Duration // how often the background decay scheduler runs a full cycle

	// --- Database ---

	DatastoreType           string // "postgres" or "sqlite"
	DBURL                   string
	DatastoreMigrateAtStart bool
	DBMaxOpenConns          int
	DBMaxIdleConns          int

	// --- Embedding provider ---

	EmbedType        string // "none", "local", or "openai"
	OpenAIAPIKey     string
	OpenAIModelName  string
	OpenAIBaseURL    string
	OpenAIDimensions int
	EmbedDimension   int // max embedding dimension; stored vectors are padded/truncated to this width

	// Embedding circuit breaker / rate limit.
	EmbedBreakerMaxFailures uint32
	EmbedBreakerTimeout     time.Duration
	EmbedRateLimitPerSecond float64
	EmbedRateLimitBurst     int

	// --- Server ---

	Listener                  ListenerConfig
	ManagementListener        ListenerConfig
	ManagementListenerEnabled bool
	ManagementAccessLog       bool
	CORSEnabled               bool
	CORSOrigins               string
	MaxBodySize               int64
	DrainTimeout              int // seconds

	// --- Tenancy / auth (assumed handled upstream; only tenant
	// identifier extraction happens here) ---

	TrustedHeaders bool // read from MEMORY_STORE_TRUSTED_HEADERS; TenantMiddleware does not consult it and always reads X-Organization-ID / X-User-ID

	// --- Monitoring ---

	MetricsLabels string

	// --- Config file overlay (env vars take precedence; an optional file layers under them) ---

	ConfigFile string
}

// DefaultConfig returns a Config with the stock scoring/decay defaults plus
// sensible ambient defaults for the server/database layers.
func DefaultConfig() Config {
	return Config{
		Mode: ModeProd,

		Enabled: true,

		DecayLambda: 0.05,
		DecayAlpha:  1.5,

		RehearsalThreshold: 0.7,
		DeletionThreshold:  0.1,
		MaxAgeDays:         365,

		RetrievalWeightRelevance: 0.6,
		RetrievalWeightTemporal:  0.4,

		RehearsalBoost: 0.05,

		MaxImportance: 1.0,
		MinImportance: 0.0,

		RelevanceNormalizationScale: 10.0,
		RecencyHalvingRate:          0.1,
		RecencyWeight:               0.3,
		FrequencyWeight:             0.2,
		FrequencyScale:              10.0,

		DefaultLimit:  10,
		MaxLimit:      1000,
		MinCandidates: 50,
		CandidateMult: 5,

		DecayDefaultBatchSize: 500,
		DecayLockTimeout:      2 * time.Second,
		DecayInterval:         5 * time.Minute,

		DatastoreType:           "postgres",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          25,
		DBMaxIdleConns:          5,

		EmbedType:        "local",
		OpenAIModelName:  "text-embedding-3-small",
		OpenAIBaseURL:    "https://api.openai.com/v1",
		EmbedDimension:   1536,

		EmbedBreakerMaxFailures: 5,
		EmbedBreakerTimeout:     30 * time.Second,
		EmbedRateLimitPerSecond: 20,
		EmbedRateLimitBurst:     10,

		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
		},
		MaxBodySize:  4 * 1024 * 1024,
		DrainTimeout: 30,

		MetricsLabels: "service=temporal-memory-store",
	}
}

// ResolvedTempDir returns the platform default temp directory (os.TempDir);
// the temp directory is not configurable.
func ResolvedTempDir() string {
	return os.TempDir()
}

// Validate checks the numeric constraints: rates non-negative, and
// λ/α/recency_halving_rate strictly positive when scoring is enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	type check struct {
		name string
		val  float64
	}
	for _, ch := range []check{
		{"decay_lambda", c.DecayLambda},
		{"decay_alpha", c.DecayAlpha},
		{"recency_halving_rate", c.RecencyHalvingRate},
	} {
		if ch.val <= 0 {
			return errInvalidConfig(ch.name + " must be > 0 when enabled")
		}
	}
	for _, ch := range []check{
		{"rehearsal_threshold", c.RehearsalThreshold},
		{"deletion_threshold", c.DeletionThreshold},
		{"max_age_days", c.MaxAgeDays},
		{"retrieval_weight_relevance", c.RetrievalWeightRelevance},
		{"retrieval_weight_temporal", c.RetrievalWeightTemporal},
		{"rehearsal_boost", c.RehearsalBoost},
		{"relevance_normalization_scale", c.RelevanceNormalizationScale},
		{"recency_weight", c.RecencyWeight},
		{"frequency_weight", c.FrequencyWeight},
		{"frequency_scale", c.FrequencyScale},
	} {
		if ch.val < 0 {
			return errInvalidConfig(ch.name + " must be >= 0")
		}
	}
	if c.MaxImportance < c.MinImportance {
		return errInvalidConfig("max_importance must be >= min_importance")
	}
	return nil
}

type errInvalidConfig string

func (e errInvalidConfig) Error() string { return "invalid config: " + string(e) }
