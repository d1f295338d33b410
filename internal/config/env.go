package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ApplyFromEnv reads the MEMORY_STORE_* environment variables. Unknown
// *values* for known variables return an error; unrecognized variable names
// are simply never consulted.
// If MEMORY_STORE_CONFIG_FILE is set, that YAML file is loaded first and
// environment variables override it, keeping the precedence env-var-first.
func (c *Config) ApplyFromEnv() error {
	if c == nil {
		return nil
	}

	if path := strings.TrimSpace(os.Getenv("MEMORY_STORE_CONFIG_FILE")); path != "" {
		if err := c.applyFromFile(path); err != nil {
			return err
		}
	}

	applyStringEnv("MEMORY_STORE_MODE", &c.Mode)

	if err := applyBoolEnv("MEMORY_STORE_ENABLED", &c.Enabled); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_DECAY_LAMBDA", &c.DecayLambda); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_DECAY_ALPHA", &c.DecayAlpha); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_REHEARSAL_THRESHOLD", &c.RehearsalThreshold); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_DELETION_THRESHOLD", &c.DeletionThreshold); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_MAX_AGE_DAYS", &c.MaxAgeDays); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_RETRIEVAL_WEIGHT_RELEVANCE", &c.RetrievalWeightRelevance); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_RETRIEVAL_WEIGHT_TEMPORAL", &c.RetrievalWeightTemporal); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_REHEARSAL_BOOST", &c.RehearsalBoost); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_MAX_IMPORTANCE", &c.MaxImportance); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_MIN_IMPORTANCE", &c.MinImportance); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_RELEVANCE_NORMALIZATION_SCALE", &c.RelevanceNormalizationScale); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_RECENCY_HALVING_RATE", &c.RecencyHalvingRate); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_RECENCY_WEIGHT", &c.RecencyWeight); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_FREQUENCY_WEIGHT", &c.FrequencyWeight); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_FREQUENCY_SCALE", &c.FrequencyScale); err != nil {
		return err
	}

	if err := applyIntEnv("MEMORY_STORE_DEFAULT_LIMIT", &c.DefaultLimit); err != nil {
		return err
	}
	if err := applyIntEnv("MEMORY_STORE_MAX_LIMIT", &c.MaxLimit); err != nil {
		return err
	}
	if err := applyIntEnv("MEMORY_STORE_DECAY_BATCH_SIZE", &c.DecayDefaultBatchSize); err != nil {
		return err
	}
	if err := applyDurationEnv("MEMORY_STORE_DECAY_LOCK_TIMEOUT", &c.DecayLockTimeout); err != nil {
		return err
	}
	if err := applyDurationEnv("MEMORY_STORE_DECAY_INTERVAL", &c.DecayInterval); err != nil {
		return err
	}

	applyStringEnv("MEMORY_STORE_DB_KIND", &c.DatastoreType)
	applyStringEnv("MEMORY_STORE_DB_URL", &c.DBURL)
	if err := applyBoolEnv("MEMORY_STORE_DB_MIGRATE_AT_START", &c.DatastoreMigrateAtStart); err != nil {
		return err
	}
	if err := applyIntEnv("MEMORY_STORE_DB_MAX_OPEN_CONNS", &c.DBMaxOpenConns); err != nil {
		return err
	}
	if err := applyIntEnv("MEMORY_STORE_DB_MAX_IDLE_CONNS", &c.DBMaxIdleConns); err != nil {
		return err
	}

	applyStringEnv("MEMORY_STORE_EMBEDDING_KIND", &c.EmbedType)
	applyStringEnv("MEMORY_STORE_EMBEDDING_OPENAI_API_KEY", &c.OpenAIAPIKey)
	applyStringEnv("MEMORY_STORE_EMBEDDING_OPENAI_MODEL_NAME", &c.OpenAIModelName)
	applyStringEnv("MEMORY_STORE_EMBEDDING_OPENAI_BASE_URL", &c.OpenAIBaseURL)
	if err := applyIntEnv("MEMORY_STORE_EMBEDDING_OPENAI_DIMENSIONS", &c.OpenAIDimensions); err != nil {
		return err
	}
	if err := applyIntEnv("MEMORY_STORE_EMBEDDING_MAX_DIMENSION", &c.EmbedDimension); err != nil {
		return err
	}

	if err := applyDurationEnv("MEMORY_STORE_EMBEDDING_BREAKER_TIMEOUT", &c.EmbedBreakerTimeout); err != nil {
		return err
	}
	if err := applyFloatEnv("MEMORY_STORE_EMBEDDING_RATE_LIMIT_PER_SECOND", &c.EmbedRateLimitPerSecond); err != nil {
		return err
	}

	if err := applyBoolEnv("MEMORY_STORE_CORS_ENABLED", &c.CORSEnabled); err != nil {
		return err
	}
	applyStringEnv("MEMORY_STORE_CORS_ORIGINS", &c.CORSOrigins)
	if err := applyBoolEnv("MEMORY_STORE_MANAGEMENT_ACCESS_LOG", &c.ManagementAccessLog); err != nil {
		return err
	}
	if err := applyBoolEnv("MEMORY_STORE_TRUSTED_HEADERS", &c.TrustedHeaders); err != nil {
		return err
	}
	applyStringEnv("MEMORY_STORE_METRICS_LABELS", &c.MetricsLabels)

	return c.Validate()
}

// applyFromFile loads a YAML overlay. Only these keys are recognized:
// enabled, decay_lambda, decay_alpha, rehearsal_threshold,
// deletion_threshold, max_age_days, retrieval_weight_relevance,
// retrieval_weight_temporal, db_url, db_kind and embedding_kind; anything
// else is ignored.
func (c *Config) applyFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var overlay map[string]any
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	for k, v := range overlay {
		s := fmt.Sprintf("%v", v)
		switch strings.ToLower(k) {
		case "enabled":
			c.Enabled = strings.EqualFold(s, "true")
		case "decay_lambda":
			c.DecayLambda, _ = strconv.ParseFloat(s, 64)
		case "decay_alpha":
			c.DecayAlpha, _ = strconv.ParseFloat(s, 64)
		case "rehearsal_threshold":
			c.RehearsalThreshold, _ = strconv.ParseFloat(s, 64)
		case "deletion_threshold":
			c.DeletionThreshold, _ = strconv.ParseFloat(s, 64)
		case "max_age_days":
			c.MaxAgeDays, _ = strconv.ParseFloat(s, 64)
		case "retrieval_weight_relevance":
			c.RetrievalWeightRelevance, _ = strconv.ParseFloat(s, 64)
		case "retrieval_weight_temporal":
			c.RetrievalWeightTemporal, _ = strconv.ParseFloat(s, 64)
		case "db_url":
			c.DBURL = s
		case "db_kind":
			c.DatastoreType = s
		case "embedding_kind":
			c.EmbedType = s
		}
	}
	return nil
}

func applyStringEnv(key string, dest *string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	*dest = raw
}

func applyIntEnv(key string, dest *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyFloatEnv(key string, dest *float64) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyBoolEnv(key string, dest *bool) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyDurationEnv(key string, dest *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}
