package config

import (
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config with pointer fields so that only keys present
// in the YAML file override environment values.
type fileConfig struct {
	APIPort  *string `yaml:"api_port"`
	LogLevel *string `yaml:"log_level"`

	PostgresDSN *string `yaml:"postgres_dsn"`

	NATSURL     *string `yaml:"nats_url"`
	NATSSubject *string `yaml:"nats_subject"`

	MatchTopK             *int     `yaml:"match_top_k"`
	MerchantQueriesPerSec *float64 `yaml:"merchant_queries_per_sec"`
	MerchantQueryBurst    *int     `yaml:"merchant_query_burst"`
	CalibrationCacheTTL   *string  `yaml:"calibration_cache_ttl"`
	SuggestionExpiryDays  *int     `yaml:"suggestion_expiry_days"`
	ExpirySweepInterval   *string  `yaml:"expiry_sweep_interval"`

	WorkerMetricsPort *string `yaml:"worker_metrics_port"`
}

func applyFileOverrides(cfg *Config, path string) {
	if path == "" {
		return
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("config file unreadable, using environment values", "path", path, "error", err)
		return
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		slog.Warn("config file malformed, using environment values", "path", path, "error", err)
		return
	}

	setString(&cfg.APIPort, fc.APIPort)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.PostgresDSN, fc.PostgresDSN)
	setString(&cfg.NATSURL, fc.NATSURL)
	setString(&cfg.NATSSubject, fc.NATSSubject)
	setString(&cfg.WorkerMetricsPort, fc.WorkerMetricsPort)

	if fc.MatchTopK != nil {
		cfg.MatchTopK = *fc.MatchTopK
	}
	if fc.MerchantQueriesPerSec != nil {
		cfg.MerchantQueriesPerSec = *fc.MerchantQueriesPerSec
	}
	if fc.MerchantQueryBurst != nil {
		cfg.MerchantQueryBurst = *fc.MerchantQueryBurst
	}
	if fc.SuggestionExpiryDays != nil {
		cfg.SuggestionExpiryDays = *fc.SuggestionExpiryDays
	}
	setDuration(&cfg.CalibrationCacheTTL, fc.CalibrationCacheTTL)
	setDuration(&cfg.ExpirySweepInterval, fc.ExpirySweepInterval)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string) {
	if src == nil {
		return
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		slog.Warn("invalid duration in config file", "value", *src, "error", err)
		return
	}
	*dst = d
}
