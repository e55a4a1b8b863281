package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadIncludesMatchingDefaults(t *testing.T) {
	t.Setenv("MATCH_TOP_K", "")
	t.Setenv("MERCHANT_QUERIES_PER_SEC", "")
	t.Setenv("CALIBRATION_CACHE_TTL", "")
	t.Setenv("SUGGESTION_EXPIRY_DAYS", "")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "")
	t.Setenv("CONFIG_FILE", "")

	cfg := Load()
	if cfg.MatchTopK != 5 {
		t.Fatalf("expected default top k 5, got %d", cfg.MatchTopK)
	}
	if cfg.MerchantQueriesPerSec != 25 {
		t.Fatalf("expected default merchant rate 25, got %v", cfg.MerchantQueriesPerSec)
	}
	if cfg.CalibrationCacheTTL != 5*time.Minute {
		t.Fatalf("expected default calibration ttl 5m, got %v", cfg.CalibrationCacheTTL)
	}
	if cfg.SuggestionExpiryDays != 7 {
		t.Fatalf("expected default expiry days 7, got %d", cfg.SuggestionExpiryDays)
	}
	if cfg.ExpirySweepInterval != time.Hour {
		t.Fatalf("expected default sweep interval 1h, got %v", cfg.ExpirySweepInterval)
	}
}

func TestLoadParsesEnvironmentOverrides(t *testing.T) {
	t.Setenv("MATCH_TOP_K", "8")
	t.Setenv("MERCHANT_QUERIES_PER_SEC", "3.5")
	t.Setenv("CALIBRATION_CACHE_TTL", "90s")
	t.Setenv("NATS_SUBJECT", "reconcile.match.test")
	t.Setenv("CONFIG_FILE", "")

	cfg := Load()
	if cfg.MatchTopK != 8 {
		t.Fatalf("expected top k override 8, got %d", cfg.MatchTopK)
	}
	if cfg.MerchantQueriesPerSec != 3.5 {
		t.Fatalf("expected merchant rate 3.5, got %v", cfg.MerchantQueriesPerSec)
	}
	if cfg.CalibrationCacheTTL != 90*time.Second {
		t.Fatalf("expected calibration ttl 90s, got %v", cfg.CalibrationCacheTTL)
	}
	if cfg.NATSSubject != "reconcile.match.test" {
		t.Fatalf("expected subject override, got %q", cfg.NATSSubject)
	}
}

func TestLoadIgnoresMalformedEnvValues(t *testing.T) {
	t.Setenv("MATCH_TOP_K", "many")
	t.Setenv("CALIBRATION_CACHE_TTL", "soon")
	t.Setenv("CONFIG_FILE", "")

	cfg := Load()
	if cfg.MatchTopK != 5 {
		t.Fatalf("expected fallback top k 5, got %d", cfg.MatchTopK)
	}
	if cfg.CalibrationCacheTTL != 5*time.Minute {
		t.Fatalf("expected fallback ttl 5m, got %v", cfg.CalibrationCacheTTL)
	}
}

func TestConfigFileOverridesOnlyPresentKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "match_top_k: 12\ncalibration_cache_ttl: 2m\nnats_subject: reconcile.match.file\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MATCH_TOP_K", "")
	t.Setenv("SUGGESTION_EXPIRY_DAYS", "14")

	cfg := Load()
	if cfg.MatchTopK != 12 {
		t.Fatalf("expected file top k 12, got %d", cfg.MatchTopK)
	}
	if cfg.CalibrationCacheTTL != 2*time.Minute {
		t.Fatalf("expected file ttl 2m, got %v", cfg.CalibrationCacheTTL)
	}
	if cfg.NATSSubject != "reconcile.match.file" {
		t.Fatalf("expected file subject, got %q", cfg.NATSSubject)
	}
	if cfg.SuggestionExpiryDays != 14 {
		t.Fatalf("expected env expiry days 14 to survive, got %d", cfg.SuggestionExpiryDays)
	}
}

func TestMissingConfigFileFallsBackToEnvironment(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("MATCH_TOP_K", "6")

	cfg := Load()
	if cfg.MatchTopK != 6 {
		t.Fatalf("expected env top k 6, got %d", cfg.MatchTopK)
	}
}
