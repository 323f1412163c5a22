package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "REDIS_URL", "STORE_BACKEND", "ML_MAX_EVALS", "ML_TRAIN_HOUR_UTC", "LOG_FORMAT", "MCP_TRANSPORT", "ML_CLASSIFIERS"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if cfg.StoreBackend != "file" || cfg.Bucket != "volatility-news-data" {
		t.Fatalf("unexpected store defaults %+v", cfg)
	}
	if cfg.MLMaxEvals != 10 || cfg.MLTrainHourUTC != 2 || cfg.MLSearchSeed != 42 {
		t.Fatalf("unexpected ml defaults %+v", cfg)
	}
	if len(cfg.MLClassifiers) != 1 || cfg.MLClassifiers[0] != "xgboost" {
		t.Fatalf("unexpected classifier default %v", cfg.MLClassifiers)
	}
	if cfg.MCPTransport != "stdio" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("STORE_BACKEND", "REDIS")
	t.Setenv("ML_MAX_EVALS", "25")
	t.Setenv("ML_SCORE_HOUR_UTC", "7")
	t.Setenv("TELEGRAM_ALERT_CHAT_ID", "-1001")
	t.Setenv("HEADLINE_FEEDS", " https://a.example/rss,,https://b.example/rss ")
	t.Setenv("ML_CLASSIFIERS", "XGBoost, logreg")

	cfg := Load()
	if cfg.DatabaseURL != "postgres://example" || cfg.StoreBackend != "redis" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.MLMaxEvals != 25 || cfg.MLScoreHourUTC != 7 || cfg.TelegramAlertChatID != -1001 {
		t.Fatalf("unexpected ml config: %+v", cfg)
	}
	if len(cfg.HeadlineFeeds) != 2 || cfg.HeadlineFeeds[1] != "https://b.example/rss" || cfg.HeadlineFeedsPerSec != 2 {
		t.Fatalf("unexpected feed config: %+v", cfg.HeadlineFeeds)
	}

	if len(cfg.MLClassifiers) != 2 || cfg.MLClassifiers[1] != "logreg" {
		t.Fatalf("unexpected classifiers %v", cfg.MLClassifiers)
	}
	if err := cfg.Validate("MLClassifiers"); err != nil {
		t.Fatalf("unexpected classifier error: %v", err)
	}

	t.Setenv("ML_MAX_EVALS", "bad")
	t.Setenv("ML_SCORE_HOUR_UTC", "31")
	cfg = Load()
	if cfg.MLMaxEvals != 10 || cfg.MLScoreHourUTC != 6 {
		t.Fatalf("invalid values should fall back to defaults, got %d/%d", cfg.MLMaxEvals, cfg.MLScoreHourUTC)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cfg := Load()
	err := cfg.Validate("DatabaseURL")
	if err == nil || !strings.Contains(err.Error(), "DatabaseURL") {
		t.Fatalf("expected DatabaseURL error, got %v", err)
	}
	if err := cfg.Validate("Bucket", "StoreBackend"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.MLClassifiers = []string{"xgboost", "svm"}
	if err := cfg.Validate("MLClassifiers"); err == nil || !strings.Contains(err.Error(), "MLClassifiers") {
		t.Fatalf("expected MLClassifiers error, got %v", err)
	}
	cfg.MLClassifiers = []string{"xgboost"}

	cfg.DatabaseURL = "postgres://example"
	cfg.StoreBackend = "s3"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "StoreBackend") {
		t.Fatalf("expected StoreBackend error, got %v", err)
	}
}
