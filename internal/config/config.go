package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL string `validate:"required"`
	RedisURL    string

	StoreBackend string `validate:"oneof=file redis"`
	StoreRoot    string
	Bucket       string `validate:"required"`
	ModelKey     string `validate:"required"`

	MLMaxEvals        int `validate:"min=1"`
	MLSearchSeed      uint64
	MLSearchParallel  int      `validate:"min=1"`
	MLClassifiers     []string `validate:"min=1,dive,oneof=xgboost logreg"`
	MLAutoPromote     bool
	MLTrainHourUTC    int `validate:"min=0,max=23"`
	MLScoreHourUTC    int `validate:"min=0,max=23"`
	MLMonitorPollSecs int `validate:"min=1"`
	MLMonitorDaysBack int `validate:"min=1"`
	MLJobsEnabled     bool

	HeadlineFeeds       []string
	HeadlineFeedsPerSec int `validate:"min=1"`

	APIPort int `validate:"min=1,max=65535"`
	APIKey  string

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`

	TelegramBotToken    string
	TelegramAlertChatID int64

	SSHPort           int `validate:"min=1,max=65535"`
	SSHHostKeyPath    string
	SSHAuthorizedKeys string

	MCPTransport string `validate:"oneof=stdio http"`
	MCPHTTPBind  string
	MCPHTTPPort  int `validate:"min=1,max=65535"`
}

var validate = validator.New()

func Load() *Config {
	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		APIKey:            os.Getenv("API_KEY"),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		SSHAuthorizedKeys: strings.TrimSpace(os.Getenv("SSH_AUTHORIZED_KEYS")),
	}

	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.TelegramBotToken == "" {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, alerts go to the log only")
	}

	cfg.StoreBackend = strings.ToLower(stringEnv("STORE_BACKEND", "file"))
	cfg.StoreRoot = stringEnv("STORE_ROOT", "data")
	cfg.Bucket = stringEnv("S3_BUCKET_NAME", "volatility-news-data")
	cfg.ModelKey = stringEnv("MODEL_REGISTRY_NAME", "volatility_headlines_model")

	cfg.MLMaxEvals = positiveIntEnv("ML_MAX_EVALS", 10)
	cfg.MLSearchSeed = 42
	if v := strings.TrimSpace(os.Getenv("ML_SEARCH_SEED")); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.MLSearchSeed = n
		}
	}
	cfg.MLSearchParallel = positiveIntEnv("ML_SEARCH_PARALLELISM", 1)
	cfg.MLClassifiers = splitList(strings.ToLower(os.Getenv("ML_CLASSIFIERS")))
	if len(cfg.MLClassifiers) == 0 {
		cfg.MLClassifiers = []string{"xgboost"}
	}
	cfg.MLAutoPromote = strings.EqualFold(strings.TrimSpace(os.Getenv("ML_AUTO_PROMOTE")), "true")
	cfg.MLTrainHourUTC = hourEnv("ML_TRAIN_HOUR_UTC", 2)
	cfg.MLScoreHourUTC = hourEnv("ML_SCORE_HOUR_UTC", 6)
	cfg.MLMonitorPollSecs = positiveIntEnv("ML_MONITOR_POLL_SECS", 3600)
	cfg.MLMonitorDaysBack = positiveIntEnv("ML_MONITOR_DAYS_BACK", 7)
	cfg.MLJobsEnabled = !strings.EqualFold(strings.TrimSpace(os.Getenv("ML_JOBS_ENABLED")), "false")

	cfg.HeadlineFeeds = splitList(os.Getenv("HEADLINE_FEEDS"))
	cfg.HeadlineFeedsPerSec = positiveIntEnv("HEADLINE_FEEDS_PER_SEC", 2)

	cfg.APIPort = positiveIntEnv("API_PORT", 8080)

	cfg.LogLevel = strings.ToLower(stringEnv("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(stringEnv("LOG_FORMAT", "json"))

	if v := strings.TrimSpace(os.Getenv("TELEGRAM_ALERT_CHAT_ID")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramAlertChatID = n
		} else {
			log.Warn().Str("value", v).Msg("invalid TELEGRAM_ALERT_CHAT_ID, alerts disabled")
		}
	}

	cfg.SSHPort = positiveIntEnv("SSH_PORT", 2222)
	cfg.SSHHostKeyPath = stringEnv("SSH_HOST_KEY_PATH", ".ssh/headline_vol_ed25519")

	cfg.MCPTransport = strings.ToLower(stringEnv("MCP_TRANSPORT", "stdio"))
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		log.Warn().Str("value", cfg.MCPTransport).Msg("unsupported MCP_TRANSPORT, defaulting to stdio")
		cfg.MCPTransport = "stdio"
	}
	cfg.MCPHTTPBind = stringEnv("MCP_HTTP_BIND", "127.0.0.1")
	cfg.MCPHTTPPort = positiveIntEnv("MCP_HTTP_PORT", 8090)

	return cfg
}

// Validate checks the named fields, or every field when none are given.
func (c *Config) Validate(fields ...string) error {
	var err error
	if len(fields) == 0 {
		err = validate.Struct(c)
	} else {
		err = validate.StructPartial(c, fields...)
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func stringEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// splitList splits a comma separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func positiveIntEnv(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func hourEnv(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 23 {
			return n
		}
	}
	return fallback
}
