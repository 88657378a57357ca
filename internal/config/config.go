// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	App          AppConfig
	Verification VerificationConfig
	Storage      StorageConfig
	PriceFeed    PriceFeedConfig
	Notify       NotifyConfig
	API          APIConfig
}

type AppConfig struct {
	LogLevel         string `validate:"oneof=trace debug info warn error"`
	LogFormat        string `validate:"oneof=json console"`
	MetricsNamespace string `validate:"required"`
	ReportDir        string `validate:"required"`
}

type VerificationConfig struct {
	VerifyAfterHours float64       `validate:"gt=0"`
	PollInterval     time.Duration `validate:"gt=0"`
	BatchSize        int           `validate:"gte=0"`
}

// VerifyAfter returns the verification delay as a duration.
func (v VerificationConfig) VerifyAfter() time.Duration {
	return time.Duration(v.VerifyAfterHours * float64(time.Hour))
}

type StorageConfig struct {
	Backend        string `validate:"oneof=memory file postgres redis"`
	FilePath       string `validate:"required_if=Backend file"`
	PostgresDSN    string `validate:"required_if=Backend postgres"`
	RedisURL       string `validate:"required_if=Backend redis"`
	RedisPassword  string
	RedisKeyPrefix string
	ClickhouseDSN  string // optional statistics history
}

type PriceFeedConfig struct {
	Source    string        `validate:"oneof=demo alphavantage yahoo stream"`
	APIURL    string        // Default: public Alpha Vantage endpoint
	APIKey    string        `validate:"required_if=Source alphavantage"`
	StreamURL string        `validate:"required_if=Source stream"`
	Pairs     []string      // subscribed on the stream
	MaxAge    time.Duration `validate:"gte=0"`
	Fallback  bool          // fall back to the demo feed when the primary fails
}

type NotifyConfig struct {
	SlackWebhookURL string
	RedisChannel    string
	Log             bool
}

type APIConfig struct {
	Addr        string `validate:"required"`
	CORSOrigins []string
}

// Load reads envFile (when it exists) and the environment, then validates
// the result. An empty envFile means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := New()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New builds a Config from the environment without validating it.
func New() *Config {
	return &Config{
		App: AppConfig{
			LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
			LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "console")),
			MetricsNamespace: getEnv("METRICS_NAMESPACE", "fxsignal"),
			ReportDir:        getEnv("REPORT_DIR", "reports"),
		},
		Verification: VerificationConfig{
			VerifyAfterHours: getEnvAsFloat("VERIFY_AFTER_HOURS", 24),
			PollInterval:     getEnvAsDuration("POLL_INTERVAL", time.Minute),
			BatchSize:        getEnvAsInt("VERIFY_BATCH_SIZE", 0),
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(getEnv("STORAGE_BACKEND", "file")),
			FilePath:       getEnv("SIGNAL_FILE", "data/signals.json"),
			PostgresDSN:    getEnv("POSTGRES_DSN", ""),
			RedisURL:       getEnv("REDIS_URL", ""),
			RedisPassword:  getEnv("REDIS_PASSWORD", ""),
			RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "fxsignal:"),
			ClickhouseDSN:  getEnv("CLICKHOUSE_DSN", ""),
		},
		PriceFeed: PriceFeedConfig{
			Source:    strings.ToLower(getEnv("PRICE_FEED", "demo")),
			APIURL:    getEnv("PRICE_API_URL", ""),
			APIKey:    getEnv("PRICE_API_KEY", ""),
			StreamURL: getEnv("PRICE_STREAM_URL", ""),
			Pairs:     getEnvAsList("PRICE_PAIRS", []string{"USD/JPY", "EUR/USD"}),
			MaxAge:    getEnvAsDuration("PRICE_MAX_AGE", 5*time.Minute),
			Fallback:  getEnvAsBool("PRICE_FALLBACK_DEMO", false),
		},
		Notify: NotifyConfig{
			SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			RedisChannel:    getEnv("NOTIFY_REDIS_CHANNEL", ""),
			Log:             getEnvAsBool("NOTIFY_LOG", true),
		},
		API: APIConfig{
			Addr:        getEnv("HTTP_ADDR", ":8080"),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),
		},
	}
}

var validate = validator.New()

// Validate checks value ranges and backend-specific requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}
