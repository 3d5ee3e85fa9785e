package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment/stripe"
)

const envPrefix = "STOREFRONT_"

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverMongo    = "mongo"
)

// Config описывает настройки запуска сервиса. Все поля сравнимы, списки хранятся строками через запятую.
type Config struct {
	HTTPAddr       string
	GRPCAddr       string
	MetricsAddr    string
	LogLevel       string
	RequestTimeout time.Duration

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	PostgresMaxConns    int
	MongoURI            string
	MongoDatabase       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CartTTL       time.Duration

	KafkaBrokers  string
	KafkaClientID string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPendingAge - возраст самого старого pending-сообщения, после которого outbox считается degraded.
	OutboxMaxPendingAge time.Duration

	StripeAPIKey        string
	StripeBaseURL       string
	StripeTimeout       time.Duration
	AllowMockPayments   bool
	PaymentMaxAttempts  int
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration

	Currency              string
	MerchantDisplayName   string
	DefaultCountry        string
	AllowedPaymentMethods string

	CatalogSeedFile     string
	SessionIdleTTL      time.Duration
	SessionReapInterval time.Duration
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилищах.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:       ":8080",
		GRPCAddr:       ":50051",
		MetricsAddr:    ":9090",
		LogLevel:       "info",
		RequestTimeout: 15 * time.Second,

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PostgresMaxConns:    20,
		MongoDatabase:       "storefront",

		CartTTL: 30 * 24 * time.Hour,

		KafkaClientID: "storefront",
		KafkaTopic:    kafka.TopicOrderEvents,
		KafkaDLQTopic: kafka.TopicDeadLetterQueue,

		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    200 * time.Millisecond,
		OutboxMaxPendingAge: 5 * time.Minute,

		StripeBaseURL:       stripe.DefaultBaseURL,
		StripeTimeout:       10 * time.Second,
		PaymentMaxAttempts:  3,
		BreakerMaxFailures:  5,
		BreakerResetTimeout: 30 * time.Second,

		Currency:              "eur",
		MerchantDisplayName:   "Storefront",
		DefaultCountry:        "US",
		AllowedPaymentMethods: "card",

		SessionIdleTTL:      30 * time.Minute,
		SessionReapInterval: time.Minute,
	}
}

// LoadConfig загружает необязательный .env и читает переменные окружения STOREFRONT_*.
// Некорректные значения заменяются значениями по умолчанию и возвращаются как предупреждения.
func LoadConfig() (Config, []string) {
	var warnings []string
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		warnings = append(warnings, fmt.Sprintf(".env: %v", err))
	}
	cfg, envWarnings := readConfigFromEnv(os.LookupEnv)
	return cfg, append(warnings, envWarnings...)
}

func readConfigFromEnv(lookup func(string) (string, bool)) (Config, []string) {
	cfg := DefaultConfig()
	r := envReader{lookup: lookup}

	r.str("HTTP_ADDR", &cfg.HTTPAddr)
	r.str("GRPC_ADDR", &cfg.GRPCAddr)
	r.str("METRICS_ADDR", &cfg.MetricsAddr)
	r.str("LOG_LEVEL", &cfg.LogLevel)
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		r.warn("LOG_LEVEL", cfg.LogLevel, "info")
		cfg.LogLevel = "info"
	}
	r.duration("REQUEST_TIMEOUT", &cfg.RequestTimeout)

	if value, ok := r.get("STORAGE_DRIVER"); ok {
		switch driver := strings.ToLower(value); driver {
		case StorageDriverMemory, StorageDriverPostgres, StorageDriverMongo:
			cfg.StorageDriver = driver
		default:
			r.warn("STORAGE_DRIVER", value, cfg.StorageDriver)
		}
	}
	r.str("POSTGRES_DSN", &cfg.PostgresDSN)
	r.boolean("POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)
	r.integer("POSTGRES_MAX_CONNS", &cfg.PostgresMaxConns, 1)
	r.str("MONGO_URI", &cfg.MongoURI)
	r.str("MONGO_DATABASE", &cfg.MongoDatabase)

	r.str("REDIS_ADDR", &cfg.RedisAddr)
	r.str("REDIS_PASSWORD", &cfg.RedisPassword)
	r.integer("REDIS_DB", &cfg.RedisDB, 0)
	r.duration("CART_TTL", &cfg.CartTTL)

	r.str("KAFKA_BROKERS", &cfg.KafkaBrokers)
	r.str("KAFKA_CLIENT_ID", &cfg.KafkaClientID)
	r.str("KAFKA_TOPIC", &cfg.KafkaTopic)
	r.str("KAFKA_DLQ_TOPIC", &cfg.KafkaDLQTopic)

	r.duration("OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	r.integer("OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize, 1)
	r.integer("OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts, 1)
	r.duration("OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)
	r.duration("OUTBOX_MAX_PENDING_AGE", &cfg.OutboxMaxPendingAge)

	r.str("STRIPE_API_KEY", &cfg.StripeAPIKey)
	r.str("STRIPE_BASE_URL", &cfg.StripeBaseURL)
	r.duration("STRIPE_TIMEOUT", &cfg.StripeTimeout)
	r.boolean("ALLOW_MOCK_PAYMENTS", &cfg.AllowMockPayments)
	r.integer("PAYMENT_MAX_ATTEMPTS", &cfg.PaymentMaxAttempts, 1)
	r.integer("BREAKER_MAX_FAILURES", &cfg.BreakerMaxFailures, 1)
	r.duration("BREAKER_RESET_TIMEOUT", &cfg.BreakerResetTimeout)

	if value, ok := r.get("CURRENCY"); ok {
		if currency, err := domain.NormalizeCurrency(value); err == nil {
			cfg.Currency = currency
		} else {
			r.warn("CURRENCY", value, cfg.Currency)
		}
	}
	r.str("MERCHANT_DISPLAY_NAME", &cfg.MerchantDisplayName)
	r.str("DEFAULT_COUNTRY", &cfg.DefaultCountry)
	r.str("PAYMENT_METHODS", &cfg.AllowedPaymentMethods)

	r.str("CATALOG_SEED_FILE", &cfg.CatalogSeedFile)
	r.duration("SESSION_IDLE_TTL", &cfg.SessionIdleTTL)
	r.duration("SESSION_REAP_INTERVAL", &cfg.SessionReapInterval)

	return cfg, r.warnings
}

// PaymentSheet возвращает конфигурацию внешнего платёжного UI.
func (c Config) PaymentSheet() domain.PaymentSheetConfig {
	return domain.PaymentSheetConfig{
		MerchantDisplayName: c.MerchantDisplayName,
		DefaultCountry:      c.DefaultCountry,
		AllowedMethods:      splitList(c.AllowedPaymentMethods),
	}
}

// Brokers возвращает список адресов Kafka.
func (c Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

type envReader struct {
	lookup   func(string) (string, bool)
	warnings []string
}

func (r *envReader) get(key string) (string, bool) {
	value, ok := r.lookup(envPrefix + key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (r *envReader) warn(key, value string, fallback any) {
	r.warnings = append(r.warnings, fmt.Sprintf("%s%s=%q is invalid, using %v", envPrefix, key, value, fallback))
}

func (r *envReader) str(key string, dst *string) {
	if value, ok := r.get(key); ok {
		*dst = value
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	value, ok := r.get(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		r.warn(key, value, *dst)
		return
	}
	*dst = parsed
}

func (r *envReader) integer(key string, dst *int, minValue int) {
	value, ok := r.get(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < minValue {
		r.warn(key, value, *dst)
		return
	}
	*dst = parsed
}

func (r *envReader) duration(key string, dst *time.Duration) {
	value, ok := r.get(key)
	if !ok {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		r.warn(key, value, *dst)
		return
	}
	*dst = parsed
}
