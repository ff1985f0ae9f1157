package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Server configures cmd/storefront-api.
type Server struct {
	HTTPPort        string        `env:"HTTP_PORT" envDefault:"8080"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxBodyBytes    int64         `env:"MAX_REQUEST_BODY_BYTES" envDefault:"1048576"`

	// Storage selects the repository backend: "memory" or "mongo".
	Storage     string `env:"STORAGE" envDefault:"memory"`
	MongoURI    string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDBName string `env:"MONGO_DB_NAME" envDefault:"cartdb"`

	// Redis is optional; an empty address disables the snapshot cache.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Kafka is optional; no brokers disables the checkout consumer.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"checkout-outbox"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"cart-service-consumer"`

	JWTSecret   string `env:"CARTSYNC_JWT_SECRET" envDefault:"dev-secret"`
	CatalogFile string `env:"CATALOG_FILE"`
	// CatalogDB points at a SQLite file; it wins over CatalogFile when set.
	CatalogDB   string `env:"CATALOG_DB"`

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"json"`
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Client configures a session talking to the storefront API.
type Client struct {
	BaseURL        string        `env:"CARTSYNC_BASE_URL" envDefault:"http://localhost:8080"`
	RequestTimeout time.Duration `env:"CARTSYNC_REQUEST_TIMEOUT" envDefault:"10s"`
	MigrateTimeout time.Duration `env:"CARTSYNC_MIGRATE_TIMEOUT" envDefault:"30s"`
	WishlistMaxAge time.Duration `env:"CARTSYNC_WISHLIST_MAX_AGE" envDefault:"0s"`

	// BreakerThreshold consecutive failures open the circuit for BreakerCooldown.
	BreakerThreshold uint32        `env:"CARTSYNC_BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"CARTSYNC_BREAKER_COOLDOWN" envDefault:"10s"`

	JWTSecret string `env:"CARTSYNC_JWT_SECRET"`
	StateFile string `env:"CARTSYNC_STATE_FILE" envDefault:".cartsync.json"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"warn"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}
