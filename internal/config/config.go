package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"
	StorageNone   = "none"
)

// Config holds all settings of both binaries, loaded from environment variables.
type Config struct {
	Server       ServerConfig
	Session      SessionConfig
	Availability AvailabilityConfig
	Sync         SyncConfig
	Storage      StorageConfig
	Kafka        KafkaConfig
	Endpoints    EndpointsConfig
	Backend      BackendConfig
}

type ServerConfig struct {
	Port            string        `envconfig:"HTTP_PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

type SessionConfig struct {
	// ID of the browsing session; a new one is generated when empty
	ID string `envconfig:"SESSION_ID"`
}

type AvailabilityConfig struct {
	RefreshInterval time.Duration `envconfig:"AVAILABILITY_REFRESH_INTERVAL" default:"30s"`
	Grace           time.Duration `envconfig:"AVAILABILITY_GRACE" default:"5s"`
	FetchTimeout    time.Duration `envconfig:"AVAILABILITY_FETCH_TIMEOUT" default:"5s"`
}

type SyncConfig struct {
	Timeout          time.Duration `envconfig:"SYNC_TIMEOUT" default:"10s"`
	LoginMergePolicy string        `envconfig:"LOGIN_MERGE_POLICY" default:"sum"`
	// BreakerFailures consecutive endpoint failures open the circuit
	BreakerFailures uint32        `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	BreakerTimeout  time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"30s"`
}

type StorageConfig struct {
	Type          string `envconfig:"GUEST_CART_STORAGE" default:"sqlite"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"./data/guest_carts.db"`
}

type KafkaConfig struct {
	// Brokers is empty when auth and order events are not consumed
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"cartsync"`
}

type EndpointsConfig struct {
	InventoryURL string `envconfig:"INVENTORY_URL" default:"http://localhost:8081"`
	CartURL      string `envconfig:"CART_URL" default:"http://localhost:8081"`
}

type BackendConfig struct {
	Port          string `envconfig:"BACKEND_HTTP_PORT" default:"8081"`
	MongoURI      string `envconfig:"MONGODB_URI" default:""`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"cartsync"`
}

func (s SyncConfig) MergeMode() domain.MergeMode {
	return domain.MergeMode(s.LoginMergePolicy)
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if !c.Sync.MergeMode().Valid() {
		return fmt.Errorf("invalid LOGIN_MERGE_POLICY %q: must be sum or replace", c.Sync.LoginMergePolicy)
	}
	switch strings.ToLower(c.Storage.Type) {
	case StorageRedis, StorageSQLite, StorageNone:
		c.Storage.Type = strings.ToLower(c.Storage.Type)
	default:
		return fmt.Errorf("invalid GUEST_CART_STORAGE %q: must be redis, sqlite or none", c.Storage.Type)
	}
	for name, d := range map[string]time.Duration{
		"AVAILABILITY_REFRESH_INTERVAL": c.Availability.RefreshInterval,
		"AVAILABILITY_FETCH_TIMEOUT":    c.Availability.FetchTimeout,
		"SYNC_TIMEOUT":                  c.Sync.Timeout,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", name)
		}
	}
	if c.Availability.Grace < 0 {
		return fmt.Errorf("invalid AVAILABILITY_GRACE: must not be negative")
	}
	return nil
}
