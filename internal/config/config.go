package config

import (
	"fmt"
	"log"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/fhirgen/internal/platform/blobstore"
)

// Storage backends.
const (
	StorageFS    = "fs"
	StorageMinio = "minio"
)

// Delivery transports.
const (
	TransportHTTP = "http"
	TransportAMQP = "amqp"
)

type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	ConfigDir      string `mapstructure:"CONFIG_DIR"`
	OutputDir      string `mapstructure:"OUTPUT_DIR"`
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`

	Workers              int     `mapstructure:"WORKERS"`
	RandomSeed           int64   `mapstructure:"RANDOM_SEED"`
	EndpointURL          string  `mapstructure:"ENDPOINT_URL"`
	LocationLongitude    float64 `mapstructure:"LOCATION_LONGITUDE"`
	LocationLatitude     float64 `mapstructure:"LOCATION_LATITUDE"`
	LocationAltitude     float64 `mapstructure:"LOCATION_ALTITUDE"`
	ManagingOrganization string  `mapstructure:"MANAGING_ORGANIZATION"`

	APIURL            string        `mapstructure:"API_URL"`
	DeliveryTransport string        `mapstructure:"DELIVERY_TRANSPORT"`
	DeliveryTimeout   time.Duration `mapstructure:"DELIVERY_TIMEOUT"`
	DeliveryRetries   int           `mapstructure:"DELIVERY_RETRIES"`
	DeliverySecret    string        `mapstructure:"DELIVERY_SECRET"`
	AMQPURL           string        `mapstructure:"AMQP_URL"`
	AMQPQueue         string        `mapstructure:"AMQP_QUEUE"`

	MockPort   string `mapstructure:"MOCK_PORT"`
	MockRecord bool   `mapstructure:"MOCK_RECORD"`
}

var keys = []string{
	"ENV",
	"LOG_LEVEL",
	"CONFIG_DIR",
	"OUTPUT_DIR",
	"STORAGE_BACKEND",
	"MINIO_ENDPOINT",
	"MINIO_ACCESS_KEY",
	"MINIO_SECRET_KEY",
	"MINIO_BUCKET",
	"MINIO_USE_SSL",
	"WORKERS",
	"RANDOM_SEED",
	"ENDPOINT_URL",
	"LOCATION_LONGITUDE",
	"LOCATION_LATITUDE",
	"LOCATION_ALTITUDE",
	"MANAGING_ORGANIZATION",
	"API_URL",
	"DELIVERY_TRANSPORT",
	"DELIVERY_TIMEOUT",
	"DELIVERY_RETRIES",
	"DELIVERY_SECRET",
	"AMQP_URL",
	"AMQP_QUEUE",
	"MOCK_PORT",
	"MOCK_RECORD",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CONFIG_DIR", "config")
	v.SetDefault("OUTPUT_DIR", "output")
	v.SetDefault("STORAGE_BACKEND", StorageFS)
	v.SetDefault("MINIO_BUCKET", "fhir-messages")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("WORKERS", 4)
	v.SetDefault("RANDOM_SEED", 0)
	v.SetDefault("ENDPOINT_URL", "https://acme.example.org/fhir")
	v.SetDefault("LOCATION_LONGITUDE", -83.6945691)
	v.SetDefault("LOCATION_LATITUDE", 42.25475478)
	v.SetDefault("LOCATION_ALTITUDE", 0)
	v.SetDefault("MANAGING_ORGANIZATION", "Organization/example")
	v.SetDefault("DELIVERY_TRANSPORT", TransportHTTP)
	v.SetDefault("DELIVERY_TIMEOUT", "10s")
	v.SetDefault("DELIVERY_RETRIES", 3)
	v.SetDefault("AMQP_QUEUE", "fhir-messages")
	v.SetDefault("MOCK_PORT", "5000")
	v.SetDefault("MOCK_RECORD", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.IsDev() && cfg.RandomSeed == 0 {
		log.Println("WARNING: RANDOM_SEED is 0, appointment fields are seeded from the clock.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Level returns the zerolog level named by LOG_LEVEL.
func (c *Config) Level() (zerolog.Level, error) {
	return zerolog.ParseLevel(c.LogLevel)
}

// Minio returns the object storage settings.
func (c *Config) Minio() blobstore.MinioConfig {
	return blobstore.MinioConfig{
		Endpoint:  c.MinioEndpoint,
		AccessKey: c.MinioAccessKey,
		SecretKey: c.MinioSecretKey,
		Bucket:    c.MinioBucket,
		UseSSL:    c.MinioUseSSL,
	}
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}

	switch c.StorageBackend {
	case StorageFS:
		if c.OutputDir == "" {
			return fmt.Errorf("OUTPUT_DIR is required when STORAGE_BACKEND is %q", StorageFS)
		}
	case StorageMinio:
		if c.MinioEndpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_BACKEND is %q", StorageMinio)
		}
		if c.MinioBucket == "" {
			return fmt.Errorf("MINIO_BUCKET is required when STORAGE_BACKEND is %q", StorageMinio)
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageFS, StorageMinio, c.StorageBackend)
	}

	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}

	if c.DeliveryTransport != TransportHTTP && c.DeliveryTransport != TransportAMQP {
		return fmt.Errorf("DELIVERY_TRANSPORT must be %q or %q, got %q", TransportHTTP, TransportAMQP, c.DeliveryTransport)
	}
	if c.DeliveryTimeout <= 0 {
		return fmt.Errorf("DELIVERY_TIMEOUT must be positive, got %s", c.DeliveryTimeout)
	}
	if c.DeliveryRetries < 0 {
		return fmt.Errorf("DELIVERY_RETRIES must not be negative, got %d", c.DeliveryRetries)
	}

	return nil
}

// ValidateDelivery checks the settings the send command needs on top of
// Validate.
func (c *Config) ValidateDelivery() error {
	switch c.DeliveryTransport {
	case TransportHTTP:
		if c.APIURL == "" {
			return fmt.Errorf("API_URL is required when DELIVERY_TRANSPORT is %q", TransportHTTP)
		}
	case TransportAMQP:
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when DELIVERY_TRANSPORT is %q", TransportAMQP)
		}
	}
	return nil
}
