// Package config loads application configuration from TASKDNS_-prefixed
// environment variables, with struct defaults and validation.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Backend names for the record store.
const (
	BackendDynamoDB = "dynamodb"
	BackendBolt     = "bolt"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Backend selects the record store: "dynamodb" or "bolt".
	Backend string `koanf:"backend" validate:"required,oneof=dynamodb bolt"`

	// BoltPath is the bolt database file, used when Backend is "bolt".
	BoltPath string `koanf:"bolt_path" validate:"required_if=Backend bolt"`

	// CacheSize is the record cache capacity in records.
	CacheSize uint `koanf:"cache_size" validate:"required,gte=1"`

	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// ExpectedRecords sizes the cache's membership prefilter.
	ExpectedRecords uint `koanf:"expected_records" validate:"required,gte=1"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Region is the AWS region, used when Backend is "dynamodb".
	Region string `koanf:"region" validate:"required_if=Backend dynamodb"`

	// TableName is the DynamoDB table, used when Backend is "dynamodb".
	TableName string `koanf:"table_name" validate:"required_if=Backend dynamodb"`
}

// DEFAULT_APP_CONFIG holds the defaults for every setting. The bolt
// backend is the default so a fresh install works without AWS
// credentials.
var DEFAULT_APP_CONFIG = AppConfig{
	Backend:         BackendBolt,
	BoltPath:        "/var/lib/taskdns/records.db",
	CacheSize:       1000,
	Env:             "prod",
	ExpectedRecords: 1024,
	LogLevel:        "info",
	Region:          "us-east-1",
	TableName:       "taskdns-records",
}

// envLoader loads TASKDNS_-prefixed environment variables, lowercasing
// keys and trimming values. Replaceable in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "TASKDNS_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "TASKDNS_"))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// Load parses environment variables and returns a validated AppConfig.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
