package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/predictops/mlcp/internal/artifacts"
	"github.com/predictops/mlcp/internal/drift"
	"github.com/predictops/mlcp/internal/featurestore"
	"github.com/predictops/mlcp/internal/monitor"
	"github.com/predictops/mlcp/internal/registry"
	"github.com/predictops/mlcp/pkg/errors"
)

// Backend names accepted by the storage sections.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
	BackendS3       = "s3"
)

// Config is the control-plane configuration.
type Config struct {
	Environment string `json:"environment" yaml:"environment" mapstructure:"environment"`

	Logging      LoggingConfig      `json:"logging" yaml:"logging" mapstructure:"logging"`
	FeatureStore FeatureStoreConfig `json:"feature_store" yaml:"feature_store" mapstructure:"feature_store"`
	Registry     RegistryConfig     `json:"registry" yaml:"registry" mapstructure:"registry"`
	Artifacts    ArtifactsConfig    `json:"artifacts" yaml:"artifacts" mapstructure:"artifacts"`
	Drift        DriftConfig        `json:"drift" yaml:"drift" mapstructure:"drift"`
	Monitor      monitor.Config     `json:"monitor" yaml:"monitor" mapstructure:"monitor"`
}

// DriftConfig wraps detection settings with the report history location.
type DriftConfig struct {
	Detector    drift.DetectorConfig `json:"detector" yaml:"detector" mapstructure:"detector"`
	HistoryPath string               `json:"history_path" yaml:"history_path" mapstructure:"history_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// FeatureStoreConfig selects and configures the feature store backend.
type FeatureStoreConfig struct {
	Backend string                        `json:"backend" yaml:"backend" mapstructure:"backend"`
	File    featurestore.FileStoreConfig  `json:"file" yaml:"file" mapstructure:"file"`
	Redis   featurestore.RedisStoreConfig `json:"redis" yaml:"redis" mapstructure:"redis"`
}

// RegistryConfig selects and configures the registry event store backend.
type RegistryConfig struct {
	Backend  string                        `json:"backend" yaml:"backend" mapstructure:"backend"`
	File     registry.FileStoreConfig     `json:"file" yaml:"file" mapstructure:"file"`
	Postgres registry.PostgresStoreConfig `json:"postgres" yaml:"postgres" mapstructure:"postgres"`
}

// ArtifactsConfig selects and configures the artifact store backend.
type ArtifactsConfig struct {
	Backend string                     `json:"backend" yaml:"backend" mapstructure:"backend"`
	Local   artifacts.LocalStoreConfig `json:"local" yaml:"local" mapstructure:"local"`
	S3      artifacts.S3StoreConfig    `json:"s3" yaml:"s3" mapstructure:"s3"`
}

// NewDefaultConfig creates a default configuration: file-backed stores under
// ./data, drift and monitor defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		FeatureStore: FeatureStoreConfig{
			Backend: BackendFile,
			File: featurestore.FileStoreConfig{
				BasePath:   "./data/features",
				CreateDirs: true,
				SyncWrites: true,
			},
			Redis: featurestore.RedisStoreConfig{
				Addr:         "localhost:6379",
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
				PoolSize:     10,
				KeyPrefix:    "mlcp:features",
			},
		},
		Registry: RegistryConfig{
			Backend:  BackendFile,
			File:     *registry.NewDefaultFileStoreConfig(),
			Postgres: *registry.NewDefaultPostgresStoreConfig(),
		},
		Artifacts: ArtifactsConfig{
			Backend: BackendLocal,
			Local:   *artifacts.NewDefaultLocalStoreConfig(),
			S3:      *artifacts.NewDefaultS3StoreConfig(),
		},
		Drift: DriftConfig{
			Detector:    *drift.NewDefaultDetectorConfig(),
			HistoryPath: "./data/drift/history.json",
		},
		Monitor: *monitor.NewDefaultConfig(),
	}
}

// Validate validates the configuration, descending only into the selected
// backend of each storage section.
func (c *Config) Validate() error {
	switch c.FeatureStore.Backend {
	case BackendFile:
		if err := c.FeatureStore.File.Validate(); err != nil {
			return err
		}
	case BackendRedis:
		if err := c.FeatureStore.Redis.Validate(); err != nil {
			return err
		}
	default:
		return errors.NewValidationError(errors.CodeInvalidConfig,
			"feature store backend must be file or redis")
	}

	switch c.Registry.Backend {
	case BackendFile:
		if err := c.Registry.File.Validate(); err != nil {
			return err
		}
	case BackendPostgres:
		if err := c.Registry.Postgres.Validate(); err != nil {
			return err
		}
	default:
		return errors.NewValidationError(errors.CodeInvalidConfig,
			"registry backend must be file or postgres")
	}

	switch c.Artifacts.Backend {
	case BackendLocal:
		if err := c.Artifacts.Local.Validate(); err != nil {
			return err
		}
	case BackendS3:
		if err := c.Artifacts.S3.Validate(); err != nil {
			return err
		}
	default:
		return errors.NewValidationError(errors.CodeInvalidConfig,
			"artifact backend must be local or s3")
	}

	if err := c.Drift.Detector.Validate(); err != nil {
		return err
	}
	if c.Drift.HistoryPath == "" {
		return errors.NewValidationError(errors.CodeInvalidConfig, "drift history path is required")
	}
	return c.Monitor.Validate()
}

// Load reads configuration from the given file (optional) and MLCP_*
// environment variables, layered over the defaults.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MLCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidConfig,
				"failed to read config file")
		}
	}

	config := NewDefaultConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidConfig,
			"failed to parse configuration")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
