package commands

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/predictops/mlcp/internal/artifacts"
	"github.com/predictops/mlcp/internal/config"
	"github.com/predictops/mlcp/internal/featurestore"
	"github.com/predictops/mlcp/internal/registry"
)

var (
	configFile string
	verbose    bool
)

// SetConfigFile records the config file chosen on the command line.
func SetConfigFile(path string) {
	configFile = path
}

// SetVerbose enables debug logging for subsequent commands.
func SetVerbose(v bool) {
	verbose = v
}

func newLogger() *logrus.Logger {
	logger := logrus.New()
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

func loadConfig() (*config.Config, error) {
	return config.Load(configFile)
}

func openFeatureStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (featurestore.FeatureStore, error) {
	switch cfg.FeatureStore.Backend {
	case config.BackendRedis:
		store, err := featurestore.NewRedisStore(&cfg.FeatureStore.Redis, logger)
		if err != nil {
			return nil, err
		}
		if err := store.Connect(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return featurestore.NewFileStore(&cfg.FeatureStore.File, logger)
	}
}

func openRegistry(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*registry.Registry, error) {
	var store registry.Store
	switch cfg.Registry.Backend {
	case config.BackendPostgres:
		pg, err := registry.NewPostgresStore(&cfg.Registry.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.Connect(ctx); err != nil {
			return nil, err
		}
		store = pg
	default:
		fs, err := registry.NewFileStore(&cfg.Registry.File, logger)
		if err != nil {
			return nil, err
		}
		store = fs
	}
	return registry.New(ctx, store, logger)
}

func openArtifactStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (artifacts.Store, error) {
	switch cfg.Artifacts.Backend {
	case config.BackendS3:
		store, err := artifacts.NewS3Store(&cfg.Artifacts.S3, logger)
		if err != nil {
			return nil, err
		}
		if err := store.Connect(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return artifacts.NewLocalStore(&cfg.Artifacts.Local, logger)
	}
}
