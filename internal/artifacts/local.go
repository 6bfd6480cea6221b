package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/predictops/mlcp/pkg/errors"
	"github.com/predictops/mlcp/pkg/models"
)

// LocalStoreConfig configures the filesystem artifact store.
type LocalStoreConfig struct {
	BasePath string `json:"base_path" yaml:"base_path" mapstructure:"base_path"`
}

// NewDefaultLocalStoreConfig returns a local store configuration with defaults.
func NewDefaultLocalStoreConfig() *LocalStoreConfig {
	return &LocalStoreConfig{BasePath: "./data/artifacts"}
}

// Validate checks the configuration.
func (c *LocalStoreConfig) Validate() error {
	if c.BasePath == "" {
		return errors.NewValidationError(errors.CodeInvalidConfig, "artifact base path is required")
	}
	return nil
}

// LocalStore keeps artifacts on the local filesystem under
// <base>/<model>/<version>/artifact.bin. Writes go through a temp file and
// rename so a crashed upload never leaves a partial artifact behind.
type LocalStore struct {
	config *LocalStoreConfig
	logger *logrus.Logger
}

// NewLocalStore creates a filesystem artifact store.
func NewLocalStore(config *LocalStoreConfig, logger *logrus.Logger) (*LocalStore, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "local store config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &LocalStore{config: config, logger: logger}, nil
}

// Put stores the artifact and returns its reference.
func (s *LocalStore) Put(ctx context.Context, modelName string, version int, r io.Reader) (models.ArtifactRef, error) {
	if modelName == "" || version <= 0 {
		return models.ArtifactRef{}, errors.NewInvalidArgumentError("model name and positive version are required")
	}

	dir := filepath.Join(s.config.BasePath, modelName, strconv.Itoa(version))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.ArtifactRef{}, errors.NewStorageWriteError("failed to create artifact directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return models.ArtifactRef{}, errors.NewStorageWriteError("failed to create artifact temp file", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		tmp.Close()
		return models.ArtifactRef{}, errors.NewStorageWriteError("failed to write artifact", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return models.ArtifactRef{}, errors.NewStorageWriteError("failed to sync artifact", err)
	}
	if err := tmp.Close(); err != nil {
		return models.ArtifactRef{}, errors.NewStorageWriteError("failed to close artifact", err)
	}

	final := filepath.Join(dir, "artifact.bin")
	if err := os.Rename(tmp.Name(), final); err != nil {
		return models.ArtifactRef{}, errors.NewStorageWriteError("failed to finalize artifact", err)
	}

	ref := models.ArtifactRef{
		URI:       "file://" + filepath.ToSlash(final),
		Checksum:  hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes: size,
	}
	s.logger.WithFields(logrus.Fields{
		"model_name": modelName,
		"version":    version,
		"size_bytes": size,
	}).Debug("Stored artifact")
	return ref, nil
}

// Get opens the artifact named by ref.
func (s *LocalStore) Get(ctx context.Context, ref models.ArtifactRef) (io.ReadCloser, error) {
	u, err := url.Parse(ref.URI)
	if err != nil || u.Scheme != "file" {
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("not a file artifact URI: %q", ref.URI))
	}
	file, err := os.Open(u.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError(fmt.Sprintf("artifact %s does not exist", ref.URI))
		}
		return nil, errors.NewStorageReadError("failed to open artifact", err)
	}
	return file, nil
}

// Close is a no-op for the filesystem store.
func (s *LocalStore) Close() error {
	return nil
}
