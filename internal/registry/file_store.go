package registry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/predictops/mlcp/pkg/errors"
)

// FileStoreConfig configures the file-backed event log.
type FileStoreConfig struct {
	// Path is the event log file. Parent directories are created on open.
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// SyncWrites fsyncs after each append.
	SyncWrites bool `json:"sync_writes" yaml:"sync_writes" mapstructure:"sync_writes"`
}

// NewDefaultFileStoreConfig returns a file store configuration with defaults.
func NewDefaultFileStoreConfig() *FileStoreConfig {
	return &FileStoreConfig{
		Path:       "./data/registry/events.jsonl",
		SyncWrites: true,
	}
}

// Validate checks the configuration.
func (c *FileStoreConfig) Validate() error {
	if c.Path == "" {
		return errors.NewValidationError(errors.CodeInvalidConfig, "registry file store path is required")
	}
	return nil
}

// FileStore keeps registry events in a JSON-lines log, one event per line.
// Appends only; the log is the source of truth and is replayed at startup.
type FileStore struct {
	config *FileStoreConfig
	logger *logrus.Logger

	mu   sync.Mutex
	file *os.File
}

// NewFileStore opens (creating if needed) the event log at config.Path.
func NewFileStore(config *FileStoreConfig, logger *logrus.Logger) (*FileStore, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "file store config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, errors.NewStorageWriteError("failed to create registry directory", err)
	}
	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.NewStorageWriteError("failed to open registry event log", err)
	}

	return &FileStore{
		config: config,
		logger: logger,
		file:   file,
	}, nil
}

// Append writes the events as JSON lines in a single buffered write.
func (s *FileStore) Append(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			return errors.NewStorageWriteError("failed to encode registry event", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(buf.Bytes()); err != nil {
		return errors.NewStorageWriteError("failed to append registry events", err)
	}
	if s.config.SyncWrites {
		if err := s.file.Sync(); err != nil {
			return errors.NewStorageWriteError("failed to sync registry event log", err)
		}
	}
	return nil
}

// Replay reads the whole log in append order.
func (s *FileStore) Replay(ctx context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.config.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStorageReadError("failed to open registry event log", err)
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, errors.NewStorageReadError("corrupt registry event log entry", err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewStorageReadError("failed to read registry event log", err)
	}

	s.logger.WithField("events", len(events)).Debug("Replayed registry event log")
	return events, nil
}

// Close closes the log file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
