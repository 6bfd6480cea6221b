package featurestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/predictops/mlcp/pkg/errors"
	"github.com/predictops/mlcp/pkg/models"
)

// FileStoreConfig contains configuration for file-based feature storage
type FileStoreConfig struct {
	BasePath   string `json:"base_path" yaml:"base_path" mapstructure:"base_path"`
	CreateDirs bool   `json:"create_dirs" yaml:"create_dirs" mapstructure:"create_dirs"`
	SyncWrites bool   `json:"sync_writes" yaml:"sync_writes" mapstructure:"sync_writes"`
}

// FileStore implements FeatureStore on columnar segment files. Each Save
// writes one immutable, self-describing segment (column names embedded,
// null-padded columns for rows missing a key), so the training job and the
// monitoring job can both read the layout without coordination.
type FileStore struct {
	config *FileStoreConfig
	logger *logrus.Logger

	mu         sync.Mutex
	groupLocks map[string]*sync.Mutex
}

// segment is the on-disk representation of one saved batch.
type segment struct {
	Group      string                   `json:"feature_group"`
	WrittenAt  time.Time                `json:"written_at"`
	Rows       int                      `json:"rows"`
	Columns    []string                 `json:"columns"`
	Values     map[string][]interface{} `json:"values"`
	Timestamps []time.Time              `json:"timestamps"`
}

const segmentPattern = "segment-%08d.json"

// Validate checks the configuration.
func (c *FileStoreConfig) Validate() error {
	if c.BasePath == "" {
		return errors.NewValidationError(errors.CodeInvalidConfig, "BasePath is required")
	}
	return nil
}

// NewFileStore creates a file-backed feature store rooted at BasePath.
func NewFileStore(config *FileStoreConfig, logger *logrus.Logger) (*FileStore, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "FileStoreConfig cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	if config.CreateDirs {
		if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
			return nil, errors.NewStorageWriteError(
				fmt.Sprintf("failed to create base path %s", config.BasePath), err)
		}
	}
	if _, err := os.Stat(config.BasePath); err != nil {
		return nil, errors.NewStorageReadError(
			fmt.Sprintf("base path not accessible: %s", config.BasePath), err)
	}

	return &FileStore{
		config:     config,
		logger:     logger,
		groupLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Save appends one segment for the batch. Appends are serialized per group;
// there is no cross-group ordering requirement.
func (s *FileStore) Save(ctx context.Context, group string, records []models.FeatureRecord) error {
	if group == "" {
		return errors.NewInvalidArgumentError("feature group is required")
	}
	if len(records) == 0 {
		return errors.NewInvalidArgumentError("cannot save an empty batch")
	}

	lock := s.groupLock(group)
	lock.Lock()
	defer lock.Unlock()

	groupDir := filepath.Join(s.config.BasePath, group)
	if err := os.MkdirAll(groupDir, 0o755); err != nil {
		return errors.NewStorageWriteError(
			fmt.Sprintf("failed to create group directory %s", groupDir), err)
	}

	seq, err := s.nextSequence(groupDir)
	if err != nil {
		return err
	}

	seg := buildSegment(group, records)
	path := filepath.Join(groupDir, fmt.Sprintf(segmentPattern, seq))

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.NewStorageWriteError(
			fmt.Sprintf("failed to create segment %s", path), err)
	}
	enc := json.NewEncoder(file)
	if err := enc.Encode(seg); err != nil {
		file.Close()
		return errors.NewStorageWriteError(
			fmt.Sprintf("failed to encode segment %s", path), err)
	}
	if s.config.SyncWrites {
		if err := file.Sync(); err != nil {
			file.Close()
			return errors.NewStorageWriteError(
				fmt.Sprintf("failed to sync segment %s", path), err)
		}
	}
	if err := file.Close(); err != nil {
		return errors.NewStorageWriteError(
			fmt.Sprintf("failed to close segment %s", path), err)
	}

	s.logger.WithFields(logrus.Fields{
		"group":   group,
		"rows":    seg.Rows,
		"segment": seq,
	}).Info("Saved feature batch")

	return nil
}

// Latest returns the most recent n records for group, newest first.
func (s *FileStore) Latest(ctx context.Context, group string, n int) (*models.FeatureSet, error) {
	if n < 0 {
		return nil, errors.NewInvalidArgumentError("n must be non-negative")
	}

	all, err := s.loadGroup(group)
	if err != nil {
		return nil, err
	}

	if n > len(all) {
		n = len(all)
	}
	latest := make([]models.FeatureRecord, 0, n)
	for i := len(all) - 1; i >= len(all)-n; i-- {
		latest = append(latest, all[i])
	}
	return models.NewFeatureSet(group, latest), nil
}

// Load returns all records in write order, filtered to group when non-empty.
func (s *FileStore) Load(ctx context.Context, group string) (*models.FeatureSet, error) {
	if group != "" {
		records, err := s.loadGroup(group)
		if err != nil {
			return nil, err
		}
		return models.NewFeatureSet(group, records), nil
	}

	groups, err := s.Groups(ctx)
	if err != nil {
		return nil, err
	}
	var records []models.FeatureRecord
	for _, g := range groups {
		groupRecords, err := s.loadGroup(g)
		if err != nil {
			return nil, err
		}
		records = append(records, groupRecords...)
	}
	return models.NewFeatureSet("", records), nil
}

// Groups lists the feature groups that have at least one segment.
func (s *FileStore) Groups(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.config.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStorageReadError("failed to list groups", err)
	}
	var groups []string
	for _, entry := range entries {
		if entry.IsDir() {
			groups = append(groups, entry.Name())
		}
	}
	sort.Strings(groups)
	return groups, nil
}

// Close releases resources. The file store holds no open handles between
// calls, so this only exists to satisfy the interface.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) groupLock(group string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.groupLocks[group]
	if !ok {
		lock = &sync.Mutex{}
		s.groupLocks[group] = lock
	}
	return lock
}

func (s *FileStore) nextSequence(groupDir string) (int, error) {
	files, err := s.segmentFiles(groupDir)
	if err != nil {
		return 0, err
	}
	return len(files) + 1, nil
}

func (s *FileStore) segmentFiles(groupDir string) ([]string, error) {
	entries, err := os.ReadDir(groupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStorageReadError(
			fmt.Sprintf("failed to list segments in %s", groupDir), err)
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, "segment-") && strings.HasSuffix(name, ".json") {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (s *FileStore) loadGroup(group string) ([]models.FeatureRecord, error) {
	groupDir := filepath.Join(s.config.BasePath, group)
	files, err := s.segmentFiles(groupDir)
	if err != nil {
		return nil, err
	}

	var records []models.FeatureRecord
	for _, name := range files {
		path := filepath.Join(groupDir, name)
		seg, err := readSegment(path)
		if err != nil {
			return nil, err
		}
		records = append(records, seg.toRecords()...)
	}
	return records, nil
}

func readSegment(path string) (*segment, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewStorageReadError(
			fmt.Sprintf("failed to open segment %s", path), err)
	}
	defer file.Close()

	var seg segment
	dec := json.NewDecoder(file)
	dec.UseNumber()
	if err := dec.Decode(&seg); err != nil {
		return nil, errors.NewStorageReadError(
			fmt.Sprintf("failed to decode segment %s", path), err)
	}
	return &seg, nil
}

// buildSegment pivots row-oriented records into the columnar layout. Columns
// are the union over the batch; rows missing a key get a null cell.
func buildSegment(group string, records []models.FeatureRecord) *segment {
	now := time.Now().UTC()

	columnSet := make(map[string]struct{})
	for _, rec := range records {
		for name := range rec.Values {
			columnSet[name] = struct{}{}
		}
	}
	columns := make([]string, 0, len(columnSet))
	for name := range columnSet {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	values := make(map[string][]interface{}, len(columns))
	for _, col := range columns {
		values[col] = make([]interface{}, len(records))
	}
	timestamps := make([]time.Time, len(records))

	for i, rec := range records {
		ts := rec.CreatedAt
		if ts.IsZero() {
			ts = now
		}
		timestamps[i] = ts
		for _, col := range columns {
			if v, ok := rec.Values[col]; ok {
				values[col][i] = v
			}
		}
	}

	return &segment{
		Group:      group,
		WrittenAt:  now,
		Rows:       len(records),
		Columns:    columns,
		Values:     values,
		Timestamps: timestamps,
	}
}

// toRecords converts the columnar layout back into rows in write order.
func (seg *segment) toRecords() []models.FeatureRecord {
	records := make([]models.FeatureRecord, seg.Rows)
	for i := 0; i < seg.Rows; i++ {
		values := make(map[string]interface{})
		for _, col := range seg.Columns {
			cells := seg.Values[col]
			if i < len(cells) && cells[i] != nil {
				values[col] = cells[i]
			}
		}
		var ts time.Time
		if i < len(seg.Timestamps) {
			ts = seg.Timestamps[i]
		}
		records[i] = models.FeatureRecord{
			Values:    values,
			Group:     seg.Group,
			CreatedAt: ts,
		}
	}
	return records
}
