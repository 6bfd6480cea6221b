package featurestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/predictops/mlcp/pkg/errors"
	"github.com/predictops/mlcp/pkg/models"
)

// RedisStoreConfig holds configuration for the Redis feature store backend
type RedisStoreConfig struct {
	Addr         string        `json:"addr" yaml:"addr" mapstructure:"addr"`
	Password     string        `json:"password" yaml:"password" mapstructure:"password"`
	DB           int           `json:"db" yaml:"db" mapstructure:"db"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`
	KeyPrefix    string        `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`
}

// RedisStore implements FeatureStore on Redis lists. Rows are RPUSHed as
// JSON, so write order is the list order and append durability follows the
// server's persistence configuration. List pushes are atomic server-side,
// which gives the per-group append serialization the contract asks for.
type RedisStore struct {
	config *RedisStoreConfig
	client *redis.Client
	logger *logrus.Logger
	mu     sync.Mutex
	closed bool
}

// Validate checks the configuration.
func (c *RedisStoreConfig) Validate() error {
	if c.Addr == "" {
		return errors.NewValidationError(errors.CodeInvalidConfig, "Redis address is required")
	}
	return nil
}

// NewRedisStore creates a Redis-backed feature store.
func NewRedisStore(config *RedisStoreConfig, logger *logrus.Logger) (*RedisStore, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "RedisStoreConfig cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "mlcp:features"
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &RedisStore{
		config: config,
		logger: logger,
	}, nil
}

// Connect establishes the connection and verifies it with a ping.
func (s *RedisStore) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         s.config.Addr,
		Password:     s.config.Password,
		DB:           s.config.DB,
		DialTimeout:  s.config.DialTimeout,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		PoolSize:     s.config.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return errors.NewStorageReadError("failed to connect to Redis", err)
	}

	s.client = client
	s.logger.WithField("addr", s.config.Addr).Info("Redis feature store connected")
	return nil
}

// Save appends the batch to the group's list and registers the group.
func (s *RedisStore) Save(ctx context.Context, group string, records []models.FeatureRecord) error {
	if group == "" {
		return errors.NewInvalidArgumentError("feature group is required")
	}
	if len(records) == 0 {
		return errors.NewInvalidArgumentError("cannot save an empty batch")
	}
	client, err := s.conn()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	payloads := make([]interface{}, 0, len(records))
	for _, rec := range records {
		rec.Group = group
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return errors.NewStorageWriteError("failed to encode feature record", err)
		}
		payloads = append(payloads, data)
	}

	pipe := client.TxPipeline()
	pipe.RPush(ctx, s.groupKey(group), payloads...)
	pipe.SAdd(ctx, s.groupsKey(), group)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewStorageWriteError(
			fmt.Sprintf("failed to append %d records to group %s", len(records), group), err)
	}

	s.logger.WithFields(logrus.Fields{
		"group": group,
		"rows":  len(records),
	}).Info("Saved feature batch")

	return nil
}

// Latest returns the most recent n records for group, newest first.
func (s *RedisStore) Latest(ctx context.Context, group string, n int) (*models.FeatureSet, error) {
	if n < 0 {
		return nil, errors.NewInvalidArgumentError("n must be non-negative")
	}
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return models.NewFeatureSet(group, nil), nil
	}

	raw, err := client.LRange(ctx, s.groupKey(group), int64(-n), -1).Result()
	if err != nil {
		return nil, errors.NewStorageReadError(
			fmt.Sprintf("failed to read latest records for group %s", group), err)
	}

	records := make([]models.FeatureRecord, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		rec, err := decodeRecord(raw[i])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return models.NewFeatureSet(group, records), nil
}

// Load returns all records in write order, filtered to group when non-empty.
func (s *RedisStore) Load(ctx context.Context, group string) (*models.FeatureSet, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}

	groups := []string{group}
	if group == "" {
		groups, err = s.Groups(ctx)
		if err != nil {
			return nil, err
		}
	}

	var records []models.FeatureRecord
	for _, g := range groups {
		raw, err := client.LRange(ctx, s.groupKey(g), 0, -1).Result()
		if err != nil {
			return nil, errors.NewStorageReadError(
				fmt.Sprintf("failed to load group %s", g), err)
		}
		for _, item := range raw {
			rec, err := decodeRecord(item)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
	}
	return models.NewFeatureSet(group, records), nil
}

// Groups lists the feature groups that have been written.
func (s *RedisStore) Groups(ctx context.Context) ([]string, error) {
	client, err := s.conn()
	if err != nil {
		return nil, err
	}
	groups, err := client.SMembers(ctx, s.groupsKey()).Result()
	if err != nil {
		return nil, errors.NewStorageReadError("failed to list groups", err)
	}
	sort.Strings(groups)
	return groups, nil
}

// Close closes the client connection.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.client == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	return s.client.Close()
}

func (s *RedisStore) conn() (*redis.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.NewStorageReadError("redis feature store is closed", nil)
	}
	if s.client == nil {
		return nil, errors.NewStorageReadError("redis feature store is not connected", nil)
	}
	return s.client, nil
}

func (s *RedisStore) groupKey(group string) string {
	return fmt.Sprintf("%s:group:%s", s.config.KeyPrefix, group)
}

func (s *RedisStore) groupsKey() string {
	return fmt.Sprintf("%s:groups", s.config.KeyPrefix)
}

func decodeRecord(raw string) (models.FeatureRecord, error) {
	var rec models.FeatureRecord
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return rec, errors.NewStorageReadError("failed to decode feature record", err)
	}
	return rec, nil
}
