package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/predictops/mlcp/pkg/errors"
	"github.com/predictops/mlcp/pkg/models"
)

// PostgresStoreConfig configures the Postgres-backed event log.
type PostgresStoreConfig struct {
	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"`
	Database string `json:"database" yaml:"database" mapstructure:"database"`
	Username string `json:"username" yaml:"username" mapstructure:"username"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode" mapstructure:"ssl_mode"`

	Table string `json:"table" yaml:"table" mapstructure:"table"`

	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// NewDefaultPostgresStoreConfig returns a Postgres store configuration with
// defaults.
func NewDefaultPostgresStoreConfig() *PostgresStoreConfig {
	return &PostgresStoreConfig{
		Host:            "localhost",
		Port:            5432,
		Database:        "mlcp",
		Username:        "mlcp",
		SSLMode:         "disable",
		Table:           "registry_events",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// Validate checks the configuration.
func (c *PostgresStoreConfig) Validate() error {
	if c.Host == "" {
		return errors.NewValidationError(errors.CodeInvalidConfig, "postgres host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.NewValidationError(errors.CodeInvalidConfig, "postgres port must be between 1 and 65535")
	}
	if c.Database == "" {
		return errors.NewValidationError(errors.CodeInvalidConfig, "postgres database is required")
	}
	if c.Table == "" {
		return errors.NewValidationError(errors.CodeInvalidConfig, "postgres table is required")
	}
	return nil
}

// PostgresStore keeps registry events in an insert-only table. Replay order
// is the serial id, so concurrent writers from several processes still yield
// one total order.
type PostgresStore struct {
	config *PostgresStoreConfig
	logger *logrus.Logger
	db     *sql.DB
}

// NewPostgresStore creates an unconnected Postgres store.
func NewPostgresStore(config *PostgresStoreConfig, logger *logrus.Logger) (*PostgresStore, error) {
	if config == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidConfig, "postgres store config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &PostgresStore{
		config: config,
		logger: logger,
	}, nil
}

// Connect opens the pool, pings the server and ensures the events table.
func (s *PostgresStore) Connect(ctx context.Context) error {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		s.config.Host, s.config.Port, s.config.Database,
		s.config.Username, s.config.Password, s.config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageWriteFailed, "failed to open postgres connection")
	}
	db.SetMaxOpenConns(s.config.MaxOpenConns)
	db.SetMaxIdleConns(s.config.MaxIdleConns)
	db.SetConnMaxLifetime(s.config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageWriteFailed, "failed to ping postgres")
	}
	s.db = db

	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		s.db = nil
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"host":     s.config.Host,
		"database": s.config.Database,
		"table":    s.config.Table,
	}).Info("Connected to postgres registry store")
	return nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id           BIGSERIAL PRIMARY KEY,
			event_type   TEXT        NOT NULL,
			event_time   TIMESTAMPTZ NOT NULL,
			model_name   TEXT        NOT NULL,
			version      INTEGER     NOT NULL,
			registered   JSONB,
			from_stage   TEXT,
			to_stage     TEXT,
			tag_key      TEXT,
			tag_value    TEXT
		)`, s.config.Table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageWriteFailed, "failed to create registry events table")
	}
	return nil
}

// Append inserts the events inside one transaction.
func (s *PostgresStore) Append(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	if s.db == nil {
		return errors.NewStorageWriteError("postgres store is not connected", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStorageWriteError("failed to begin registry transaction", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (event_type, event_time, model_name, version, registered, from_stage, to_stage, tag_key, tag_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, s.config.Table)

	for _, event := range events {
		var registered []byte
		if event.Registered != nil {
			registered, err = json.Marshal(event.Registered)
			if err != nil {
				return errors.NewStorageWriteError("failed to encode registered version", err)
			}
		}
		_, err = tx.ExecContext(ctx, query,
			string(event.Type), event.Timestamp, event.ModelName, event.VersionNumber,
			nullableBytes(registered),
			nullableString(string(event.FromStage)), nullableString(string(event.ToStage)),
			nullableString(event.TagKey), nullableString(event.TagValue))
		if err != nil {
			return errors.NewStorageWriteError("failed to insert registry event", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStorageWriteError("failed to commit registry events", err)
	}
	return nil
}

// Replay reads all events ordered by insertion id.
func (s *PostgresStore) Replay(ctx context.Context) ([]Event, error) {
	if s.db == nil {
		return nil, errors.NewStorageReadError("postgres store is not connected", nil)
	}

	query := fmt.Sprintf(`
		SELECT event_type, event_time, model_name, version, registered, from_stage, to_stage, tag_key, tag_value
		FROM %s ORDER BY id`, s.config.Table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewStorageReadError("failed to query registry events", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event      Event
			eventType  string
			registered []byte
			fromStage  sql.NullString
			toStage    sql.NullString
			tagKey     sql.NullString
			tagValue   sql.NullString
		)
		if err := rows.Scan(&eventType, &event.Timestamp, &event.ModelName, &event.VersionNumber,
			&registered, &fromStage, &toStage, &tagKey, &tagValue); err != nil {
			return nil, errors.NewStorageReadError("failed to scan registry event", err)
		}
		event.Type = EventType(eventType)
		if len(registered) > 0 {
			var mv models.ModelVersion
			if err := json.Unmarshal(registered, &mv); err != nil {
				return nil, errors.NewStorageReadError("corrupt registered version payload", err)
			}
			event.Registered = &mv
		}
		event.FromStage = models.Stage(fromStage.String)
		event.ToStage = models.Stage(toStage.String)
		event.TagKey = tagKey.String
		event.TagValue = tagValue.String
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageReadError("failed to iterate registry events", err)
	}
	return events, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
