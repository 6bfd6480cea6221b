package monitor

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/predictops/mlcp/internal/observability"
	"github.com/predictops/mlcp/pkg/errors"
	"github.com/predictops/mlcp/pkg/models"
)

// MetadataKeyCorrelationID is the metadata key carrying the serving layer's
// correlation identifier. Log fills it with a fresh UUID when absent.
const MetadataKeyCorrelationID = "correlation_id"

// Config contains configuration for the performance monitor
type Config struct {
	// Capacity bounds the rolling buffer. Once full, the oldest entry is
	// evicted per logged prediction.
	Capacity int `json:"capacity" yaml:"capacity" mapstructure:"capacity"`
}

// NewDefaultConfig returns the default monitor configuration.
func NewDefaultConfig() *Config {
	return &Config{Capacity: 1000}
}

// Validate validates the monitor configuration.
func (c *Config) Validate() error {
	if c.Capacity <= 0 {
		return errors.NewValidationError(errors.CodeInvalidConfig, "capacity must be positive")
	}
	return nil
}

// Monitor keeps a rolling window of prediction/actual pairs and computes
// error statistics on demand. State is purely in memory; Flush is an
// optional export, not a dependency.
type Monitor struct {
	config *Config
	logger *logrus.Logger

	mu      sync.Mutex
	entries []models.PredictionLogEntry
}

// New creates a performance monitor.
func New(config *Config, logger *logrus.Logger) (*Monitor, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Monitor{
		config:  config,
		logger:  logger,
		entries: make([]models.PredictionLogEntry, 0, config.Capacity),
	}, nil
}

// Log appends a prediction, evicting the oldest entry when the buffer is at
// capacity. FIFO eviction keeps the recency bias the metrics depend on.
// actual may be nil when ground truth has not arrived (or never will).
func (m *Monitor) Log(prediction float64, actual *float64, metadata map[string]string) {
	entry := models.PredictionLogEntry{
		Timestamp:  time.Now().UTC(),
		Prediction: prediction,
		Metadata:   make(map[string]string, len(metadata)+1),
	}
	for k, v := range metadata {
		entry.Metadata[k] = v
	}
	if _, ok := entry.Metadata[MetadataKeyCorrelationID]; !ok {
		entry.Metadata[MetadataKeyCorrelationID] = uuid.NewString()
	}
	if actual != nil {
		v := *actual
		entry.Actual = &v
	}

	m.mu.Lock()
	if len(m.entries) >= m.config.Capacity {
		evict := len(m.entries) - m.config.Capacity + 1
		m.entries = m.entries[evict:]
		observability.PredictionsEvicted.Add(float64(evict))
	}
	m.entries = append(m.entries, entry)
	m.mu.Unlock()

	observability.PredictionsLogged.Inc()
}

// Metrics computes MAE, RMSE and the maximum absolute error over the most
// recent windowSize entries that carry an actual. Entries without ground
// truth are excluded from the error metrics but counted in TotalInWindow.
// Zero eligible entries yields a no-data result, not an error.
func (m *Monitor) Metrics(windowSize int) models.PerformanceMetrics {
	window := m.window(windowSize)

	var sumAbs, sumSq, maxErr float64
	samples := 0
	for _, entry := range window {
		if !entry.HasActual() {
			continue
		}
		err := math.Abs(entry.Prediction - *entry.Actual)
		sumAbs += err
		sumSq += err * err
		if err > maxErr {
			maxErr = err
		}
		samples++
	}

	metrics := models.PerformanceMetrics{
		SampleCount:   samples,
		TotalInWindow: len(window),
	}
	if samples > 0 {
		metrics.MAE = sumAbs / float64(samples)
		metrics.RMSE = math.Sqrt(sumSq / float64(samples))
		metrics.MaxError = maxErr
		observability.WindowMAE.Set(metrics.MAE)
		observability.WindowRMSE.Set(metrics.RMSE)
	}

	m.logger.WithFields(logrus.Fields{
		"window":  len(window),
		"samples": samples,
		"mae":     metrics.MAE,
		"rmse":    metrics.RMSE,
	}).Debug("Computed performance metrics")

	return metrics
}

// Len returns the number of buffered entries.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Entries returns a copy of the buffered entries in log order.
func (m *Monitor) Entries() []models.PredictionLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PredictionLogEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Flush writes the buffered entries to path as JSON. The buffer is left
// intact; flushing is an export, not a rotation.
func (m *Monitor) Flush(path string) error {
	if path == "" {
		return errors.NewInvalidArgumentError("flush path is required")
	}

	entries := m.Entries()
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.NewStorageWriteError("failed to encode performance log", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewStorageWriteError(
			fmt.Sprintf("failed to create log directory for %s", path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewStorageWriteError(
			fmt.Sprintf("failed to write performance log %s", path), err)
	}

	m.logger.WithFields(logrus.Fields{
		"path":    path,
		"entries": len(entries),
	}).Info("Flushed performance log")

	return nil
}

func (m *Monitor) window(windowSize int) []models.PredictionLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if windowSize <= 0 || windowSize > len(m.entries) {
		windowSize = len(m.entries)
	}
	window := make([]models.PredictionLogEntry, windowSize)
	copy(window, m.entries[len(m.entries)-windowSize:])
	return window
}
