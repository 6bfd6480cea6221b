package monitor

import (
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictops/mlcp/pkg/models"
)

func ptr(v float64) *float64 {
	return &v
}

func TestNewValidation(t *testing.T) {
	_, err := New(&Config{Capacity: 0}, nil)
	assert.Error(t, err)

	m, err := New(nil, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestMetricsKnownValues(t *testing.T) {
	m, err := New(nil, nil)
	require.NoError(t, err)

	m.Log(10, ptr(12), nil)
	m.Log(20, ptr(18), nil)

	metrics := m.Metrics(100)
	assert.True(t, metrics.HasData())
	assert.Equal(t, 2, metrics.SampleCount)
	assert.Equal(t, 2.0, metrics.MAE)
	assert.Equal(t, 2.0, metrics.RMSE)
	assert.Equal(t, 2.0, metrics.MaxError)
}

func TestMetricsExcludesEntriesWithoutActual(t *testing.T) {
	m, err := New(nil, nil)
	require.NoError(t, err)

	m.Log(10, ptr(12), nil)
	m.Log(20, ptr(18), nil)
	m.Log(999, nil, nil)

	metrics := m.Metrics(100)
	assert.Equal(t, 2, metrics.SampleCount)
	assert.Equal(t, 3, metrics.TotalInWindow)
	assert.Equal(t, 2.0, metrics.MAE)
	assert.Equal(t, 2.0, metrics.RMSE)
}

func TestMetricsNoData(t *testing.T) {
	m, err := New(nil, nil)
	require.NoError(t, err)

	metrics := m.Metrics(100)
	assert.False(t, metrics.HasData())
	assert.Equal(t, 0, metrics.SampleCount)

	m.Log(10, nil, nil)
	metrics = m.Metrics(100)
	assert.False(t, metrics.HasData())
	assert.Equal(t, 1, metrics.TotalInWindow)
}

func TestMetricsWindowing(t *testing.T) {
	m, err := New(nil, nil)
	require.NoError(t, err)

	m.Log(0, ptr(100), nil) // outside the window below
	m.Log(10, ptr(12), nil)
	m.Log(20, ptr(18), nil)

	metrics := m.Metrics(2)
	assert.Equal(t, 2, metrics.SampleCount)
	assert.Equal(t, 2.0, metrics.MAE)
}

func TestEvictionInvariant(t *testing.T) {
	const capacity = 10
	m, err := New(&Config{Capacity: capacity}, nil)
	require.NoError(t, err)

	for i := 0; i < capacity+5; i++ {
		m.Log(float64(i), nil, nil)
		assert.LessOrEqual(t, m.Len(), capacity)
	}

	assert.Equal(t, capacity, m.Len())

	// The oldest five entries were evicted; the buffer holds 5..14.
	entries := m.Entries()
	assert.Equal(t, 5.0, entries[0].Prediction)
	assert.Equal(t, 14.0, entries[len(entries)-1].Prediction)
}

func TestCorrelationIDAssigned(t *testing.T) {
	m, err := New(nil, nil)
	require.NoError(t, err)

	m.Log(1, nil, nil)
	m.Log(2, nil, map[string]string{MetadataKeyCorrelationID: "req-42"})

	entries := m.Entries()
	assert.NotEmpty(t, entries[0].Metadata[MetadataKeyCorrelationID])
	assert.Equal(t, "req-42", entries[1].Metadata[MetadataKeyCorrelationID])
}

func TestConcurrentLogging(t *testing.T) {
	const capacity = 50
	m, err := New(&Config{Capacity: capacity}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Log(float64(i), ptr(float64(i)), nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, m.Len())
}

func TestFlush(t *testing.T) {
	m, err := New(nil, nil)
	require.NoError(t, err)

	m.Log(10, ptr(12), map[string]string{"city": "delhi"})
	path := t.TempDir() + "/logs/performance_logs.json"
	require.NoError(t, m.Flush(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []models.PredictionLogEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 10.0, entries[0].Prediction)
	assert.Equal(t, 12.0, *entries[0].Actual)
	assert.Equal(t, "delhi", entries[0].Metadata["city"])

	// Flushing does not drain the buffer.
	assert.Equal(t, 1, m.Len())
}
