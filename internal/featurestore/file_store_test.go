package featurestore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictops/mlcp/pkg/models"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(&FileStoreConfig{
		BasePath:   t.TempDir(),
		CreateDirs: true,
		SyncWrites: true,
	}, logrus.New())
	require.NoError(t, err)
	return store
}

func record(pm25 float64) models.FeatureRecord {
	return models.FeatureRecord{
		Values: map[string]interface{}{"pm25": pm25},
	}
}

func TestNewFileStoreValidation(t *testing.T) {
	_, err := NewFileStore(nil, nil)
	assert.Error(t, err)

	_, err = NewFileStore(&FileStoreConfig{}, nil)
	assert.Error(t, err)
}

func TestSaveAndLoadOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := store.Save(ctx, "measurements", []models.FeatureRecord{record(float64(i))})
		require.NoError(t, err)
	}

	// Load returns forward write order
	set, err := store.Load(ctx, "measurements")
	require.NoError(t, err)
	require.Equal(t, 5, set.Len())
	for i, rec := range set.Records {
		assert.Equal(t, float64(i), mustFloat(t, rec.Values["pm25"]))
		assert.Equal(t, "measurements", rec.Group)
		assert.False(t, rec.CreatedAt.IsZero())
	}

	// Latest returns reverse write order
	latest, err := store.Latest(ctx, "measurements", 3)
	require.NoError(t, err)
	require.Equal(t, 3, latest.Len())
	assert.Equal(t, 4.0, mustFloat(t, latest.Records[0].Values["pm25"]))
	assert.Equal(t, 3.0, mustFloat(t, latest.Records[1].Values["pm25"]))
	assert.Equal(t, 2.0, mustFloat(t, latest.Records[2].Values["pm25"]))
}

func TestLatestOnNeverWrittenGroup(t *testing.T) {
	store := newTestStore(t)

	set, err := store.Latest(context.Background(), "missing", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestLatestLargerThanGroup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "g", []models.FeatureRecord{record(1), record(2)}))

	set, err := store.Latest(ctx, "g", 100)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
}

func TestSaveRejectsEmptyBatchAndGroup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, store.Save(ctx, "", []models.FeatureRecord{record(1)}))
	assert.Error(t, store.Save(ctx, "g", nil))
}

func TestSchemaGrowth(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "g", []models.FeatureRecord{
		{Values: map[string]interface{}{"pm25": 10.0}},
	}))
	require.NoError(t, store.Save(ctx, "g", []models.FeatureRecord{
		{Values: map[string]interface{}{"pm25": 20.0, "humidity": 0.6}},
	}))

	set, err := store.Load(ctx, "g")
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())

	// Older row has no humidity key; newer row carries it.
	_, ok := set.Records[0].Values["humidity"]
	assert.False(t, ok)
	assert.Equal(t, 0.6, mustFloat(t, set.Records[1].Values["humidity"]))
	assert.ElementsMatch(t, []string{"humidity", "pm25"}, set.Columns())
}

func TestReloadFromDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(&FileStoreConfig{BasePath: dir, CreateDirs: true}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "g", []models.FeatureRecord{record(1), record(2)}))
	require.NoError(t, store.Close())

	// A second store over the same path observes exactly what was written.
	reopened, err := NewFileStore(&FileStoreConfig{BasePath: dir}, nil)
	require.NoError(t, err)
	set, err := reopened.Load(ctx, "g")
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())
	assert.Equal(t, 1.0, mustFloat(t, set.Records[0].Values["pm25"]))
	assert.Equal(t, 2.0, mustFloat(t, set.Records[1].Values["pm25"]))
}

func TestGroups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "reference", []models.FeatureRecord{record(1)}))
	require.NoError(t, store.Save(ctx, "production", []models.FeatureRecord{record(2)}))

	groups, err := store.Groups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"production", "reference"}, groups)

	all, err := store.Load(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, all.Len())
}

func TestConcurrentAppends(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const writers = 8
	const perWriter = 5

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := store.Save(ctx, "g", []models.FeatureRecord{
					{Values: map[string]interface{}{"writer": fmt.Sprintf("w%d", w), "seq": float64(i)}},
				})
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	set, err := store.Load(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, set.Len())
}

func TestSegmentTimestampsPreserved(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, "g", []models.FeatureRecord{
		{Values: map[string]interface{}{"pm25": 1.0}, CreatedAt: created},
	}))

	set, err := store.Load(ctx, "g")
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	assert.True(t, set.Records[0].CreatedAt.Equal(created))
}

func mustFloat(t *testing.T, raw interface{}) float64 {
	t.Helper()
	switch v := raw.(type) {
	case float64:
		return v
	case interface{ Float64() (float64, error) }:
		f, err := v.Float64()
		require.NoError(t, err)
		return f
	default:
		t.Fatalf("unexpected value type %T", raw)
		return 0
	}
}
