package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictops/mlcp/pkg/errors"
	"github.com/predictops/mlcp/pkg/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(context.Background(), nil, nil)
	require.NoError(t, err)
	return r
}

func logTestModel(t *testing.T, r *Registry, name string) *models.ModelVersion {
	t.Helper()
	mv, err := r.LogModel(context.Background(), models.ArtifactRef{URI: "file:///tmp/model.bin"}, name,
		map[string]float64{"rmse": 3.2},
		map[string]models.ParamValue{"n_estimators": models.NumberParam(200)},
		map[string]string{"owner": "forecasting"})
	require.NoError(t, err)
	return mv
}

func TestLogModelVersionsAreMonotonic(t *testing.T) {
	r := newTestRegistry(t)

	for i := 1; i <= 5; i++ {
		mv := logTestModel(t, r, "aqi-forecaster")
		assert.Equal(t, i, mv.Version)
		assert.Equal(t, models.StageNone, mv.Stage)
		assert.NotEmpty(t, mv.RunID)
	}

	// Independent model names version independently.
	other := logTestModel(t, r, "pm25-forecaster")
	assert.Equal(t, 1, other.Version)
}

func TestLogModelRequiresName(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.LogModel(context.Background(), models.ArtifactRef{}, "", nil, nil, nil)
	assert.Error(t, err)
}

func TestLoadModelByVersionAndStage(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	logTestModel(t, r, "aqi-forecaster")
	logTestModel(t, r, "aqi-forecaster")
	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 2, models.StageStaging))

	byVersion, err := r.LoadModel(ctx, "aqi-forecaster", 1, "")
	require.NoError(t, err)
	assert.Equal(t, 1, byVersion.Version)

	byStage, err := r.LoadModel(ctx, "aqi-forecaster", 0, models.StageStaging)
	require.NoError(t, err)
	assert.Equal(t, 2, byStage.Version)
}

func TestLoadModelRejectsAmbiguousSelector(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	logTestModel(t, r, "aqi-forecaster")

	_, err := r.LoadModel(ctx, "aqi-forecaster", 1, models.StageStaging)
	assert.Error(t, err)

	_, err = r.LoadModel(ctx, "aqi-forecaster", 0, "")
	assert.Error(t, err)
}

func TestLoadModelMissSurfacesNotFound(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	logTestModel(t, r, "aqi-forecaster")

	_, err := r.LoadModel(ctx, "unknown-model", 1, "")
	assert.True(t, errors.IsNotFound(err))

	_, err = r.LoadModel(ctx, "aqi-forecaster", 99, "")
	assert.True(t, errors.IsNotFound(err))

	_, err = r.LoadModel(ctx, "aqi-forecaster", 0, models.StageProduction)
	assert.True(t, errors.IsNotFound(err))
}

func TestPromoteFollowsLifecycleGraph(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	logTestModel(t, r, "aqi-forecaster")

	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 1, models.StageStaging))
	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 1, models.StageProduction))
	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 1, models.StageArchived))
}

func TestPromoteRejectsIllegalEdges(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	logTestModel(t, r, "aqi-forecaster")

	// None -> Production skips Staging.
	err := r.Promote(ctx, "aqi-forecaster", 1, models.StageProduction)
	assert.True(t, errors.IsIllegalTransition(err))

	// A rejected promotion leaves the version untouched.
	mv, err := r.LoadModel(ctx, "aqi-forecaster", 1, "")
	require.NoError(t, err)
	assert.Equal(t, models.StageNone, mv.Stage)

	// Archived is terminal.
	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 1, models.StageStaging))
	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 1, models.StageArchived))
	err = r.Promote(ctx, "aqi-forecaster", 1, models.StageStaging)
	assert.True(t, errors.IsIllegalTransition(err))

	err = r.Promote(ctx, "aqi-forecaster", 1, models.Stage("Unknown"))
	assert.Error(t, err)
}

func TestPromoteDemotesIncumbentProduction(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	logTestModel(t, r, "aqi-forecaster")
	logTestModel(t, r, "aqi-forecaster")

	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 1, models.StageStaging))
	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 1, models.StageProduction))
	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 2, models.StageStaging))
	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 2, models.StageProduction))

	prod, err := r.LoadModel(ctx, "aqi-forecaster", 0, models.StageProduction)
	require.NoError(t, err)
	assert.Equal(t, 2, prod.Version)

	old, err := r.LoadModel(ctx, "aqi-forecaster", 1, "")
	require.NoError(t, err)
	assert.Equal(t, models.StageArchived, old.Stage)
}

func TestConcurrentPromotionsKeepSingleProduction(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	const versions = 8
	for i := 0; i < versions; i++ {
		logTestModel(t, r, "aqi-forecaster")
		require.NoError(t, r.Promote(ctx, "aqi-forecaster", i+1, models.StageStaging))
	}

	var wg sync.WaitGroup
	for i := 1; i <= versions; i++ {
		wg.Add(1)
		go func(version int) {
			defer wg.Done()
			// Losers of the race may already be archived; only the
			// transition legality matters here.
			_ = r.Promote(ctx, "aqi-forecaster", version, models.StageProduction)
		}(i)
	}
	wg.Wait()

	inProduction := 0
	for i := 1; i <= versions; i++ {
		mv, err := r.LoadModel(ctx, "aqi-forecaster", i, "")
		require.NoError(t, err)
		if mv.Stage == models.StageProduction {
			inProduction++
		}
	}
	assert.Equal(t, 1, inProduction, "exactly one version may hold Production")
}

func TestSetTag(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	logTestModel(t, r, "aqi-forecaster")

	require.NoError(t, r.SetTag(ctx, "aqi-forecaster", 1, "validated_by", "batch-eval"))
	require.NoError(t, r.SetTag(ctx, "aqi-forecaster", 1, "owner", "air-quality"))

	mv, err := r.LoadModel(ctx, "aqi-forecaster", 1, "")
	require.NoError(t, err)
	assert.Equal(t, "batch-eval", mv.Tags["validated_by"])
	assert.Equal(t, "air-quality", mv.Tags["owner"])

	err = r.SetTag(ctx, "aqi-forecaster", 1, "", "x")
	assert.Error(t, err)
	err = r.SetTag(ctx, "aqi-forecaster", 42, "k", "v")
	assert.True(t, errors.IsNotFound(err))
}

func TestCompareReturnsNewestFirst(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := r.LogModel(ctx, models.ArtifactRef{}, "aqi-forecaster",
			map[string]float64{"rmse": float64(10 - i)}, nil, nil)
		require.NoError(t, err)
	}

	out, err := r.Compare(ctx, "aqi-forecaster", 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 5, out[0].Version)
	assert.Equal(t, 4, out[1].Version)
	assert.Equal(t, 3, out[2].Version)
	assert.Equal(t, 6.0, out[0].Metrics["rmse"])

	// Limit larger than the history returns everything.
	all, err := r.Compare(ctx, "aqi-forecaster", 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	_, err = r.Compare(ctx, "aqi-forecaster", 0)
	assert.Error(t, err)
	_, err = r.Compare(ctx, "unknown", 3)
	assert.True(t, errors.IsNotFound(err))
}

func TestListModels(t *testing.T) {
	r := newTestRegistry(t)
	logTestModel(t, r, "pm25-forecaster")
	logTestModel(t, r, "aqi-forecaster")

	assert.Equal(t, []string{"aqi-forecaster", "pm25-forecaster"}, r.ListModels(context.Background()))
}

func TestLatestVersions(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	logTestModel(t, r, "aqi-forecaster")
	logTestModel(t, r, "aqi-forecaster")
	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 1, models.StageStaging))
	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 1, models.StageProduction))
	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 2, models.StageStaging))

	out, err := r.LatestVersions(ctx, "aqi-forecaster", nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, models.StageProduction, out[0].Stage)
	assert.Equal(t, 1, out[0].Version)
	assert.Equal(t, models.StageStaging, out[1].Stage)
	assert.Equal(t, 2, out[1].Version)

	none, err := r.LatestVersions(ctx, "aqi-forecaster", []models.Stage{models.StageArchived})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFileStoreReplayRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.jsonl")

	store, err := NewFileStore(&FileStoreConfig{Path: path, SyncWrites: true}, nil)
	require.NoError(t, err)

	r, err := New(ctx, store, nil)
	require.NoError(t, err)

	logTestModel(t, r, "aqi-forecaster")
	logTestModel(t, r, "aqi-forecaster")
	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 1, models.StageStaging))
	require.NoError(t, r.Promote(ctx, "aqi-forecaster", 1, models.StageProduction))
	require.NoError(t, r.SetTag(ctx, "aqi-forecaster", 2, "candidate", "true"))
	require.NoError(t, r.Close())

	reopened, err := NewFileStore(&FileStoreConfig{Path: path, SyncWrites: true}, nil)
	require.NoError(t, err)
	restored, err := New(ctx, reopened, nil)
	require.NoError(t, err)
	defer restored.Close()

	prod, err := restored.LoadModel(ctx, "aqi-forecaster", 0, models.StageProduction)
	require.NoError(t, err)
	assert.Equal(t, 1, prod.Version)
	assert.Equal(t, 3.2, prod.Metrics["rmse"])
	assert.Equal(t, "200", prod.Params["n_estimators"].String())

	v2, err := restored.LoadModel(ctx, "aqi-forecaster", 2, "")
	require.NoError(t, err)
	assert.Equal(t, "true", v2.Tags["candidate"])

	// New registrations continue the version sequence.
	mv := logTestModel(t, restored, "aqi-forecaster")
	assert.Equal(t, 3, mv.Version)
}

func TestFileStoreAppendIsAtomicPerCall(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.jsonl")

	store, err := NewFileStore(&FileStoreConfig{Path: path}, nil)
	require.NoError(t, err)
	defer store.Close()

	var events []Event
	for i := 0; i < 3; i++ {
		events = append(events, Event{
			Type:          EventTagged,
			ModelName:     "aqi-forecaster",
			VersionNumber: 1,
			TagKey:        fmt.Sprintf("k%d", i),
			TagValue:      "v",
		})
	}
	require.NoError(t, store.Append(ctx, events...))
	require.NoError(t, store.Append(ctx))

	replayed, err := store.Replay(ctx)
	require.NoError(t, err)
	require.Len(t, replayed, 3)
	assert.Equal(t, "k0", replayed[0].TagKey)
	assert.Equal(t, "k2", replayed[2].TagKey)
}
