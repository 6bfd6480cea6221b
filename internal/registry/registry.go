package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/predictops/mlcp/internal/observability"
	"github.com/predictops/mlcp/pkg/errors"
	"github.com/predictops/mlcp/pkg/models"
)

// Registry is a versioned catalog of trained model artifacts with lifecycle
// stages. Versions are created by LogModel, mutated only through Promote and
// SetTag, and never removed; archiving preserves the audit history.
//
// Each registry instance is independent and explicitly constructed, so tests
// and multi-tenant processes can hold several side by side.
type Registry struct {
	store  Store
	logger *logrus.Logger

	mu     sync.RWMutex
	byName map[string][]*models.ModelVersion

	lockMu     sync.Mutex
	modelLocks map[string]*sync.Mutex
}

// New creates a registry backed by store. A nil store keeps the catalog
// purely in memory. An existing event log is replayed before the registry
// accepts calls.
func New(ctx context.Context, store Store, logger *logrus.Logger) (*Registry, error) {
	if logger == nil {
		logger = logrus.New()
	}

	r := &Registry{
		store:      store,
		logger:     logger,
		byName:     make(map[string][]*models.ModelVersion),
		modelLocks: make(map[string]*sync.Mutex),
	}

	if store != nil {
		events, err := store.Replay(ctx)
		if err != nil {
			return nil, err
		}
		for _, event := range events {
			if err := r.apply(event); err != nil {
				return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageReadFailed,
					fmt.Sprintf("corrupt registry event for %s v%d", event.ModelName, event.VersionNumber))
			}
		}
		r.logger.WithField("events", len(events)).Info("Registry replayed from store")
	}

	return r, nil
}

// LogModel creates a new version at stage None with the next version number
// for modelName, starting at 1. The artifact reference is owned by the
// registry from this point on. Existing versions are never overwritten.
func (r *Registry) LogModel(ctx context.Context, artifact models.ArtifactRef, modelName string,
	metrics map[string]float64, params map[string]models.ParamValue, tags map[string]string) (*models.ModelVersion, error) {

	if modelName == "" {
		return nil, errors.NewInvalidArgumentError("model name is required")
	}

	lock := r.modelLock(modelName)
	lock.Lock()
	defer lock.Unlock()

	version := &models.ModelVersion{
		ModelName: modelName,
		Version:   r.maxVersion(modelName) + 1,
		RunID:     uuid.NewString(),
		Artifact:  artifact,
		Metrics:   copyMetrics(metrics),
		Params:    copyParams(params),
		Tags:      copyTags(tags),
		Stage:     models.StageNone,
		CreatedAt: time.Now().UTC(),
	}

	event := Event{
		Type:          EventRegistered,
		Timestamp:     version.CreatedAt,
		ModelName:     modelName,
		VersionNumber: version.Version,
		Registered:    version.Clone(),
	}
	if err := r.persist(ctx, event); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.byName[modelName] = append(r.byName[modelName], version)
	r.mu.Unlock()

	observability.ModelsRegistered.Inc()
	r.logger.WithFields(logrus.Fields{
		"model_name": modelName,
		"version":    version.Version,
		"run_id":     version.RunID,
	}).Info("Model version registered")

	return version.Clone(), nil
}

// LoadModel retrieves a version by number or by current stage. Exactly one
// of version (>0) or stage may be given. A stage lookup returns the unique
// holder of that stage; a miss is surfaced, never substituted.
func (r *Registry) LoadModel(ctx context.Context, modelName string, version int, stage models.Stage) (*models.ModelVersion, error) {
	byVersion := version > 0
	byStage := stage != ""
	if byVersion == byStage {
		return nil, errors.NewInvalidArgumentError("exactly one of version or stage must be given")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.byName[modelName]
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("model %q is not registered", modelName))
	}

	if byVersion {
		for _, mv := range versions {
			if mv.Version == version {
				return mv.Clone(), nil
			}
		}
		return nil, errors.NewNotFoundError(fmt.Sprintf("model %q has no version %d", modelName, version))
	}

	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Stage == stage {
			return versions[i].Clone(), nil
		}
	}
	return nil, errors.NewNotFoundError(fmt.Sprintf("model %q has no version in stage %s", modelName, stage))
}

// Promote moves a version along the lifecycle graph. Promoting to Production
// first demotes the current Production holder (if any) to Archived; the pair
// is applied atomically, so no reader observes two Production versions.
func (r *Registry) Promote(ctx context.Context, modelName string, version int, target models.Stage) error {
	if _, err := models.ParseStage(string(target)); err != nil {
		return errors.NewInvalidArgumentError(err.Error())
	}

	lock := r.modelLock(modelName)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	subject := r.findLocked(modelName, version)
	var incumbent *models.ModelVersion
	if target == models.StageProduction {
		incumbent = r.stageHolderLocked(modelName, models.StageProduction)
	}
	r.mu.RUnlock()

	if subject == nil {
		return errors.NewNotFoundError(fmt.Sprintf("model %q has no version %d", modelName, version))
	}
	if !subject.Stage.CanTransition(target) {
		return errors.NewIllegalTransitionError(
			fmt.Sprintf("model %q v%d: %s -> %s is not a legal transition", modelName, version, subject.Stage, target))
	}

	now := time.Now().UTC()
	var events []Event
	if incumbent != nil && incumbent.Version != version {
		events = append(events, Event{
			Type:          EventTransitioned,
			Timestamp:     now,
			ModelName:     modelName,
			VersionNumber: incumbent.Version,
			FromStage:     models.StageProduction,
			ToStage:       models.StageArchived,
		})
	}
	events = append(events, Event{
		Type:          EventTransitioned,
		Timestamp:     now,
		ModelName:     modelName,
		VersionNumber: version,
		FromStage:     subject.Stage,
		ToStage:       target,
	})

	// Persist first: a failed write leaves the registry state unchanged.
	if err := r.persist(ctx, events...); err != nil {
		return err
	}

	r.mu.Lock()
	if incumbent != nil && incumbent.Version != version {
		incumbent.Stage = models.StageArchived
	}
	subject.Stage = target
	r.mu.Unlock()

	for _, event := range events {
		observability.StageTransitions.WithLabelValues(string(event.ToStage)).Inc()
	}
	r.logger.WithFields(logrus.Fields{
		"model_name": modelName,
		"version":    version,
		"stage":      target,
	}).Info("Model version promoted")

	return nil
}

// SetTag sets or replaces one tag on a version.
func (r *Registry) SetTag(ctx context.Context, modelName string, version int, key, value string) error {
	if key == "" {
		return errors.NewInvalidArgumentError("tag key is required")
	}

	lock := r.modelLock(modelName)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	subject := r.findLocked(modelName, version)
	r.mu.RUnlock()
	if subject == nil {
		return errors.NewNotFoundError(fmt.Sprintf("model %q has no version %d", modelName, version))
	}

	event := Event{
		Type:          EventTagged,
		Timestamp:     time.Now().UTC(),
		ModelName:     modelName,
		VersionNumber: version,
		TagKey:        key,
		TagValue:      value,
	}
	if err := r.persist(ctx, event); err != nil {
		return err
	}

	r.mu.Lock()
	if subject.Tags == nil {
		subject.Tags = make(map[string]string)
	}
	subject.Tags[key] = value
	r.mu.Unlock()

	return nil
}

// Compare returns the most recent limit versions with metrics and params for
// side-by-side inspection, newest version first.
func (r *Registry) Compare(ctx context.Context, modelName string, limit int) ([]models.VersionComparison, error) {
	if limit <= 0 {
		return nil, errors.NewInvalidArgumentError("limit must be positive")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.byName[modelName]
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("model %q is not registered", modelName))
	}

	sorted := make([]*models.ModelVersion, len(versions))
	copy(sorted, versions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version > sorted[j].Version })

	if limit > len(sorted) {
		limit = len(sorted)
	}
	out := make([]models.VersionComparison, 0, limit)
	for _, mv := range sorted[:limit] {
		clone := mv.Clone()
		out = append(out, models.VersionComparison{
			Version:   clone.Version,
			RunID:     clone.RunID,
			Stage:     clone.Stage,
			Metrics:   clone.Metrics,
			Params:    clone.Params,
			CreatedAt: clone.CreatedAt,
		})
	}
	return out, nil
}

// ListModels returns the registered model names, sorted.
func (r *Registry) ListModels(ctx context.Context) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LatestVersions returns, for each requested stage, the newest version of
// modelName currently holding it. Stages with no holder are omitted. An
// empty stages slice defaults to Production and Staging.
func (r *Registry) LatestVersions(ctx context.Context, modelName string, stages []models.Stage) ([]*models.ModelVersion, error) {
	if len(stages) == 0 {
		stages = []models.Stage{models.StageProduction, models.StageStaging}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.byName[modelName]; !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("model %q is not registered", modelName))
	}

	var out []*models.ModelVersion
	for _, stage := range stages {
		if holder := r.stageHolderLocked(modelName, stage); holder != nil {
			out = append(out, holder.Clone())
		}
	}
	return out, nil
}

// Close closes the backing store, if any.
func (r *Registry) Close() error {
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

// apply replays one event into the in-memory catalog.
func (r *Registry) apply(event Event) error {
	switch event.Type {
	case EventRegistered:
		if event.Registered == nil {
			return fmt.Errorf("registered event without version payload")
		}
		r.byName[event.ModelName] = append(r.byName[event.ModelName], event.Registered.Clone())
	case EventTransitioned:
		mv := r.findLocked(event.ModelName, event.VersionNumber)
		if mv == nil {
			return fmt.Errorf("transition for unknown version")
		}
		mv.Stage = event.ToStage
	case EventTagged:
		mv := r.findLocked(event.ModelName, event.VersionNumber)
		if mv == nil {
			return fmt.Errorf("tag for unknown version")
		}
		if mv.Tags == nil {
			mv.Tags = make(map[string]string)
		}
		mv.Tags[event.TagKey] = event.TagValue
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}
	return nil
}

func (r *Registry) persist(ctx context.Context, events ...Event) error {
	if r.store == nil {
		return nil
	}
	return r.store.Append(ctx, events...)
}

// findLocked requires r.mu held (read or write) during concurrent use.
func (r *Registry) findLocked(modelName string, version int) *models.ModelVersion {
	for _, mv := range r.byName[modelName] {
		if mv.Version == version {
			return mv
		}
	}
	return nil
}

func (r *Registry) stageHolderLocked(modelName string, stage models.Stage) *models.ModelVersion {
	versions := r.byName[modelName]
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Stage == stage {
			return versions[i]
		}
	}
	return nil
}

func (r *Registry) maxVersion(modelName string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	max := 0
	for _, mv := range r.byName[modelName] {
		if mv.Version > max {
			max = mv.Version
		}
	}
	return max
}

func (r *Registry) modelLock(modelName string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	lock, ok := r.modelLocks[modelName]
	if !ok {
		lock = &sync.Mutex{}
		r.modelLocks[modelName] = lock
	}
	return lock
}

func copyMetrics(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyParams(in map[string]models.ParamValue) map[string]models.ParamValue {
	out := make(map[string]models.ParamValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyTags(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
