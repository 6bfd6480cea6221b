package models

import "time"

// ArtifactRef is a reference to a stored model artifact. Once a version is
// registered the registry owns the reference; callers must not mutate the
// underlying object afterward.
type ArtifactRef struct {
	URI       string `json:"uri"`
	Checksum  string `json:"checksum"`
	SizeBytes int64  `json:"size_bytes"`
}

// ModelVersion is one immutable entry in the model catalog, identified by
// (ModelName, Version). Stage and Tags are the only mutable fields, and only
// through registry operations.
type ModelVersion struct {
	ModelName string                `json:"model_name"`
	Version   int                   `json:"version"`
	RunID     string                `json:"run_id"`
	Artifact  ArtifactRef           `json:"artifact"`
	Metrics   map[string]float64    `json:"metrics"`
	Params    map[string]ParamValue `json:"params"`
	Tags      map[string]string     `json:"tags"`
	Stage     Stage                 `json:"stage"`
	CreatedAt time.Time             `json:"created_at"`
}

// Clone returns a deep copy so registry internals never leak mutable maps.
func (mv *ModelVersion) Clone() *ModelVersion {
	out := *mv
	out.Metrics = make(map[string]float64, len(mv.Metrics))
	for k, v := range mv.Metrics {
		out.Metrics[k] = v
	}
	out.Params = make(map[string]ParamValue, len(mv.Params))
	for k, v := range mv.Params {
		out.Params[k] = v
	}
	out.Tags = make(map[string]string, len(mv.Tags))
	for k, v := range mv.Tags {
		out.Tags[k] = v
	}
	return &out
}

// VersionComparison is a read-only view of one version used for side-by-side
// inspection of recent versions.
type VersionComparison struct {
	Version   int                   `json:"version"`
	RunID     string                `json:"run_id"`
	Stage     Stage                 `json:"stage"`
	Metrics   map[string]float64    `json:"metrics"`
	Params    map[string]ParamValue `json:"params"`
	CreatedAt time.Time             `json:"created_at"`
}
