package models

import "fmt"

// Stage is a model version's position in its deployment lifecycle.
type Stage string

const (
	StageNone       Stage = "None"
	StageStaging    Stage = "Staging"
	StageProduction Stage = "Production"
	StageArchived   Stage = "Archived"
)

// stageTransitions is the lifecycle graph. No edge re-enters None and
// Archived is terminal.
var stageTransitions = map[Stage][]Stage{
	StageNone:       {StageStaging},
	StageStaging:    {StageProduction, StageArchived},
	StageProduction: {StageArchived},
	StageArchived:   {},
}

// ParseStage converts a string into a Stage.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageNone, StageStaging, StageProduction, StageArchived:
		return Stage(s), nil
	default:
		return "", fmt.Errorf("unknown stage: %q", s)
	}
}

// String returns the stage name.
func (s Stage) String() string {
	return string(s)
}

// CanTransition reports whether the lifecycle graph has an edge from s to
// target.
func (s Stage) CanTransition(target Stage) bool {
	for _, next := range stageTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// ValidStages lists all lifecycle stages.
func ValidStages() []Stage {
	return []Stage{StageNone, StageStaging, StageProduction, StageArchived}
}
