package registry

import (
	"context"
	"time"

	"github.com/predictops/mlcp/pkg/models"
)

// EventType identifies a registry event.
type EventType string

const (
	EventRegistered   EventType = "registered"
	EventTransitioned EventType = "transitioned"
	EventTagged       EventType = "tagged"
)

// Event is one append-only registry change. Versions are never physically
// deleted, so replaying the event sequence reconstructs the full catalog
// including archived versions.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	ModelName     string `json:"model_name"`
	VersionNumber int    `json:"version"`

	// Registered carries the full immutable version record.
	Registered *models.ModelVersion `json:"registered,omitempty"`

	// Stage transition fields.
	FromStage models.Stage `json:"from_stage,omitempty"`
	ToStage   models.Stage `json:"to_stage,omitempty"`

	// Tag update fields.
	TagKey   string `json:"tag_key,omitempty"`
	TagValue string `json:"tag_value,omitempty"`
}

// Store persists registry events. Append must be durable before returning;
// events handed to one Append call must land together so a demote-then-
// promote pair survives as a unit.
type Store interface {
	Append(ctx context.Context, events ...Event) error
	Replay(ctx context.Context) ([]Event, error)
	Close() error
}
