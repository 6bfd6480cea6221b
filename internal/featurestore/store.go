package featurestore

import (
	"context"

	"github.com/predictops/mlcp/pkg/models"
)

// FeatureStore is append-only versioned storage of feature records, grouped
// by logical feature-set name. There is no update or delete: correcting bad
// data means writing a new corrective batch.
type FeatureStore interface {
	// Save appends a batch of records under group. The batch is durable
	// before Save returns; subsequent Latest/Load calls observe it.
	Save(ctx context.Context, group string, records []models.FeatureRecord) error

	// Latest returns the most recent n records for group in
	// reverse-chronological write order, or fewer if the group has fewer
	// rows. A never-written group yields an empty set, not an error.
	Latest(ctx context.Context, group string, n int) (*models.FeatureSet, error)

	// Load returns all records in original write order, filtered to one
	// group when group is non-empty.
	Load(ctx context.Context, group string) (*models.FeatureSet, error)

	// Groups lists the feature groups that have been written.
	Groups(ctx context.Context) ([]string, error)

	Close() error
}
