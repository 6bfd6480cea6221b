package artifacts

import (
	"context"
	"io"

	"github.com/predictops/mlcp/pkg/models"
)

// Store persists model artifact blobs and hands back references the registry
// can record. Artifacts are content-addressed by SHA-256 so a reference also
// carries an integrity proof.
type Store interface {
	// Put stores the artifact bytes for (modelName, version) and returns a
	// reference with URI, checksum and size.
	Put(ctx context.Context, modelName string, version int, r io.Reader) (models.ArtifactRef, error)

	// Get opens the artifact named by ref. The caller closes the reader.
	Get(ctx context.Context, ref models.ArtifactRef) (io.ReadCloser, error)

	Close() error
}
