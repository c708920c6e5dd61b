package storage

import (
	"context"

	"github.com/poiesic/catmat/core"
)

// ArtifactRepository persists embedding/index artifacts keyed by fingerprint.
//
// At most two artifacts are retained: the current one and the one it
// replaced. Saving never modifies an existing artifact in place.
type ArtifactRepository interface {
	// SaveArtifact writes a complete artifact and marks it current. The
	// previously current artifact becomes previous; any other artifact is
	// removed. Nothing becomes visible until every part has been written.
	SaveArtifact(ctx context.Context, artifact *core.Artifact) error

	// LoadArtifact reads a complete artifact.
	// Returns ErrNotFound if no artifact exists for the fingerprint.
	LoadArtifact(ctx context.Context, fp core.Fingerprint) (*core.Artifact, error)

	// LoadManifest reads only the manifest of an artifact.
	// Returns ErrNotFound if no artifact exists for the fingerprint.
	LoadManifest(ctx context.Context, fp core.Fingerprint) (*core.Manifest, error)

	// Pointers returns the current and previous fingerprints. Either may be
	// empty.
	Pointers(ctx context.Context) (current, previous core.Fingerprint, err error)

	// Fingerprints lists every fingerprint with data on disk, including
	// incomplete writes.
	Fingerprints(ctx context.Context) ([]core.Fingerprint, error)

	// DeleteArtifact removes all data stored under a fingerprint and clears
	// any pointer referencing it.
	DeleteArtifact(ctx context.Context, fp core.Fingerprint) error

	// Close releases repository resources. The backend stays open.
	Close() error
}

// BuildLogRepository records statistics about artifact builds.
type BuildLogRepository interface {
	// RecordBuild stores record as the most recent build.
	RecordBuild(ctx context.Context, record *core.BuildRecord) error

	// LastBuild returns the most recent build record.
	// Returns nil, nil if no build has been recorded.
	LastBuild(ctx context.Context) (*core.BuildRecord, error)
}
