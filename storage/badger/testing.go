package badger

import "github.com/poiesic/catmat/storage"

// NewMemoryRepositories creates in-memory artifact and build-log repositories
// for testing. Caller must close the backend when done.
func NewMemoryRepositories() (storage.ArtifactRepository, storage.BuildLogRepository, *Backend, error) {
	backend, err := NewMemoryBackend()
	if err != nil {
		return nil, nil, nil, err
	}

	artifacts, err := NewArtifactRepository(backend)
	if err != nil {
		backend.Close()
		return nil, nil, nil, err
	}

	return artifacts, NewBuildLogRepository(backend), backend, nil
}
