package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/catmat/core"
	"github.com/poiesic/catmat/storage"
)

const (
	defaultVectorsPerChunk = 1024
	defaultGraphChunkSize  = 1 << 20
)

// ArtifactRepository implements storage.ArtifactRepository for BadgerDB.
type ArtifactRepository struct {
	backend         *Backend
	logger          *slog.Logger
	vectorsPerChunk int
	graphChunkSize  int
}

var _ storage.ArtifactRepository = (*ArtifactRepository)(nil)

// NewArtifactRepository creates an artifact repository over backend.
func NewArtifactRepository(backend *Backend) (storage.ArtifactRepository, error) {
	return newArtifactRepository(backend)
}

func newArtifactRepository(backend *Backend) (*ArtifactRepository, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	return &ArtifactRepository{
		backend:         backend,
		logger:          slog.Default().With("component", "artifact-repository"),
		vectorsPerChunk: defaultVectorsPerChunk,
		graphChunkSize:  defaultGraphChunkSize,
	}, nil
}

// Close is a no-op; the backend is owned by the caller.
func (r *ArtifactRepository) Close() error {
	return nil
}

// SaveArtifact writes chunks under a fresh generation, then commits the
// manifest, the generation and the pointer update in one transaction. The
// chunks of the replaced generation are removed only after that commit, so a
// failed write leaves any earlier artifact for the fingerprint loadable.
func (r *ArtifactRepository) SaveArtifact(ctx context.Context, artifact *core.Artifact) error {
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if err := storage.CheckArtifact(artifact); err != nil {
		return err
	}
	fp := artifact.Manifest.Fingerprint

	var (
		oldGen uint32
		hadGen bool
	)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		oldGen, hadGen, err = readGeneration(tx, fp)
		return err
	}, false)
	if err != nil {
		return fmt.Errorf("read generation %s: %w", fp.Short(), err)
	}
	gen := uint32(0)
	if hadGen {
		gen = oldGen + 1
	}

	// Leftovers of an earlier failed attempt at this generation.
	r.discardGeneration(fp, gen)
	if err := r.writeChunks(ctx, artifact, gen); err != nil {
		r.discardGeneration(fp, gen)
		return fmt.Errorf("write artifact %s: %w", fp.Short(), err)
	}

	manifest := storage.MarshalManifest(&artifact.Manifest)
	var current, previous core.Fingerprint
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeManifestKey(fp), manifest); err != nil {
			return err
		}
		if err := tx.Set(makeGenerationKey(fp), binary.BigEndian.AppendUint32(nil, gen)); err != nil {
			return err
		}
		cur, err := readPointer(tx, currentKey)
		if err != nil {
			return err
		}
		prev, err := readPointer(tx, previousKey)
		if err != nil {
			return err
		}
		if cur != fp {
			prev, cur = cur, fp
		}
		if err := tx.Set([]byte(currentKey), []byte(cur)); err != nil {
			return err
		}
		if prev != "" {
			if err := tx.Set([]byte(previousKey), []byte(prev)); err != nil {
				return err
			}
		}
		current, previous = cur, prev
		return tx.Commit()
	}, true)
	if err != nil {
		r.discardGeneration(fp, gen)
		return fmt.Errorf("commit artifact %s: %w", fp.Short(), err)
	}

	r.logger.Info("artifact saved", "fingerprint", fp.Short(), "count", artifact.Manifest.Count,
		"generation", gen, "graph_bytes", len(artifact.Graph))
	if hadGen {
		r.discardGeneration(fp, oldGen)
	}
	return r.prune(ctx, current, previous)
}

func (r *ArtifactRepository) writeChunks(ctx context.Context, artifact *core.Artifact, gen uint32) error {
	fp := artifact.Manifest.Fingerprint
	return r.backend.WithBatch(func(wb *badger.WriteBatch) error {
		embPrefix := makeEmbeddingPrefix(fp, gen)
		for chunk, start := uint32(0), 0; start < len(artifact.Embeddings); chunk, start = chunk+1, start+r.vectorsPerChunk {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+r.vectorsPerChunk, len(artifact.Embeddings))
			data := storage.MarshalVectors(artifact.Embeddings[start:end])
			if err := wb.Set(makeChunkKey(embPrefix, chunk), data); err != nil {
				return err
			}
		}

		graphPrefix := makeGraphPrefix(fp, gen)
		for chunk, start := uint32(0), 0; start < len(artifact.Graph); chunk, start = chunk+1, start+r.graphChunkSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+r.graphChunkSize, len(artifact.Graph))
			if err := wb.Set(makeChunkKey(graphPrefix, chunk), bytes.Clone(artifact.Graph[start:end])); err != nil {
				return err
			}
		}
		return nil
	})
}

// discardGeneration removes the chunks of one generation. Failures only
// leave unreferenced keys behind, so they are logged and not returned.
func (r *ArtifactRepository) discardGeneration(fp core.Fingerprint, gen uint32) {
	for _, prefix := range [][]byte{makeEmbeddingPrefix(fp, gen), makeGraphPrefix(fp, gen)} {
		if err := r.backend.DeletePrefix(prefix); err != nil {
			r.logger.Warn("failed to remove artifact chunks", "fingerprint", fp.Short(),
				"generation", gen, "err", err)
		}
	}
}

// prune removes every artifact other than current and previous.
func (r *ArtifactRepository) prune(ctx context.Context, keep ...core.Fingerprint) error {
	fps, err := r.Fingerprints(ctx)
	if err != nil {
		return err
	}
	for _, fp := range fps {
		retained := false
		for _, k := range keep {
			if fp == k {
				retained = true
				break
			}
		}
		if retained {
			continue
		}
		if err := r.backend.DeletePrefix(makeArtifactPrefix(fp)); err != nil {
			return fmt.Errorf("prune artifact %s: %w", fp.Short(), err)
		}
		r.logger.Info("pruned stale artifact", "fingerprint", fp.Short())
	}
	return nil
}

// LoadArtifact reads the manifest and every chunk in one read transaction.
func (r *ArtifactRepository) LoadArtifact(ctx context.Context, fp core.Fingerprint) (*core.Artifact, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var artifact *core.Artifact
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		manifest, err := readManifest(tx, fp)
		if err != nil {
			return err
		}
		gen, _, err := readGeneration(tx, fp)
		if err != nil {
			return err
		}
		a := &core.Artifact{
			Manifest:   *manifest,
			Embeddings: make([][]float32, 0, manifest.Count),
		}

		err = iteratePrefix(tx, makeEmbeddingPrefix(fp, gen), func(val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			vectors, err := storage.UnmarshalVectors(val)
			if err != nil {
				return err
			}
			a.Embeddings = append(a.Embeddings, vectors...)
			return nil
		})
		if err != nil {
			return err
		}

		var graph bytes.Buffer
		err = iteratePrefix(tx, makeGraphPrefix(fp, gen), func(val []byte) error {
			graph.Write(val)
			return nil
		})
		if err != nil {
			return err
		}
		a.Graph = graph.Bytes()
		artifact = a
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	if len(artifact.Embeddings) != artifact.Manifest.Count {
		return nil, fmt.Errorf("%w: artifact %s has %d of %d embeddings",
			storage.ErrTruncatedData, fp.Short(), len(artifact.Embeddings), artifact.Manifest.Count)
	}
	if err := storage.CheckArtifact(artifact); err != nil {
		return nil, err
	}
	return artifact, nil
}

// LoadManifest reads just the manifest for fp.
func (r *ArtifactRepository) LoadManifest(ctx context.Context, fp core.Fingerprint) (*core.Manifest, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var manifest *core.Manifest
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		manifest, err = readManifest(tx, fp)
		return err
	}, false)
	return manifest, err
}

// Pointers returns the current and previous fingerprints.
func (r *ArtifactRepository) Pointers(ctx context.Context) (current, previous core.Fingerprint, err error) {
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		if current, err = readPointer(tx, currentKey); err != nil {
			return err
		}
		previous, err = readPointer(tx, previousKey)
		return err
	}, false)
	return current, previous, err
}

// Fingerprints lists every fingerprint that has keys on disk.
func (r *ArtifactRepository) Fingerprints(ctx context.Context) ([]core.Fingerprint, error) {
	keys, err := r.backend.KeysWithPrefix([]byte(artifactPrefix))
	if err != nil {
		return nil, err
	}
	var fps []core.Fingerprint
	for _, k := range keys {
		fp, ok := fingerprintFromKey(k)
		if !ok {
			continue
		}
		if n := len(fps); n == 0 || fps[n-1] != fp {
			fps = append(fps, fp)
		}
	}
	return fps, nil
}

// DeleteArtifact removes fp and clears any pointer to it.
func (r *ArtifactRepository) DeleteArtifact(ctx context.Context, fp core.Fingerprint) error {
	if err := r.backend.DeletePrefix(makeArtifactPrefix(fp)); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range []string{currentKey, previousKey} {
			ptr, err := readPointer(tx, key)
			if err != nil {
				return err
			}
			if ptr == fp {
				if err := tx.Delete([]byte(key)); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	}, true)
}

func readManifest(tx *badger.Txn, fp core.Fingerprint) (*core.Manifest, error) {
	item, err := tx.Get(makeManifestKey(fp))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var manifest *core.Manifest
	err = item.Value(func(val []byte) error {
		var err error
		manifest, err = storage.UnmarshalManifest(val)
		return err
	})
	return manifest, err
}

func readGeneration(tx *badger.Txn, fp core.Fingerprint) (uint32, bool, error) {
	item, err := tx.Get(makeGenerationKey(fp))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	var gen uint32
	err = item.Value(func(val []byte) error {
		if len(val) != 4 {
			return fmt.Errorf("%w: generation of %s is %d bytes", storage.ErrTruncatedData, fp.Short(), len(val))
		}
		gen = binary.BigEndian.Uint32(val)
		return nil
	})
	return gen, err == nil, err
}

func readPointer(tx *badger.Txn, key string) (core.Fingerprint, error) {
	item, err := tx.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", nil
		}
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return core.Fingerprint(val), nil
}

// iteratePrefix calls fn with each value under prefix in key order. The
// value is only valid for the duration of the call.
func iteratePrefix(tx *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()
	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := iter.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
