// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"

	"github.com/poiesic/catmat/core"
)

// vectorsMUS encodes one chunk of embeddings.
var vectorsMUS = ord.NewSliceSer[[]float32](ord.NewSliceSer[float32](raw.Float32))

// MarshalManifest serializes a Manifest to bytes.
func MarshalManifest(m *core.Manifest) []byte {
	buf := make([]byte, core.ManifestMUS.Size(*m))
	core.ManifestMUS.Marshal(*m, buf)
	return buf
}

// UnmarshalManifest deserializes a Manifest from bytes.
func UnmarshalManifest(data []byte) (*core.Manifest, error) {
	m, n, err := core.ManifestMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest: %w", ErrSerializationFailed, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: manifest: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return &m, nil
}

// MarshalVectors serializes a chunk of embeddings to bytes.
func MarshalVectors(vectors [][]float32) []byte {
	buf := make([]byte, vectorsMUS.Size(vectors))
	vectorsMUS.Marshal(vectors, buf)
	return buf
}

// UnmarshalVectors deserializes a chunk of embeddings from bytes.
func UnmarshalVectors(data []byte) ([][]float32, error) {
	vectors, _, err := vectorsMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: vectors: %w", ErrSerializationFailed, err)
	}
	return vectors, nil
}

// MarshalBuildRecord serializes a BuildRecord to bytes.
func MarshalBuildRecord(record *core.BuildRecord) []byte {
	buf := make([]byte, core.BuildRecordMUS.Size(*record))
	core.BuildRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalBuildRecord deserializes a BuildRecord from bytes.
func UnmarshalBuildRecord(data []byte) (*core.BuildRecord, error) {
	record, _, err := core.BuildRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: build record: %w", ErrSerializationFailed, err)
	}
	return &record, nil
}

// CheckArtifact verifies that an artifact's parts agree with its manifest.
func CheckArtifact(a *core.Artifact) error {
	m := &a.Manifest
	if m.Fingerprint == "" {
		return fmt.Errorf("%w: missing fingerprint", ErrInvalidArtifact)
	}
	if len(m.IDs) != m.Count || len(a.Embeddings) != m.Count {
		return fmt.Errorf("%w: manifest count %d, %d ids, %d embeddings",
			ErrInvalidArtifact, m.Count, len(m.IDs), len(a.Embeddings))
	}
	for i, v := range a.Embeddings {
		if len(v) != m.Dimension {
			return fmt.Errorf("%w: embedding %d has %d dimensions, manifest says %d",
				core.ErrDimensionMismatch, i, len(v), m.Dimension)
		}
	}
	return nil
}
