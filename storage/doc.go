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


// Package storage defines persistence for build artifacts.
//
// An artifact bundles every catalog embedding with the serialized HNSW
// graph built over them, described by a manifest. Artifacts are keyed by a
// fingerprint of the catalog content, the embedding model configuration and
// the index parameters, so a mismatch always means "build a new one".
//
// # Constructor Return Type Pattern
//
// Public constructors return interfaces:
//
//	repo, err := badger.NewArtifactRepository(backend)  // returns storage.ArtifactRepository
//
// Internal constructors may return concrete types.
//
// # Serialization
//
// Manifests and build records use the MUS serializers generated into
// core/records_mus.gen.go by cmd/musgen. Embedding chunks use mus-go slice
// serializers directly. The graph is an opaque byte stream produced by the
// index package.
//
// # Thread Safety
//
// Repository implementations must be safe for concurrent use. Callers that
// need at-most-one writer per fingerprint (the cache package) coordinate
// above this layer.
package storage
