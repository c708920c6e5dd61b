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


// Package cache provides the fingerprint-keyed artifact cache.
//
// GetOrBuild returns the embeddings and HNSW graph for a fingerprint,
// loading a persisted artifact when one matches exactly and otherwise
// running the supplied builder and persisting its output. Builds are
// single-flight per fingerprint: concurrent callers that miss on the same
// fingerprint wait for one build instead of starting their own.
//
// The most recently served artifact is also kept in memory, so repeated
// lookups within one process do not touch the database.
package cache
