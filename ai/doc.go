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


// Package ai provides abstractions for the AI services used by catmat.
//
// Two services are involved: an Embedder, which turns catalog descriptions
// and queries into dense vectors, and a Recommender, which reviews the top
// search results for a query and picks the single best item. Both are
// reached through an AIProvider so they share configuration and lifecycle.
//
// # Design Principles
//
//   - Embedder: Generates vector embeddings from text
//   - Recommender: Chooses one candidate and explains why
//   - AIProvider: Aggregates AI services for convenient initialization
//
// Concrete implementations live in subpackages: openai talks to any
// OpenAI-compatible endpoint, and mock provides deterministic fakes for tests.
//
// # Recommender availability
//
// The recommender is optional. Without an API key, providers hand out a
// DisabledRecommender whose calls fail with core.ErrRecommenderUnavailable;
// the search package turns that into a fallback recommendation.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package ai
