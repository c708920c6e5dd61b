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


// Package mock provides test doubles for the ai package interfaces.
//
// # Usage
//
//	provider := mock.NewMockProvider()
//	embedder := provider.(*mock.MockProvider).GetMockEmbedder()
//
//	// Inject failures
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("boom")
//	}
//
//	// Simulate a slow recommender
//	rec := mock.NewMockRecommender()
//	rec.Delay = 2 * time.Second
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash,
//     or concept-axis vectors when built with NewLexiconEmbedder
//   - MockRecommender: Picks the first candidate and offers the next two
//     as alternatives
//   - MockProvider: Aggregates mock embedder and recommender
//
// All mocks are safe for concurrent use as long as the injected function
// fields are set before use.
package mock
