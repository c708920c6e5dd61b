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


// Package search answers single semantic queries over the catalog.
//
// An Engine embeds the query text (flagged as a query, not a passage),
// looks up approximate neighbors in the HNSW index, maps them back to
// catalog items and ranks them by descending score with ties broken by
// ascending item id. Invalid input is rejected before any model call.
//
// SearchWithAI additionally asks the recommender to pick among the top
// results. The recommender runs under its own timeout and never fails the
// search: when it is slow, unavailable or answers nonsense, the returned
// Recommendation is marked as a fallback whose pick is the top ANN hit.
package search
