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


// Package batch runs many semantic queries concurrently.
//
// A Processor validates every job up front, embeds the valid queries in
// sub-batches (query embedding is the per-item bottleneck), then fans each
// job's index lookup and optional recommendation out to a bounded ants
// worker pool. Results come back in input order regardless of completion
// order.
//
// Failures are data: a bad query, a failed embedding sub-batch or a
// degraded recommendation is recorded in that job's BatchResult.Err as a
// *core.BatchItemError and never affects sibling jobs. Process itself only
// fails when jobs cannot be dispatched at all.
package batch
