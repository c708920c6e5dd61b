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


package core

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds shared across packages. Typed errors below match these via
// errors.Is.
var (
	// ErrValidation indicates bad caller input such as an empty query.
	ErrValidation = errors.New("validation error")

	// ErrModelLoad indicates the embedding model could not be obtained.
	ErrModelLoad = errors.New("embedding model unavailable")

	// ErrIndexBuild indicates an artifact build failed.
	ErrIndexBuild = errors.New("index build failed")

	// ErrRecommenderTimeout indicates the recommender exceeded its deadline.
	ErrRecommenderTimeout = errors.New("recommender timed out")

	// ErrRecommenderUnavailable indicates no recommender is configured or it refused the call.
	ErrRecommenderUnavailable = errors.New("recommender unavailable")

	// ErrBatchItem marks an error isolated to a single batch job.
	ErrBatchItem = errors.New("batch item failed")

	// ErrDimensionMismatch indicates vectors from different model configurations were mixed.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// ValidationError reports user-correctable input problems.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ModelLoadError is fatal: the embedding model could not be loaded.
type ModelLoadError struct {
	Model string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load embedding model %q: %v", e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() []error { return []error{ErrModelLoad, e.Err} }

// IndexBuildError reports a failed build for one fingerprint. Previously
// persisted artifacts are left untouched.
type IndexBuildError struct {
	Fingerprint Fingerprint
	Err         error
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("build artifact %s: %v", e.Fingerprint.Short(), e.Err)
}

func (e *IndexBuildError) Unwrap() []error { return []error{ErrIndexBuild, e.Err} }

// RecommenderTimeoutError is recorded when a recommendation call exceeds its
// deadline. It never fails a search.
type RecommenderTimeoutError struct {
	Timeout time.Duration
}

func (e *RecommenderTimeoutError) Error() string {
	return fmt.Sprintf("recommender did not answer within %s", e.Timeout)
}

func (e *RecommenderTimeoutError) Unwrap() error { return ErrRecommenderTimeout }

// BatchItemError wraps the failure of one job inside a batch.
type BatchItemError struct {
	Index int
	Query string
	Err   error
}

func (e *BatchItemError) Error() string {
	return fmt.Sprintf("batch item %d (%q): %v", e.Index, e.Query, e.Err)
}

func (e *BatchItemError) Unwrap() []error { return []error{ErrBatchItem, e.Err} }
