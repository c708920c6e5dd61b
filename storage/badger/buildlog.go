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


package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/catmat/core"
	"github.com/poiesic/catmat/storage"
)

// BuildLogRepository implements storage.BuildLogRepository for BadgerDB.
type BuildLogRepository struct {
	backend *Backend
}

var _ storage.BuildLogRepository = (*BuildLogRepository)(nil)

// NewBuildLogRepository creates a new BuildLogRepository.
func NewBuildLogRepository(backend *Backend) *BuildLogRepository {
	return &BuildLogRepository{
		backend: backend,
	}
}

// RecordBuild persists record as the latest build.
func (r *BuildLogRepository) RecordBuild(ctx context.Context, record *core.BuildRecord) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if record.BuiltAt.IsZero() {
			record.BuiltAt = time.Now().UTC()
		}
		if err := tx.Set([]byte(lastBuildKey), storage.MarshalBuildRecord(record)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LastBuild retrieves the latest build record.
// Returns nil, nil if none exists.
func (r *BuildLogRepository) LastBuild(ctx context.Context) (*core.BuildRecord, error) {
	var record *core.BuildRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(lastBuildKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			record, unmarshalErr = storage.UnmarshalBuildRecord(val)
			return unmarshalErr
		})
	}, false)

	return record, err
}
