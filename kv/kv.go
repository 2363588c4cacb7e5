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

// Package kv implements a flat JSON-valued key-value map alongside the
// inode filesystem in the same store. There is little design here beyond
// the SQL itself; the package exists to give that small surface a Go
// home of its own.
package kv

import (
	"context"
	"database/sql"

	"agentfs/store"
)

type Store struct {
	store *store.Store
}

func New(s *store.Store) *Store {
	return &Store{store: s}
}

// Set upserts key with value, an opaque JSON-encoded string, stamping
// updated_at with the current time (and created_at, on first insert).
func (s *Store) Set(ctx context.Context, key, jsonValue string) error {
	now := s.store.Clock.Now().Unix()
	return s.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, jsonValue, now, now)
		return err
	})
}

// Get returns the value stored under key, and false if no such key
// exists.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.store.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.store.DB.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Keys returns every key currently stored, in lexicographic order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.store.DB.QueryContext(ctx, `SELECT key FROM kv ORDER BY key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
