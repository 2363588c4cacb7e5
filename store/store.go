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

// Package store wraps the single embedded SQLite database that backs the
// inode filesystem, the key-value table, and the tool-call audit log. It
// owns schema creation and the single-transaction discipline that every
// multi-row mutation in the ifs, kv, and audit packages relies on.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"agentfs/clock"
	"agentfs/internal/logger"

	_ "modernc.org/sqlite"
)

// Store is a thin handle on a *sql.DB plus the clock used to stamp inode
// and kv rows.
type Store struct {
	DB    *sql.DB
	Clock clock.Clock
}

// Open creates (if absent) and opens the database file at path, applying
// the schema idempotently and seeding the root inode. Multiple Store
// values may wrap the same underlying file; database/sql's own connection
// pool serializes writers the way a single-writer embedded store expects.
func Open(ctx context.Context, path string, c clock.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite only supports one writer at a time; a single shared connection
	// avoids SQLITE_BUSY from the driver's own pool fighting itself.
	db.SetMaxOpenConns(1)
	// foreign_keys is a per-connection setting that SQLite ignores inside a
	// transaction, so it is enabled here, before init opens one.
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}

	s := &Store{DB: db, Clock: c}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("store: schema: %w", err)
			}
		}

		var n int
		if err := tx.QueryRowContext(ctx, rootSeedQuery, RootIno).Scan(&n); err != nil {
			return fmt.Errorf("store: seed root: %w", err)
		}
		if n == 0 {
			now := s.Clock.Now().Unix()
			if _, err := tx.ExecContext(ctx, rootSeedInsert, RootIno, DefaultDirMode, now, now, now); err != nil {
				return fmt.Errorf("store: seed root: %w", err)
			}
		}
		return nil
	})
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.DB.Close()
}

// WithTx runs fn inside a single transaction. On any error returned by
// fn, or a panic, the transaction is rolled back and the panic
// re-raised; on success it is committed. This is the primitive every
// multi-row mutation in ifs/kv/audit builds on so that a failure midway
// leaves the filesystem in its pre-operation state.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	log := logger.For("store")

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		log.ErrorContext(ctx, "begin transaction failed", "err", err)
		return fmt.Errorf("store: begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.ErrorContext(ctx, "rollback failed after transaction error", "err", err, "rollback_err", rbErr)
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		log.ErrorContext(ctx, "commit failed", "err", err)
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
