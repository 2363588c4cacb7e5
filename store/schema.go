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

package store

// ModeRegular, ModeDirectory and ModeSymlink are the POSIX type bits
// stored in inode.mode.
const (
	ModeRegular   = 0o100000
	ModeDirectory = 0o040000
	ModeSymlink   = 0o120000

	ModeTypeMask = 0o170000
	ModePermMask = 0o000777

	DefaultFileMode = ModeRegular | 0o644
	DefaultDirMode  = ModeDirectory | 0o755

	// RootIno is the inode number of the filesystem root. It has no
	// dentry pointing at it; path resolution starts here directly.
	RootIno = 1
)

// schemaStatements creates the schema's six relations idempotently.
// Foreign keys cascade so that deleting an inode also deletes its data
// and symlink rows.
var schemaStatements = []string{
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS inode (
		ino    INTEGER PRIMARY KEY AUTOINCREMENT,
		mode   INTEGER NOT NULL,
		uid    INTEGER NOT NULL DEFAULT 0,
		gid    INTEGER NOT NULL DEFAULT 0,
		size   INTEGER NOT NULL DEFAULT 0,
		atime  INTEGER NOT NULL,
		mtime  INTEGER NOT NULL,
		ctime  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dentry (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_ino INTEGER NOT NULL,
		name       TEXT NOT NULL,
		ino        INTEGER NOT NULL REFERENCES inode(ino) ON DELETE CASCADE,
		UNIQUE(parent_ino, name)
	)`,
	`CREATE INDEX IF NOT EXISTS dentry_ino_idx ON dentry(ino)`,
	`CREATE TABLE IF NOT EXISTS data (
		id     INTEGER PRIMARY KEY AUTOINCREMENT,
		ino    INTEGER NOT NULL REFERENCES inode(ino) ON DELETE CASCADE,
		offset INTEGER NOT NULL,
		size   INTEGER NOT NULL,
		data   BLOB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS data_ino_offset_idx ON data(ino, offset)`,
	`CREATE TABLE IF NOT EXISTS symlink (
		ino    INTEGER PRIMARY KEY REFERENCES inode(ino) ON DELETE CASCADE,
		target TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tool_calls (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		name         TEXT NOT NULL,
		parameters   TEXT,
		result       TEXT,
		error        TEXT,
		started_at   INTEGER NOT NULL,
		completed_at INTEGER NOT NULL,
		duration_ms  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tool_calls_name_idx ON tool_calls(name)`,
	`CREATE INDEX IF NOT EXISTS tool_calls_started_at_idx ON tool_calls(started_at)`,
}

// rootSeedQuery checks whether the root inode exists; rootSeedInsert
// creates it when it doesn't.
const rootSeedQuery = `SELECT count(*) FROM inode WHERE ino = ?`
const rootSeedInsert = `INSERT INTO inode (ino, mode, uid, gid, size, atime, mtime, ctime)
	VALUES (?, ?, 0, 0, 0, ?, ?, ?)`
