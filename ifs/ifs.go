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

// Package ifs implements an inode-based virtual filesystem over an
// embedded SQL store: path resolution, hard and symbolic links, chunked
// file data, and the transactional mutation operations (mkdir, write,
// link, unlink, rename, ...) that keep the inode/dentry/data tables
// consistent with each other.
package ifs

import (
	"bytes"
	"context"
	"database/sql"
	"sort"
	"strings"

	"agentfs/store"
)

// chunkThreshold is the cutover point below which a write is stored as a
// single chunk at offset zero. 1 MiB is used directly as both the
// single-chunk threshold and the per-chunk size for larger writes.
const chunkThreshold = 1 << 20

// Filesystem is a handle on the inode filesystem backed by a store.Store.
// It is stateless beyond its dentry cache; any number of Filesystem
// values may be constructed over the same Store connection.
type Filesystem struct {
	store *store.Store
	cache *dentryCache
}

// New constructs a Filesystem over s. cacheSize bounds the number of
// resolved dentries kept in the LRU cache; a value of 0 or less is
// treated as 1.
func New(s *store.Store, cacheSize int) *Filesystem {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	return &Filesystem{store: s, cache: newDentryCache(cacheSize)}
}

func (fs *Filesystem) now() int64 {
	return fs.store.Clock.Now().Unix()
}

// statAttr fetches attrs for ino and computes nlink as the number of
// dentries pointing at it. The root inode, which has no dentry of its
// own, always reports nlink 1.
func statAttr(ctx context.Context, tx *sql.Tx, ino uint64) (Attr, error) {
	var a Attr
	a.Ino = ino
	row := tx.QueryRowContext(ctx, `SELECT mode, uid, gid, size, atime, mtime, ctime FROM inode WHERE ino = ?`, ino)
	if err := row.Scan(&a.Mode, &a.Uid, &a.Gid, &a.Size, &a.Atime, &a.Mtime, &a.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return Attr{}, ErrNotFound
		}
		return Attr{}, err
	}

	if ino == store.RootIno {
		a.Nlink = 1
		return a, nil
	}

	var nlink uint32
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM dentry WHERE ino = ?`, ino).Scan(&nlink); err != nil {
		return Attr{}, err
	}
	a.Nlink = nlink
	return a, nil
}

// Stat resolves path following a terminal symlink and returns its
// attributes.
func (fs *Filesystem) Stat(ctx context.Context, path string) (Attr, error) {
	var a Attr
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		ino, _, err := resolve(ctx, fs, tx, path, true)
		if err != nil {
			return err
		}
		a, err = statAttr(ctx, tx, ino)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE inode SET atime = ? WHERE ino = ?`, fs.now(), ino)
		return err
	})
	return a, err
}

// Lstat resolves path without following a terminal symlink.
func (fs *Filesystem) Lstat(ctx context.Context, path string) (Attr, error) {
	var a Attr
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		ino, _, err := resolve(ctx, fs, tx, path, false)
		if err != nil {
			return err
		}
		a, err = statAttr(ctx, tx, ino)
		return err
	})
	return a, err
}

// createInode inserts a new inode row with the given mode and returns its
// id. Callers run this inside an existing transaction.
func createInode(ctx context.Context, tx *sql.Tx, mode uint32, now int64) (uint64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO inode (mode, uid, gid, size, atime, mtime, ctime)
		VALUES (?, 0, 0, 0, ?, ?, ?)`, mode, now, now, now)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// addDentry creates a dentry atomically with (or in addition to) an
// inode, enforcing name uniqueness via the UNIQUE constraint on
// (parent_ino, name).
func addDentry(ctx context.Context, tx *sql.Tx, parent uint64, name string, ino uint64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO dentry (parent_ino, name, ino) VALUES (?, ?, ?)`, parent, name, ino)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrExists
		}
		return err
	}
	return nil
}

// Mkdir creates a directory at path. Fails ErrExists if the final
// component already exists, ErrNotFound if an intermediate directory is
// missing, ErrNotADirectory if an intermediate component isn't a
// directory.
func (fs *Filesystem) Mkdir(ctx context.Context, path string, mode uint32) error {
	mode = (mode & store.ModePermMask) | store.ModeDirectory
	var pending []func()
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		parent, name, err := resolveParent(ctx, fs, tx, path)
		if err != nil {
			return err
		}
		if _, _, err := lookupChild(ctx, fs, tx, parent, name); err == nil {
			return ErrExists
		} else if err != ErrNotFound {
			return err
		}

		now := fs.now()
		ino, err := createInode(ctx, tx, mode, now)
		if err != nil {
			return err
		}
		if err := addDentry(ctx, tx, parent, name, ino); err != nil {
			return err
		}
		pending = append(pending, func() { fs.cache.put(parent, name, ino, mode) })
		return nil
	})
	if err == nil {
		applyPending(pending)
	}
	return err
}

// MkdirAll creates path and any missing intermediate directories, like
// mkdir -p. Applying it twice is a no-op the second time.
func (fs *Filesystem) MkdirAll(ctx context.Context, path string, mode uint32) error {
	mode = (mode & store.ModePermMask) | store.ModeDirectory
	components := splitPath(path)
	var pending []func()
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		parent := uint64(store.RootIno)
		for i, name := range components {
			ino, childMode, err := lookupChild(ctx, fs, tx, parent, name)
			switch err {
			case nil:
				if TypeFromMode(childMode) != TypeDirectory {
					return ErrNotADirectory
				}
				parent = ino
			case ErrNotFound:
				now := fs.now()
				newIno, cErr := createInode(ctx, tx, mode, now)
				if cErr != nil {
					return cErr
				}
				if aErr := addDentry(ctx, tx, parent, name, newIno); aErr != nil {
					return aErr
				}
				createdParent, createdName, createdIno := parent, name, newIno
				pending = append(pending, func() { fs.cache.put(createdParent, createdName, createdIno, mode) })
				parent = newIno
			default:
				return err
			}
			_ = i
		}
		return nil
	})
	if err == nil {
		applyPending(pending)
	}
	return err
}

// Write replaces path's entire contents with data, creating the file if it
// doesn't already exist. Missing parent directories are not created; Write
// then fails with ErrNotFound. All prior data chunks for the inode are
// deleted and replaced atomically within a single transaction.
func (fs *Filesystem) Write(ctx context.Context, path string, data []byte) error {
	var pending []func()
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		parent, name, err := resolveParent(ctx, fs, tx, path)
		if err != nil {
			return err
		}

		now := fs.now()
		ino, mode, err := lookupChild(ctx, fs, tx, parent, name)
		switch err {
		case nil:
			if TypeFromMode(mode) != TypeRegular {
				return ErrIsADirectory
			}
		case ErrNotFound:
			ino, err = createInode(ctx, tx, store.DefaultFileMode, now)
			if err != nil {
				return err
			}
			if err := addDentry(ctx, tx, parent, name, ino); err != nil {
				return err
			}
			pending = append(pending, func() { fs.cache.put(parent, name, ino, store.DefaultFileMode) })
		default:
			return err
		}

		return writeChunks(ctx, tx, ino, data, now)
	})
	if err == nil {
		applyPending(pending)
	}
	return err
}

// writeChunks deletes any existing data rows for ino and inserts data as
// one chunk if it's smaller than chunkThreshold, or as a sequence of
// chunkThreshold-sized chunks otherwise.
func writeChunks(ctx context.Context, tx *sql.Tx, ino uint64, data []byte, now int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM data WHERE ino = ?`, ino); err != nil {
		return err
	}

	for offset := 0; offset < len(data) || (offset == 0 && len(data) == 0); offset += chunkThreshold {
		end := offset + chunkThreshold
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		if _, err := tx.ExecContext(ctx, `INSERT INTO data (ino, offset, size, data) VALUES (?, ?, ?, ?)`,
			ino, offset, len(chunk), chunk); err != nil {
			return err
		}
		if end == len(data) {
			break
		}
	}

	_, err := tx.ExecContext(ctx, `UPDATE inode SET size = ?, mtime = ?, ctime = ? WHERE ino = ?`, len(data), now, now, ino)
	return err
}

// Truncate changes path's size in place: growing pads with zero bytes,
// shrinking discards trailing bytes. Unlike Write, it does not require the
// caller to hold the full desired contents in memory, matching the
// ftruncate(2)/O_TRUNC semantics the tracer's open and truncate handlers
// need.
func (fs *Filesystem) Truncate(ctx context.Context, path string, size uint64) error {
	return fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		ino, mode, err := resolve(ctx, fs, tx, path, true)
		if err != nil {
			return err
		}
		if TypeFromMode(mode) != TypeRegular {
			return ErrIsADirectory
		}

		current, err := readAllChunks(ctx, tx, ino)
		if err != nil {
			return err
		}

		var newData []byte
		if uint64(len(current)) >= size {
			newData = current[:size]
		} else {
			newData = make([]byte, size)
			copy(newData, current)
		}

		return writeChunks(ctx, tx, ino, newData, fs.now())
	})
}

// readAllChunks concatenates every data row for ino in offset order.
func readAllChunks(ctx context.Context, tx *sql.Tx, ino uint64) ([]byte, error) {
	rows, err := tx.QueryContext(ctx, `SELECT data FROM data WHERE ino = ? ORDER BY offset ASC`, ino)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buf bytes.Buffer
	for rows.Next() {
		var chunk []byte
		if err := rows.Scan(&chunk); err != nil {
			return nil, err
		}
		buf.Write(chunk)
	}
	return buf.Bytes(), rows.Err()
}

// Read resolves path following symlinks and returns its full contents.
func (fs *Filesystem) Read(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		ino, mode, err := resolve(ctx, fs, tx, path, true)
		if err != nil {
			return err
		}
		if TypeFromMode(mode) != TypeRegular {
			return ErrIsADirectory
		}

		data, err = readAllChunks(ctx, tx, ino)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE inode SET atime = ? WHERE ino = ?`, fs.now(), ino)
		return err
	})
	return data, err
}

// Readdir returns child names in lexicographic order. Fails
// ErrNotADirectory if path does not name a directory.
func (fs *Filesystem) Readdir(ctx context.Context, path string) ([]DirEntry, error) {
	var entries []DirEntry
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		ino, mode, err := resolve(ctx, fs, tx, path, true)
		if err != nil {
			return err
		}
		if TypeFromMode(mode) != TypeDirectory {
			return ErrNotADirectory
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT dentry.name, inode.ino, inode.mode
			FROM dentry JOIN inode ON dentry.ino = inode.ino
			WHERE dentry.parent_ino = ?`, ino)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e DirEntry
			var childMode uint32
			if err := rows.Scan(&e.Name, &e.Ino, &childMode); err != nil {
				return err
			}
			e.Type = TypeFromMode(childMode)
			entries = append(entries, e)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		return nil
	})
	return entries, err
}

// Symlink creates a symlink at linkpath whose stored target is target,
// verbatim; resolution of that target is lazy, deferred until something
// actually traverses the link.
func (fs *Filesystem) Symlink(ctx context.Context, target, linkpath string) error {
	var pending []func()
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		parent, name, err := resolveParent(ctx, fs, tx, linkpath)
		if err != nil {
			return err
		}
		if _, _, err := lookupChild(ctx, fs, tx, parent, name); err == nil {
			return ErrExists
		} else if err != ErrNotFound {
			return err
		}

		now := fs.now()
		ino, err := createInode(ctx, tx, store.ModeSymlink|0o777, now)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO symlink (ino, target) VALUES (?, ?)`, ino, target); err != nil {
			return err
		}
		if err := addDentry(ctx, tx, parent, name, ino); err != nil {
			return err
		}
		pending = append(pending, func() { fs.cache.put(parent, name, ino, store.ModeSymlink|0o777) })
		return nil
	})
	if err == nil {
		applyPending(pending)
	}
	return err
}

// Readlink returns the stored target text without resolving it.
func (fs *Filesystem) Readlink(ctx context.Context, path string) (string, error) {
	var target string
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		ino, mode, err := resolve(ctx, fs, tx, path, false)
		if err != nil {
			return err
		}
		if TypeFromMode(mode) != TypeSymlink {
			return ErrInvalidArgument
		}
		target, err = readSymlinkTarget(ctx, tx, ino)
		return err
	})
	return target, err
}

// Link adds a dentry at newpath referencing the same inode as oldpath;
// nlink follows automatically from the dentry count. Fails on
// directories, since directory hard links are forbidden.
func (fs *Filesystem) Link(ctx context.Context, oldpath, newpath string) error {
	var pending []func()
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		ino, mode, err := resolve(ctx, fs, tx, oldpath, false)
		if err != nil {
			return err
		}
		if TypeFromMode(mode) == TypeDirectory {
			return ErrIsADirectory
		}

		parent, name, err := resolveParent(ctx, fs, tx, newpath)
		if err != nil {
			return err
		}
		if _, _, err := lookupChild(ctx, fs, tx, parent, name); err == nil {
			return ErrExists
		} else if err != ErrNotFound {
			return err
		}

		if err := addDentry(ctx, tx, parent, name, ino); err != nil {
			return err
		}
		pending = append(pending, func() { fs.cache.put(parent, name, ino, mode) })
		return nil
	})
	if err == nil {
		applyPending(pending)
	}
	return err
}

// deleteDentryAndMaybeInode removes the dentry (parent, name) and, if that
// was the inode's last dentry, deletes the inode itself -- the database's
// ON DELETE CASCADE foreign keys take care of the dependent data and
// symlink rows.
func deleteDentryAndMaybeInode(ctx context.Context, tx *sql.Tx, parent uint64, name string, ino uint64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM dentry WHERE parent_ino = ? AND name = ?`, parent, name); err != nil {
		return err
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM dentry WHERE ino = ?`, ino).Scan(&remaining); err != nil {
		return err
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM inode WHERE ino = ?`, ino); err != nil {
			return err
		}
	}
	return nil
}

// Unlink removes the dentry at path. If it was the last dentry pointing
// at the inode, the inode and its data/symlink rows are deleted too.
// Directories cannot be removed with Unlink; use Rmdir.
func (fs *Filesystem) Unlink(ctx context.Context, path string) error {
	var pending []func()
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		parent, name, err := resolveParent(ctx, fs, tx, path)
		if err != nil {
			return err
		}
		ino, mode, err := lookupChild(ctx, fs, tx, parent, name)
		if err != nil {
			return err
		}
		if TypeFromMode(mode) == TypeDirectory {
			return ErrIsADirectory
		}

		pending = append(pending, func() { fs.cache.invalidate(parent, name) })
		return deleteDentryAndMaybeInode(ctx, tx, parent, name, ino)
	})
	if err == nil {
		applyPending(pending)
	}
	return err
}

// Rmdir removes the empty directory at path.
func (fs *Filesystem) Rmdir(ctx context.Context, path string) error {
	var pending []func()
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		parent, name, err := resolveParent(ctx, fs, tx, path)
		if err != nil {
			return err
		}
		ino, mode, err := lookupChild(ctx, fs, tx, parent, name)
		if err != nil {
			return err
		}
		if TypeFromMode(mode) != TypeDirectory {
			return ErrNotADirectory
		}

		var children int
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM dentry WHERE parent_ino = ?`, ino).Scan(&children); err != nil {
			return err
		}
		if children > 0 {
			return ErrNotEmpty
		}

		pending = append(pending, func() { fs.cache.invalidate(parent, name) })
		return deleteDentryAndMaybeInode(ctx, tx, parent, name, ino)
	})
	if err == nil {
		applyPending(pending)
	}
	return err
}

// Rename moves old to new, atomically within a single transaction. If new
// already exists and is type-compatible with old, it is replaced; moves
// across directories are supported. Implemented at the dentry level as
// unlink-then-link.
func (fs *Filesystem) Rename(ctx context.Context, oldpath, newpath string) error {
	var pending []func()
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		oldParent, oldName, err := resolveParent(ctx, fs, tx, oldpath)
		if err != nil {
			return err
		}
		ino, mode, err := lookupChild(ctx, fs, tx, oldParent, oldName)
		if err != nil {
			return err
		}

		newParent, newName, err := resolveParent(ctx, fs, tx, newpath)
		if err != nil {
			return err
		}

		existingIno, existingMode, lookupErr := lookupChild(ctx, fs, tx, newParent, newName)
		switch lookupErr {
		case nil:
			if existingIno == ino {
				// Renaming a path onto itself: a no-op.
				return nil
			}
			if TypeFromMode(existingMode) == TypeDirectory {
				var children int
				if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM dentry WHERE parent_ino = ?`, existingIno).Scan(&children); err != nil {
					return err
				}
				if children > 0 {
					return ErrNotEmpty
				}
			}
			if TypeFromMode(existingMode) == TypeDirectory && TypeFromMode(mode) != TypeDirectory {
				return ErrIsADirectory
			}
			if TypeFromMode(existingMode) != TypeDirectory && TypeFromMode(mode) == TypeDirectory {
				return ErrNotADirectory
			}

			pending = append(pending, func() { fs.cache.invalidate(newParent, newName) })
			if err := deleteDentryAndMaybeInode(ctx, tx, newParent, newName, existingIno); err != nil {
				return err
			}
		case ErrNotFound:
			// Nothing to replace.
		default:
			return lookupErr
		}

		pending = append(pending, func() { fs.cache.invalidate(oldParent, oldName) })
		if _, err := tx.ExecContext(ctx, `DELETE FROM dentry WHERE parent_ino = ? AND name = ?`, oldParent, oldName); err != nil {
			return err
		}
		if err := addDentry(ctx, tx, newParent, newName, ino); err != nil {
			return err
		}
		pending = append(pending, func() { fs.cache.put(newParent, newName, ino, mode) })
		return nil
	})
	if err == nil {
		applyPending(pending)
	}
	return err
}

// isUniqueConstraintErr reports whether err came from violating a UNIQUE
// constraint (used to translate SQLite's generic constraint error into
// ErrExists at the dentry-name boundary).
func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT")
}
