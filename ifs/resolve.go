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

package ifs

import (
	"context"
	"database/sql"
	"strings"

	"agentfs/store"
)

// maxSymlinkExpansions bounds path resolution so that a symlink cycle
// terminates with ErrSymlinkLoop instead of looping forever.
const maxSymlinkExpansions = 40

// splitPath breaks a slash-separated path into non-empty components.
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// lookupChild finds the dentry named name under parent, returning its
// inode id and mode. Returns ErrNotFound if absent. Consults fs's dentry
// cache first; a cache hit still trusts the cached mode, which is safe
// because every mutation that changes a dentry's target queues its cache
// put/invalidate and only applies it once the owning transaction has
// actually committed -- a rolled-back transaction never touches the
// cache at all.
func lookupChild(ctx context.Context, fs *Filesystem, tx *sql.Tx, parent uint64, name string) (ino uint64, mode uint32, err error) {
	if v, ok := fs.cache.get(parent, name); ok {
		return v.ino, v.mode, nil
	}

	row := tx.QueryRowContext(ctx, `
		SELECT inode.ino, inode.mode
		FROM dentry JOIN inode ON dentry.ino = inode.ino
		WHERE dentry.parent_ino = ? AND dentry.name = ?`, parent, name)
	if err = row.Scan(&ino, &mode); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, ErrNotFound
		}
		return 0, 0, err
	}

	fs.cache.put(parent, name, ino, mode)
	return ino, mode, nil
}

// readSymlinkTarget returns the stored target text for a symlink inode.
func readSymlinkTarget(ctx context.Context, tx *sql.Tx, ino uint64) (string, error) {
	var target string
	err := tx.QueryRowContext(ctx, `SELECT target FROM symlink WHERE ino = ?`, ino).Scan(&target)
	if err == sql.ErrNoRows {
		return "", ErrStorageFailure
	}
	return target, err
}

// resolve walks path starting from the root, looking up one dentry per
// component. When followSymlinks is true, a symlink encountered at any
// component (including the final one) is substituted for its target and
// resolution continues -- absolute targets restart at the root, relative
// targets are interpreted against the symlink's parent directory.
// followSymlinks false stops short of following a terminal symlink: the
// terminal component is returned unresolved even if it is a symlink, but
// symlinks in intermediate (non-terminal) components are still followed,
// since descending through a symlinked directory is required either way.
func resolve(ctx context.Context, fs *Filesystem, tx *sql.Tx, path string, followSymlinks bool) (ino uint64, mode uint32, err error) {
	ino = store.RootIno
	mode = store.DefaultDirMode

	components := splitPath(path)
	expansions := 0

	for i := 0; i < len(components); i++ {
		name := components[i]
		isLast := i == len(components)-1

		if TypeFromMode(mode) != TypeDirectory {
			return 0, 0, ErrNotADirectory
		}

		childIno, childMode, lookupErr := lookupChild(ctx, fs, tx, ino, name)
		if lookupErr != nil {
			return 0, 0, lookupErr
		}

		followThis := !isLast || followSymlinks
		if followThis && TypeFromMode(childMode) == TypeSymlink {
			expansions++
			if expansions > maxSymlinkExpansions {
				return 0, 0, ErrSymlinkLoop
			}

			target, targetErr := readSymlinkTarget(ctx, tx, childIno)
			if targetErr != nil {
				return 0, 0, targetErr
			}

			var rest []string
			if strings.HasPrefix(target, "/") {
				ino = store.RootIno
				mode = store.DefaultDirMode
				rest = splitPath(target)
			} else {
				// Relative targets resolve against the symlink's own
				// parent directory, i.e. the directory we were just in.
				rest = splitPath(target)
			}

			// Splice the expanded target in place of the remaining
			// unresolved components and restart the component loop over
			// the combined slice.
			remaining := append(append([]string{}, rest...), components[i+1:]...)
			components = remaining
			i = -1
			continue
		}

		ino, mode = childIno, childMode
	}

	return ino, mode, nil
}

// resolveParent resolves the directory containing the final component of
// path and returns its inode id along with the final component's name.
// Used by every op that creates or removes a single dentry.
func resolveParent(ctx context.Context, fs *Filesystem, tx *sql.Tx, path string) (parentIno uint64, name string, err error) {
	components := splitPath(path)
	if len(components) == 0 {
		return 0, "", ErrInvalidArgument
	}

	name = components[len(components)-1]
	parentPath := "/" + strings.Join(components[:len(components)-1], "/")

	parentIno, parentMode, err := resolve(ctx, fs, tx, parentPath, true)
	if err != nil {
		return 0, "", err
	}
	if TypeFromMode(parentMode) != TypeDirectory {
		return 0, "", ErrNotADirectory
	}
	return parentIno, name, nil
}
