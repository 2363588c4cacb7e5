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

package ifs_test

import (
	"context"
	"path/filepath"
	"testing"

	"agentfs/clock"
	"agentfs/ifs"
	"agentfs/store"

	"github.com/stretchr/testify/require"
)

func newFilesystem(t *testing.T) *ifs.Filesystem {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "agent.db")
	st, err := store.Open(context.Background(), dbPath, clock.RealClock{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return ifs.New(st, 64)
}

func TestMkdirAndWriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	fsys := newFilesystem(t)

	require.NoError(t, fsys.MkdirAll(ctx, "/a/b/c", 0o755))
	require.NoError(t, fsys.Write(ctx, "/a/b/c/hello.txt", []byte("hello world")))

	data, err := fsys.Read(ctx, "/a/b/c/hello.txt")
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))

	attr, err := fsys.Stat(ctx, "/a/b/c/hello.txt")
	require.NoError(t, err)
	require.True(t, attr.IsFile())
	require.EqualValues(t, len("hello world"), attr.Size)
}

func TestMkdirAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fsys := newFilesystem(t)

	require.NoError(t, fsys.MkdirAll(ctx, "/x/y", 0o755))
	require.NoError(t, fsys.MkdirAll(ctx, "/x/y", 0o755))

	entries, err := fsys.Readdir(ctx, "/x")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "y", entries[0].Name)
}

func TestWriteThenWriteReplacesWhole(t *testing.T) {
	ctx := context.Background()
	fsys := newFilesystem(t)

	require.NoError(t, fsys.Write(ctx, "/f", []byte("first contents are long")))
	require.NoError(t, fsys.Write(ctx, "/f", []byte("short")))

	data, err := fsys.Read(ctx, "/f")
	require.NoError(t, err)
	require.Equal(t, "short", string(data))
}

func TestHardLinkSharesInode(t *testing.T) {
	ctx := context.Background()
	fsys := newFilesystem(t)

	require.NoError(t, fsys.Write(ctx, "/orig", []byte("shared data")))
	require.NoError(t, fsys.Link(ctx, "/orig", "/alias"))

	origAttr, err := fsys.Stat(ctx, "/orig")
	require.NoError(t, err)
	require.EqualValues(t, 2, origAttr.Nlink)

	aliasAttr, err := fsys.Stat(ctx, "/alias")
	require.NoError(t, err)
	require.Equal(t, origAttr.Ino, aliasAttr.Ino)

	require.NoError(t, fsys.Unlink(ctx, "/orig"))
	data, err := fsys.Read(ctx, "/alias")
	require.NoError(t, err)
	require.Equal(t, "shared data", string(data))
}

func TestDirectoryHardLinkRejected(t *testing.T) {
	ctx := context.Background()
	fsys := newFilesystem(t)

	require.NoError(t, fsys.Mkdir(ctx, "/d", 0o755))
	err := fsys.Link(ctx, "/d", "/d2")
	require.ErrorIs(t, err, ifs.ErrIsADirectory)
}

func TestSymlinkFollowAndNoFollow(t *testing.T) {
	ctx := context.Background()
	fsys := newFilesystem(t)

	require.NoError(t, fsys.MkdirAll(ctx, "/dir", 0o755))
	require.NoError(t, fsys.Write(ctx, "/dir/target.txt", []byte("target contents")))
	require.NoError(t, fsys.Symlink(ctx, "target.txt", "/dir/link"))

	attr, err := fsys.Stat(ctx, "/dir/link")
	require.NoError(t, err)
	require.True(t, attr.IsFile())

	lattr, err := fsys.Lstat(ctx, "/dir/link")
	require.NoError(t, err)
	require.True(t, lattr.IsLink())

	target, err := fsys.Readlink(ctx, "/dir/link")
	require.NoError(t, err)
	require.Equal(t, "target.txt", target)

	data, err := fsys.Read(ctx, "/dir/link")
	require.NoError(t, err)
	require.Equal(t, "target contents", string(data))
}

func TestSymlinkLoopDetected(t *testing.T) {
	ctx := context.Background()
	fsys := newFilesystem(t)

	require.NoError(t, fsys.Symlink(ctx, "/b", "/a"))
	require.NoError(t, fsys.Symlink(ctx, "/a", "/b"))

	_, err := fsys.Stat(ctx, "/a")
	require.ErrorIs(t, err, ifs.ErrSymlinkLoop)
}

func TestRenameReplacesCompatibleTarget(t *testing.T) {
	ctx := context.Background()
	fsys := newFilesystem(t)

	require.NoError(t, fsys.Write(ctx, "/src", []byte("new")))
	require.NoError(t, fsys.Write(ctx, "/dst", []byte("old")))

	require.NoError(t, fsys.Rename(ctx, "/src", "/dst"))

	data, err := fsys.Read(ctx, "/dst")
	require.NoError(t, err)
	require.Equal(t, "new", string(data))

	_, err = fsys.Stat(ctx, "/src")
	require.ErrorIs(t, err, ifs.ErrNotFound)
}

func TestRenameRejectsNonEmptyDirectoryTarget(t *testing.T) {
	ctx := context.Background()
	fsys := newFilesystem(t)

	require.NoError(t, fsys.Mkdir(ctx, "/src", 0o755))
	require.NoError(t, fsys.Mkdir(ctx, "/dst", 0o755))
	require.NoError(t, fsys.Write(ctx, "/dst/child", []byte("x")))

	err := fsys.Rename(ctx, "/src", "/dst")
	require.ErrorIs(t, err, ifs.ErrNotEmpty)
}

func TestRmdirRejectsNonEmpty(t *testing.T) {
	ctx := context.Background()
	fsys := newFilesystem(t)

	require.NoError(t, fsys.MkdirAll(ctx, "/d/child", 0o755))
	err := fsys.Rmdir(ctx, "/d")
	require.ErrorIs(t, err, ifs.ErrNotEmpty)

	require.NoError(t, fsys.Rmdir(ctx, "/d/child"))
	require.NoError(t, fsys.Rmdir(ctx, "/d"))
}

func TestTruncateGrowsAndShrinks(t *testing.T) {
	ctx := context.Background()
	fsys := newFilesystem(t)

	require.NoError(t, fsys.Write(ctx, "/f", []byte("abcdef")))
	require.NoError(t, fsys.Truncate(ctx, "/f", 3))
	data, err := fsys.Read(ctx, "/f")
	require.NoError(t, err)
	require.Equal(t, "abc", string(data))

	require.NoError(t, fsys.Truncate(ctx, "/f", 6))
	data, err = fsys.Read(ctx, "/f")
	require.NoError(t, err)
	require.Equal(t, []byte{'a', 'b', 'c', 0, 0, 0}, data)
}

func TestRootIsAlwaysADirectory(t *testing.T) {
	ctx := context.Background()
	fsys := newFilesystem(t)

	attr, err := fsys.Stat(ctx, "/")
	require.NoError(t, err)
	require.True(t, attr.IsDir())
	require.EqualValues(t, store.RootIno, attr.Ino)
}
