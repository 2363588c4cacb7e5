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

package vfs_test

import (
	"testing"

	"agentfs/ifs"
	"agentfs/vfs"

	"github.com/stretchr/testify/require"
)

func TestMountTableLongestPrefixMatch(t *testing.T) {
	root := &vfs.Passthrough{}
	agent := &vfs.Passthrough{}

	table, err := vfs.NewMountTable([]vfs.Mount{
		{Prefix: "/", FS: root},
		{Prefix: "/agent", FS: agent},
	})
	require.NoError(t, err)

	fsys, rem, err := table.Lookup("/agent/foo/bar")
	require.NoError(t, err)
	require.Same(t, agent, fsys)
	require.Equal(t, "/foo/bar", rem)

	fsys, rem, err = table.Lookup("/tmp/foo")
	require.NoError(t, err)
	require.Same(t, root, fsys)
	require.Equal(t, "/tmp/foo", rem)

	fsys, rem, err = table.Lookup("/agent")
	require.NoError(t, err)
	require.Same(t, agent, fsys)
	require.Equal(t, "/", rem)
}

func TestMountTableRejectsOverlappingPrefixes(t *testing.T) {
	_, err := vfs.NewMountTable([]vfs.Mount{
		{Prefix: "/a", FS: &vfs.Passthrough{}},
		{Prefix: "/a/b", FS: &vfs.Passthrough{}},
	})
	require.Error(t, err)
}

func TestMountTableRejectsDuplicatePrefixes(t *testing.T) {
	_, err := vfs.NewMountTable([]vfs.Mount{
		{Prefix: "/a", FS: &vfs.Passthrough{}},
		{Prefix: "/a", FS: &vfs.Passthrough{}},
	})
	require.Error(t, err)
}

func TestMountTableLookupMissReturnsNotFound(t *testing.T) {
	table, err := vfs.NewMountTable([]vfs.Mount{
		{Prefix: "/agent", FS: &vfs.Passthrough{}},
	})
	require.NoError(t, err)

	_, _, err = table.Lookup("/other")
	require.ErrorIs(t, err, ifs.ErrNotFound)
}
