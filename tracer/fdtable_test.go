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

package tracer

import (
	"context"
	"testing"

	"agentfs/ifs"

	"github.com/stretchr/testify/require"
)

type fakeHandleVFS struct{ closed bool }

func (f *fakeHandleVFS) Read(p []byte) (int, error)                       { return 0, nil }
func (f *fakeHandleVFS) Write(p []byte) (int, error)                      { return len(p), nil }
func (f *fakeHandleVFS) ReadAt(p []byte, off int64) (int, error)          { return 0, nil }
func (f *fakeHandleVFS) WriteAt(p []byte, off int64) (int, error)         { return len(p), nil }
func (f *fakeHandleVFS) Seek(offset int64, whence int) (int64, error)     { return offset, nil }
func (f *fakeHandleVFS) Stat(ctx context.Context) (ifs.Attr, error)       { return ifs.Attr{}, nil }
func (f *fakeHandleVFS) Close() error                                     { f.closed = true; return nil }

func TestFDTableAllocateStartsAtBase(t *testing.T) {
	tbl := newFDTable()
	fd := tbl.allocate(&openFile{})
	require.Equal(t, virtualFDBase, fd)
}

func TestFDTableCloseIsIdempotentlyRejected(t *testing.T) {
	tbl := newFDTable()
	h := &fakeHandleVFS{}
	fd := tbl.allocate(&openFile{handle: h})

	require.NoError(t, tbl.close(fd))
	err := tbl.close(fd)
	require.ErrorIs(t, err, ifs.ErrBadHandle)
}

func TestFDTableDupSharesHandleUntilBothClosed(t *testing.T) {
	tbl := newFDTable()
	h := &fakeHandleVFS{}
	fd := tbl.allocate(&openFile{handle: h})

	dupFd, err := tbl.dup(fd)
	require.NoError(t, err)
	require.NotEqual(t, fd, dupFd)

	require.NoError(t, tbl.close(fd))
	require.False(t, h.closed)
	require.NoError(t, tbl.close(dupFd))
	require.True(t, h.closed)
}

func TestFDTableCloneSharesHandles(t *testing.T) {
	tbl := newFDTable()
	h := &fakeHandleVFS{}
	fd := tbl.allocate(&openFile{handle: h})

	clone := tbl.clone()
	_, ok := clone.lookup(fd)
	require.True(t, ok)

	require.NoError(t, tbl.close(fd))
	require.False(t, h.closed)
	require.NoError(t, clone.close(fd))
	require.True(t, h.closed)
}

func TestIsVirtual(t *testing.T) {
	require.False(t, isVirtual(3))
	require.True(t, isVirtual(virtualFDBase))
	require.True(t, isVirtual(virtualFDBase+1))
}
