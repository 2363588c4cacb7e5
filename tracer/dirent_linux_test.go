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
	"testing"

	"agentfs/ifs"

	"github.com/stretchr/testify/require"
)

func TestEncodeGetdents64SynthesizesDotEntriesFirst(t *testing.T) {
	entries := []ifs.DirEntry{
		{Name: "child", Ino: 5, Type: ifs.TypeRegular},
	}

	data, next, eof := encodeGetdents64(2, 1, entries, 0, 4096)
	require.True(t, eof)
	require.EqualValues(t, 3, next)

	names, inos := decodeDirents(t, data)
	require.Equal(t, []string{".", "..", "child"}, names)
	require.Equal(t, []uint64{2, 1, 5}, inos)
}

func TestEncodeGetdents64ResumesFromCookie(t *testing.T) {
	entries := []ifs.DirEntry{
		{Name: "a", Ino: 10, Type: ifs.TypeRegular},
		{Name: "b", Ino: 11, Type: ifs.TypeRegular},
	}

	first, cookie, eof := encodeGetdents64(1, 1, entries, 0, 4096)
	require.True(t, eof)
	names, _ := decodeDirents(t, first)
	require.Equal(t, []string{".", "..", "a", "b"}, names)

	rest, _, eof := encodeGetdents64(1, 1, entries, cookie, 4096)
	require.True(t, eof)
	require.Empty(t, rest)
}

func TestEncodeGetdents64StopsWhenBufferIsFull(t *testing.T) {
	entries := []ifs.DirEntry{
		{Name: "child", Ino: 5, Type: ifs.TypeDirectory},
	}

	// Big enough for "." and ".." (24 bytes each, aligned) but not "child".
	data, next, eof := encodeGetdents64(2, 1, entries, 0, 48)
	require.False(t, eof)
	names, _ := decodeDirents(t, data)
	require.Equal(t, []string{".", ".."}, names)
	require.EqualValues(t, 2, next)
}

func TestDirectoryTypeByte(t *testing.T) {
	require.Equal(t, byte(dtDir), directoryTypeByte(ifs.TypeDirectory))
	require.Equal(t, byte(dtReg), directoryTypeByte(ifs.TypeRegular))
	require.Equal(t, byte(dtLnk), directoryTypeByte(ifs.TypeSymlink))
	require.Equal(t, byte(dtUnknown), directoryTypeByte(ifs.TypeUnknown))
}

// decodeDirents parses a buffer of linux_dirent64 records back into
// parallel name/ino slices, mirroring what a guest's readdir(3) would do.
func decodeDirents(t *testing.T, buf []byte) ([]string, []uint64) {
	t.Helper()
	var names []string
	var inos []uint64
	for len(buf) > 0 {
		require.GreaterOrEqual(t, len(buf), direntHeaderSize)
		ino := leUint64(buf[0:8])
		reclen := leUint16(buf[16:18])
		nameEnd := direntHeaderSize
		for nameEnd < int(reclen) && buf[nameEnd] != 0 {
			nameEnd++
		}
		names = append(names, string(buf[direntHeaderSize:nameEnd]))
		inos = append(inos, ino)
		buf = buf[reclen:]
	}
	return names, inos
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func leUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
