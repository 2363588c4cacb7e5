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

import "agentfs/ifs"

// Linux's DT_* directory entry type constants, written into each
// linux_dirent64 record's d_type byte.
const (
	dtUnknown = 0
	dtReg     = 8
	dtDir     = 4
	dtLnk     = 10
)

func directoryTypeByte(t ifs.FileType) byte {
	switch t {
	case ifs.TypeDirectory:
		return dtDir
	case ifs.TypeSymlink:
		return dtLnk
	case ifs.TypeRegular:
		return dtReg
	default:
		return dtUnknown
	}
}

// direntAlignment is FUSE_DIRENT_ALIGN's kernel equivalent for
// linux_dirent64: records are padded to 8-byte boundaries.
const direntAlignment = 8

// direntHeaderSize is sizeof(ino) + sizeof(off) + sizeof(reclen) +
// sizeof(type): 8 + 8 + 2 + 1, rounded by the encoder below.
const direntHeaderSize = 19

// writeDirent appends one linux_dirent64 record for (ino, offsetCookie,
// name, type) to buf: compute the padded record size and bail without
// writing anything if it doesn't fit. Returns the number of bytes
// appended, or zero if it would not fit within maxLen additional bytes.
func writeDirent(buf []byte, ino uint64, offsetCookie uint64, name string, t ifs.FileType, maxLen int) ([]byte, int) {
	nameBytes := append([]byte(name), 0) // NUL-terminated
	unpadded := direntHeaderSize + len(nameBytes)
	padded := (unpadded + direntAlignment - 1) &^ (direntAlignment - 1)

	if padded > maxLen {
		return buf, 0
	}

	rec := make([]byte, padded)
	putLE64(rec[0:8], ino)
	putLE64(rec[8:16], offsetCookie)
	putLE16(rec[16:18], uint16(padded))
	rec[18] = directoryTypeByte(t)
	copy(rec[19:], nameBytes)

	return append(buf, rec...), padded
}

// encodeGetdents64 fills up to maxLen bytes of linux_dirent64 records for
// entries starting at cookie (a 0-based index into the list ".", "..",
// then entries; each record's offset cookie is the index of the record
// after it, so repeated calls resume where they left off). "." and ".."
// occupy the first two positions of that list: Readdir itself never
// returns them, but real guest programs expect getdents64 output to
// include them.
func encodeGetdents64(selfIno, parentIno uint64, entries []ifs.DirEntry, cookie uint64, maxLen int) (data []byte, nextCookie uint64, eof bool) {
	synthetic := []ifs.DirEntry{
		{Name: ".", Ino: selfIno, Type: ifs.TypeDirectory},
		{Name: "..", Ino: parentIno, Type: ifs.TypeDirectory},
	}
	all := append(append([]ifs.DirEntry{}, synthetic...), entries...)

	if cookie >= uint64(len(all)) {
		return nil, cookie, true
	}

	i := cookie
	for ; i < uint64(len(all)); i++ {
		e := all[i]
		var n int
		data, n = writeDirent(data, e.Ino, i+1, e.Name, e.Type, maxLen-len(data))
		if n == 0 {
			break
		}
	}

	return data, i, i >= uint64(len(all))
}
